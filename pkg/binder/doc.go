// Package binder decodes JSON request bodies into typed request structs.
//
// Decoding is strict: the Content-Type must be application/json, unknown
// fields are rejected, the body is capped and must hold exactly one value.
//
//	var req DeductRequest
//	if err := binder.JSON(r, &req); err != nil {
//		return core.JSONError(core.ErrBadRequest.WithMessage(err.Error()))
//	}
package binder
