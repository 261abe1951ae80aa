package core

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Response renders itself to an http.ResponseWriter.
type Response interface {
	Render(w http.ResponseWriter, r *http.Request) error
}

// JSONResponse is the standard JSON envelope.
type JSONResponse struct {
	Data  any            `json:"data,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
	Error *ErrorDetail   `json:"error,omitempty"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

type jsonResponse struct {
	status int
	body   any
}

func (j jsonResponse) Render(w http.ResponseWriter, _ *http.Request) error {
	return writeJSON(w, j.status, j.body)
}

// OK wraps data in the envelope with status 200.
func OK(data any) Response {
	return jsonResponse{status: http.StatusOK, body: JSONResponse{Data: data}}
}

// Created wraps data in the envelope with status 201.
func Created(data any) Response {
	return jsonResponse{status: http.StatusCreated, body: JSONResponse{Data: data}}
}

// Status wraps data and meta in the envelope with the given status.
func Status(status int, data any, meta map[string]any) Response {
	return jsonResponse{status: status, body: JSONResponse{Data: data, Meta: meta}}
}

// Raw renders v as JSON without the envelope.
func Raw(status int, v any) Response {
	return jsonResponse{status: status, body: v}
}

// JSONError renders err in the envelope. HTTPError values keep their status
// and details; anything else becomes a 500 without leaking its text.
func JSONError(err error) Response {
	var httpErr HTTPError
	if !errors.As(err, &httpErr) {
		httpErr = ErrInternalServerError
	}

	msg := httpErr.Message
	if msg == "" {
		msg = http.StatusText(httpErr.Code)
	}

	return jsonResponse{
		status: httpErr.Code,
		body: JSONResponse{Error: &ErrorDetail{
			Code:    httpErr.Key,
			Message: msg,
			Details: httpErr.Details,
		}},
	}
}

// JSON writes v with the given status, ignoring encode errors after the
// header is sent.
func JSON(w http.ResponseWriter, status int, v any) {
	_ = writeJSON(w, status, v)
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
