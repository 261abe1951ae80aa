package httpapi

import (
	"errors"

	"github.com/coachkit/creditledger/core"
	"github.com/coachkit/creditledger/pkg/binder"
	"github.com/coachkit/creditledger/svc/credit"
	"github.com/coachkit/creditledger/svc/ledger"
	"github.com/coachkit/creditledger/svc/quota"
)

// toHTTPError maps service errors to HTTP errors. Unknown errors become 500.
func toHTTPError(err error) error {
	var insufficient *credit.InsufficientCreditsError
	switch {
	case errors.As(err, &insufficient):
		return core.ErrPaymentRequired.
			WithMessage("insufficient credits").
			WithDetails(map[string]any{"balance": insufficient.Balance, "required": insufficient.Required})
	case errors.Is(err, binder.ErrBodyTooLarge):
		return core.ErrRequestEntityTooLarge
	case errors.Is(err, binder.ErrMissingContentType),
		errors.Is(err, binder.ErrUnsupportedMediaType),
		errors.Is(err, binder.ErrFailedToParseJSON):
		return core.ErrBadRequest.WithMessage(err.Error())
	case errors.Is(err, credit.ErrInvalidAmount),
		errors.Is(err, credit.ErrInvalidTier),
		errors.Is(err, credit.ErrInvalidKind),
		errors.Is(err, ledger.ErrInvalidAccountID),
		errors.Is(err, quota.ErrInvalidAccountID):
		return core.ErrBadRequest.WithMessage(err.Error())
	case errors.Is(err, ledger.ErrNotFound):
		return core.ErrNotFound.WithMessage("account not found")
	case errors.Is(err, quota.ErrUnknownFeature), errors.Is(err, quota.ErrUnknownTier):
		return core.ErrNotFound.WithMessage(err.Error())
	case errors.Is(err, ledger.ErrAlreadyExists):
		return core.ErrConflict.WithMessage("account already exists")
	case errors.Is(err, credit.ErrNotEligible):
		return core.ErrUnprocessableEntity.WithMessage(err.Error())
	case errors.Is(err, ledger.ErrOutcomeUnknown):
		return core.ErrGatewayTimeout.WithMessage("write outcome unknown, re-read the account")
	case errors.Is(err, ledger.ErrStorageUnavailable),
		errors.Is(err, ledger.ErrConflict),
		errors.Is(err, quota.ErrStorageUnavailable):
		return core.ErrServiceUnavailable
	}
	return err
}
