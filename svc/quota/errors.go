package quota

import "errors"

var (
	ErrUnknownFeature           = errors.New("quota: feature not configured for tier")
	ErrUnknownTier              = errors.New("quota: tier has no plan")
	ErrInvalidPlanConfiguration = errors.New("quota: invalid plan configuration")
	ErrFailedToLoadPlans        = errors.New("quota: failed to load plans")
	ErrInvalidAccountID         = errors.New("quota: invalid account id")
	ErrStorageUnavailable       = errors.New("quota: counter storage unavailable")
)
