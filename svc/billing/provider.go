package billing

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Provider verifies and normalises one billing provider's webhooks.
type Provider interface {
	// Name is the path segment the provider's webhooks arrive on.
	Name() string
	// Parse verifies payload against the signature in header. It returns an
	// error wrapping ErrInvalidSignature or ErrInvalidPayload on rejection.
	Parse(ctx context.Context, payload []byte, header http.Header) (Event, error)
}

// metaAccountID is the metadata key checkout sessions set to our account id.
const metaAccountID = "account_id"

// NewProviders builds the providers listed in cfg.Providers.
func NewProviders(cfg Config) ([]Provider, error) {
	providers := make([]Provider, 0, len(cfg.Providers))
	for _, name := range cfg.Providers {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "":
			continue
		case "stripe":
			p, err := NewStripeProvider(cfg.StripeWebhookSecret)
			if err != nil {
				return nil, err
			}
			providers = append(providers, p)
		case "paddle":
			p, err := NewPaddleProvider(cfg.PaddleWebhookSecret)
			if err != nil {
				return nil, err
			}
			providers = append(providers, p)
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
		}
	}
	return providers, nil
}
