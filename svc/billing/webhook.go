package billing

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/coachkit/creditledger/core"
	"github.com/coachkit/creditledger/pkg/logger"
)

// DefaultMaxBodyBytes caps webhook bodies.
const DefaultMaxBodyBytes int64 = 1 << 20

type webhookResponse struct {
	Received bool `json:"received"`
	Receipt
}

// WebhookHandler serves POST /webhooks/{provider}.
type WebhookHandler struct {
	processor *Processor
	maxBytes  int64
	log       *slog.Logger
}

func NewWebhookHandler(p *Processor, maxBytes int64, log *slog.Logger) *WebhookHandler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{processor: p, maxBytes: maxBytes, log: log}
}

// Routes mounts the handler on a fresh router.
func (h *WebhookHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/{provider}", h.ServeHTTP)
	return r
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	core.Wrap(h.handle, h.log)(w, r)
}

func (h *WebhookHandler) handle(r *http.Request) core.Response {
	provider := chi.URLParam(r, "provider")

	payload, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, h.maxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return core.JSONError(core.ErrRequestEntityTooLarge)
		}
		return core.JSONError(core.ErrBadRequest.WithMessage("failed to read request body"))
	}

	receipt, err := h.processor.Process(r.Context(), provider, payload, r.Header)
	switch {
	case errors.Is(err, ErrUnknownProvider):
		return core.JSONError(core.ErrNotFound.WithMessage("unknown billing provider"))
	case errors.Is(err, ErrInvalidSignature):
		return core.JSONError(core.ErrBadRequest.WithMessage("invalid signature"))
	case errors.Is(err, ErrInvalidPayload):
		return core.JSONError(core.ErrBadRequest.WithMessage("invalid payload"))
	case err != nil:
		h.log.ErrorContext(r.Context(), "unexpected webhook error", logger.Provider(provider), logger.Error(err))
		return core.Raw(http.StatusOK, webhookResponse{Received: true, Receipt: Receipt{Outcome: OutcomeFailed}})
	}
	return core.Raw(http.StatusOK, webhookResponse{Received: true, Receipt: receipt})
}
