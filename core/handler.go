package core

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/coachkit/creditledger/pkg/logger"
)

// ErrNilResponse is reported when a handler returns no Response.
var ErrNilResponse = errors.New("handler returned nil response")

// HandlerFunc handles a request and returns what to render.
type HandlerFunc func(r *http.Request) Response

// Wrap adapts h to http.HandlerFunc. Render failures are logged; the status
// line may already be on the wire by then.
func Wrap(h HandlerFunc, log *slog.Logger) http.HandlerFunc {
	if log == nil {
		log = logger.Discard()
	}

	return func(w http.ResponseWriter, r *http.Request) {
		resp := h(r)
		if resp == nil {
			log.ErrorContext(r.Context(), "handler error", logger.Error(ErrNilResponse))
			_ = JSONError(ErrInternalServerError).Render(w, r)
			return
		}
		if err := resp.Render(w, r); err != nil {
			log.ErrorContext(r.Context(), "failed to render response", logger.Error(err))
		}
	}
}
