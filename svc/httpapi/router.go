package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/coachkit/creditledger/pkg/httpserver"
	"github.com/coachkit/creditledger/pkg/metrics"
	"github.com/coachkit/creditledger/pkg/requestid"
)

// Deps are the handlers and probes mounted by NewRouter. Nil fields are
// skipped.
type Deps struct {
	API      *API
	Webhooks http.Handler
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
	Checks   []httpserver.Check
	Logger   *slog.Logger
}

// NewRouter assembles the service's HTTP surface.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(d.Metrics.Middleware)

	r.Get("/healthz", httpserver.LivenessHandler())
	r.Get("/readyz", httpserver.ReadinessHandler(d.Logger, d.Checks...))
	if d.Registry != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(d.Registry))
	}
	if d.API != nil {
		r.Mount("/v1", d.API.Routes())
	}
	if d.Webhooks != nil {
		r.Mount("/webhooks", d.Webhooks)
	}
	return r
}
