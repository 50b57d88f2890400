package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/freightbill/freightbill/internal/annexure"
	"github.com/freightbill/freightbill/internal/invoice"
	"github.com/freightbill/freightbill/internal/lr"
	"github.com/freightbill/freightbill/internal/observability"
	"github.com/freightbill/freightbill/internal/recon"
)

// Handlers aggregates the HTTP handlers mounted by the router.
type Handlers struct {
	LR       *lr.Handler
	Annexure *annexure.Handler
	Invoice  *invoice.Handler
	Recon    *recon.Handler
}

// NewRouter wires the middleware stack and mounts all routes.
func NewRouter(logger *slog.Logger, cfg *Config, metrics *observability.Metrics, h Handlers) chi.Router {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{Logger: logger, Config: cfg, Metrics: metrics}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/lrs", h.LR.MountRoutes)
		r.Route("/annexures", h.Annexure.MountRoutes)
		r.Route("/invoices", func(r chi.Router) {
			h.Invoice.MountRoutes(r)
			h.Recon.MountRoutes(r)
		})
	})

	return r
}
