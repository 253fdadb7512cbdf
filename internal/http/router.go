package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertarktes/virtual-waiting-room/internal/idempotency"
	"github.com/robertarktes/virtual-waiting-room/internal/observability"
	"github.com/robertarktes/virtual-waiting-room/internal/rateLimit"
)

// SetupRouter wires the public API. rl and idemp are optional.
func SetupRouter(h *Handlers, logger observability.Logger, rl *rateLimit.RateLimiter, idemp *idempotency.Idempotency) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)

	r.Route("/v1/queue", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if rl != nil {
				r.Use(RateLimitMiddleware(rl, logger))
			}
			if idemp != nil {
				r.Use(IdempotencyMiddleware(idemp, logger))
			}
			r.Post("/enter", h.Enter)
		})
		r.Get("/status/{token}", h.Status)
	})
	r.Post("/v1/reservations/redeem", h.Redeem)
	r.Get("/v1/reservations/{id}", h.GetReservation)

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
