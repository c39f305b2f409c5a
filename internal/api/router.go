package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"promo-gate/internal/observability"
)

func Router(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(observability.Measure)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/promotions", h.ListPromotions)

		r.Post("/sessions", h.CreateSession)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Delete("/", h.DeleteSession)
			r.Post("/mount", h.MountSession)
			r.Post("/popup/{promotionID}", h.SelectPopup)
			r.Delete("/popup", h.DismissPopup)
		})

		r.Get("/features", h.FeatureSet)
		r.Get("/features/{featureID}", h.Feature)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", observability.MetricsHandler())
	return r
}

// AdminRouter serves the runtime settings. Changing the base URL redirects
// every upstream fetch, so it is bound to a separate, internal-only listener.
func AdminRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(observability.Measure)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Route("/v1/settings", func(r chi.Router) {
		r.Get("/base-url", h.GetBaseURL)
		r.Put("/base-url", h.PutBaseURL)
		r.Delete("/base-url", h.DeleteBaseURL)
	})
	return r
}
