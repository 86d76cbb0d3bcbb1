// Package api exposes the scheduling engine over HTTP.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/petrovskifilip/agri-management-system/services/api/handler"
	"github.com/petrovskifilip/agri-management-system/services/api/middleware"
)

const maxBodyBytes = 1 << 20

// NewRouter mounts the REST handler on a chi router.
func NewRouter(h *handler.REST, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.MaxBodySize(maxBodyBytes))

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	r.Get("/version", h.Version)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/irrigations/{id}", func(r chi.Router) {
			r.Get("/", h.GetIrrigation)
			r.Post("/execute", h.ExecuteIrrigation)
			r.Post("/stop", h.StopIrrigation)
			r.Patch("/status", h.UpdateIrrigationStatus)
		})
		r.Route("/fertilizations/{id}", func(r chi.Router) {
			r.Get("/", h.GetFertilization)
			r.Post("/complete", h.CompleteFertilization)
			r.Post("/cancel", h.CancelFertilization)
		})
		r.Get("/parcels/{id}/irrigations", h.ListParcelIrrigations)
		r.Get("/parcels/{id}/fertilizations", h.ListParcelFertilizations)
		r.Post("/ticks/{tick}", h.TriggerTick)
	})
	return r
}
