package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Routes builds the intake server's router (spec §6 "HTTP surface
// (intake)"), mirroring internal/tracking/handler.go's
// router-construction style.
func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Post("/events/lead", h.HandleLead)
	r.Post("/events/purchase", h.HandlePurchase)
	r.Get("/health", h.HandleHealth)
	r.Get("/stats", h.HandleStats)

	return r
}
