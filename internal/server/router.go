package server

import (
	"net/http"

	"github.com/cloo-solutions/reviewpulse/internal/api/handlers"
	"github.com/cloo-solutions/reviewpulse/internal/api/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type RouterConfig struct {
	Logger         *zerolog.Logger
	HealthHandler  *handlers.HealthHandler
	InsightHandler *handlers.InsightHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog(cfg.Logger))

	r.Get("/health", cfg.HealthHandler.Health)

	r.Route("/v1/groups", func(r chi.Router) {
		r.Get("/", cfg.InsightHandler.ListGroups)
		r.Get("/{group}/insights/latest", cfg.InsightHandler.Latest)
	})

	return r
}
