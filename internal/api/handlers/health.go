package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/cloo-solutions/reviewpulse/internal/api"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db Pinger
}

func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		api.Data(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	api.Data(w, http.StatusOK, map[string]string{"status": "ok"})
}
