package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/jhsobrinho/educareapp-sub000/internal/storage"
)

// HealthHandler reports service liveness and store reachability
type HealthHandler struct {
	store   storage.Pinger
	version string
	started time.Time
	logger  *slog.Logger
}

// NewHealthHandler creates a health handler
func NewHealthHandler(store storage.Pinger, version string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		store:   store,
		version: version,
		started: time.Now(),
		logger:  logger.With(slog.String("handler", "health")),
	}
}

// Routes returns the chi router mounted at /api/health
func (h *HealthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Health)
	return r
}

// Health handles GET /api/health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := "healthy"
	storeStatus := "ok"
	code := http.StatusOK

	if err := h.store.Ping(ctx); err != nil {
		h.logger.ErrorContext(ctx, "store ping failed", slog.String("error", err.Error()))
		status = "degraded"
		storeStatus = "unreachable"
		code = http.StatusServiceUnavailable
	}

	render.Status(r, code)
	render.JSON(w, r, map[string]interface{}{
		"status":    status,
		"store":     storeStatus,
		"version":   h.version,
		"uptime":    time.Since(h.started).String(),
		"timestamp": time.Now().UTC(),
	})
}
