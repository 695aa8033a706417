package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"challenge_gateway/internal/common"

	"github.com/go-chi/chi/v5"
)

// Checker verifies that an infrastructure dependency is reachable.
type Checker interface {
	Check(ctx context.Context) error
}

type Clock interface {
	Sync(ctx context.Context) error
	Now() time.Time
	Offset() time.Duration
}

type HealthHandler struct {
	checks map[string]Checker
	logger *slog.Logger
}

func NewHealthHandler(checks map[string]Checker, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{checks: checks, logger: logger}
}

func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.check)
}

type checkResult struct {
	Status string `json:"status"`
}

func (h *HealthHandler) check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	results := make(map[string]checkResult, len(h.checks))
	status := http.StatusOK
	for name, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			h.logger.Error("health check failed", "name", name, "error", err)
			results[name] = checkResult{Status: "error"}
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = checkResult{Status: "ok"}
	}
	common.RespondWithJSON(w, status, results)
}

type TimeHandler struct {
	clock  Clock
	logger *slog.Logger
}

func NewTimeHandler(clock Clock, logger *slog.Logger) *TimeHandler {
	return &TimeHandler{clock: clock, logger: logger}
}

func (h *TimeHandler) RegisterRoutes(r chi.Router) {
	r.Get("/time", h.serverTime)
}

type timeResponse struct {
	ServerTime time.Time `json:"server_time"`
	OffsetMs   int64     `json:"offset_ms"`
}

// serverTime answers from the last known offset when the backend cannot be
// reached.
func (h *TimeHandler) serverTime(w http.ResponseWriter, r *http.Request) {
	if err := h.clock.Sync(r.Context()); err != nil {
		h.logger.Debug("clock sync on request failed", "error", err)
	}
	common.RespondWithJSON(w, http.StatusOK, timeResponse{
		ServerTime: h.clock.Now(),
		OffsetMs:   h.clock.Offset().Milliseconds(),
	})
}
