package handler

import (
	"log/slog"
	"net/http"
	"slices"

	"challenge_gateway/internal/api/middleware"
	"challenge_gateway/internal/app/service"
	"challenge_gateway/internal/domain/model"
	"challenge_gateway/internal/platform/realtime"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// EventsHandler upgrades a session to the live countdown stream.
type EventsHandler struct {
	sessionService *service.SessionService
	hub            *realtime.Hub
	upgrader       websocket.Upgrader
	logger         *slog.Logger
}

func NewEventsHandler(ss *service.SessionService, hub *realtime.Hub, allowedOrigins []string, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		sessionService: ss,
		hub:            hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
			},
		},
		logger: logger,
	}
}

func (h *EventsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/events", h.events)
}

func (h *EventsHandler) events(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := middleware.GetSessionIDFromContext(r.Context())
	snap, err := h.sessionService.Snapshot(r.Context(), sessionID)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "session_id", sessionID, "error", err)
		return
	}
	conn := h.hub.Add(sessionID, ws)
	defer h.hub.Remove(sessionID, conn)

	// The first message reflects the state at connect time; later ones come
	// from the session worker.
	switch {
	case snap.State == model.StateEnded:
		err = conn.Send(realtime.Message{
			Type: realtime.MessageSessionEnded,
			Data: realtime.SessionEnded{SessionID: sessionID, Message: "The challenge has ended."},
		})
	case snap.Countdown != nil:
		err = conn.Send(realtime.Message{
			Type: realtime.MessageCountdown,
			Data: realtime.Countdown{
				SessionID: sessionID,
				Hours:     snap.Countdown.Hours,
				Minutes:   snap.Countdown.Minutes,
				Seconds:   snap.Countdown.Seconds,
			},
		})
	}
	if err != nil {
		return
	}

	ws.SetReadLimit(512)
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}
