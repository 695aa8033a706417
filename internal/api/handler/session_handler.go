package handler

import (
	"log/slog"
	"net/http"

	"challenge_gateway/internal/api/middleware"
	"challenge_gateway/internal/app/service"
	"challenge_gateway/internal/common"
	"challenge_gateway/internal/common/security"
	"challenge_gateway/internal/domain/model"

	"github.com/go-chi/chi/v5"
)

// SessionHandler covers starting a session and the phone, OTP and
// registration steps.
type SessionHandler struct {
	sessionService *service.SessionService
	logger         *slog.Logger
}

func NewSessionHandler(ss *service.SessionService, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{sessionService: ss, logger: logger}
}

// RegisterPublicRoutes mounts the unauthenticated entry point.
func (h *SessionHandler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/sessions", h.startSession)
}

// RegisterRoutes mounts the routes that need a session token.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.getSession)
	r.Put("/phone", h.changePhone)
	r.Post("/otp/send", h.sendCode)
	r.Post("/otp/resend", h.resendCode)
	r.Post("/otp/verify", h.verifyCode)
	r.Post("/register", h.register)
}

type startSessionResponse struct {
	Token   string                   `json:"token"`
	Session *service.SessionSnapshot `json:"session"`
}

type resendRequest struct {
	RecaptchaToken string `json:"recaptcha_token"`
}

type verifyRequest struct {
	Code string `json:"code"`
}

func (h *SessionHandler) startSession(w http.ResponseWriter, r *http.Request) {
	var req service.StartSessionRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	snap, err := h.sessionService.Start(r.Context(), req)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	token, err := security.GenerateSessionToken(snap.ID, snap.DeviceID, snap.Challenge.ID)
	if err != nil {
		respondError(w, r, h.logger, common.Errorf("SessionHandler.startSession: %w", err))
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, startSessionResponse{Token: token, Session: snap})
}

func (h *SessionHandler) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := middleware.GetSessionIDFromContext(r.Context())
	snap, err := h.sessionService.Snapshot(r.Context(), sessionID)
	h.respond(w, r, snap, err)
}

func (h *SessionHandler) changePhone(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := middleware.GetSessionIDFromContext(r.Context())
	snap, err := h.sessionService.ChangePhone(r.Context(), sessionID)
	h.respond(w, r, snap, err)
}

func (h *SessionHandler) sendCode(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := middleware.GetSessionIDFromContext(r.Context())
	var req service.SendCodeRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	snap, err := h.sessionService.SendCode(r.Context(), sessionID, req)
	h.respond(w, r, snap, err)
}

func (h *SessionHandler) resendCode(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := middleware.GetSessionIDFromContext(r.Context())
	var req resendRequest
	if err := decodeOptional(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	snap, err := h.sessionService.ResendCode(r.Context(), sessionID, req.RecaptchaToken)
	h.respond(w, r, snap, err)
}

func (h *SessionHandler) verifyCode(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := middleware.GetSessionIDFromContext(r.Context())
	var req verifyRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	snap, err := h.sessionService.VerifyCode(r.Context(), sessionID, req.Code)
	h.respond(w, r, snap, err)
}

func (h *SessionHandler) register(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := middleware.GetSessionIDFromContext(r.Context())
	var details model.RegistrationDetails
	if err := common.DecodeJSON(r, &details); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	snap, err := h.sessionService.SubmitDetails(r.Context(), sessionID, details)
	h.respond(w, r, snap, err)
}

func (h *SessionHandler) respond(w http.ResponseWriter, r *http.Request, snap *service.SessionSnapshot, err error) {
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, snap)
}
