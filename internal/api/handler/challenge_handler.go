package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"challenge_gateway/internal/app/service"
	"challenge_gateway/internal/common"

	"github.com/go-chi/chi/v5"
)

type ChallengeHandler struct {
	challengeService *service.ChallengeService
	logger           *slog.Logger
}

func NewChallengeHandler(cs *service.ChallengeService, logger *slog.Logger) *ChallengeHandler {
	return &ChallengeHandler{challengeService: cs, logger: logger}
}

func (h *ChallengeHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.listChallenges)                // GET /api/v1/challenges?search=&all=
	r.Get("/slug/{slug}", h.getChallengeBySlug) // GET /api/v1/challenges/slug/spring-sprint
	r.Get("/{challengeID}", h.getChallenge)     // GET /api/v1/challenges/42
}

func (h *ChallengeHandler) listChallenges(w http.ResponseWriter, r *http.Request) {
	all, _ := strconv.ParseBool(r.URL.Query().Get("all"))
	req := service.ListChallengesRequest{
		Search: r.URL.Query().Get("search"),
		All:    all,
	}
	challenges, err := h.challengeService.List(r.Context(), req)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, challenges)
}

func (h *ChallengeHandler) getChallenge(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "challengeID")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	challenge, err := h.challengeService.Get(r.Context(), id)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, challenge)
}

func (h *ChallengeHandler) getChallengeBySlug(w http.ResponseWriter, r *http.Request) {
	challenge, err := h.challengeService.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, challenge)
}
