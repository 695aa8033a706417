package handler

import (
	"context"
	"log/slog"
	"net/http"

	"challenge_gateway/internal/api/middleware"
	"challenge_gateway/internal/app/service"
	"challenge_gateway/internal/common"
	"challenge_gateway/internal/domain/model"

	"github.com/go-chi/chi/v5"
)

// WorkspaceHandler serves the challenge content of a registered session:
// coding problems, MCQs, score and panel layouts.
type WorkspaceHandler struct {
	sessionService   *service.SessionService
	challengeService *service.ChallengeService
	logger           *slog.Logger
}

func NewWorkspaceHandler(ss *service.SessionService, cs *service.ChallengeService, logger *slog.Logger) *WorkspaceHandler {
	return &WorkspaceHandler{sessionService: ss, challengeService: cs, logger: logger}
}

func (h *WorkspaceHandler) RegisterRoutes(r chi.Router) {
	r.Route("/problems", func(pr chi.Router) {
		pr.Get("/", h.listProblems)
		pr.Post("/{problemID}/open", h.openProblem)
		pr.Put("/{problemID}/code", h.editCode)
		pr.Post("/{problemID}/edit", h.enterEditMode)
		pr.Post("/{problemID}/run", h.run)
		pr.Post("/{problemID}/submit", h.submit)
		pr.Get("/{problemID}/result", h.getResult)
		pr.Delete("/{problemID}/result", h.clearResult)
	})

	r.Get("/mcq", h.getMCQ)
	r.Put("/mcq/{questionID}", h.answerMCQ)
	r.Post("/mcq/submit", h.submitMCQ)

	r.Get("/score", h.getScore)

	r.Get("/layouts/{groupID}", h.getLayout)
	r.Put("/layouts/{groupID}", h.saveLayout)
}

type openProblemRequest struct {
	Language string `json:"language"`
}

type editCodeRequest struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

func (h *WorkspaceHandler) listProblems(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := middleware.GetSessionIDFromContext(r.Context())
	problems, err := h.sessionService.Problems(r.Context(), sessionID)
	h.respond(w, r, problems, err)
}

func (h *WorkspaceHandler) openProblem(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := middleware.GetSessionIDFromContext(r.Context())
	problemID, err := idParam(r, "problemID")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	var req openProblemRequest
	if err := decodeOptional(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	view, err := h.sessionService.OpenProblem(r.Context(), sessionID, problemID, req.Language)
	h.respond(w, r, view, err)
}

func (h *WorkspaceHandler) editCode(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := middleware.GetSessionIDFromContext(r.Context())
	problemID, err := idParam(r, "problemID")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	var req editCodeRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	view, err := h.sessionService.EditCode(r.Context(), sessionID, problemID, req.Language, req.Code)
	h.respond(w, r, view, err)
}

func (h *WorkspaceHandler) enterEditMode(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := middleware.GetSessionIDFromContext(r.Context())
	problemID, err := idParam(r, "problemID")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	view, err := h.sessionService.EnterEditMode(r.Context(), sessionID, problemID)
	h.respond(w, r, view, err)
}

func (h *WorkspaceHandler) run(w http.ResponseWriter, r *http.Request) {
	h.execute(w, r, h.sessionService.Run)
}

func (h *WorkspaceHandler) submit(w http.ResponseWriter, r *http.Request) {
	h.execute(w, r, h.sessionService.Submit)
}

type executeFunc func(ctx context.Context, id string, req service.ExecutionRequest) (*model.ResultDisplay, error)

func (h *WorkspaceHandler) execute(w http.ResponseWriter, r *http.Request, fn executeFunc) {
	sessionID, _ := middleware.GetSessionIDFromContext(r.Context())
	problemID, err := idParam(r, "problemID")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	var req service.ExecutionRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	req.ProblemID = problemID
	result, err := fn(r.Context(), sessionID, req)
	h.respond(w, r, result, err)
}

func (h *WorkspaceHandler) getResult(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := middleware.GetSessionIDFromContext(r.Context())
	problemID, err := idParam(r, "problemID")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	result, err := h.sessionService.Result(r.Context(), sessionID, problemID)
	h.respond(w, r, result, err)
}

func (h *WorkspaceHandler) clearResult(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := middleware.GetSessionIDFromContext(r.Context())
	problemID, err := idParam(r, "problemID")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if err := h.sessionService.ClearResult(r.Context(), sessionID, problemID); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *WorkspaceHandler) getMCQ(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := middleware.GetSessionIDFromContext(r.Context())
	view, err := h.sessionService.MCQ(r.Context(), sessionID)
	h.respond(w, r, view, err)
}

func (h *WorkspaceHandler) answerMCQ(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := middleware.GetSessionIDFromContext(r.Context())
	questionID, err := idParam(r, "questionID")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	var req service.MCQAnswerRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	view, err := h.sessionService.AnswerMCQ(r.Context(), sessionID, questionID, req)
	h.respond(w, r, view, err)
}

func (h *WorkspaceHandler) submitMCQ(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := middleware.GetSessionIDFromContext(r.Context())
	view, err := h.sessionService.SubmitMCQ(r.Context(), sessionID)
	h.respond(w, r, view, err)
}

func (h *WorkspaceHandler) getScore(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := middleware.GetSessionIDFromContext(r.Context())
	score, err := h.sessionService.Score(r.Context(), sessionID)
	h.respond(w, r, score, err)
}

func (h *WorkspaceHandler) getLayout(w http.ResponseWriter, r *http.Request) {
	deviceID, _ := middleware.GetDeviceIDFromContext(r.Context())
	layout, err := h.challengeService.Layout(r.Context(), deviceID, chi.URLParam(r, "groupID"))
	h.respond(w, r, layout, err)
}

func (h *WorkspaceHandler) saveLayout(w http.ResponseWriter, r *http.Request) {
	deviceID, _ := middleware.GetDeviceIDFromContext(r.Context())
	var layout model.PanelLayout
	if err := common.DecodeJSON(r, &layout); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	layout.GroupID = chi.URLParam(r, "groupID")
	if err := h.challengeService.SaveLayout(r.Context(), deviceID, layout); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, layout)
}

func (h *WorkspaceHandler) respond(w http.ResponseWriter, r *http.Request, payload interface{}, err error) {
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, payload)
}
