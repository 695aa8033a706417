package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"challenge_gateway/internal/common"
	"challenge_gateway/internal/domain/model"
	"challenge_gateway/internal/domain/repository"
)

type MCQAnswerRequest struct {
	SelectedOptionID *int64  `json:"selected_option_id"`
	TextAnswer       *string `json:"text_answer"`
}

type MCQView struct {
	Questions []model.MCQQuestion `json:"questions"`
	Answers   []model.MCQAnswer   `json:"answers"`
	Submitted bool                `json:"submitted"`
}

// MCQService autosaves one session's multiple-choice answers. Option picks are
// sent at once, text answers after a quiet period. Autosave failures are
// silent; the final Submit resends every answer.
type MCQService struct {
	api         MCQAPI
	prefs       repository.PreferenceRepository
	deviceID    string
	challengeID int64
	ident       model.SessionIdentity
	textDelay   time.Duration
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	questions []model.MCQQuestion
	sheet     model.MCQSheet
	saving    map[int64]bool
	textSaves map[int64]*time.Timer
	ended     bool
	timers    sync.WaitGroup
}

func NewMCQService(api MCQAPI, prefs repository.PreferenceRepository, deviceID string, challengeID int64, ident model.SessionIdentity, textDelay time.Duration, logger *slog.Logger) *MCQService {
	ctx, cancel := context.WithCancel(context.Background())
	return &MCQService{
		api:         api,
		prefs:       prefs,
		deviceID:    deviceID,
		challengeID: challengeID,
		ident:       ident,
		textDelay:   textDelay,
		logger:      logger.With("challenge_id", challengeID, "user_id", ident.UserID),
		ctx:         ctx,
		cancel:      cancel,
		sheet:       model.MCQSheet{Answers: map[int64]model.MCQAnswer{}},
		saving:      make(map[int64]bool),
		textSaves:   make(map[int64]*time.Timer),
	}
}

// Load fills the question list, preferring the ones embedded in the
// challenge descriptor, and restores the locally cached answer sheet.
func (s *MCQService) Load(ctx context.Context, embedded []model.MCQQuestion) (*MCQView, error) {
	questions := embedded
	if len(questions) == 0 {
		var err error
		questions, err = s.api.GetMCQQuestions(ctx, s.challengeID, s.ident)
		if err != nil {
			return nil, backendError(err, "Failed to load questions. Please try again.")
		}
	}

	sheet, err := s.prefs.GetMCQSheet(ctx, s.deviceID, s.challengeID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		s.logger.Warn("failed to read cached mcq answers", "error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions = questions
	if sheet != nil {
		s.sheet = *sheet
	}
	return s.viewLocked(), nil
}

func (s *MCQService) View() *MCQView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *MCQService) viewLocked() *MCQView {
	answers := make([]model.MCQAnswer, 0, len(s.sheet.Answers))
	for _, a := range s.sheet.Answers {
		answers = append(answers, a)
	}
	sort.Slice(answers, func(i, j int) bool { return answers[i].QuestionID < answers[j].QuestionID })
	questions := s.questions
	if questions == nil {
		questions = []model.MCQQuestion{}
	}
	return &MCQView{Questions: questions, Answers: answers, Submitted: s.sheet.Submitted}
}

// Answer records a change to one question. Picking the already selected
// option clears the answer.
func (s *MCQService) Answer(ctx context.Context, questionID int64, req MCQAnswerRequest) (*MCQView, error) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return nil, common.Display(common.ErrSessionEnded, "The challenge has ended.")
	}
	if !s.knownLocked(questionID) {
		s.mu.Unlock()
		return nil, common.Display(common.ErrNotFound, "Question not found")
	}

	answer := model.MCQAnswer{QuestionID: questionID, SelectedOptionID: req.SelectedOptionID, TextAnswer: req.TextAnswer}
	current, had := s.sheet.Answers[questionID]
	deselect := req.SelectedOptionID != nil && had && current.SelectedOptionID != nil &&
		*current.SelectedOptionID == *req.SelectedOptionID
	if deselect {
		answer = model.MCQAnswer{QuestionID: questionID}
	}
	if answer.Empty() {
		delete(s.sheet.Answers, questionID)
	} else {
		s.sheet.Answers[questionID] = answer
	}
	sheet := s.copySheetLocked()

	text := req.TextAnswer != nil && !deselect
	if text {
		s.scheduleTextLocked(questionID, answer)
	} else {
		s.cancelTextLocked(questionID)
	}
	view := s.viewLocked()
	s.mu.Unlock()

	s.persist(ctx, sheet)
	if !text {
		s.save(ctx, answer)
	}
	return view, nil
}

func (s *MCQService) knownLocked(questionID int64) bool {
	for _, q := range s.questions {
		if q.ID == questionID {
			return true
		}
	}
	return false
}

func (s *MCQService) copySheetLocked() model.MCQSheet {
	out := model.MCQSheet{Answers: make(map[int64]model.MCQAnswer, len(s.sheet.Answers)), Submitted: s.sheet.Submitted}
	for k, v := range s.sheet.Answers {
		out.Answers[k] = v
	}
	return out
}

func (s *MCQService) scheduleTextLocked(questionID int64, answer model.MCQAnswer) {
	s.cancelTextLocked(questionID)
	var t *time.Timer
	s.timers.Add(1)
	t = time.AfterFunc(s.textDelay, func() {
		defer s.timers.Done()
		s.mu.Lock()
		if s.textSaves[questionID] != t || s.ended {
			s.mu.Unlock()
			return
		}
		delete(s.textSaves, questionID)
		s.mu.Unlock()
		s.save(s.ctx, answer)
	})
	s.textSaves[questionID] = t
}

func (s *MCQService) cancelTextLocked(questionID int64) {
	if t, ok := s.textSaves[questionID]; ok {
		if t.Stop() {
			s.timers.Done()
		}
		delete(s.textSaves, questionID)
	}
}

// save sends a single answer. A save for a question that is already being
// saved is skipped.
func (s *MCQService) save(ctx context.Context, answer model.MCQAnswer) {
	s.mu.Lock()
	if s.saving[answer.QuestionID] {
		s.mu.Unlock()
		return
	}
	s.saving[answer.QuestionID] = true
	s.mu.Unlock()

	if err := s.api.SubmitMCQAnswers(ctx, s.challengeID, s.ident, []model.MCQAnswer{answer}); err != nil {
		s.logger.Debug("mcq autosave failed", "question_id", answer.QuestionID, "error", err)
	}

	s.mu.Lock()
	delete(s.saving, answer.QuestionID)
	s.mu.Unlock()
}

func (s *MCQService) persist(ctx context.Context, sheet model.MCQSheet) {
	if err := s.prefs.SaveMCQSheet(ctx, s.deviceID, s.challengeID, sheet); err != nil {
		s.logger.Warn("failed to cache mcq answers", "error", err)
	}
}

// Submit sends every answer and marks the sheet submitted. Answers stay
// cached for review.
func (s *MCQService) Submit(ctx context.Context) (*MCQView, error) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return nil, common.Display(common.ErrSessionEnded, "The challenge has ended.")
	}
	if len(s.sheet.Answers) == 0 {
		s.mu.Unlock()
		return nil, common.Display(common.ErrValidation, "Please answer at least one question before submitting.")
	}
	for id := range s.textSaves {
		s.cancelTextLocked(id)
	}
	answers := s.viewLocked().Answers
	s.mu.Unlock()

	if err := s.api.SubmitMCQAnswers(ctx, s.challengeID, s.ident, answers); err != nil {
		return nil, backendError(err, "Failed to submit answers. Please try again.")
	}

	s.mu.Lock()
	s.sheet.Submitted = true
	sheet := s.copySheetLocked()
	view := s.viewLocked()
	s.mu.Unlock()

	s.persist(ctx, sheet)
	return view, nil
}

// Freeze drops pending text saves and rejects further answers.
func (s *MCQService) Freeze() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = true
	for id := range s.textSaves {
		s.cancelTextLocked(id)
	}
}

func (s *MCQService) Close() {
	s.Freeze()
	s.cancel()
	s.timers.Wait()
}
