package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"challenge_gateway/internal/common"
	"challenge_gateway/internal/domain/model"
)

type ExecutionRequest struct {
	ProblemID int64  `json:"-"`
	Language  string `json:"language"`
	Code      string `json:"source_code"`
}

type problemRun struct {
	gen      uint64
	inFlight bool
	display  model.ResultDisplay
}

// ExecutionService runs sample tests and grades submissions for one
// registered session. Each problem shows at most one result; a response that
// arrives after a newer request started (or after Clear) is discarded.
type ExecutionService struct {
	api         ExecutionAPI
	problems    *ProblemSet
	drafts      *DraftEngine
	challengeID int64
	ident       model.SessionIdentity
	timeout     time.Duration
	now         func() time.Time
	logger      *slog.Logger

	mu    sync.Mutex
	runs  map[int64]*problemRun
	ended bool
}

func NewExecutionService(
	api ExecutionAPI,
	problems *ProblemSet,
	drafts *DraftEngine,
	challengeID int64,
	ident model.SessionIdentity,
	timeout time.Duration,
	now func() time.Time,
	logger *slog.Logger,
) *ExecutionService {
	if now == nil {
		now = time.Now
	}
	return &ExecutionService{
		api:         api,
		problems:    problems,
		drafts:      drafts,
		challengeID: challengeID,
		ident:       ident,
		timeout:     timeout,
		now:         now,
		logger:      logger.With("challenge_id", challengeID, "user_id", ident.UserID),
		runs:        make(map[int64]*problemRun),
	}
}

// Run executes code against the problem's sample tests.
func (s *ExecutionService) Run(ctx context.Context, req ExecutionRequest) (*model.ResultDisplay, error) {
	gen, err := s.begin(req, "Please write some code before running")
	if err != nil {
		return nil, err
	}

	callCtx, cancel := s.withTimeout(ctx)
	res, err := s.api.RunSample(callCtx, s.challengeID, req.ProblemID, s.ident, req.Language, req.Code)
	cancel()

	if err != nil {
		err = backendError(err, "Failed to run code. Please try again.")
		return s.finish(req.ProblemID, gen, model.ResultDisplay{Kind: model.ResultNone, Error: common.ErrorMessage(err)}), err
	}
	display := model.ResultDisplay{Kind: model.ResultRun, Run: res}
	if !res.Status {
		display.Error = res.Message
		if display.Error == "" {
			display.Error = "Sample run failed"
		}
	}
	return s.finish(req.ProblemID, gen, display), nil
}

// Submit sends code for grading. An accepted verdict marks the problem solved,
// which locks it again and drops any pending draft saves for it.
func (s *ExecutionService) Submit(ctx context.Context, req ExecutionRequest) (*model.ResultDisplay, error) {
	gen, err := s.begin(req, "Please write some code before submitting.")
	if err != nil {
		return nil, err
	}

	callCtx, cancel := s.withTimeout(ctx)
	res, err := s.api.Submit(callCtx, s.challengeID, req.ProblemID, s.ident, req.Language, req.Code)
	cancel()

	if err != nil {
		err = backendError(err, "Failed to submit solution. Please try again.")
		return s.finish(req.ProblemID, gen, model.ResultDisplay{Kind: model.ResultNone, Error: common.ErrorMessage(err)}), err
	}

	if res.Accepted() {
		if s.drafts != nil {
			s.drafts.Discard(req.ProblemID)
		}
		s.problems.MarkSolved(req.ProblemID, req.Language, req.Code, res.Verdict, s.now())
		s.logger.Info("problem solved", "problem_id", req.ProblemID, "language", req.Language)
	}
	return s.finish(req.ProblemID, gen, model.ResultDisplay{Kind: model.ResultSubmission, Submission: res}), nil
}

// begin checks the preconditions shared by Run and Submit and clears the
// problem's previous result.
func (s *ExecutionService) begin(req ExecutionRequest, emptyMsg string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return 0, common.Display(common.ErrSessionEnded, "The challenge has ended.")
	}
	if strings.TrimSpace(req.Code) == "" {
		return 0, common.Display(common.ErrValidation, emptyMsg)
	}
	p, ok := s.problems.Get(req.ProblemID)
	if !ok {
		return 0, common.Display(common.ErrNotFound, "Problem not found")
	}
	if !model.IsSupportedLanguage(p.InterfaceSpec, req.Language) {
		return 0, common.Display(common.ErrValidation, "Unsupported language: "+req.Language)
	}
	if s.problems.IsLocked(req.ProblemID) {
		return 0, common.Display(common.ErrLocked, "This problem is already solved. Choose edit to change your solution.")
	}

	r := s.run(req.ProblemID)
	if r.inFlight {
		return 0, common.Display(common.ErrBusy, "A run or submission is already in progress for this problem.")
	}
	r.gen++
	r.inFlight = true
	r.display = model.ResultDisplay{Kind: model.ResultNone, Loading: true}
	return r.gen, nil
}

// finish publishes display unless a newer request or a Clear superseded gen.
func (s *ExecutionService) finish(problemID int64, gen uint64, display model.ResultDisplay) *model.ResultDisplay {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.run(problemID)
	if r.gen != gen {
		s.logger.Debug("discarding stale result", "problem_id", problemID, "generation", gen, "current", r.gen)
		out := r.display
		return &out
	}
	r.inFlight = false
	r.display = display
	out := display
	return &out
}

func (s *ExecutionService) run(problemID int64) *problemRun {
	r, ok := s.runs[problemID]
	if !ok {
		r = &problemRun{display: model.ResultDisplay{Kind: model.ResultNone}}
		s.runs[problemID] = r
	}
	return r
}

func (s *ExecutionService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Result returns what the problem's result panel shows.
func (s *ExecutionService) Result(problemID int64) model.ResultDisplay {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.runs[problemID]; ok {
		return r.display
	}
	return model.ResultDisplay{Kind: model.ResultNone}
}

// Clear empties the result panel. A request still in flight is orphaned and
// its response dropped.
func (s *ExecutionService) Clear(problemID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.run(problemID)
	r.gen++
	r.inFlight = false
	r.display = model.ResultDisplay{Kind: model.ResultNone}
}

// Freeze rejects every later Run and Submit.
func (s *ExecutionService) Freeze() {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
}
