package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"challenge_gateway/internal/common"
	"challenge_gateway/internal/common/phone"
	"challenge_gateway/internal/domain/model"
	"challenge_gateway/internal/domain/repository"

	"github.com/google/uuid"
)

type SessionConfig struct {
	DraftSaveDelay   time.Duration
	MCQTextSaveDelay time.Duration
	APITimeout       time.Duration
	IdleTTL          time.Duration
}

// SessionBackends are the challenge backend calls a registered session makes.
type SessionBackends struct {
	Drafts    DraftAPI
	Execution ExecutionAPI
	MCQ       MCQAPI
}

// Session is one browser's walk through a challenge: phone verification,
// registration, then the challenge content until it ends.
type Session struct {
	ID          string
	DeviceID    string
	ChallengeID int64

	mu        sync.Mutex
	state     model.SessionState
	challenge model.Challenge
	phone     string
	pending   *PendingCode
	ident     model.SessionIdentity
	lastError string
	lastSeen  time.Time

	problems  *ProblemSet
	drafts    *DraftEngine
	exec      *ExecutionService
	mcq       *MCQService
	mcqLoaded bool
}

func (sess *Session) State() model.SessionState {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.state
}

// SessionSnapshot is what the UI needs to render the current step.
type SessionSnapshot struct {
	ID         string                 `json:"id"`
	DeviceID   string                 `json:"device_id"`
	State      model.SessionState     `json:"state"`
	Challenge  model.ChallengeView    `json:"challenge"`
	Phone      string                 `json:"phone,omitempty"`
	ResendIn   int                    `json:"resend_in"`
	Identity   *model.SessionIdentity `json:"identity,omitempty"`
	Countdown  *model.Countdown       `json:"countdown,omitempty"`
	ServerTime time.Time              `json:"server_time"`
	Error      string                 `json:"error,omitempty"`
}

type StartSessionRequest struct {
	DeviceID    string `json:"device_id"`
	ChallengeID int64  `json:"challenge_id"`
	Slug        string `json:"slug"`
}

type SendCodeRequest struct {
	Phone          string `json:"phone"`
	RecaptchaToken string `json:"recaptcha_token"`
}

type ProblemView struct {
	model.Problem
	Locked    bool             `json:"locked"`
	EditMode  bool             `json:"edit_mode"`
	Languages []model.Language `json:"languages"`
}

// SessionTick reports a session's countdown after a clock tick. Ended is set
// exactly once, on the tick that ended it.
type SessionTick struct {
	SessionID string
	Countdown model.Countdown
	Ended     bool
}

// SessionService owns every live session and moves each through its
// states. Session state lives in memory; verification grants, drafts and
// preferences are persisted by the repositories behind the services.
type SessionService struct {
	verification *VerificationService
	registration *RegistrationService
	catalog      *ChallengeService
	clock        *ClockService
	backends     SessionBackends
	draftCache   repository.DraftCacheRepository
	prefs        repository.PreferenceRepository
	cfg          SessionConfig
	logger       *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessionService(
	verification *VerificationService,
	registration *RegistrationService,
	catalog *ChallengeService,
	clock *ClockService,
	backends SessionBackends,
	draftCache repository.DraftCacheRepository,
	prefs repository.PreferenceRepository,
	cfg SessionConfig,
	logger *slog.Logger,
) *SessionService {
	return &SessionService{
		verification: verification,
		registration: registration,
		catalog:      catalog,
		clock:        clock,
		backends:     backends,
		draftCache:   draftCache,
		prefs:        prefs,
		cfg:          cfg,
		logger:       logger,
		sessions:     make(map[string]*Session),
	}
}

// Start opens a session for a challenge. A live verification grant held by
// the device skips the phone and OTP steps.
func (s *SessionService) Start(ctx context.Context, req StartSessionRequest) (*SessionSnapshot, error) {
	var (
		view *model.ChallengeView
		err  error
	)
	switch {
	case req.ChallengeID > 0:
		view, err = s.catalog.Get(ctx, req.ChallengeID)
	case strings.TrimSpace(req.Slug) != "":
		view, err = s.catalog.GetBySlug(ctx, req.Slug)
	default:
		return nil, common.Display(common.ErrValidation, "Challenge ID or Slug is required")
	}
	if err != nil {
		return nil, err
	}

	if err := s.clock.Sync(ctx); err != nil {
		s.logger.Debug("clock sync on session start failed", "error", err)
	}

	deviceID := strings.TrimSpace(req.DeviceID)
	if deviceID == "" {
		deviceID = uuid.NewString()
	}
	sess := &Session{
		ID:          uuid.NewString(),
		DeviceID:    deviceID,
		ChallengeID: view.ID,
		state:       model.StatePhoneEntry,
		challenge:   view.Challenge,
		lastSeen:    s.clock.Now(),
	}

	sess.mu.Lock()
	grant, err := s.verification.RestoreGrant(ctx, deviceID, view.ID)
	if err != nil {
		s.logger.Warn("failed to restore verification grant", "device_id", deviceID, "challenge_id", view.ID, "error", err)
	}
	if grant != nil {
		sess.phone = grant.Phone
		s.apply(sess, model.EventGrantRestored)
		s.resolve(ctx, sess)
	}
	s.expireIfDue(sess, s.clock.Now())
	snap := s.snapshotLocked(sess)
	sess.mu.Unlock()

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	s.logger.Info("session started", "session_id", sess.ID, "challenge_id", sess.ChallengeID, "state", snap.State)
	return snap, nil
}

func (s *SessionService) get(id string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, common.Display(common.ErrNotFound, "Session not found. Please start again.")
	}
	return sess, nil
}

// lock fetches and locks a session, ending it first if its challenge is
// over. The caller must unlock.
func (s *SessionService) lock(id string) (*Session, error) {
	sess, err := s.get(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	now := s.clock.Now()
	sess.lastSeen = now
	s.expireIfDue(sess, now)
	return sess, nil
}

// lockMutable is lock for operations that change the session.
func (s *SessionService) lockMutable(id string) (*Session, error) {
	sess, err := s.lock(id)
	if err != nil {
		return nil, err
	}
	if sess.state == model.StateEnded {
		sess.mu.Unlock()
		return nil, errChallengeEnded()
	}
	sess.lastError = ""
	return sess, nil
}

func errChallengeEnded() error {
	return common.Display(common.ErrSessionEnded, "The challenge has ended.")
}

func (s *SessionService) apply(sess *Session, ev model.SessionEvent) error {
	next, err := model.Transition(sess.state, ev)
	if err != nil {
		return common.DisplayWrap(common.ErrInvalidState, "This action is not available right now.", err)
	}
	if next != sess.state {
		s.logger.Debug("session transition", "session_id", sess.ID, "from", sess.state, "to", next, "event", ev)
	}
	sess.state = next
	return nil
}

func (s *SessionService) Snapshot(ctx context.Context, id string) (*SessionSnapshot, error) {
	sess, err := s.lock(id)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()
	if sess.state == model.StateVerified {
		s.resolve(ctx, sess)
	}
	return s.snapshotLocked(sess), nil
}

func (s *SessionService) snapshotLocked(sess *Session) *SessionSnapshot {
	now := s.clock.Now()
	snap := &SessionSnapshot{
		ID:         sess.ID,
		DeviceID:   sess.DeviceID,
		State:      sess.state,
		Challenge:  model.ChallengeView{Challenge: sess.challenge, DerivedStatus: s.clock.Status(sess.challenge)},
		Phone:      sess.phone,
		ResendIn:   s.verification.CooldownRemaining(sess.pending),
		ServerTime: now,
		Error:      sess.lastError,
	}
	if sess.state == model.StateRegistered || sess.state == model.StateEnded {
		ident := sess.ident
		snap.Identity = &ident
	}
	if end := sess.challenge.ChallengeEndAt; end != nil {
		cd := model.CountdownUntil(*end, now)
		snap.Countdown = &cd
	}
	return snap
}

// SendCode starts (or restarts with a different number) phone verification.
func (s *SessionService) SendCode(ctx context.Context, id string, req SendCodeRequest) (*SessionSnapshot, error) {
	sess, err := s.lockMutable(id)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()

	if sess.state != model.StatePhoneEntry && sess.state != model.StateAwaitingOTP {
		return nil, common.Display(common.ErrInvalidState, "Phone number is already verified.")
	}
	pending, err := s.verification.RequestCode(ctx, req.Phone, req.RecaptchaToken)
	if err != nil {
		return nil, err
	}
	sess.pending = pending
	sess.phone = pending.Phone
	if err := s.apply(sess, model.EventCodeSent); err != nil {
		return nil, err
	}
	s.logger.Info("otp sent", "session_id", sess.ID, "phone", phone.Mask(pending.Phone))
	return s.snapshotLocked(sess), nil
}

func (s *SessionService) ResendCode(ctx context.Context, id, recaptchaToken string) (*SessionSnapshot, error) {
	sess, err := s.lockMutable(id)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()

	if sess.state != model.StateAwaitingOTP {
		return nil, common.Display(common.ErrInvalidState, "Phone number is required to resend OTP.")
	}
	pending, err := s.verification.Resend(ctx, sess.pending, recaptchaToken)
	if err != nil {
		return nil, err
	}
	sess.pending = pending
	return s.snapshotLocked(sess), nil
}

// VerifyCode confirms the OTP and, on success, resolves registration right
// away. A resolution failure is reported in the snapshot, not as an error.
func (s *SessionService) VerifyCode(ctx context.Context, id, code string) (*SessionSnapshot, error) {
	sess, err := s.lockMutable(id)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()

	if sess.state != model.StateAwaitingOTP {
		return nil, common.Display(common.ErrInvalidState, "OTP session expired. Please request a new OTP.")
	}
	grant, err := s.verification.ConfirmCode(ctx, sess.DeviceID, sess.ChallengeID, sess.pending, code)
	if err != nil {
		return nil, err
	}
	sess.pending = nil
	sess.phone = grant.Phone
	if err := s.apply(sess, model.EventCodeConfirmed); err != nil {
		return nil, err
	}
	s.resolve(ctx, sess)
	return s.snapshotLocked(sess), nil
}

// ChangePhone goes back to phone entry. The pending code is abandoned and
// the grant for the old number is dropped.
func (s *SessionService) ChangePhone(ctx context.Context, id string) (*SessionSnapshot, error) {
	sess, err := s.lockMutable(id)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()

	if err := s.apply(sess, model.EventPhoneChanged); err != nil {
		return nil, err
	}
	s.resetIdentity(ctx, sess)
	return s.snapshotLocked(sess), nil
}

func (s *SessionService) resetIdentity(ctx context.Context, sess *Session) {
	if err := s.verification.Forget(ctx, sess.DeviceID, sess.ChallengeID, sess.phone); err != nil {
		s.logger.Warn("failed to drop verification grant", "session_id", sess.ID, "error", err)
	}
	sess.pending = nil
	sess.phone = ""
	sess.ident = model.SessionIdentity{}
}

// resolve drives a VERIFIED session to NEEDS_DETAILS or REGISTERED. A failed
// lookup leaves it VERIFIED; a failed auto-registration sends it back to
// phone entry.
func (s *SessionService) resolve(ctx context.Context, sess *Session) {
	sess.lastError = ""
	status, err := s.registration.Resolve(ctx, sess.ChallengeID, sess.phone)
	if err != nil {
		sess.lastError = common.ErrorMessage(err)
		s.logger.Warn("registration lookup failed", "session_id", sess.ID, "error", err)
		return
	}

	switch status.Outcome {
	case model.OutcomeNeedsDetails:
		s.apply(sess, model.EventDetailsRequired)

	case model.OutcomeRegistered:
		sess.ident = model.SessionIdentity{
			UserID:         status.UserID,
			RegistrationID: status.RegistrationID,
			UserName:       status.UserName,
			Phone:          sess.phone,
		}
		s.enter(ctx, sess)

	case model.OutcomeNeedsRegistration:
		reg, err := s.registration.AutoRegister(ctx, sess.ChallengeID, sess.phone, status.UserName)
		if err != nil {
			sess.lastError = common.ErrorMessage(err)
			s.logger.Warn("auto registration failed", "session_id", sess.ID, "error", err)
			s.apply(sess, model.EventRegistrationFailed)
			s.resetIdentity(ctx, sess)
			return
		}
		sess.ident = identityFrom(reg, status.UserName, sess.phone)
		s.enter(ctx, sess)
	}
}

func identityFrom(reg *model.Registration, name, phoneNumber string) model.SessionIdentity {
	return model.SessionIdentity{
		UserID:         reg.UserID,
		RegistrationID: reg.RegistrationID,
		UserName:       name,
		Phone:          phoneNumber,
		AccessCode:     reg.AccessCode,
	}
}

// SubmitDetails registers a NEEDS_DETAILS session. Details for a phone other
// than the verified one force verification again.
func (s *SessionService) SubmitDetails(ctx context.Context, id string, details model.RegistrationDetails) (*SessionSnapshot, error) {
	sess, err := s.lockMutable(id)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()

	if sess.state != model.StateNeedsDetails {
		return nil, common.Display(common.ErrInvalidState, "Registration details are not required right now.")
	}
	details.ChallengeID = sess.ChallengeID
	if strings.TrimSpace(details.Phone) == "" {
		details.Phone = sess.phone
	}
	submitted, err := s.verification.NormalizePhone(details.Phone)
	if err != nil {
		return nil, err
	}
	if submitted != sess.phone {
		s.apply(sess, model.EventPhoneChanged)
		s.resetIdentity(ctx, sess)
		return nil, common.Display(common.ErrInvalidState, "Phone number changed. Please verify the new number.")
	}
	details.Phone = submitted

	reg, err := s.registration.Register(ctx, details)
	if err != nil {
		return nil, err
	}
	sess.ident = identityFrom(reg, strings.TrimSpace(details.Name), sess.phone)
	s.enter(ctx, sess)
	return s.snapshotLocked(sess), nil
}

// enter moves the session to REGISTERED and builds its challenge workspace.
func (s *SessionService) enter(ctx context.Context, sess *Session) {
	if err := s.apply(sess, model.EventRegistered); err != nil {
		s.logger.Error("cannot enter session", "session_id", sess.ID, "error", err)
		return
	}

	problems := sess.challenge.Problems
	if fetched, err := s.catalog.Problems(ctx, sess.ChallengeID, sess.ident); err != nil {
		s.logger.Warn("failed to load problems, using descriptor", "session_id", sess.ID, "error", err)
	} else {
		problems = fetched
	}

	sess.problems = NewProblemSet(problems)
	sess.drafts = NewDraftEngine(s.backends.Drafts, s.draftCache, sess.problems, sess.ChallengeID, sess.ident.UserID, s.cfg.DraftSaveDelay, s.logger)
	sess.exec = NewExecutionService(s.backends.Execution, sess.problems, sess.drafts, sess.ChallengeID, sess.ident, s.cfg.APITimeout, s.clock.Now, s.logger)
	sess.mcq = NewMCQService(s.backends.MCQ, s.prefs, sess.DeviceID, sess.ChallengeID, sess.ident, s.cfg.MCQTextSaveDelay, s.logger)
	s.logger.Info("session registered", "session_id", sess.ID, "user_id", sess.ident.UserID, "registration_id", sess.ident.RegistrationID)
}

// expireIfDue ends the session once the challenge end has passed. It reports
// whether this call ended it.
func (s *SessionService) expireIfDue(sess *Session, now time.Time) bool {
	end := sess.challenge.ChallengeEndAt
	if sess.state == model.StateEnded || end == nil || now.Before(*end) {
		return false
	}
	s.apply(sess, model.EventExpired)
	sess.pending = nil
	dropped := 0
	if sess.drafts != nil {
		dropped = sess.drafts.Freeze()
	}
	if sess.exec != nil {
		sess.exec.Freeze()
	}
	if sess.mcq != nil {
		sess.mcq.Freeze()
	}
	s.logger.Info("session ended", "session_id", sess.ID, "challenge_id", sess.ChallengeID, "dropped_saves", dropped)
	return true
}

// registered locks a REGISTERED session for challenge content operations.
func (s *SessionService) registered(id string) (*Session, error) {
	sess, err := s.lockMutable(id)
	if err != nil {
		return nil, err
	}
	if sess.state != model.StateRegistered {
		sess.mu.Unlock()
		return nil, common.Display(common.ErrInvalidState, "Complete registration to access the challenge.")
	}
	return sess, nil
}

// workspace returns the registered session's collaborators without holding
// the session lock across backend calls.
func (s *SessionService) workspace(id string) (*Session, error) {
	sess, err := s.registered(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Unlock()
	return sess, nil
}

func (s *SessionService) Problems(ctx context.Context, id string) ([]ProblemView, error) {
	sess, err := s.workspace(id)
	if err != nil {
		return nil, err
	}
	if fetched, err := s.catalog.Problems(ctx, sess.ChallengeID, sess.ident); err == nil {
		sess.problems.Replace(fetched)
	} else {
		s.logger.Debug("problem refresh failed", "session_id", sess.ID, "error", err)
	}

	list := sess.problems.List()
	out := make([]ProblemView, 0, len(list))
	for _, p := range list {
		out = append(out, ProblemView{
			Problem:   p,
			Locked:    sess.problems.IsLocked(p.ID),
			EditMode:  sess.problems.InEditMode(p.ID),
			Languages: model.SupportedLanguages(p.InterfaceSpec),
		})
	}
	return out, nil
}

func (s *SessionService) OpenProblem(ctx context.Context, id string, problemID int64, language string) (*model.DraftView, error) {
	sess, err := s.workspace(id)
	if err != nil {
		return nil, err
	}
	return sess.drafts.Open(ctx, problemID, language)
}

func (s *SessionService) EditCode(ctx context.Context, id string, problemID int64, language, code string) (*model.DraftView, error) {
	sess, err := s.workspace(id)
	if err != nil {
		return nil, err
	}
	return sess.drafts.Edit(problemID, language, code)
}

// EnterEditMode unlocks a solved problem for another attempt.
func (s *SessionService) EnterEditMode(ctx context.Context, id string, problemID int64) (*model.DraftView, error) {
	sess, err := s.workspace(id)
	if err != nil {
		return nil, err
	}
	return sess.drafts.Unlock(problemID)
}

// Run flushes pending draft saves and runs the sample tests.
func (s *SessionService) Run(ctx context.Context, id string, req ExecutionRequest) (*model.ResultDisplay, error) {
	sess, err := s.workspace(id)
	if err != nil {
		return nil, err
	}
	sess.drafts.Flush(ctx)
	return sess.exec.Run(ctx, req)
}

func (s *SessionService) Submit(ctx context.Context, id string, req ExecutionRequest) (*model.ResultDisplay, error) {
	sess, err := s.workspace(id)
	if err != nil {
		return nil, err
	}
	sess.drafts.Flush(ctx)
	return sess.exec.Submit(ctx, req)
}

func (s *SessionService) Result(ctx context.Context, id string, problemID int64) (*model.ResultDisplay, error) {
	sess, err := s.content(id)
	if err != nil {
		return nil, err
	}
	r := sess.exec.Result(problemID)
	return &r, nil
}

func (s *SessionService) ClearResult(ctx context.Context, id string, problemID int64) error {
	sess, err := s.content(id)
	if err != nil {
		return err
	}
	sess.exec.Clear(problemID)
	return nil
}

// content is workspace for read-only access, which stays available after
// the challenge ends.
func (s *SessionService) content(id string) (*Session, error) {
	sess, err := s.lock(id)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()
	if sess.exec == nil {
		return nil, common.Display(common.ErrInvalidState, "Complete registration to access the challenge.")
	}
	return sess, nil
}

func (s *SessionService) MCQ(ctx context.Context, id string) (*MCQView, error) {
	sess, err := s.content(id)
	if err != nil {
		return nil, err
	}
	return s.loadMCQ(ctx, sess)
}

func (s *SessionService) loadMCQ(ctx context.Context, sess *Session) (*MCQView, error) {
	sess.mu.Lock()
	loaded := sess.mcqLoaded
	sess.mu.Unlock()
	if loaded {
		return sess.mcq.View(), nil
	}
	view, err := sess.mcq.Load(ctx, sess.challenge.MCQQuestions)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	sess.mcqLoaded = true
	sess.mu.Unlock()
	return view, nil
}

func (s *SessionService) AnswerMCQ(ctx context.Context, id string, questionID int64, req MCQAnswerRequest) (*MCQView, error) {
	sess, err := s.workspace(id)
	if err != nil {
		return nil, err
	}
	if _, err := s.loadMCQ(ctx, sess); err != nil {
		return nil, err
	}
	return sess.mcq.Answer(ctx, questionID, req)
}

func (s *SessionService) SubmitMCQ(ctx context.Context, id string) (*MCQView, error) {
	sess, err := s.workspace(id)
	if err != nil {
		return nil, err
	}
	if _, err := s.loadMCQ(ctx, sess); err != nil {
		return nil, err
	}
	return sess.mcq.Submit(ctx)
}

func (s *SessionService) Score(ctx context.Context, id string) (json.RawMessage, error) {
	sess, err := s.content(id)
	if err != nil {
		return nil, err
	}
	return s.catalog.Score(ctx, sess.ChallengeID, sess.ident)
}

func (s *SessionService) DeviceID(id string) (string, error) {
	sess, err := s.get(id)
	if err != nil {
		return "", err
	}
	return sess.DeviceID, nil
}

// Tick advances every session to now: sessions whose challenge has ended are
// frozen, the rest report their countdown.
func (s *SessionService) Tick(now time.Time) []SessionTick {
	s.mu.RLock()
	list := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		list = append(list, sess)
	}
	s.mu.RUnlock()

	ticks := make([]SessionTick, 0, len(list))
	for _, sess := range list {
		sess.mu.Lock()
		end := sess.challenge.ChallengeEndAt
		wasEnded := sess.state == model.StateEnded
		ended := s.expireIfDue(sess, now)
		sess.mu.Unlock()
		if end == nil || (wasEnded && !ended) {
			continue
		}
		ticks = append(ticks, SessionTick{SessionID: sess.ID, Countdown: model.CountdownUntil(*end, now), Ended: ended})
	}
	return ticks
}

// SweepIdle closes sessions not seen for the idle TTL, saving their
// pending drafts first.
func (s *SessionService) SweepIdle(ctx context.Context, now time.Time) int {
	s.mu.Lock()
	var idle []*Session
	for id, sess := range s.sessions {
		sess.mu.Lock()
		stale := now.Sub(sess.lastSeen) > s.cfg.IdleTTL
		sess.mu.Unlock()
		if stale {
			idle = append(idle, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range idle {
		s.close(ctx, sess)
	}
	return len(idle)
}

// SweepGrants deletes expired verification grants of the devices that hold
// a live session.
func (s *SessionService) SweepGrants(ctx context.Context) (int, error) {
	type scope struct {
		device    string
		challenge int64
	}
	seen := make(map[scope]bool)
	s.mu.RLock()
	for _, sess := range s.sessions {
		seen[scope{sess.DeviceID, sess.ChallengeID}] = true
	}
	s.mu.RUnlock()

	var errs []error
	removed := 0
	for sc := range seen {
		n, err := s.verification.ClearExpired(ctx, sc.device, sc.challenge)
		removed += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return removed, errors.Join(errs...)
}

func (s *SessionService) close(ctx context.Context, sess *Session) {
	sess.mu.Lock()
	drafts, mcq := sess.drafts, sess.mcq
	sess.mu.Unlock()
	if drafts != nil {
		drafts.Flush(ctx)
		drafts.Close()
	}
	if mcq != nil {
		mcq.Close()
	}
}

// Close saves pending drafts of every session and stops their timers.
func (s *SessionService) Close(ctx context.Context) {
	s.mu.Lock()
	list := make([]*Session, 0, len(s.sessions))
	for id, sess := range s.sessions {
		list = append(list, sess)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	for _, sess := range list {
		s.close(ctx, sess)
	}
}
