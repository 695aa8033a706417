package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"challenge_gateway/internal/common"
	"challenge_gateway/internal/domain/model"
	"challenge_gateway/internal/domain/repository"
)

type pendingSave struct {
	code  string
	timer *time.Timer
}

// DraftEngine keeps the editor buffers of one session in sync with the
// backend. Edits land in memory at once and are saved after SaveDelay of
// inactivity. At most one save per buffer is in flight; a save requested
// while one is running is dropped.
type DraftEngine struct {
	api         DraftAPI
	cache       repository.DraftCacheRepository
	problems    *ProblemSet
	challengeID int64
	userID      int64
	delay       time.Duration
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// op serialises Open, Edit and Flush the way a single editor would.
	op sync.Mutex

	mu        sync.Mutex
	active    *model.DraftKey
	buffers   map[model.DraftKey]string
	states    map[model.DraftKey]model.DraftState
	lastSaved map[model.DraftKey]string
	inflight  map[model.DraftKey]chan struct{}
	pending   map[model.DraftKey]*pendingSave
	frozen    bool
	timers    sync.WaitGroup
}

func NewDraftEngine(api DraftAPI, cache repository.DraftCacheRepository, problems *ProblemSet, challengeID, userID int64, delay time.Duration, logger *slog.Logger) *DraftEngine {
	ctx, cancel := context.WithCancel(context.Background())
	return &DraftEngine{
		api:         api,
		cache:       cache,
		problems:    problems,
		challengeID: challengeID,
		userID:      userID,
		delay:       delay,
		logger:      logger.With("challenge_id", challengeID, "user_id", userID),
		ctx:         ctx,
		cancel:      cancel,
		buffers:     make(map[model.DraftKey]string),
		states:      make(map[model.DraftKey]model.DraftState),
		lastSaved:   make(map[model.DraftKey]string),
		inflight:    make(map[model.DraftKey]chan struct{}),
		pending:     make(map[model.DraftKey]*pendingSave),
	}
}

func (e *DraftEngine) key(problemID int64, language string) model.DraftKey {
	return model.DraftKey{ChallengeID: e.challengeID, UserID: e.userID, ProblemID: problemID, Language: language}
}

// Open selects a problem and language for editing. Pending saves and the
// outgoing buffer are written first. A locked problem opens read-only on its
// accepted submission.
func (e *DraftEngine) Open(ctx context.Context, problemID int64, language string) (*model.DraftView, error) {
	e.op.Lock()
	defer e.op.Unlock()

	if e.isFrozen() {
		return nil, common.Display(common.ErrSessionEnded, "The challenge has ended.")
	}
	p, ok := e.problems.Get(problemID)
	if !ok {
		return nil, common.Display(common.ErrNotFound, "Problem not found")
	}
	if language == "" {
		language = e.defaultLanguage(p)
	}

	outgoing := e.activeKey()
	if outgoing != nil && *outgoing != e.key(problemID, language) {
		e.leave(ctx, *outgoing)
		if outgoing.ProblemID != problemID {
			e.problems.SetEditMode(outgoing.ProblemID, false)
		}
	}

	if sub, locked := e.problems.LockedSubmission(problemID); locked {
		lang := sub.Language
		if lang == "" {
			lang = language
		}
		key := e.key(problemID, lang)
		e.mu.Lock()
		e.active = &key
		e.states[key] = model.DraftLockedSolved
		e.mu.Unlock()
		return &model.DraftView{ProblemID: problemID, Language: lang, SourceCode: sub.SourceCode, State: model.DraftLockedSolved, ReadOnly: true}, nil
	}

	if !model.IsSupportedLanguage(p.InterfaceSpec, language) {
		return nil, common.Display(common.ErrValidation, "Unsupported language: "+language)
	}

	key := e.key(problemID, language)
	e.mu.Lock()
	e.active = &key
	code, loaded := e.buffers[key]
	state := e.states[key]
	if !loaded {
		e.states[key] = model.DraftLoading
	}
	e.mu.Unlock()

	if !loaded {
		code, state = e.load(ctx, key, p)
		e.mu.Lock()
		e.buffers[key] = code
		e.states[key] = state
		e.mu.Unlock()
	}
	return &model.DraftView{ProblemID: problemID, Language: language, SourceCode: code, State: state}, nil
}

// load resolves a buffer from the draft cache, then the backend, then the
// template. Empty or template-equal content always yields the template.
func (e *DraftEngine) load(ctx context.Context, key model.DraftKey, p model.Problem) (string, model.DraftState) {
	template := model.TemplateFor(p, key.Language)

	cached, err := e.cache.Get(ctx, key)
	if err == nil && cached.Language == key.Language && model.ShouldPersist(cached.SourceCode, template) {
		return cached.SourceCode, model.DraftLoaded
	}
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		e.logger.Debug("draft cache read failed", "key", key.String(), "error", err)
	}

	draft, err := e.api.GetDraft(ctx, e.challengeID, key.ProblemID, e.userID, key.Language)
	if err != nil {
		e.logger.Debug("draft fetch failed, using template", "key", key.String(), "error", err)
		return template, model.DraftTemplateLoaded
	}
	if draft == nil || (draft.Language != "" && draft.Language != key.Language) || !model.ShouldPersist(draft.SourceCode, template) {
		return template, model.DraftTemplateLoaded
	}

	e.mu.Lock()
	e.lastSaved[key] = model.NormalizeCode(draft.SourceCode)
	e.mu.Unlock()
	e.putCache(ctx, key, draft.SourceCode)
	return draft.SourceCode, model.DraftLoaded
}

func (e *DraftEngine) defaultLanguage(p model.Problem) string {
	if a := e.activeKey(); a != nil && model.IsSupportedLanguage(p.InterfaceSpec, a.Language) {
		return a.Language
	}
	return model.LangPython
}

// Edit replaces the buffer of the open problem and schedules a save that
// supersedes any earlier one for the same buffer.
func (e *DraftEngine) Edit(problemID int64, language, code string) (*model.DraftView, error) {
	e.op.Lock()
	defer e.op.Unlock()

	if e.isFrozen() {
		return nil, common.Display(common.ErrSessionEnded, "The challenge has ended.")
	}
	if e.problems.IsLocked(problemID) {
		return nil, common.Display(common.ErrLocked, "This problem is already solved. Choose edit to change your solution.")
	}
	key := e.key(problemID, language)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil || *e.active != key {
		return nil, common.Display(common.ErrInvalidState, "Open the problem in this language before editing.")
	}
	e.buffers[key] = code
	e.states[key] = model.DraftSavePending
	e.scheduleLocked(key, code)
	return &model.DraftView{ProblemID: problemID, Language: language, SourceCode: code, State: model.DraftSavePending}, nil
}

func (e *DraftEngine) scheduleLocked(key model.DraftKey, code string) {
	if prev, ok := e.pending[key]; ok && prev.timer.Stop() {
		e.timers.Done()
	}
	ps := &pendingSave{code: code}
	e.timers.Add(1)
	ps.timer = time.AfterFunc(e.delay, func() {
		defer e.timers.Done()
		e.fire(key, ps)
	})
	e.pending[key] = ps
}

func (e *DraftEngine) fire(key model.DraftKey, ps *pendingSave) {
	e.mu.Lock()
	if e.pending[key] != ps {
		e.mu.Unlock()
		return
	}
	delete(e.pending, key)
	e.mu.Unlock()
	e.save(e.ctx, key, ps.code)
}

// save writes code for key unless it is boilerplate, unchanged since the
// last save, locked, or already being saved. It reports whether a network
// write happened.
func (e *DraftEngine) save(ctx context.Context, key model.DraftKey, code string) bool {
	p, ok := e.problems.Get(key.ProblemID)
	if !ok || e.problems.IsLocked(key.ProblemID) {
		return false
	}
	if !model.ShouldPersist(code, model.TemplateFor(p, key.Language)) {
		e.setState(key, code, model.DraftEditing)
		return false
	}
	normalized := model.NormalizeCode(code)

	e.mu.Lock()
	if e.frozen {
		e.mu.Unlock()
		return false
	}
	if e.lastSaved[key] == normalized {
		e.mu.Unlock()
		e.setState(key, code, model.DraftSaved)
		return false
	}
	if _, busy := e.inflight[key]; busy {
		e.mu.Unlock()
		return false
	}
	done := make(chan struct{})
	e.inflight[key] = done
	e.states[key] = model.DraftSaving
	e.mu.Unlock()

	err := e.api.SaveDraft(ctx, e.challengeID, key.ProblemID, e.userID, key.Language, code)

	e.mu.Lock()
	delete(e.inflight, key)
	close(done)
	if err == nil {
		e.lastSaved[key] = normalized
	}
	e.mu.Unlock()

	if err != nil {
		e.logger.Debug("draft save failed", "key", key.String(), "error", err)
		e.setState(key, code, model.DraftEditing)
		return true
	}
	e.putCache(ctx, key, code)
	e.setState(key, code, model.DraftSaved)
	return true
}

// setState applies state only while the buffer still holds code and no newer
// save is scheduled.
func (e *DraftEngine) setState(key model.DraftKey, code string, state model.DraftState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.buffers[key] != code {
		return
	}
	if _, scheduled := e.pending[key]; scheduled {
		return
	}
	e.states[key] = state
}

func (e *DraftEngine) putCache(ctx context.Context, key model.DraftKey, code string) {
	d := model.ProblemDraft{ProblemID: key.ProblemID, Language: key.Language, SourceCode: code}
	if err := e.cache.Put(ctx, key, d); err != nil {
		e.logger.Debug("draft cache write failed", "key", key.String(), "error", err)
	}
}

// Flush cancels every scheduled save and performs it now, waiting for any
// save already in flight on the same buffer.
func (e *DraftEngine) Flush(ctx context.Context) {
	e.op.Lock()
	defer e.op.Unlock()
	e.flush(ctx)
}

func (e *DraftEngine) flush(ctx context.Context) {
	e.mu.Lock()
	due := make(map[model.DraftKey]string, len(e.pending))
	for key, ps := range e.pending {
		if ps.timer.Stop() {
			e.timers.Done()
		}
		due[key] = ps.code
		delete(e.pending, key)
	}
	e.mu.Unlock()

	for key, code := range due {
		e.waitInflight(ctx, key)
		e.save(ctx, key, code)
	}
}

// leave flushes pending saves and then writes the outgoing buffer.
func (e *DraftEngine) leave(ctx context.Context, key model.DraftKey) {
	e.flush(ctx)
	if e.problems.IsLocked(key.ProblemID) {
		return
	}
	e.mu.Lock()
	code, ok := e.buffers[key]
	e.mu.Unlock()
	if !ok {
		return
	}
	e.waitInflight(ctx, key)
	e.save(ctx, key, code)
}

func (e *DraftEngine) waitInflight(ctx context.Context, key model.DraftKey) {
	e.mu.Lock()
	done, busy := e.inflight[key]
	e.mu.Unlock()
	if !busy {
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Unlock puts a solved problem into edit mode with its accepted code as the
// starting buffer.
func (e *DraftEngine) Unlock(problemID int64) (*model.DraftView, error) {
	e.op.Lock()
	defer e.op.Unlock()

	if e.isFrozen() {
		return nil, common.Display(common.ErrSessionEnded, "The challenge has ended.")
	}
	p, ok := e.problems.Get(problemID)
	if !ok {
		return nil, common.Display(common.ErrNotFound, "Problem not found")
	}
	if err := e.problems.SetEditMode(problemID, true); err != nil {
		return nil, err
	}
	if p.UserSubmission == nil {
		return e.viewLocked(problemID), nil
	}

	lang := p.UserSubmission.Language
	if lang == "" {
		lang = model.LangPython
	}
	key := e.key(problemID, lang)
	e.mu.Lock()
	e.active = &key
	e.buffers[key] = p.UserSubmission.SourceCode
	e.states[key] = model.DraftEditing
	e.lastSaved[key] = model.NormalizeCode(p.UserSubmission.SourceCode)
	e.mu.Unlock()
	return &model.DraftView{ProblemID: problemID, Language: lang, SourceCode: p.UserSubmission.SourceCode, State: model.DraftEditing}, nil
}

// Discard drops scheduled saves for a problem, e.g. once it is solved.
func (e *DraftEngine) Discard(problemID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key, ps := range e.pending {
		if key.ProblemID != problemID {
			continue
		}
		if ps.timer.Stop() {
			e.timers.Done()
		}
		delete(e.pending, key)
	}
}

// View returns the active buffer, or nil when nothing is open.
func (e *DraftEngine) View() *model.DraftView {
	e.mu.Lock()
	a := e.active
	e.mu.Unlock()
	if a == nil {
		return nil
	}
	return e.viewLocked(a.ProblemID)
}

func (e *DraftEngine) viewLocked(problemID int64) *model.DraftView {
	if sub, locked := e.problems.LockedSubmission(problemID); locked {
		return &model.DraftView{ProblemID: problemID, Language: sub.Language, SourceCode: sub.SourceCode, State: model.DraftLockedSolved, ReadOnly: true}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil || e.active.ProblemID != problemID {
		return nil
	}
	key := *e.active
	return &model.DraftView{ProblemID: problemID, Language: key.Language, SourceCode: e.buffers[key], State: e.states[key]}
}

// Code returns the buffer for a problem and language, if loaded.
func (e *DraftEngine) Code(problemID int64, language string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	code, ok := e.buffers[e.key(problemID, language)]
	return code, ok
}

func (e *DraftEngine) activeKey() *model.DraftKey {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil {
		return nil
	}
	k := *e.active
	return &k
}

func (e *DraftEngine) isFrozen() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frozen
}

// Freeze refuses all further edits and saves and drops scheduled ones. It
// returns how many scheduled saves were dropped.
func (e *DraftEngine) Freeze() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.frozen {
		return 0
	}
	e.frozen = true
	dropped := 0
	for key, ps := range e.pending {
		if ps.timer.Stop() {
			e.timers.Done()
			dropped++
		}
		delete(e.pending, key)
	}
	return dropped
}

// Close freezes the engine, cancels in-flight saves and waits for timer
// callbacks to return.
func (e *DraftEngine) Close() {
	e.Freeze()
	e.cancel()
	e.timers.Wait()
}
