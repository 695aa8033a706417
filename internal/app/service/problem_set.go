package service

import (
	"sync"
	"time"

	"challenge_gateway/internal/common"
	"challenge_gateway/internal/domain/model"
)

// ProblemSet is a session's copy of its coding problems together with the
// solved flags and edit overrides that decide whether a problem is locked.
type ProblemSet struct {
	mu    sync.RWMutex
	order []int64
	byID  map[int64]model.Problem
	edit  map[int64]bool
}

func NewProblemSet(problems []model.Problem) *ProblemSet {
	ps := &ProblemSet{edit: make(map[int64]bool)}
	ps.Replace(problems)
	return ps
}

// Replace swaps in a freshly fetched list. Edit overrides survive for
// problems that are still present.
func (ps *ProblemSet) Replace(problems []model.Problem) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.order = make([]int64, 0, len(problems))
	ps.byID = make(map[int64]model.Problem, len(problems))
	for _, p := range problems {
		ps.order = append(ps.order, p.ID)
		ps.byID[p.ID] = p
	}
	for id := range ps.edit {
		if _, ok := ps.byID[id]; !ok {
			delete(ps.edit, id)
		}
	}
}

func (ps *ProblemSet) List() []model.Problem {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	out := make([]model.Problem, 0, len(ps.order))
	for _, id := range ps.order {
		out = append(out, ps.byID[id])
	}
	return out
}

func (ps *ProblemSet) Get(id int64) (model.Problem, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	p, ok := ps.byID[id]
	return p, ok
}

// IsLocked is true for a solved problem with a known accepted submission
// while no edit override is active.
func (ps *ProblemSet) IsLocked(id int64) bool {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	p, ok := ps.byID[id]
	return ok && p.IsSolved && p.UserSubmission != nil && !ps.edit[id]
}

// LockedSubmission returns a copy of the accepted submission when the
// problem is locked.
func (ps *ProblemSet) LockedSubmission(id int64) (model.UserSubmission, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	p, ok := ps.byID[id]
	if !ok || !p.IsSolved || p.UserSubmission == nil || ps.edit[id] {
		return model.UserSubmission{}, false
	}
	return *p.UserSubmission, true
}

func (ps *ProblemSet) InEditMode(id int64) bool {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.edit[id]
}

func (ps *ProblemSet) SetEditMode(id int64, on bool) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if _, ok := ps.byID[id]; !ok {
		return common.Display(common.ErrNotFound, "Problem not found")
	}
	if on {
		ps.edit[id] = true
	} else {
		delete(ps.edit, id)
	}
	return nil
}

// MarkSolved records an accepted submission and ends any edit override.
func (ps *ProblemSet) MarkSolved(id int64, language, code, verdict string, at time.Time) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	p, ok := ps.byID[id]
	if !ok {
		return
	}
	p.IsSolved = true
	p.UserSubmission = &model.UserSubmission{Language: language, SourceCode: code, Verdict: verdict, SubmittedAt: &at}
	ps.byID[id] = p
	delete(ps.edit, id)
}
