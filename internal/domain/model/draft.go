package model

import (
	"fmt"
	"strings"
)

type DraftState string

const (
	DraftUnloaded       DraftState = "UNLOADED"
	DraftLoading        DraftState = "LOADING"
	DraftLoaded         DraftState = "DRAFT_LOADED"
	DraftTemplateLoaded DraftState = "TEMPLATE_LOADED"
	DraftLockedSolved   DraftState = "LOCKED_SOLVED"
	DraftEditing        DraftState = "EDITING"
	DraftSavePending    DraftState = "SAVE_PENDING"
	DraftSaving         DraftState = "SAVING"
	DraftSaved          DraftState = "SAVED"
)

// DraftKey identifies one editor buffer.
type DraftKey struct {
	ChallengeID int64
	UserID      int64
	ProblemID   int64
	Language    string
}

func (k DraftKey) String() string {
	return fmt.Sprintf("%d:%d:%d:%s", k.ChallengeID, k.UserID, k.ProblemID, k.Language)
}

type ProblemDraft struct {
	ProblemID  int64  `json:"problem_id"`
	Language   string `json:"language"`
	SourceCode string `json:"source_code"`
}

// DraftView is what the editor shows for the selected problem and language.
type DraftView struct {
	ProblemID  int64      `json:"problem_id"`
	Language   string     `json:"language"`
	SourceCode string     `json:"source_code"`
	State      DraftState `json:"state"`
	ReadOnly   bool       `json:"read_only"`
}

// NormalizeCode makes line endings uniform and trims surrounding whitespace.
func NormalizeCode(code string) string {
	return strings.TrimSpace(strings.ReplaceAll(code, "\r\n", "\n"))
}

// ShouldPersist is true for code that is non-empty and differs from template.
func ShouldPersist(code, template string) bool {
	n := NormalizeCode(code)
	return n != "" && n != NormalizeCode(template)
}
