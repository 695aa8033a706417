package model

import (
	"encoding/json"
	"strings"
	"time"
)

type ChallengeType string

const (
	ChallengeTypePublic          ChallengeType = "PUBLIC"
	ChallengeTypePlacement       ChallengeType = "PLACEMENT"
	ChallengeTypeCollegeStudents ChallengeType = "COLLEGE_STUDENTS"
)

// Backend lifecycle values seen on Challenge.Status.
const (
	BackendStatusPublished    = "PUBLISHED"
	BackendStatusRegistration = "REGISTRATION"
	BackendStatusActive       = "ACTIVE"
)

// Challenge is the descriptor returned by the challenge backend.
type Challenge struct {
	ID                  int64         `json:"id"`
	Slug                string        `json:"slug"`
	Title               string        `json:"title"`
	Description         string        `json:"description,omitempty"`
	ChallengeType       ChallengeType `json:"challenge_type"`
	Status              string        `json:"status"`
	RegistrationStartAt *time.Time    `json:"registration_start_at,omitempty"`
	RegistrationEndAt   *time.Time    `json:"registration_end_at,omitempty"`
	ChallengeStartAt    *time.Time    `json:"challenge_start_at,omitempty"`
	ChallengeEndAt      *time.Time    `json:"challenge_end_at,omitempty"`
	DurationMinutes     int           `json:"duration_minutes,omitempty"`
	MCQQuestionsCount   int           `json:"mcq_questions_count,omitempty"`
	MCQQuestions        []MCQQuestion `json:"mcq_questions,omitempty"`
	Problems            []Problem     `json:"problems,omitempty"`
}

// ChallengeView is a descriptor annotated with the status derived from the
// synchronised clock.
type ChallengeView struct {
	Challenge
	DerivedStatus ChallengeStatus `json:"derived_status"`
}

type Problem struct {
	ID                int64                       `json:"id"`
	Title             string                      `json:"title"`
	Description       string                      `json:"description,omitempty"`
	Difficulty        string                      `json:"difficulty,omitempty"`
	Points            float64                     `json:"points,omitempty"`
	IsSolved          bool                        `json:"is_solved"`
	UserSubmission    *UserSubmission             `json:"user_submission,omitempty"`
	InterfaceSpec     *InterfaceSpec              `json:"interface_spec,omitempty"`
	FunctionTemplates map[string]FunctionTemplate `json:"function_templates,omitempty"`
	SampleTestCases   []SampleTestCase            `json:"sample_test_cases,omitempty"`
}

// UserSubmission is the last accepted solution for a solved problem.
type UserSubmission struct {
	Language    string     `json:"language"`
	SourceCode  string     `json:"source_code"`
	Verdict     string     `json:"verdict,omitempty"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
}

type InterfaceSpec struct {
	Mode         string  `json:"mode,omitempty"`
	FunctionName string  `json:"function_name,omitempty"`
	Parameters   []Param `json:"parameters,omitempty"`
	Params       []Param `json:"params,omitempty"`
	ReturnType   string  `json:"return_type,omitempty"`
	Returns      string  `json:"returns,omitempty"`
}

type Param struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ParamList prefers the current field name and falls back to the legacy one.
func (s *InterfaceSpec) ParamList() []Param {
	if len(s.Parameters) > 0 {
		return s.Parameters
	}
	return s.Params
}

func (s *InterfaceSpec) Return() string {
	if s.ReturnType != "" {
		return s.ReturnType
	}
	return s.Returns
}

type FunctionTemplate struct {
	StubCode string `json:"stub_code"`
}

type SampleTestCase struct {
	Input          json.RawMessage `json:"input,omitempty"`
	ExpectedOutput string          `json:"expected_output,omitempty"`
	Explanation    string          `json:"explanation,omitempty"`
}

// IsListed reports whether the challenge belongs in the public catalogue:
// public, and either registration is open, it has not ended yet, or the
// backend flags it as active.
func IsListed(c Challenge, now time.Time) bool {
	if c.ChallengeType != ChallengeTypePublic {
		return false
	}
	regOpen := c.RegistrationStartAt != nil && c.RegistrationEndAt != nil &&
		!now.Before(*c.RegistrationStartAt) && !now.After(*c.RegistrationEndAt)
	notEnded := c.ChallengeEndAt != nil && !now.After(*c.ChallengeEndAt)
	backendActive := c.Status == BackendStatusRegistration || c.Status == BackendStatusActive
	return regOpen || notEnded || backendActive
}

// MatchesSearch is a case-insensitive match on title or description.
func (c Challenge) MatchesSearch(q string) bool {
	if q == "" {
		return true
	}
	q = strings.ToLower(q)
	return strings.Contains(strings.ToLower(c.Title), q) ||
		strings.Contains(strings.ToLower(c.Description), q)
}
