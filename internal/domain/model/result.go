package model

// Per-test and overall verdict codes reported by the judge.
const (
	VerdictAccepted            = "AC"
	VerdictWrongAnswer         = "WA"
	VerdictRuntimeError        = "RE"
	VerdictTimeLimitExceeded   = "TLE"
	VerdictMemoryLimitExceeded = "MLE"
	VerdictCompilationError    = "CE"
)

type TestCaseResult struct {
	SeqNo          int     `json:"seq_no"`
	Status         string  `json:"status"`
	Input          string  `json:"input,omitempty"`
	Output         string  `json:"output,omitempty"`
	ExpectedOutput string  `json:"expected_output,omitempty"`
	ErrorMessage   string  `json:"error_message,omitempty"`
	TimeMs         float64 `json:"time_ms,omitempty"`
}

func (t TestCaseResult) Passed() bool {
	return t.Status == VerdictAccepted
}

type TestSummary struct {
	Passed         int     `json:"passed"`
	TestsExecuted  int     `json:"tests_executed"`
	TotalAvailable int     `json:"total_tests"`
	TimeMsTotal    float64 `json:"time_ms_total,omitempty"`
}

func (s TestSummary) AllPassed() bool {
	return s.TestsExecuted > 0 && s.Passed == s.TestsExecuted
}

type RunResult struct {
	Status  bool             `json:"status"`
	Message string           `json:"message,omitempty"`
	Tests   []TestCaseResult `json:"tests"`
	Summary TestSummary      `json:"summary"`
}

type SubmissionResult struct {
	Verdict      string           `json:"verdict"`
	PointsEarned *float64         `json:"points_earned,omitempty"`
	Message      string           `json:"message,omitempty"`
	Tests        []TestCaseResult `json:"tests,omitempty"`
	Summary      TestSummary      `json:"summary"`
}

func (r SubmissionResult) Accepted() bool {
	return r.Verdict == VerdictAccepted
}

type ResultKind string

const (
	ResultNone       ResultKind = "none"
	ResultRun        ResultKind = "run"
	ResultSubmission ResultKind = "submission"
)

// ResultDisplay holds at most one of Run or Submission, selected by Kind.
type ResultDisplay struct {
	Kind       ResultKind        `json:"kind"`
	Loading    bool              `json:"loading"`
	Error      string            `json:"error,omitempty"`
	Run        *RunResult        `json:"run,omitempty"`
	Submission *SubmissionResult `json:"submission,omitempty"`
}
