package challengeapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"challenge_gateway/internal/common"
	"challenge_gateway/internal/domain/model"
)

// envelope is the {success, message, data} wrapper most endpoints use.
type envelope struct {
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

// failure turns an explicit success=false into a user-facing error.
func (e envelope) failure(fallback string) error {
	if e.Success != nil && !*e.Success {
		return common.Display(common.ErrUpstream, firstNonEmpty(e.Message, e.Error, fallback))
	}
	return nil
}

// decodeList accepts a bare JSON array or an object carrying the array under
// one of keys.
func decodeList(raw json.RawMessage, dst interface{}, keys ...string) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil
	}
	if trimmed[0] == '[' {
		return json.Unmarshal(trimmed, dst)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return err
	}
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			return decodeList(v, dst, keys...)
		}
	}
	return errors.New("no list found in response")
}

// naiveLayouts are the zone-less forms the backend has been seen to send.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// parseTimestamp accepts RFC 3339, then the naive layouts read in loc.
func parseTimestamp(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

type serverTimeBody struct {
	Datetime string   `json:"datetime"`
	Unixtime *float64 `json:"unixtime"`
	Timezone string   `json:"timezone"`
}

func (b serverTimeBody) toTime() (time.Time, error) {
	if b.Datetime != "" {
		if t, err := time.Parse(time.RFC3339Nano, b.Datetime); err == nil {
			return t, nil
		}
	}
	if b.Unixtime != nil {
		v := *b.Unixtime
		if v > 1e12 { // milliseconds
			return time.UnixMilli(int64(v)), nil
		}
		sec := int64(v)
		return time.Unix(sec, int64((v-float64(sec))*1e9)), nil
	}
	return time.Time{}, fmt.Errorf("challengeapi: server time response has no usable timestamp (timezone %q)", b.Timezone)
}

type registrationStatusBody struct {
	IsRegistered    bool   `json:"is_registered"`
	DetailsRequired bool   `json:"details_required"`
	UserID          int64  `json:"user_id"`
	RegistrationID  int64  `json:"registration_id"`
	UserName        string `json:"user_name"`
	User            *struct {
		Name string `json:"name"`
	} `json:"user"`
}

// normalize folds the backend's loose flags into one outcome. An explicit
// details_required wins; a registration needs both the flag and an id; a
// known name is enough to register without asking.
func (b registrationStatusBody) normalize() model.RegistrationStatus {
	name := b.UserName
	if name == "" && b.User != nil {
		name = b.User.Name
	}
	status := model.RegistrationStatus{
		UserID:         b.UserID,
		RegistrationID: b.RegistrationID,
		UserName:       strings.TrimSpace(name),
	}
	switch {
	case b.DetailsRequired:
		status.Outcome = model.OutcomeNeedsDetails
	case b.IsRegistered && b.RegistrationID != 0:
		status.Outcome = model.OutcomeRegistered
	case status.UserName != "":
		status.Outcome = model.OutcomeNeedsRegistration
	default:
		status.Outcome = model.OutcomeNeedsDetails
	}
	return status
}

type registerFields struct {
	UserID         int64  `json:"user_id"`
	RegistrationID int64  `json:"registration_id"`
	AccessCode     string `json:"access_code"`
}

type registerBody struct {
	registerFields
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Data    *registerFields `json:"data"`
}

func (b registerBody) normalize() model.Registration {
	reg := model.Registration{
		UserID:         b.UserID,
		RegistrationID: b.RegistrationID,
		AccessCode:     b.AccessCode,
		Message:        b.Message,
	}
	if b.Data != nil {
		if reg.UserID == 0 {
			reg.UserID = b.Data.UserID
		}
		if reg.RegistrationID == 0 {
			reg.RegistrationID = b.Data.RegistrationID
		}
		if reg.AccessCode == "" {
			reg.AccessCode = b.Data.AccessCode
		}
	}
	return reg
}

type draftFields struct {
	Language   string `json:"language"`
	SourceCode string `json:"source_code"`
}

type draftBody struct {
	draftFields
	Data *draftFields `json:"data"`
}

func (b draftBody) normalize(problemID int64) *model.ProblemDraft {
	f := b.draftFields
	if f.SourceCode == "" && b.Data != nil {
		f = *b.Data
	}
	if f.SourceCode == "" {
		return nil
	}
	return &model.ProblemDraft{ProblemID: problemID, Language: f.Language, SourceCode: f.SourceCode}
}

type wireTest struct {
	SeqNo          int             `json:"seq_no"`
	Status         string          `json:"status"`
	InputsJSON     json.RawMessage `json:"inputs_json"`
	InputText      string          `json:"input_text"`
	OutputText     string          `json:"output_text"`
	Output         string          `json:"output"`
	ExpectedOutput string          `json:"expected_output"`
	ErrorMessage   string          `json:"error_message"`
	TimeMs         float64         `json:"time_ms"`
}

type wireSummary struct {
	Passed              int     `json:"passed"`
	TestsExecuted       int     `json:"tests_executed"`
	TotalTests          int     `json:"total_tests"`
	TotalTestsAvailable int     `json:"total_tests_available"`
	TimeMsTotal         float64 `json:"time_ms_total"`
}

// report is one level of a possibly nested run payload.
type report struct {
	Success *bool           `json:"success"`
	Status  *bool           `json:"status"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Verdict string          `json:"verdict"`
	Tests   []wireTest      `json:"tests"`
	Summary *wireSummary    `json:"summary"`
	Data    json.RawMessage `json:"data"`
}

func normalizeTests(in []wireTest) []model.TestCaseResult {
	out := make([]model.TestCaseResult, len(in))
	for i, t := range in {
		seq := t.SeqNo
		if seq == 0 {
			seq = i + 1
		}
		input := t.InputText
		if trimmed := bytes.TrimSpace(t.InputsJSON); len(trimmed) > 0 && string(trimmed) != "null" {
			input = compactJSON(trimmed)
		}
		out[i] = model.TestCaseResult{
			SeqNo:          seq,
			Status:         t.Status,
			Input:          input,
			Output:         firstNonEmpty(t.OutputText, t.Output),
			ExpectedOutput: t.ExpectedOutput,
			ErrorMessage:   t.ErrorMessage,
			TimeMs:         t.TimeMs,
		}
	}
	return out
}

func compactJSON(raw []byte) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

func normalizeSummary(s *wireSummary, tests []model.TestCaseResult) model.TestSummary {
	out := model.TestSummary{}
	if s != nil {
		out.Passed = s.Passed
		out.TestsExecuted = s.TestsExecuted
		out.TotalAvailable = s.TotalTestsAvailable
		if out.TotalAvailable == 0 {
			out.TotalAvailable = s.TotalTests
		}
		out.TimeMsTotal = s.TimeMsTotal
	}
	if out.TestsExecuted == 0 {
		out.TestsExecuted = len(tests)
	}
	if s == nil {
		for _, t := range tests {
			if t.Passed() {
				out.Passed++
			}
		}
	}
	return out
}

// normalizeRun walks the nested {success, data:{status, data:{tests, summary}}}
// payload down to the level that carries the tests.
func normalizeRun(raw json.RawMessage) (*model.RunResult, error) {
	result := &model.RunResult{}
	level := raw
	for depth := 0; depth < 4 && len(bytes.TrimSpace(level)) > 0; depth++ {
		var r report
		if err := json.Unmarshal(level, &r); err != nil {
			return nil, fmt.Errorf("challengeapi: decode run result: %w", err)
		}
		if r.Success != nil && !*r.Success {
			return nil, common.Display(common.ErrUpstream, firstNonEmpty(r.Message, r.Error, "Failed to run sample tests"))
		}
		if r.Status != nil {
			result.Status = *r.Status
		}
		if r.Message != "" {
			result.Message = r.Message
		}
		if len(r.Tests) > 0 || r.Summary != nil {
			result.Tests = normalizeTests(r.Tests)
			result.Summary = normalizeSummary(r.Summary, result.Tests)
			return result, nil
		}
		if d := bytes.TrimSpace(r.Data); len(d) == 0 || d[0] != '{' {
			break
		}
		level = r.Data
	}
	result.Tests = []model.TestCaseResult{}
	return result, nil
}

type submitBody struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
	Data    *struct {
		Submission *struct {
			Verdict      string   `json:"verdict"`
			PointsEarned *float64 `json:"points_earned"`
			Score        *float64 `json:"score"`
		} `json:"submission"`
		ExecutionResult *report `json:"execution_result"`
	} `json:"data"`
}

func normalizeSubmission(raw json.RawMessage) (*model.SubmissionResult, error) {
	var b submitBody
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("challengeapi: decode submission: %w", err)
	}
	if b.Success != nil && !*b.Success {
		return nil, common.Display(common.ErrUpstream, firstNonEmpty(b.Message, b.Error, "Failed to submit solution"))
	}

	result := &model.SubmissionResult{Message: b.Message, Tests: []model.TestCaseResult{}}
	if b.Data == nil {
		return result, nil
	}
	if exec := b.Data.ExecutionResult; exec != nil {
		result.Verdict = exec.Verdict
		result.Tests = normalizeTests(exec.Tests)
		result.Summary = normalizeSummary(exec.Summary, result.Tests)
	}
	if sub := b.Data.Submission; sub != nil {
		if result.Verdict == "" || sub.Verdict == model.VerdictAccepted {
			result.Verdict = sub.Verdict
		}
		result.PointsEarned = sub.PointsEarned
		if result.PointsEarned == nil {
			result.PointsEarned = sub.Score
		}
	}
	return result, nil
}
