// Package challengeapi talks to the remote challenge backend and normalises
// its responses into domain types.
package challengeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"challenge_gateway/internal/common"
	"challenge_gateway/internal/domain/model"
)

const apiPrefix = "/public-challenges"

type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	loc        *time.Location
	logger     *slog.Logger
}

// NewClient builds a client. Backend timestamps without a zone are read in
// loc, or UTC when loc is nil.
func NewClient(baseURL string, timeout time.Duration, loc *time.Location, logger *slog.Logger) *Client {
	if loc == nil {
		loc = time.UTC
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		timeout:    timeout,
		loc:        loc,
		logger:     logger,
	}
}

// APIError is a non-2xx answer from the backend.
type APIError struct {
	Status            int
	Message           string
	AlreadyRegistered bool
	ChallengeStartAt  *time.Time
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusNotFound:
		return common.ErrNotFound
	case e.AlreadyRegistered || e.Status == http.StatusConflict:
		return common.ErrConflict
	case e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
		return common.ErrForbidden
	case e.Status >= 400 && e.Status < 500:
		return common.ErrBadRequest
	}
	return common.ErrUpstream
}

type errorBody struct {
	Message           string          `json:"message"`
	Error             string          `json:"error"`
	Detail            string          `json:"detail"`
	AlreadyRegistered bool            `json:"already_registered"`
	ChallengeStartAt  string          `json:"challenge_start_at"`
	Errors            json.RawMessage `json:"errors"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("challengeapi: marshal %s body: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("challengeapi: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("challenge api request failed", "method", method, "path", path, "error", err)
		if errors.Is(err, context.DeadlineExceeded) {
			return common.DisplayWrap(common.ErrServiceUnavailable, "The request timed out. Please try again.", err)
		}
		return common.DisplayWrap(common.ErrServiceUnavailable, "Unable to reach the challenge service. Please try again.", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("challengeapi: read %s: %w", path, err)
	}
	c.logger.Debug("challenge api", "method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, raw, c.loc)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("challengeapi: decode %s: %w", path, err)
	}
	return nil
}

func decodeError(status int, raw []byte, loc *time.Location) error {
	apiErr := &APIError{Status: status}
	var body errorBody
	if json.Unmarshal(raw, &body) == nil {
		apiErr.AlreadyRegistered = body.AlreadyRegistered
		if t, ok := parseTimestamp(body.ChallengeStartAt, loc); ok {
			apiErr.ChallengeStartAt = &t
		}
		apiErr.Message = firstNonEmpty(body.Message, body.Error, body.Detail)
		if apiErr.Message == "" && len(body.Errors) > 0 && string(body.Errors) != "null" {
			apiErr.Message = string(body.Errors)
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = fmt.Sprintf("Request failed with status %d", status)
	}
	return apiErr
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func identityQuery(ident model.SessionIdentity) url.Values {
	q := url.Values{}
	q.Set("user_id", strconv.FormatInt(ident.UserID, 10))
	if ident.RegistrationID != 0 {
		q.Set("registration_id", strconv.FormatInt(ident.RegistrationID, 10))
	}
	return q
}

func requireIdentity(ident model.SessionIdentity) error {
	if !ident.Complete() {
		return common.Display(common.ErrInvalidState, "userId and registrationId are required")
	}
	return nil
}

func challengePath(challengeID int64, rest string) string {
	return fmt.Sprintf("%s/challenges/%d/%s", apiPrefix, challengeID, rest)
}

func problemPath(challengeID, problemID int64, rest string) string {
	return fmt.Sprintf("%s/challenges/%d/problems/%d/%s", apiPrefix, challengeID, problemID, rest)
}

func (c *Client) ListChallenges(ctx context.Context) ([]model.Challenge, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/challenges/", nil, nil, &raw); err != nil {
		return nil, err
	}
	var list []model.Challenge
	if err := decodeList(raw, &list, "results", "challenges", "data"); err != nil {
		return nil, fmt.Errorf("challengeapi.ListChallenges: %w", err)
	}
	return list, nil
}

func (c *Client) GetChallenge(ctx context.Context, challengeID int64) (*model.Challenge, error) {
	var ch model.Challenge
	if err := c.do(ctx, http.MethodGet, challengePath(challengeID, ""), nil, nil, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

func (c *Client) GetChallengeBySlug(ctx context.Context, slug string) (*model.Challenge, error) {
	var ch model.Challenge
	path := fmt.Sprintf("%s/challenges/slug/%s/", apiPrefix, url.PathEscape(slug))
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

// ServerTime reads the backend's wall clock.
func (c *Client) ServerTime(ctx context.Context) (time.Time, error) {
	var body serverTimeBody
	if err := c.do(ctx, http.MethodGet, "/student/server-time/", nil, nil, &body); err != nil {
		return time.Time{}, err
	}
	return body.toTime()
}

func (c *Client) CheckRegistration(ctx context.Context, challengeID int64, phone string) (*model.RegistrationStatus, error) {
	var body registrationStatusBody
	q := url.Values{"phone": []string{phone}}
	if err := c.do(ctx, http.MethodGet, challengePath(challengeID, "registration-status/"), q, nil, &body); err != nil {
		return nil, err
	}
	status := body.normalize()
	return &status, nil
}

func (c *Client) Register(ctx context.Context, details model.RegistrationDetails) (*model.Registration, error) {
	var body registerBody
	if err := c.do(ctx, http.MethodPost, apiPrefix+"/challenges/register/", nil, details, &body); err != nil {
		return nil, err
	}
	if body.Success != nil && !*body.Success {
		return nil, common.Display(common.ErrUpstream, firstNonEmpty(body.Message, "Registration failed"))
	}
	reg := body.normalize()
	return &reg, nil
}

func (c *Client) GetMCQQuestions(ctx context.Context, challengeID int64, ident model.SessionIdentity) ([]model.MCQQuestion, error) {
	if err := requireIdentity(ident); err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, challengePath(challengeID, "mcq-questions/"), identityQuery(ident), nil, &raw); err != nil {
		return nil, err
	}
	var questions []model.MCQQuestion
	if err := decodeList(raw, &questions, "questions", "mcq_questions", "data", "results"); err != nil {
		return nil, fmt.Errorf("challengeapi.GetMCQQuestions: %w", err)
	}
	return questions, nil
}

func (c *Client) SubmitMCQAnswers(ctx context.Context, challengeID int64, ident model.SessionIdentity, answers []model.MCQAnswer) error {
	if err := requireIdentity(ident); err != nil {
		return err
	}
	payload := map[string]interface{}{
		"user_id":         ident.UserID,
		"registration_id": ident.RegistrationID,
		"submissions":     answers,
	}
	var env envelope
	if err := c.do(ctx, http.MethodPost, challengePath(challengeID, "mcq-submit/"), nil, payload, &env); err != nil {
		return err
	}
	return env.failure("Failed to submit answers. Please try again.")
}

func (c *Client) GetProblems(ctx context.Context, challengeID int64, ident model.SessionIdentity) ([]model.Problem, error) {
	if err := requireIdentity(ident); err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, challengePath(challengeID, "problems/"), identityQuery(ident), nil, &raw); err != nil {
		return nil, err
	}
	var problems []model.Problem
	if err := decodeList(raw, &problems, "problems", "data", "results"); err != nil {
		return nil, fmt.Errorf("challengeapi.GetProblems: %w", err)
	}
	return problems, nil
}

// GetDraft returns the backend draft, or nil when none is stored.
func (c *Client) GetDraft(ctx context.Context, challengeID, problemID, userID int64, language string) (*model.ProblemDraft, error) {
	q := url.Values{}
	q.Set("user_id", strconv.FormatInt(userID, 10))
	q.Set("language", language)

	var body draftBody
	if err := c.do(ctx, http.MethodGet, problemPath(challengeID, problemID, "draft/"), q, nil, &body); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return body.normalize(problemID), nil
}

func (c *Client) SaveDraft(ctx context.Context, challengeID, problemID, userID int64, language, code string) error {
	payload := map[string]interface{}{
		"user_id":     userID,
		"language":    language,
		"source_code": code,
	}
	var env envelope
	if err := c.do(ctx, http.MethodPost, problemPath(challengeID, problemID, "draft/"), nil, payload, &env); err != nil {
		return err
	}
	return env.failure("Failed to save draft")
}

func (c *Client) RunSample(ctx context.Context, challengeID, problemID int64, ident model.SessionIdentity, language, code string) (*model.RunResult, error) {
	if err := requireIdentity(ident); err != nil {
		return nil, err
	}
	payload := map[string]interface{}{
		"user_id":         ident.UserID,
		"registration_id": ident.RegistrationID,
		"language":        language,
		"source_code":     code,
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, problemPath(challengeID, problemID, "sample-run/"), nil, payload, &raw); err != nil {
		return nil, err
	}
	return normalizeRun(raw)
}

func (c *Client) Submit(ctx context.Context, challengeID, problemID int64, ident model.SessionIdentity, language, code string) (*model.SubmissionResult, error) {
	if err := requireIdentity(ident); err != nil {
		return nil, err
	}
	payload := map[string]interface{}{
		"user_id":         ident.UserID,
		"registration_id": ident.RegistrationID,
		"language":        language,
		"source_code":     code,
	}
	if ident.AccessCode != "" {
		payload["access_code"] = ident.AccessCode
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, problemPath(challengeID, problemID, "submit/"), nil, payload, &raw); err != nil {
		return nil, err
	}
	return normalizeSubmission(raw)
}

// MyScore is passed through untouched; the UI renders it as-is.
func (c *Client) MyScore(ctx context.Context, challengeID int64, ident model.SessionIdentity) (json.RawMessage, error) {
	if ident.UserID == 0 {
		return nil, common.Display(common.ErrInvalidState, "userId is required")
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, challengePath(challengeID, "my-score/"), identityQuery(ident), nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}
