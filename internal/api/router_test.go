package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"challenge_gateway/internal/api/handler"
	"challenge_gateway/internal/app/service"
	"challenge_gateway/internal/common"
	"challenge_gateway/internal/common/security"
	"challenge_gateway/internal/domain/model"
	"challenge_gateway/internal/domain/repository"
	"challenge_gateway/internal/platform/challengeapi"
	"challenge_gateway/internal/platform/config"
	"challenge_gateway/internal/platform/realtime"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend stands in for the challenge backend and the OTP provider.
type fakeBackend struct {
	mu         sync.Mutex
	challenges []model.Challenge
	problems   []model.Problem
	status     model.RegistrationStatus
	drafts     map[string]string
	runs       int
	skew       time.Duration
	timeCalls  int
}

func (f *fakeBackend) ServerTime(ctx context.Context) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeCalls++
	return time.Now().Add(f.skew), nil
}

func (f *fakeBackend) serverTimeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.timeCalls
}

func (f *fakeBackend) ListChallenges(ctx context.Context) ([]model.Challenge, error) {
	return f.challenges, nil
}

func (f *fakeBackend) GetChallenge(ctx context.Context, challengeID int64) (*model.Challenge, error) {
	for _, c := range f.challenges {
		if c.ID == challengeID {
			return &c, nil
		}
	}
	return nil, &challengeapi.APIError{Status: http.StatusNotFound, Message: "Challenge not found"}
}

func (f *fakeBackend) GetChallengeBySlug(ctx context.Context, slug string) (*model.Challenge, error) {
	for _, c := range f.challenges {
		if c.Slug == slug {
			return &c, nil
		}
	}
	return nil, &challengeapi.APIError{Status: http.StatusNotFound, Message: "Challenge not found"}
}

func (f *fakeBackend) GetProblems(ctx context.Context, challengeID int64, ident model.SessionIdentity) ([]model.Problem, error) {
	return f.problems, nil
}

func (f *fakeBackend) MyScore(ctx context.Context, challengeID int64, ident model.SessionIdentity) (json.RawMessage, error) {
	return json.RawMessage(`{"total":10}`), nil
}

func (f *fakeBackend) CheckRegistration(ctx context.Context, challengeID int64, phone string) (*model.RegistrationStatus, error) {
	st := f.status
	return &st, nil
}

func (f *fakeBackend) Register(ctx context.Context, details model.RegistrationDetails) (*model.Registration, error) {
	return &model.Registration{UserID: 5, RegistrationID: 9}, nil
}

func (f *fakeBackend) GetDraft(ctx context.Context, challengeID, problemID, userID int64, language string) (*model.ProblemDraft, error) {
	return nil, common.ErrNotFound
}

func (f *fakeBackend) SaveDraft(ctx context.Context, challengeID, problemID, userID int64, language, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drafts[fmt.Sprintf("%d/%s", problemID, language)] = code
	return nil
}

func (f *fakeBackend) draft(problemID int64, language string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.drafts[fmt.Sprintf("%d/%s", problemID, language)]
}

func (f *fakeBackend) RunSample(ctx context.Context, challengeID, problemID int64, ident model.SessionIdentity, language, code string) (*model.RunResult, error) {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()
	return &model.RunResult{Status: true, Summary: model.TestSummary{Passed: 1, TestsExecuted: 1, TotalAvailable: 1}}, nil
}

func (f *fakeBackend) Submit(ctx context.Context, challengeID, problemID int64, ident model.SessionIdentity, language, code string) (*model.SubmissionResult, error) {
	return &model.SubmissionResult{Verdict: model.VerdictAccepted}, nil
}

func (f *fakeBackend) GetMCQQuestions(ctx context.Context, challengeID int64, ident model.SessionIdentity) ([]model.MCQQuestion, error) {
	return nil, nil
}

func (f *fakeBackend) SubmitMCQAnswers(ctx context.Context, challengeID int64, ident model.SessionIdentity, answers []model.MCQAnswer) error {
	return nil
}

func (f *fakeBackend) SendCode(ctx context.Context, phone, recaptchaToken string) (string, error) {
	return "handle-" + phone, nil
}

func (f *fakeBackend) VerifyCode(ctx context.Context, handle, code string) (string, error) {
	if code != "123456" {
		return "", errors.New("INVALID_CODE")
	}
	return "id-token", nil
}

type memPrefs struct {
	mu      sync.Mutex
	layouts map[string]model.PanelLayout
	sheets  map[string]model.MCQSheet
}

func (m *memPrefs) GetLayout(ctx context.Context, deviceID, groupID string) (*model.PanelLayout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.layouts[deviceID+"/"+groupID]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &l, nil
}

func (m *memPrefs) SaveLayout(ctx context.Context, deviceID string, layout model.PanelLayout) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.layouts[deviceID+"/"+layout.GroupID] = layout
	return nil
}

func (m *memPrefs) GetMCQSheet(ctx context.Context, deviceID string, challengeID int64) (*model.MCQSheet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sheets[fmt.Sprintf("%s/%d", deviceID, challengeID)]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &s, nil
}

func (m *memPrefs) SaveMCQSheet(ctx context.Context, deviceID string, challengeID int64, sheet model.MCQSheet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sheets[fmt.Sprintf("%s/%d", deviceID, challengeID)] = sheet
	return nil
}

type failingCheck struct{}

func (failingCheck) Check(ctx context.Context) error { return errors.New("connection refused") }

type gateway struct {
	srv     *httptest.Server
	backend *fakeBackend
	hub     *realtime.Hub
}

func newGateway(t *testing.T, checks map[string]handler.Checker) *gateway {
	t.Helper()
	cfg, err := config.Parse()
	require.NoError(t, err)
	config.AppConfig = cfg
	security.InitJWT()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	now := time.Now()
	start, end := now.Add(-time.Hour), now.Add(time.Hour)
	backend := &fakeBackend{
		challenges: []model.Challenge{{
			ID: 42, Slug: "spring-sprint", Title: "Spring Sprint", ChallengeType: model.ChallengeTypePublic,
			ChallengeStartAt: &start, ChallengeEndAt: &end,
		}},
		problems: []model.Problem{{ID: 7, Title: "Two Sum", InterfaceSpec: &model.InterfaceSpec{FunctionName: "two_sum", ReturnType: "int[]"}}},
		status:   model.RegistrationStatus{Outcome: model.OutcomeRegistered, UserID: 5, RegistrationID: 9, UserName: "Asha"},
		drafts:   map[string]string{},
	}
	prefs := &memPrefs{layouts: map[string]model.PanelLayout{}, sheets: map[string]model.MCQSheet{}}

	clock := service.NewClockService(backend, time.Minute, model.StatusOptions{PublishedAsUpcoming: true}, logger)
	verification := service.NewVerificationService(backend, repository.NewRedisGrantRepository(rdb), service.VerificationConfig{
		CountryCode:       "+91",
		ResendCooldown:    time.Minute,
		SendRatePerMinute: 5,
		GrantTTL:          time.Hour,
	}, logger)
	challenges := service.NewChallengeService(backend, clock, prefs, logger)
	sessions := service.NewSessionService(
		verification,
		service.NewRegistrationService(backend, time.UTC, logger),
		challenges,
		clock,
		service.SessionBackends{Drafts: backend, Execution: backend, MCQ: backend},
		repository.NewRedisDraftCacheRepository(rdb),
		prefs,
		service.SessionConfig{DraftSaveDelay: time.Hour, MCQTextSaveDelay: time.Hour, APITimeout: time.Second, IdleTTL: time.Hour},
		logger,
	)
	hub := realtime.NewHub(logger)

	router := NewRouter(sessions, challenges, clock, hub, checks, RouterConfig{
		AllowedOrigins: []string{"http://localhost:3000"},
		RequestTimeout: 5 * time.Second,
	}, logger)
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
		sessions.Close(context.Background())
	})
	return &gateway{srv: srv, backend: backend, hub: hub}
}

func (g *gateway) do(t *testing.T, method, path, token string, body interface{}) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, g.srv.URL+path, buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]json.RawMessage
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func str(t *testing.T, raw json.RawMessage) string {
	t.Helper()
	var s string
	require.NoError(t, json.Unmarshal(raw, &s))
	return s
}

// startRegistered walks a new session through OTP into the workspace.
func (g *gateway) startRegistered(t *testing.T) string {
	t.Helper()
	resp, body := g.do(t, http.MethodPost, "/api/v1/sessions", "", map[string]interface{}{"challenge_id": 42, "device_id": "device-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	token := str(t, body["token"])

	resp, body = g.do(t, http.MethodPost, "/api/v1/session/otp/send", token, map[string]string{"phone": "98765 43210", "recaptcha_token": "captcha"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, string(model.StateAwaitingOTP), str(t, body["state"]))

	resp, body = g.do(t, http.MethodPost, "/api/v1/session/otp/verify", token, map[string]string{"code": "123456"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, string(model.StateRegistered), str(t, body["state"]))
	return token
}

func TestHealth(t *testing.T) {
	g := newGateway(t, map[string]handler.Checker{})
	resp, _ := g.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	g = newGateway(t, map[string]handler.Checker{"redis": failingCheck{}})
	resp, body := g.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.JSONEq(t, `{"status":"error"}`, string(body["redis"]))
}

func TestChallengeRoutes(t *testing.T) {
	g := newGateway(t, nil)

	resp, _ := g.do(t, http.MethodGet, "/api/v1/challenges", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := g.do(t, http.MethodGet, "/api/v1/challenges/slug/Spring%20Sprint", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, string(model.StatusOngoing), str(t, body["derived_status"]))

	resp, body = g.do(t, http.MethodGet, "/api/v1/challenges/999", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Challenge not found", str(t, body["error"]))

	resp, _ = g.do(t, http.MethodGet, "/api/v1/challenges/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServerTime(t *testing.T) {
	g := newGateway(t, nil)
	g.backend.mu.Lock()
	g.backend.skew = 90 * time.Second
	g.backend.mu.Unlock()

	resp, body := g.do(t, http.MethodGet, "/api/v1/time", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "server_time")
	var offset int64
	require.NoError(t, json.Unmarshal(body["offset_ms"], &offset))
	assert.InDelta(t, 90000, offset, 1000)

	resp, _ = g.do(t, http.MethodGet, "/api/v1/time", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, g.backend.serverTimeCalls(), "a fresh offset is reused")
}

func TestSessionRoutesRequireToken(t *testing.T) {
	g := newGateway(t, nil)

	resp, body := g.do(t, http.MethodGet, "/api/v1/session", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Authorization token required", str(t, body["error"]))

	resp, _ = g.do(t, http.MethodGet, "/api/v1/session", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := security.GenerateSessionToken("gone", "device-1", 42)
	require.NoError(t, err)
	resp, body = g.do(t, http.MethodGet, "/api/v1/session", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Session not found. Please start again.", str(t, body["error"]))
}

func TestStartSessionRejectsUnknownChallenge(t *testing.T) {
	g := newGateway(t, nil)
	resp, body := g.do(t, http.MethodPost, "/api/v1/sessions", "", map[string]interface{}{"challenge_id": 999})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Challenge not found", str(t, body["error"]))
}

func TestVerificationErrorsAreUserFacing(t *testing.T) {
	g := newGateway(t, nil)
	_, body := g.do(t, http.MethodPost, "/api/v1/sessions", "", map[string]interface{}{"challenge_id": 42})
	token := str(t, body["token"])

	resp, body := g.do(t, http.MethodPost, "/api/v1/session/otp/send", token, map[string]string{"phone": "", "recaptcha_token": "captcha"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, str(t, body["error"]))

	resp, body = g.do(t, http.MethodPost, "/api/v1/session/otp/verify", token, map[string]string{"code": "123456"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "OTP session expired. Please request a new OTP.", str(t, body["error"]))
}

func TestWorkspaceFlow(t *testing.T) {
	g := newGateway(t, nil)
	token := g.startRegistered(t)

	resp, _ := g.do(t, http.MethodGet, "/api/v1/session/problems", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := g.do(t, http.MethodPost, "/api/v1/session/problems/7/open", token, map[string]string{"language": model.LangPython})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, model.LangPython, str(t, body["language"]))

	resp, _ = g.do(t, http.MethodPut, "/api/v1/session/problems/7/code", token, map[string]string{"language": model.LangPython, "code": "def two_sum(): return [0, 1]"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = g.do(t, http.MethodPost, "/api/v1/session/problems/7/run", token, map[string]string{"language": model.LangPython, "source_code": "def two_sum(): return [0, 1]"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, string(model.ResultRun), str(t, body["kind"]))
	assert.Equal(t, "def two_sum(): return [0, 1]", g.backend.draft(7, model.LangPython), "run saves the pending draft first")

	resp, body = g.do(t, http.MethodGet, "/api/v1/session/problems/7/result", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, string(model.ResultRun), str(t, body["kind"]))

	resp, _ = g.do(t, http.MethodDelete, "/api/v1/session/problems/7/result", token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = g.do(t, http.MethodGet, "/api/v1/session/score", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `10`, string(body["total"]))
}

func TestLayoutRoutes(t *testing.T) {
	g := newGateway(t, nil)
	token := g.startRegistered(t)

	resp, _ := g.do(t, http.MethodGet, "/api/v1/session/layouts/editor", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = g.do(t, http.MethodPut, "/api/v1/session/layouts/editor", token, map[string]interface{}{"sizes": []float64{35, 65}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := g.do(t, http.MethodGet, "/api/v1/session/layouts/editor", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[35,65]`, string(body["sizes"]))
}

func TestEventsStreamSendsCountdownOnConnect(t *testing.T) {
	g := newGateway(t, nil)
	token := g.startRegistered(t)

	url := "ws" + strings.TrimPrefix(g.srv.URL, "http") + "/api/v1/session/events?jwt=" + token
	header := http.Header{"Origin": []string{"http://localhost:3000"}}
	ws, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer ws.Close()

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type string             `json:"type"`
		Data realtime.Countdown `json:"data"`
	}
	require.NoError(t, ws.ReadJSON(&msg))
	assert.Equal(t, realtime.MessageCountdown, msg.Type)
	remaining := msg.Data.Hours*3600 + msg.Data.Minutes*60 + msg.Data.Seconds
	assert.InDelta(t, 3600, remaining, 5, "challenge ends an hour after the fixture clock")

	_, _, err = websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://evil.example"}})
	assert.Error(t, err, "foreign origins are refused")
}
