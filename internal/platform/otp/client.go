// Package otp is a small client for the Identity Toolkit phone sign-in REST API.
package otp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Provider error codes, in the short form the UI already understands.
const (
	CodeBillingNotEnabled       = "billing-not-enabled"
	CodeInvalidPhoneNumber      = "invalid-phone-number"
	CodeMissingPhoneNumber      = "missing-phone-number"
	CodeTooManyRequests         = "too-many-requests"
	CodeQuotaExceeded           = "quota-exceeded"
	CodeCaptchaCheckFailed      = "captcha-check-failed"
	CodeSessionExpired          = "session-expired"
	CodeInvalidVerificationCode = "invalid-verification-code"
	CodeCodeExpired             = "code-expired"
	CodeOperationNotAllowed     = "operation-not-allowed"
	CodeUnknown                 = "unknown"
)

var wireCodes = map[string]string{
	"BILLING_NOT_ENABLED":         CodeBillingNotEnabled,
	"INVALID_PHONE_NUMBER":        CodeInvalidPhoneNumber,
	"MISSING_PHONE_NUMBER":        CodeMissingPhoneNumber,
	"TOO_MANY_ATTEMPTS_TRY_LATER": CodeTooManyRequests,
	"QUOTA_EXCEEDED":              CodeQuotaExceeded,
	"CAPTCHA_CHECK_FAILED":        CodeCaptchaCheckFailed,
	"MISSING_RECAPTCHA_TOKEN":     CodeCaptchaCheckFailed,
	"INVALID_RECAPTCHA_TOKEN":     CodeCaptchaCheckFailed,
	"INVALID_SESSION_INFO":        CodeSessionExpired,
	"MISSING_SESSION_INFO":        CodeSessionExpired,
	"INVALID_CODE":                CodeInvalidVerificationCode,
	"MISSING_CODE":                CodeInvalidVerificationCode,
	"SESSION_EXPIRED":             CodeCodeExpired,
	"OPERATION_NOT_ALLOWED":       CodeOperationNotAllowed,
}

// ProviderError is a failure reported by the provider itself.
type ProviderError struct {
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("otp provider: %s: %s", e.Code, e.Message)
	}
	return "otp provider: " + e.Code
}

// Client sends and confirms SMS codes. The reCAPTCHA token comes from the
// browser widget and is good for a single send.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type sendRequest struct {
	PhoneNumber    string `json:"phoneNumber"`
	RecaptchaToken string `json:"recaptchaToken"`
}

type sendResponse struct {
	SessionInfo string `json:"sessionInfo"`
}

type verifyRequest struct {
	SessionInfo string `json:"sessionInfo"`
	Code        string `json:"code"`
}

type verifyResponse struct {
	PhoneNumber string `json:"phoneNumber"`
	LocalID     string `json:"localId"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SendCode dispatches an SMS to an E.164 phone and returns the opaque
// session handle needed to confirm it.
func (c *Client) SendCode(ctx context.Context, phone, recaptchaToken string) (string, error) {
	var out sendResponse
	if err := c.post(ctx, "accounts:sendVerificationCode", sendRequest{PhoneNumber: phone, RecaptchaToken: recaptchaToken}, &out); err != nil {
		return "", err
	}
	if out.SessionInfo == "" {
		return "", &ProviderError{Code: CodeUnknown, Message: "empty session info"}
	}
	return out.SessionInfo, nil
}

// VerifyCode confirms code against the handle from SendCode and returns the
// phone number the provider verified.
func (c *Client) VerifyCode(ctx context.Context, sessionInfo, code string) (string, error) {
	var out verifyResponse
	if err := c.post(ctx, "accounts:signInWithPhoneNumber", verifyRequest{SessionInfo: sessionInfo, Code: code}, &out); err != nil {
		return "", err
	}
	return out.PhoneNumber, nil
}

func (c *Client) post(ctx context.Context, method string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("otp: marshal %s: %w", method, err)
	}
	endpoint := c.baseURL + "/" + method + "?key=" + url.QueryEscape(c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("otp: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("otp: %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("otp: read %s: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		perr := parseError(raw)
		c.logger.Info("otp provider rejected request", "method", method, "status", resp.StatusCode, "code", perr.Code)
		return perr
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("otp: decode %s: %w", method, err)
	}
	return nil
}

// parseError reads messages of the form "INVALID_CODE" or
// "TOO_MANY_ATTEMPTS_TRY_LATER : detail".
func parseError(raw []byte) *ProviderError {
	var body errorResponse
	if err := json.Unmarshal(raw, &body); err != nil || body.Error.Message == "" {
		return &ProviderError{Code: CodeUnknown}
	}
	wire, detail, _ := strings.Cut(body.Error.Message, ":")
	wire = strings.TrimSpace(wire)
	code, ok := wireCodes[wire]
	if !ok {
		return &ProviderError{Code: CodeUnknown, Message: strings.TrimSpace(body.Error.Message)}
	}
	return &ProviderError{Code: code, Message: strings.TrimSpace(detail)}
}
