package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"challenge_gateway/internal/common"
	"challenge_gateway/internal/common/phone"
	"challenge_gateway/internal/domain/model"
	"challenge_gateway/internal/domain/repository"
	"challenge_gateway/internal/platform/otp"

	"golang.org/x/time/rate"
)

type VerificationConfig struct {
	CountryCode       string
	ResendCooldown    time.Duration
	SendRatePerMinute int
	GrantTTL          time.Duration
}

// PendingCode is an OTP sent to Phone that has not been confirmed yet.
type PendingCode struct {
	Phone    string
	ResendAt time.Time
	handle   string
}

type providerMessage struct {
	kind error
	text string
}

var sendMessages = map[string]providerMessage{
	otp.CodeBillingNotEnabled:  {common.ErrProvider, "Phone authentication requires billing to be enabled. Please contact the administrator."},
	otp.CodeInvalidPhoneNumber: {common.ErrValidation, "Invalid phone number format. Please check and try again."},
	otp.CodeMissingPhoneNumber: {common.ErrValidation, "Please enter your phone number"},
	otp.CodeTooManyRequests:    {common.ErrRateLimited, "Too many requests. Please wait a few minutes and try again."},
	otp.CodeQuotaExceeded:      {common.ErrRateLimited, "SMS quota exceeded. Please try again later."},
	otp.CodeCaptchaCheckFailed: {common.ErrValidation, "reCAPTCHA verification failed. Please refresh the page and try again."},
	otp.CodeSessionExpired:     {common.ErrProvider, "Session expired. Please try again."},
}

var verifyMessages = map[string]providerMessage{
	otp.CodeInvalidVerificationCode: {common.ErrValidation, "Invalid OTP code. Please check and try again."},
	otp.CodeCodeExpired:             {common.ErrValidation, "OTP code has expired. Please request a new one."},
	otp.CodeSessionExpired:          {common.ErrInvalidState, "OTP session expired. Please request a new OTP."},
	otp.CodeTooManyRequests:         {common.ErrRateLimited, "Too many requests. Please wait a few minutes and try again."},
}

// VerificationService gates a challenge behind a phone verified by OTP and
// keeps the resulting grants.
type VerificationService struct {
	provider OTPProvider
	grants   repository.GrantRepository
	cfg      VerificationConfig
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewVerificationService(provider OTPProvider, grants repository.GrantRepository, cfg VerificationConfig, logger *slog.Logger) *VerificationService {
	return &VerificationService{
		provider: provider,
		grants:   grants,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		limiters: make(map[string]*rate.Limiter),
	}
}

// NormalizePhone validates user input and returns it in E.164 form.
func (s *VerificationService) NormalizePhone(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", common.Display(common.ErrValidation, "Please enter your phone number")
	}
	normalized, err := phone.Normalize(raw, s.cfg.CountryCode)
	if err != nil {
		return "", common.DisplayWrap(common.ErrValidation, "Please enter a valid phone number (minimum 10 digits).", err)
	}
	return normalized, nil
}

// RequestCode sends an OTP to rawPhone and starts the resend cooldown.
func (s *VerificationService) RequestCode(ctx context.Context, rawPhone, recaptchaToken string) (*PendingCode, error) {
	normalized, err := s.NormalizePhone(rawPhone)
	if err != nil {
		return nil, err
	}
	if recaptchaToken == "" {
		return nil, common.Display(common.ErrValidation, "Failed to initialize reCAPTCHA. Please refresh the page.")
	}
	if !s.limiter(normalized).Allow() {
		return nil, common.Display(common.ErrRateLimited, "Too many requests. Please wait a few minutes and try again.")
	}

	handle, err := s.provider.SendCode(ctx, normalized, recaptchaToken)
	if err != nil {
		s.logger.Info("otp send failed", "phone", phone.Mask(normalized), "error", err)
		return nil, providerError(err, sendMessages, "Failed to send OTP. Please try again.")
	}
	return &PendingCode{
		Phone:    normalized,
		ResendAt: s.now().Add(s.cfg.ResendCooldown),
		handle:   handle,
	}, nil
}

// CooldownRemaining is the number of whole seconds before a resend is allowed.
func (s *VerificationService) CooldownRemaining(p *PendingCode) int {
	if p == nil {
		return 0
	}
	left := p.ResendAt.Sub(s.now())
	if left <= 0 {
		return 0
	}
	return int((left + time.Second - 1) / time.Second)
}

// Resend requests a fresh code for the pending phone once the cooldown is over.
func (s *VerificationService) Resend(ctx context.Context, p *PendingCode, recaptchaToken string) (*PendingCode, error) {
	if p == nil || p.Phone == "" {
		return nil, common.Display(common.ErrInvalidState, "Phone number is required to resend OTP.")
	}
	if left := s.CooldownRemaining(p); left > 0 {
		return nil, common.Display(common.ErrRateLimited, fmt.Sprintf("Please wait %d seconds before requesting a new OTP.", left))
	}
	return s.RequestCode(ctx, p.Phone, recaptchaToken)
}

// ConfirmCode checks code with the provider and records a grant for the
// device and challenge.
func (s *VerificationService) ConfirmCode(ctx context.Context, deviceID string, challengeID int64, p *PendingCode, code string) (*model.VerificationGrant, error) {
	code = strings.TrimSpace(code)
	if !isOTPCode(code) {
		return nil, common.Display(common.ErrValidation, "Please enter a valid 6-digit OTP code")
	}
	if p == nil || p.handle == "" {
		return nil, common.Display(common.ErrInvalidState, "OTP session expired. Please request a new OTP.")
	}

	if _, err := s.provider.VerifyCode(ctx, p.handle, code); err != nil {
		s.logger.Info("otp verify failed", "phone", phone.Mask(p.Phone), "error", err)
		return nil, providerError(err, verifyMessages, "Invalid OTP code. Please try again.")
	}

	grant := model.VerificationGrant{Phone: p.Phone, ChallengeID: challengeID, VerifiedAt: s.now()}
	if err := s.grants.Save(ctx, deviceID, grant, s.cfg.GrantTTL); err != nil {
		// the session is verified either way; only reload-skipping is lost
		s.logger.Warn("failed to persist verification grant", "challenge_id", challengeID, "error", err)
	}
	return &grant, nil
}

// IsVerifiedForChallenge reports whether a live grant exists. Expired grants
// are deleted on the way.
func (s *VerificationService) IsVerifiedForChallenge(ctx context.Context, deviceID string, challengeID int64, phoneNumber string) (bool, error) {
	g, err := s.grants.Find(ctx, deviceID, challengeID, phoneNumber)
	if errors.Is(err, common.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !g.Valid(s.now(), s.cfg.GrantTTL) {
		if err := s.grants.Delete(ctx, deviceID, challengeID, phoneNumber); err != nil {
			s.logger.Warn("failed to delete expired grant", "error", err)
		}
		return false, nil
	}
	return true, nil
}

// RestoreGrant returns the newest live grant the device holds for the
// challenge, or nil.
func (s *VerificationService) RestoreGrant(ctx context.Context, deviceID string, challengeID int64) (*model.VerificationGrant, error) {
	grants, err := s.grants.ListByChallenge(ctx, deviceID, challengeID)
	if err != nil {
		return nil, err
	}
	var newest *model.VerificationGrant
	for i := range grants {
		g := grants[i]
		if !g.Valid(s.now(), s.cfg.GrantTTL) {
			if err := s.grants.Delete(ctx, deviceID, challengeID, g.Phone); err != nil {
				s.logger.Warn("failed to delete expired grant", "error", err)
			}
			continue
		}
		if newest == nil || g.VerifiedAt.After(newest.VerifiedAt) {
			newest = &g
		}
	}
	return newest, nil
}

// Forget drops the grant for a phone, e.g. after the user changes number.
func (s *VerificationService) Forget(ctx context.Context, deviceID string, challengeID int64, phoneNumber string) error {
	if phoneNumber == "" {
		return nil
	}
	return s.grants.Delete(ctx, deviceID, challengeID, phoneNumber)
}

// ClearExpired removes every expired grant of the device for the challenge.
func (s *VerificationService) ClearExpired(ctx context.Context, deviceID string, challengeID int64) (int, error) {
	grants, err := s.grants.ListByChallenge(ctx, deviceID, challengeID)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, g := range grants {
		if g.Valid(s.now(), s.cfg.GrantTTL) {
			continue
		}
		if err := s.grants.Delete(ctx, deviceID, challengeID, g.Phone); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// PruneLimiters forgets send limiters that have fully refilled.
func (s *VerificationService) PruneLimiters() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	pruned := 0
	for k, l := range s.limiters {
		if l.Tokens() >= float64(l.Burst()) {
			delete(s.limiters, k)
			pruned++
		}
	}
	return pruned
}

func (s *VerificationService) limiter(phoneNumber string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[phoneNumber]
	if !ok {
		n := s.cfg.SendRatePerMinute
		l = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), n)
		s.limiters[phoneNumber] = l
	}
	return l
}

func isOTPCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func providerError(err error, messages map[string]providerMessage, fallback string) error {
	var perr *otp.ProviderError
	if errors.As(err, &perr) {
		if m, ok := messages[perr.Code]; ok {
			return common.DisplayWrap(m.kind, m.text, err)
		}
		return common.DisplayWrap(common.ErrProvider, fallback, err)
	}
	return common.DisplayWrap(common.ErrServiceUnavailable, fallback, err)
}
