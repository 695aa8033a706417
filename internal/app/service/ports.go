package service

import (
	"context"
	"encoding/json"
	"time"

	"challenge_gateway/internal/domain/model"
)

// The remote challenge backend, split by consumer. *challengeapi.Client
// satisfies all of them.

type TimeSource interface {
	ServerTime(ctx context.Context) (time.Time, error)
}

type CatalogAPI interface {
	ListChallenges(ctx context.Context) ([]model.Challenge, error)
	GetChallenge(ctx context.Context, challengeID int64) (*model.Challenge, error)
	GetChallengeBySlug(ctx context.Context, slug string) (*model.Challenge, error)
	GetProblems(ctx context.Context, challengeID int64, ident model.SessionIdentity) ([]model.Problem, error)
	MyScore(ctx context.Context, challengeID int64, ident model.SessionIdentity) (json.RawMessage, error)
}

type RegistrationAPI interface {
	CheckRegistration(ctx context.Context, challengeID int64, phone string) (*model.RegistrationStatus, error)
	Register(ctx context.Context, details model.RegistrationDetails) (*model.Registration, error)
}

type DraftAPI interface {
	GetDraft(ctx context.Context, challengeID, problemID, userID int64, language string) (*model.ProblemDraft, error)
	SaveDraft(ctx context.Context, challengeID, problemID, userID int64, language, code string) error
}

type ExecutionAPI interface {
	RunSample(ctx context.Context, challengeID, problemID int64, ident model.SessionIdentity, language, code string) (*model.RunResult, error)
	Submit(ctx context.Context, challengeID, problemID int64, ident model.SessionIdentity, language, code string) (*model.SubmissionResult, error)
}

type MCQAPI interface {
	GetMCQQuestions(ctx context.Context, challengeID int64, ident model.SessionIdentity) ([]model.MCQQuestion, error)
	SubmitMCQAnswers(ctx context.Context, challengeID int64, ident model.SessionIdentity, answers []model.MCQAnswer) error
}

// OTPProvider is the phone verification service. *otp.Client satisfies it.
type OTPProvider interface {
	SendCode(ctx context.Context, phone, recaptchaToken string) (string, error)
	VerifyCode(ctx context.Context, sessionInfo, code string) (string, error)
}
