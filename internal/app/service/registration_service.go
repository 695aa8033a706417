package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"challenge_gateway/internal/common"
	"challenge_gateway/internal/domain/model"
	"challenge_gateway/internal/platform/challengeapi"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// RegistrationService reconciles a verified phone with the backend's
// registration records for a challenge.
type RegistrationService struct {
	api    RegistrationAPI
	loc    *time.Location
	logger *slog.Logger
}

func NewRegistrationService(api RegistrationAPI, loc *time.Location, logger *slog.Logger) *RegistrationService {
	if loc == nil {
		loc = time.UTC
	}
	return &RegistrationService{api: api, loc: loc, logger: logger}
}

// Resolve looks up what the phone still needs for the challenge.
func (s *RegistrationService) Resolve(ctx context.Context, challengeID int64, phone string) (*model.RegistrationStatus, error) {
	status, err := s.api.CheckRegistration(ctx, challengeID, phone)
	if err != nil {
		return nil, backendError(err, "Failed to check registration status. Please try again.")
	}
	return status, nil
}

// Register validates details and creates the registration. Ids missing from
// the response are filled in from a follow-up status lookup.
func (s *RegistrationService) Register(ctx context.Context, details model.RegistrationDetails) (*model.Registration, error) {
	details.Name = strings.TrimSpace(details.Name)
	details.Email = strings.TrimSpace(details.Email)
	switch {
	case details.Name == "":
		return nil, common.Display(common.ErrValidation, "Name is required")
	case details.Email != "" && !emailPattern.MatchString(details.Email):
		return nil, common.Display(common.ErrValidation, "Please enter a valid email address")
	case strings.TrimSpace(details.Phone) == "":
		return nil, common.Display(common.ErrValidation, "Phone number is required")
	case details.ChallengeID == 0:
		return nil, common.Display(common.ErrValidation, "Challenge ID or Slug is required")
	}

	reg, err := s.api.Register(ctx, details)
	if err != nil {
		return nil, s.registerError(err)
	}

	if reg.UserID == 0 || reg.RegistrationID == 0 {
		status, err := s.api.CheckRegistration(ctx, details.ChallengeID, details.Phone)
		if err != nil {
			s.logger.Warn("registration ids missing and status lookup failed", "challenge_id", details.ChallengeID, "error", err)
		} else {
			if reg.UserID == 0 {
				reg.UserID = status.UserID
			}
			if reg.RegistrationID == 0 {
				reg.RegistrationID = status.RegistrationID
			}
		}
	}
	return reg, nil
}

// AutoRegister registers a user the backend already knows by name.
func (s *RegistrationService) AutoRegister(ctx context.Context, challengeID int64, phone, name string) (*model.Registration, error) {
	return s.Register(ctx, model.RegistrationDetails{ChallengeID: challengeID, Name: name, Phone: phone})
}

func (s *RegistrationService) registerError(err error) error {
	var apiErr *challengeapi.APIError
	if errors.As(err, &apiErr) && apiErr.AlreadyRegistered {
		if apiErr.ChallengeStartAt != nil {
			start := apiErr.ChallengeStartAt.In(s.loc)
			msg := fmt.Sprintf("You have already registered for this challenge. The challenge will be on %s at %s.",
				start.Format("January 2"), start.Format("3:04 PM"))
			return common.DisplayWrap(common.ErrConflict, msg, err)
		}
		msg := apiErr.Message
		if msg == "" {
			msg = "You have already registered for this challenge."
		}
		return common.DisplayWrap(common.ErrConflict, msg, err)
	}
	return backendError(err, "Registration failed. Please try again.")
}

// backendError keeps a message the backend supplied and otherwise attaches
// fallback.
func backendError(err error, fallback string) error {
	var de *common.DisplayError
	if errors.As(err, &de) {
		return err
	}
	var apiErr *challengeapi.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return common.DisplayWrap(apiErr.Unwrap(), apiErr.Message, err)
	}
	return common.DisplayWrap(common.ErrUpstream, fallback, err)
}
