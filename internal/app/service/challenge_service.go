package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"challenge_gateway/internal/common"
	"challenge_gateway/internal/domain/model"
	"challenge_gateway/internal/domain/repository"

	"github.com/gosimple/slug"
)

// ChallengeService serves the public catalogue and per-device preferences.
// Statuses are derived from the synchronised clock.
type ChallengeService struct {
	api    CatalogAPI
	clock  *ClockService
	prefs  repository.PreferenceRepository
	logger *slog.Logger
}

func NewChallengeService(api CatalogAPI, clock *ClockService, prefs repository.PreferenceRepository, logger *slog.Logger) *ChallengeService {
	return &ChallengeService{api: api, clock: clock, prefs: prefs, logger: logger}
}

type ListChallengesRequest struct {
	Search string `json:"search"`
	// All includes challenges that are not publicly listed.
	All bool `json:"all"`
}

func (s *ChallengeService) List(ctx context.Context, req ListChallengesRequest) ([]model.ChallengeView, error) {
	challenges, err := s.api.ListChallenges(ctx)
	if err != nil {
		return nil, backendError(err, "Failed to load challenges. Please try again.")
	}
	now := s.clock.Now()
	search := strings.TrimSpace(req.Search)

	out := make([]model.ChallengeView, 0, len(challenges))
	for _, c := range challenges {
		if !req.All && !model.IsListed(c, now) {
			continue
		}
		if !c.MatchesSearch(search) {
			continue
		}
		out = append(out, s.view(c))
	}
	return out, nil
}

func (s *ChallengeService) Get(ctx context.Context, challengeID int64) (*model.ChallengeView, error) {
	if challengeID <= 0 {
		return nil, common.Display(common.ErrValidation, "Challenge ID or Slug is required")
	}
	c, err := s.api.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, backendError(err, "Failed to load challenge. Please try again.")
	}
	v := s.view(*c)
	return &v, nil
}

// GetBySlug accepts a raw slug from a URL and normalises it first.
func (s *ChallengeService) GetBySlug(ctx context.Context, raw string) (*model.ChallengeView, error) {
	normalized := slug.Make(raw)
	if normalized == "" {
		return nil, common.Display(common.ErrValidation, "Challenge ID or Slug is required")
	}
	c, err := s.api.GetChallengeBySlug(ctx, normalized)
	if err != nil {
		return nil, backendError(err, "Failed to load challenge. Please try again.")
	}
	v := s.view(*c)
	return &v, nil
}

func (s *ChallengeService) view(c model.Challenge) model.ChallengeView {
	return model.ChallengeView{Challenge: c, DerivedStatus: s.clock.Status(c)}
}

func (s *ChallengeService) Problems(ctx context.Context, challengeID int64, ident model.SessionIdentity) ([]model.Problem, error) {
	if !ident.Complete() {
		return nil, common.Display(common.ErrInvalidState, "Registration is required before loading problems")
	}
	problems, err := s.api.GetProblems(ctx, challengeID, ident)
	if err != nil {
		return nil, backendError(err, "Failed to load problems. Please try again.")
	}
	return problems, nil
}

// Score is passed through as the backend returns it.
func (s *ChallengeService) Score(ctx context.Context, challengeID int64, ident model.SessionIdentity) (json.RawMessage, error) {
	raw, err := s.api.MyScore(ctx, challengeID, ident)
	if err != nil {
		return nil, backendError(err, "Failed to load score. Please try again.")
	}
	return raw, nil
}

func (s *ChallengeService) Layout(ctx context.Context, deviceID, groupID string) (*model.PanelLayout, error) {
	layout, err := s.prefs.GetLayout(ctx, deviceID, groupID)
	if errors.Is(err, common.ErrNotFound) {
		return nil, common.DisplayWrap(common.ErrNotFound, "No saved layout", err)
	}
	if err != nil {
		return nil, common.Errorf("ChallengeService.Layout: %w", err)
	}
	return layout, nil
}

func (s *ChallengeService) SaveLayout(ctx context.Context, deviceID string, layout model.PanelLayout) error {
	if strings.TrimSpace(layout.GroupID) == "" {
		return common.Display(common.ErrValidation, "Layout group is required")
	}
	if len(layout.Sizes) == 0 {
		return common.Display(common.ErrValidation, "Layout sizes are required")
	}
	for _, size := range layout.Sizes {
		if size <= 0 || size > 100 {
			return common.Display(common.ErrValidation, "Layout sizes must be between 0 and 100")
		}
	}
	if err := s.prefs.SaveLayout(ctx, deviceID, layout); err != nil {
		return common.Errorf("ChallengeService.SaveLayout: %w", err)
	}
	return nil
}
