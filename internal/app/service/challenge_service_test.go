package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"challenge_gateway/internal/common"
	"challenge_gateway/internal/domain/model"
	"challenge_gateway/internal/platform/challengeapi"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalogAPI struct {
	mu         sync.Mutex
	challenges []model.Challenge
	problems   []model.Problem
	score      json.RawMessage
	slugs      []string
}

func (f *fakeCatalogAPI) ListChallenges(ctx context.Context) ([]model.Challenge, error) {
	return f.challenges, nil
}

func (f *fakeCatalogAPI) GetChallenge(ctx context.Context, challengeID int64) (*model.Challenge, error) {
	for _, c := range f.challenges {
		if c.ID == challengeID {
			return &c, nil
		}
	}
	return nil, &challengeapi.APIError{Status: 404, Message: "Challenge not found"}
}

func (f *fakeCatalogAPI) GetChallengeBySlug(ctx context.Context, slug string) (*model.Challenge, error) {
	f.mu.Lock()
	f.slugs = append(f.slugs, slug)
	f.mu.Unlock()
	for _, c := range f.challenges {
		if c.Slug == slug {
			return &c, nil
		}
	}
	return nil, &challengeapi.APIError{Status: 404, Message: "Challenge not found"}
}

func (f *fakeCatalogAPI) GetProblems(ctx context.Context, challengeID int64, ident model.SessionIdentity) ([]model.Problem, error) {
	return f.problems, nil
}

func (f *fakeCatalogAPI) MyScore(ctx context.Context, challengeID int64, ident model.SessionIdentity) (json.RawMessage, error) {
	return f.score, nil
}

func at(d time.Duration) *time.Time {
	t := clockBase.Add(d)
	return &t
}

func catalogFixture() []model.Challenge {
	return []model.Challenge{
		{
			ID: 42, Slug: "spring-sprint", Title: "Spring Sprint", ChallengeType: model.ChallengeTypePublic,
			ChallengeStartAt: at(-time.Hour), ChallengeEndAt: at(time.Hour),
		},
		{
			ID: 43, Slug: "campus-drive", Title: "Campus Drive", ChallengeType: model.ChallengeTypePlacement,
			ChallengeStartAt: at(-time.Hour), ChallengeEndAt: at(time.Hour),
		},
		{
			ID: 44, Slug: "winter-cup", Title: "Winter Cup", Description: "Graph problems", ChallengeType: model.ChallengeTypePublic,
			ChallengeStartAt: at(-48 * time.Hour), ChallengeEndAt: at(-24 * time.Hour),
		},
		{
			ID:                  45,
			Slug:                "summer-open",
			Title:               "Summer Open",
			ChallengeType:       model.ChallengeTypePublic,
			Status:              model.BackendStatusPublished,
			RegistrationStartAt: at(-time.Hour),
			RegistrationEndAt:   at(24 * time.Hour),
			ChallengeStartAt:    at(48 * time.Hour),
			ChallengeEndAt:      at(50 * time.Hour),
		},
	}
}

func newTestChallengeService(t *testing.T, api *fakeCatalogAPI) (*ChallengeService, *memPrefs) {
	t.Helper()
	clock := newFakeClock(clockBase)
	prefs := newMemPrefs()
	return NewChallengeService(api, newTestClock(&fakeTimeSource{clock: clock}, clock), prefs, discardLogger()), prefs
}

func TestListChallengesFiltersAndDerivesStatus(t *testing.T) {
	s, _ := newTestChallengeService(t, &fakeCatalogAPI{challenges: catalogFixture()})

	got, err := s.List(context.Background(), ListChallengesRequest{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(42), got[0].ID)
	assert.Equal(t, model.StatusOngoing, got[0].DerivedStatus)
	assert.Equal(t, int64(45), got[1].ID)
	assert.Equal(t, model.StatusUpcoming, got[1].DerivedStatus)

	all, err := s.List(context.Background(), ListChallengesRequest{All: true, Search: "graph"})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, model.StatusEnded, all[0].DerivedStatus)
}

func TestGetChallengeBySlugNormalises(t *testing.T) {
	api := &fakeCatalogAPI{challenges: catalogFixture()}
	s, _ := newTestChallengeService(t, api)

	got, err := s.GetBySlug(context.Background(), "  Spring Sprint ")
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.ID)
	assert.Equal(t, []string{"spring-sprint"}, api.slugs)

	_, err = s.GetBySlug(context.Background(), "  ")
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = s.GetBySlug(context.Background(), "unknown")
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.Equal(t, "Challenge not found", err.Error())
}

func TestGetChallenge(t *testing.T) {
	s, _ := newTestChallengeService(t, &fakeCatalogAPI{challenges: catalogFixture()})

	got, err := s.Get(context.Background(), 44)
	require.NoError(t, err)
	assert.Equal(t, model.StatusEnded, got.DerivedStatus)

	_, err = s.Get(context.Background(), 0)
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestProblemsRequireRegistration(t *testing.T) {
	s, _ := newTestChallengeService(t, &fakeCatalogAPI{problems: testProblems()})

	_, err := s.Problems(context.Background(), 42, model.SessionIdentity{UserID: 5})
	assert.ErrorIs(t, err, common.ErrInvalidState)

	got, err := s.Problems(context.Background(), 42, testIdentity)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestLayouts(t *testing.T) {
	s, _ := newTestChallengeService(t, &fakeCatalogAPI{})
	ctx := context.Background()

	_, err := s.Layout(ctx, "device-1", "editor")
	assert.ErrorIs(t, err, common.ErrNotFound)

	err = s.SaveLayout(ctx, "device-1", model.PanelLayout{GroupID: "editor", Sizes: []float64{40, 0}})
	assert.ErrorIs(t, err, common.ErrValidation)

	require.NoError(t, s.SaveLayout(ctx, "device-1", model.PanelLayout{GroupID: "editor", Sizes: []float64{40, 60}}))
	got, err := s.Layout(ctx, "device-1", "editor")
	require.NoError(t, err)
	assert.Equal(t, []float64{40, 60}, got.Sizes)

	_, err = s.Layout(ctx, "device-2", "editor")
	assert.ErrorIs(t, err, common.ErrNotFound, "layouts are per device")
}
