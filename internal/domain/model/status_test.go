package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func at(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func fixtureChallenge() Challenge {
	return Challenge{
		ID:                  7,
		ChallengeType:       ChallengeTypePublic,
		Status:              BackendStatusRegistration,
		RegistrationStartAt: at("2026-03-01T00:00:00Z"),
		RegistrationEndAt:   at("2026-03-10T00:00:00Z"),
		ChallengeStartAt:    at("2026-03-12T10:00:00Z"),
		ChallengeEndAt:      at("2026-03-12T12:00:00Z"),
	}
}

func TestDeriveStatus(t *testing.T) {
	c := fixtureChallenge()
	opts := StatusOptions{PublishedAsUpcoming: true}

	cases := []struct {
		name string
		now  string
		want ChallengeStatus
	}{
		{"before registration", "2026-02-20T00:00:00Z", StatusUpcoming},
		{"registration start boundary", "2026-03-01T00:00:00Z", StatusRegistrationOpen},
		{"registration end boundary", "2026-03-10T00:00:00Z", StatusRegistrationOpen},
		{"gap between registration and contest", "2026-03-11T00:00:00Z", StatusAvailable},
		{"contest start boundary", "2026-03-12T10:00:00Z", StatusOngoing},
		{"contest end boundary", "2026-03-12T12:00:00Z", StatusOngoing},
		{"after end", "2026-03-12T12:00:01Z", StatusEnded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DeriveStatus(c, *at(tc.now), opts))
		})
	}
}

func TestDeriveStatusContestWinsOverlap(t *testing.T) {
	c := fixtureChallenge()
	c.RegistrationEndAt = at("2026-03-12T11:00:00Z")

	got := DeriveStatus(c, *at("2026-03-12T10:30:00Z"), StatusOptions{})
	assert.Equal(t, StatusOngoing, got)
}

func TestDeriveStatusPublished(t *testing.T) {
	c := fixtureChallenge()
	c.Status = BackendStatusPublished
	now := *at("2026-03-05T00:00:00Z")

	assert.Equal(t, StatusUpcoming, DeriveStatus(c, now, StatusOptions{PublishedAsUpcoming: true}))
	assert.Equal(t, StatusRegistrationOpen, DeriveStatus(c, now, StatusOptions{}))
}

func TestDeriveStatusMissingDates(t *testing.T) {
	assert.Equal(t, StatusAvailable, DeriveStatus(Challenge{}, time.Now(), StatusOptions{}))
}

func TestIsListed(t *testing.T) {
	c := fixtureChallenge()
	c.Status = "CLOSED"

	assert.True(t, IsListed(c, *at("2026-03-05T00:00:00Z")), "registration open")
	assert.True(t, IsListed(c, *at("2026-03-11T00:00:00Z")), "not yet ended")
	assert.False(t, IsListed(c, *at("2026-04-01T00:00:00Z")), "ended")

	c.Status = BackendStatusActive
	assert.True(t, IsListed(c, *at("2026-04-01T00:00:00Z")), "backend active")

	c.ChallengeType = ChallengeTypePlacement
	assert.False(t, IsListed(c, *at("2026-03-05T00:00:00Z")), "not public")
}

func TestMatchesSearch(t *testing.T) {
	c := Challenge{Title: "Weekly Sprint", Description: "Arrays and strings"}
	assert.True(t, c.MatchesSearch(""))
	assert.True(t, c.MatchesSearch("sprint"))
	assert.True(t, c.MatchesSearch("STRINGS"))
	assert.False(t, c.MatchesSearch("graphs"))
}
