package model

import "time"

type ChallengeStatus string

const (
	StatusUpcoming         ChallengeStatus = "UPCOMING"
	StatusRegistrationOpen ChallengeStatus = "REGISTRATION_OPEN"
	StatusOngoing          ChallengeStatus = "ONGOING"
	StatusEnded            ChallengeStatus = "ENDED"
	StatusAvailable        ChallengeStatus = "AVAILABLE"
)

type StatusOptions struct {
	// PublishedAsUpcoming reports a challenge inside its registration window
	// as UPCOMING while the backend still marks it PUBLISHED.
	PublishedAsUpcoming bool
}

// DeriveStatus computes a challenge's lifecycle status at now. The contest
// window wins over the registration window when the two overlap.
func DeriveStatus(c Challenge, now time.Time, opts StatusOptions) ChallengeStatus {
	start, end := c.ChallengeStartAt, c.ChallengeEndAt
	if start != nil && end != nil && !now.Before(*start) && !now.After(*end) {
		return StatusOngoing
	}

	regStart, regEnd := c.RegistrationStartAt, c.RegistrationEndAt
	if regStart != nil && now.Before(*regStart) {
		return StatusUpcoming
	}
	if regStart != nil && regEnd != nil && !now.After(*regEnd) {
		if opts.PublishedAsUpcoming && c.Status == BackendStatusPublished {
			return StatusUpcoming
		}
		return StatusRegistrationOpen
	}
	if end != nil && now.After(*end) {
		return StatusEnded
	}
	return StatusAvailable
}
