package model

import "time"

// VerificationGrant records that phone passed OTP verification for a challenge.
type VerificationGrant struct {
	Phone       string    `json:"phone"`
	ChallengeID int64     `json:"challenge_id"`
	VerifiedAt  time.Time `json:"verified_at"`
}

func (g VerificationGrant) Valid(now time.Time, ttl time.Duration) bool {
	return now.Sub(g.VerifiedAt) < ttl
}

type SessionIdentity struct {
	UserID         int64  `json:"user_id,omitempty"`
	RegistrationID int64  `json:"registration_id,omitempty"`
	UserName       string `json:"user_name,omitempty"`
	Phone          string `json:"phone,omitempty"`
	AccessCode     string `json:"access_code,omitempty"`
}

// Complete is required before any backend call tied to a registration.
func (i SessionIdentity) Complete() bool {
	return i.UserID != 0 && i.RegistrationID != 0
}

type RegistrationOutcome string

const (
	OutcomeNeedsDetails      RegistrationOutcome = "NEEDS_DETAILS"
	OutcomeRegistered        RegistrationOutcome = "REGISTERED"
	OutcomeNeedsRegistration RegistrationOutcome = "NEEDS_REGISTRATION"
)

// RegistrationStatus is the normalised answer of a registration-status lookup.
type RegistrationStatus struct {
	Outcome        RegistrationOutcome `json:"outcome"`
	UserID         int64               `json:"user_id,omitempty"`
	RegistrationID int64               `json:"registration_id,omitempty"`
	UserName       string              `json:"user_name,omitempty"`
}

type RegistrationDetails struct {
	ChallengeID   int64  `json:"challenge_id"`
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	Email         string `json:"email,omitempty"`
	CollegeName   string `json:"college_name,omitempty"`
	Qualification string `json:"qualification,omitempty"`
	Address       string `json:"address,omitempty"`
	YearOfPassing int    `json:"year_of_passing,omitempty"`
	UTMSource     string `json:"utm_src,omitempty"`
	UTMMedium     string `json:"utm_medium,omitempty"`
	UTMTerm       string `json:"utm_term,omitempty"`
	UTMCampaign   string `json:"utm_campaign,omitempty"`
}

type Registration struct {
	UserID         int64  `json:"user_id,omitempty"`
	RegistrationID int64  `json:"registration_id,omitempty"`
	AccessCode     string `json:"access_code,omitempty"`
	Message        string `json:"message,omitempty"`
}
