package model

import "fmt"

// SessionState is the single authentication/registration phase of a session.
type SessionState string

const (
	StatePhoneEntry   SessionState = "PHONE_ENTRY"
	StateAwaitingOTP  SessionState = "AWAITING_OTP"
	StateVerified     SessionState = "VERIFIED"
	StateNeedsDetails SessionState = "NEEDS_DETAILS"
	StateRegistered   SessionState = "REGISTERED"
	StateEnded        SessionState = "ENDED"
)

type SessionEvent string

const (
	EventCodeSent           SessionEvent = "code_sent"
	EventCodeConfirmed      SessionEvent = "code_confirmed"
	EventGrantRestored      SessionEvent = "grant_restored"
	EventDetailsRequired    SessionEvent = "details_required"
	EventRegistered         SessionEvent = "registered"
	EventRegistrationFailed SessionEvent = "registration_failed"
	EventPhoneChanged       SessionEvent = "phone_changed"
	EventExpired            SessionEvent = "expired"
)

var transitions = map[SessionState]map[SessionEvent]SessionState{
	StatePhoneEntry: {
		EventCodeSent:      StateAwaitingOTP,
		EventGrantRestored: StateVerified,
		EventPhoneChanged:  StatePhoneEntry,
	},
	StateAwaitingOTP: {
		EventCodeSent:      StateAwaitingOTP,
		EventCodeConfirmed: StateVerified,
		EventPhoneChanged:  StatePhoneEntry,
	},
	StateVerified: {
		EventDetailsRequired:    StateNeedsDetails,
		EventRegistered:         StateRegistered,
		EventRegistrationFailed: StatePhoneEntry,
		EventPhoneChanged:       StatePhoneEntry,
	},
	StateNeedsDetails: {
		EventRegistered:   StateRegistered,
		EventPhoneChanged: StatePhoneEntry,
	},
	StateRegistered: {},
	StateEnded:      {},
}

// Transition returns the state reached from s on ev. Every state except
// ENDED can expire; ENDED accepts nothing.
func Transition(s SessionState, ev SessionEvent) (SessionState, error) {
	if ev == EventExpired && s != StateEnded {
		return StateEnded, nil
	}
	next, ok := transitions[s][ev]
	if !ok {
		return s, fmt.Errorf("no transition from %s on %s", s, ev)
	}
	return next, nil
}

// Unlocked reports whether the session may use challenge content.
func (s SessionState) Unlocked() bool {
	return s == StateRegistered
}
