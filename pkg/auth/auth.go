// Package auth performs second-factor verification of users during triage.
// The Duo adapter is the production implementation.
package auth

import "context"

// State is the lifecycle of one verification attempt.
type State int

const (
	// StateNone means no attempt is in flight and none recently succeeded.
	StateNone State = iota
	// StatePending means a push was sent and the user has not responded.
	StatePending
	// StateAuthorized means the user approved a push recently.
	StateAuthorized
	// StateDenied means the user rejected the push or it timed out.
	StateDenied
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StatePending:
		return "pending"
	case StateAuthorized:
		return "authorized"
	case StateDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// Authenticator drives second-factor verification for a single user.
// Begin must not block on the user's response; Status is polled instead.
// An authorization decays back to StateNone after a grace period, so a
// user re-verifies at most once per period.
type Authenticator interface {
	// CanAuth reports whether the user is reachable for verification.
	CanAuth(ctx context.Context) (bool, error)

	// Begin starts a verification attempt. The optional reason is shown
	// to the user alongside the prompt.
	Begin(ctx context.Context, reason string) error

	// Status advances and returns the attempt state. While pending it
	// polls the provider; once authorized it reports StateAuthorized
	// until the grace period lapses.
	Status(ctx context.Context) (State, error)

	// Reset abandons any in-flight attempt and clears the state.
	Reset()
}

// Factory builds an Authenticator bound to one username.
type Factory func(username string) Authenticator
