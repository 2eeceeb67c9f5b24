// Package suppress holds the two alert-muting mechanisms: per-user
// time-bounded ignores and the permanent username blacklist.
package suppress

import (
	"context"
	"time"
)

// Ignore is a user's request to mute one alert title until a deadline.
type Ignore struct {
	Username string
	Title    string
	Reason   string
	Until    time.Time
}

// IgnoreStore persists time-bounded ignores. Expired rows are pruned
// lazily on read; no background sweeper exists.
type IgnoreStore interface {
	// Ignored returns the user's live ignores, pruning expired ones first.
	Ignored(ctx context.Context, username string) ([]Ignore, error)

	// IsIgnored reports whether the user currently ignores the title.
	IsIgnored(ctx context.Context, username, title string) (bool, error)

	// Ignore records a mute, replacing any existing row for the same
	// user and title.
	Ignore(ctx context.Context, ig Ignore) error
}

// Blacklist is the set of usernames the coordinator never engages.
type Blacklist interface {
	// Contains reports whether the username is blacklisted.
	Contains(username string) bool

	// Add inserts the username, persisting it. Adding an existing
	// member is a no-op.
	Add(ctx context.Context, username string) error

	// Remove deletes the username, persisting the removal. Removing a
	// non-member is a no-op.
	Remove(ctx context.Context, username string) error
}
