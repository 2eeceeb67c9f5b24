// Package models contains the business domain types shared across the bot.
package models

import "time"

// Status is the lifecycle state of an alert in the datastore.
type Status int

// Alert status levels. The numeric values are part of the persisted schema
// contract and must not be reordered.
const (
	StatusOpen Status = iota
	StatusInProgress
	StatusVerification
)

// String returns a human-readable status name for logging.
func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusInProgress:
		return "in_progress"
	case StatusVerification:
		return "awaiting_verification"
	default:
		return "unknown"
	}
}

// Task is one detection event directed at one end user. Hash is the 32-byte
// alert identity rendered as a hex string; it is unique across all alerts.
type Task struct {
	Hash        string
	Title       string
	Username    string
	Description string
	Reason      string
	URL         string
	EventTime   time.Time

	Performed     bool
	Comment       string
	Authenticated bool
	Status        Status
}
