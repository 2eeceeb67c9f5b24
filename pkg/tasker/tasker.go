// Package tasker persists alerts and their status transitions.
package tasker

import (
	"context"

	"github.com/triagesec/triagebot/pkg/models"
)

// CreateAlertRequest contains fields for inserting a new alert. Hash is
// optional; a random 32-byte identity is generated when it is empty.
type CreateAlertRequest struct {
	Title       string
	Username    string
	Description string
	Reason      string
	URL         string
	Hash        string
}

// Store is the task persistence contract consumed by the coordinator.
// Every call surfaces a typed error; callers log and continue rather than
// aborting the run loop.
type Store interface {
	// NewTasks returns all tasks with status open.
	NewTasks(ctx context.Context) ([]*models.Task, error)

	// ActiveTasks returns all in-progress tasks, used for restart recovery.
	ActiveTasks(ctx context.Context) ([]*models.Task, error)

	// PendingTasks returns all tasks awaiting human verification.
	PendingTasks(ctx context.Context) ([]*models.Task, error)

	// SetOpen marks the task open.
	SetOpen(ctx context.Context, task *models.Task) error

	// SetInProgress marks the task in progress.
	SetInProgress(ctx context.Context, task *models.Task) error

	// SetVerifying marks the task awaiting verification and commits the
	// user response (performed, comment, authenticated).
	SetVerifying(ctx context.Context, task *models.Task) error

	// Create inserts a new alert with open status and an empty response
	// row. Returns the hex hash of the created alert.
	Create(ctx context.Context, req CreateAlertRequest) (string, error)
}
