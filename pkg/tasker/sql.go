package tasker

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/triagesec/triagebot/pkg/database"
	"github.com/triagesec/triagebot/pkg/models"
)

// Column order matches the scan in selectTasks.
const selectAlerts = `
SELECT encode(alerts.hash, 'hex'),
       title,
       ldap,
       description,
       reason,
       url,
       event_time,
       performed,
       comment,
       authenticated,
       status
FROM alerts
JOIN user_responses ON alerts.hash = user_responses.hash
JOIN alert_status ON alerts.hash = alert_status.hash
WHERE status = $1`

const updateStatus = `
UPDATE alert_status
SET status = $1
WHERE hash = decode($2, 'hex')`

const updateResponse = `
UPDATE user_responses
SET comment = $1,
    performed = $2,
    authenticated = $3
WHERE hash = decode($4, 'hex')`

// SQLStore is the Store implementation over the shared database handle.
type SQLStore struct {
	db *database.Client
}

// NewSQLStore creates a task store backed by db.
func NewSQLStore(db *database.Client) *SQLStore {
	return &SQLStore{db: db}
}

// NewTasks returns all open tasks.
func (s *SQLStore) NewTasks(ctx context.Context) ([]*models.Task, error) {
	return s.selectTasks(ctx, models.StatusOpen)
}

// ActiveTasks returns all in-progress tasks.
func (s *SQLStore) ActiveTasks(ctx context.Context) ([]*models.Task, error) {
	return s.selectTasks(ctx, models.StatusInProgress)
}

// PendingTasks returns all tasks awaiting verification.
func (s *SQLStore) PendingTasks(ctx context.Context) ([]*models.Task, error) {
	return s.selectTasks(ctx, models.StatusVerification)
}

func (s *SQLStore) selectTasks(ctx context.Context, status models.Status) ([]*models.Task, error) {
	rows, err := s.db.Query(ctx, selectAlerts, int(status))
	if err != nil {
		return nil, fmt.Errorf("selecting tasks with status %s: %w", status, err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*models.Task
	for rows.Next() {
		var t models.Task
		var st int
		if err := rows.Scan(&t.Hash, &t.Title, &t.Username, &t.Description,
			&t.Reason, &t.URL, &t.EventTime, &t.Performed, &t.Comment,
			&t.Authenticated, &st); err != nil {
			return nil, fmt.Errorf("scanning task row: %w", err)
		}
		t.Status = models.Status(st)
		tasks = append(tasks, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading task rows: %w", err)
	}
	return tasks, nil
}

// SetOpen marks the task open.
func (s *SQLStore) SetOpen(ctx context.Context, task *models.Task) error {
	return s.setStatus(ctx, task, models.StatusOpen)
}

// SetInProgress marks the task in progress.
func (s *SQLStore) SetInProgress(ctx context.Context, task *models.Task) error {
	return s.setStatus(ctx, task, models.StatusInProgress)
}

// SetVerifying marks the task awaiting verification and commits the user
// response alongside.
func (s *SQLStore) SetVerifying(ctx context.Context, task *models.Task) error {
	if err := s.setStatus(ctx, task, models.StatusVerification); err != nil {
		return err
	}
	if err := s.db.Exec(ctx, updateResponse,
		task.Comment, task.Performed, task.Authenticated, task.Hash); err != nil {
		return fmt.Errorf("updating response for %s: %w", task.Hash, err)
	}
	return nil
}

func (s *SQLStore) setStatus(ctx context.Context, task *models.Task, status models.Status) error {
	if err := s.db.Exec(ctx, updateStatus, int(status), task.Hash); err != nil {
		return fmt.Errorf("setting status %s for %s: %w", status, task.Hash, err)
	}
	task.Status = status
	return nil
}

// Create inserts a new alert with an open status row and an empty
// response row. A duplicate hash surfaces as database.ErrDuplicateKey.
func (s *SQLStore) Create(ctx context.Context, req CreateAlertRequest) (string, error) {
	hash := req.Hash
	if hash == "" {
		var err error
		hash, err = randomHash()
		if err != nil {
			return "", err
		}
	}

	url := req.URL
	if url == "" {
		url = "N/A"
	}

	if err := s.db.Exec(ctx, `
INSERT INTO alerts (hash, ldap, title, description, reason, url, event_time)
VALUES (decode($1, 'hex'), $2, $3, $4, $5, $6, now())`,
		hash, req.Username, req.Title, req.Description, req.Reason, url); err != nil {
		return "", fmt.Errorf("inserting alert %s: %w", hash, err)
	}

	if err := s.db.Exec(ctx, `
INSERT INTO user_responses (hash, comment, performed, authenticated)
VALUES (decode($1, 'hex'), '', false, false)`, hash); err != nil {
		return "", fmt.Errorf("inserting response row for %s: %w", hash, err)
	}

	if err := s.db.Exec(ctx, `
INSERT INTO alert_status (hash, status) VALUES (decode($1, 'hex'), 0)`, hash); err != nil {
		return "", fmt.Errorf("inserting status row for %s: %w", hash, err)
	}

	return hash, nil
}

func randomHash() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating alert hash: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
