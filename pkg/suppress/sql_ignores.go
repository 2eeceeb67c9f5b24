package suppress

import (
	"context"
	"fmt"

	"github.com/triagesec/triagebot/pkg/database"
)

// SQLIgnoreStore is the IgnoreStore implementation over the ignored table.
type SQLIgnoreStore struct {
	db *database.Client
}

// NewSQLIgnoreStore creates an ignore store backed by db.
func NewSQLIgnoreStore(db *database.Client) *SQLIgnoreStore {
	return &SQLIgnoreStore{db: db}
}

// Ignored prunes the user's expired ignores and returns the remainder.
func (s *SQLIgnoreStore) Ignored(ctx context.Context, username string) ([]Ignore, error) {
	if err := s.prune(ctx, username); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx,
		`SELECT title, reason, until FROM ignored WHERE ldap = $1`, username)
	if err != nil {
		return nil, fmt.Errorf("selecting ignores for %s: %w", username, err)
	}
	defer func() { _ = rows.Close() }()

	var ignores []Ignore
	for rows.Next() {
		ig := Ignore{Username: username}
		if err := rows.Scan(&ig.Title, &ig.Reason, &ig.Until); err != nil {
			return nil, fmt.Errorf("scanning ignore row: %w", err)
		}
		ignores = append(ignores, ig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore rows: %w", err)
	}
	return ignores, nil
}

// IsIgnored reports whether a live ignore exists for the user and title.
func (s *SQLIgnoreStore) IsIgnored(ctx context.Context, username, title string) (bool, error) {
	if err := s.prune(ctx, username); err != nil {
		return false, err
	}

	var count int
	row := s.db.QueryRow(ctx,
		`SELECT count(*) FROM ignored WHERE ldap = $1 AND title = $2`, username, title)
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("checking ignore for %s/%s: %w", username, title, err)
	}
	return count > 0, nil
}

// Ignore upserts the mute so that re-ignoring a title extends its deadline.
func (s *SQLIgnoreStore) Ignore(ctx context.Context, ig Ignore) error {
	err := s.db.Exec(ctx, `
INSERT INTO ignored (ldap, title, reason, until)
VALUES ($1, $2, $3, $4)
ON CONFLICT (ldap, title) DO UPDATE SET reason = $3, until = $4`,
		ig.Username, ig.Title, ig.Reason, ig.Until)
	if err != nil {
		return fmt.Errorf("recording ignore for %s/%s: %w", ig.Username, ig.Title, err)
	}
	return nil
}

func (s *SQLIgnoreStore) prune(ctx context.Context, username string) error {
	err := s.db.Exec(ctx,
		`DELETE FROM ignored WHERE ldap = $1 AND until <= now()`, username)
	if err != nil {
		return fmt.Errorf("pruning expired ignores for %s: %w", username, err)
	}
	return nil
}
