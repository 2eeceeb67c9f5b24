package suppress

import (
	"context"
	"fmt"
	"sync"

	"github.com/triagesec/triagebot/pkg/database"
)

// SQLBlacklist keeps the blacklist in memory for the hot path and writes
// membership changes through to the blacklist table. Contains is consulted
// on every new task, so it never touches the database.
type SQLBlacklist struct {
	db *database.Client

	mu      sync.RWMutex
	members map[string]struct{}
}

// LoadSQLBlacklist reads the full blacklist into memory.
func LoadSQLBlacklist(ctx context.Context, db *database.Client) (*SQLBlacklist, error) {
	rows, err := db.Query(ctx, `SELECT ldap FROM blacklist`)
	if err != nil {
		return nil, fmt.Errorf("loading blacklist: %w", err)
	}
	defer func() { _ = rows.Close() }()

	members := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning blacklist row: %w", err)
		}
		members[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading blacklist rows: %w", err)
	}

	return &SQLBlacklist{db: db, members: members}, nil
}

// Contains reports membership from the in-memory copy.
func (b *SQLBlacklist) Contains(username string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.members[username]
	return ok
}

// Add persists the username and updates the in-memory copy.
func (b *SQLBlacklist) Add(ctx context.Context, username string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.members[username]; ok {
		return nil
	}

	err := b.db.Exec(ctx,
		`INSERT INTO blacklist (ldap) VALUES ($1) ON CONFLICT (ldap) DO NOTHING`, username)
	if err != nil {
		return fmt.Errorf("blacklisting %s: %w", username, err)
	}
	b.members[username] = struct{}{}
	return nil
}

// Remove deletes the username from storage and the in-memory copy.
func (b *SQLBlacklist) Remove(ctx context.Context, username string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.members[username]; !ok {
		return nil
	}

	if err := b.db.Exec(ctx, `DELETE FROM blacklist WHERE ldap = $1`, username); err != nil {
		return fmt.Errorf("unblacklisting %s: %w", username, err)
	}
	delete(b.members, username)
	return nil
}
