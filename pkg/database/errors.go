package database

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDuplicateKey indicates an insert collided with an existing primary
// key, e.g. an alert hash that already exists.
var ErrDuplicateKey = errors.New("duplicate key")

// QueryError wraps a statement failure with the offending query.
type QueryError struct {
	Query string
	Err   error
}

// Error returns the formatted error message.
func (e *QueryError) Error() string {
	return fmt.Sprintf("query failed: %v", e.Err)
}

// Unwrap returns the underlying error. Unique-constraint violations
// unwrap to ErrDuplicateKey so callers can match with errors.Is.
func (e *QueryError) Unwrap() error {
	var pgErr *pgconn.PgError
	if errors.As(e.Err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateKey
	}
	return e.Err
}
