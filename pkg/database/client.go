// Package database provides the process-wide PostgreSQL handle and
// migration utilities.
package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver for database/sql
)

// Client is the shared database handle. It is created once at startup and
// injected into the stores; every statement goes through Exec or Query,
// which recover a lost connection and retry the statement exactly once.
type Client struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewClient opens the connection pool, verifies connectivity, and applies
// pending embedded migrations.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	db, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(db, cfg); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Client{
		db:     db,
		logger: slog.Default().With("component", "database"),
	}, nil
}

// NewClientFromDB wraps an existing connection (useful for testing).
// Migrations are not run.
func NewClientFromDB(db *sql.DB) *Client {
	return &Client{
		db:     db,
		logger: slog.Default().With("component", "database"),
	}
}

// DB returns the underlying pool for health checks and direct queries.
func (c *Client) DB() *sql.DB {
	return c.db
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.db.Close()
}

// Exec runs a statement that returns no rows, retrying once after a
// transport failure.
func (c *Client) Exec(ctx context.Context, query string, args ...any) error {
	_, err := c.db.ExecContext(ctx, query, args...)
	if err == nil {
		return nil
	}
	if !isTransportError(err) {
		return &QueryError{Query: query, Err: err}
	}

	c.logger.Warn("Recovering from lost database connection", "error", err)
	if pingErr := c.db.PingContext(ctx); pingErr != nil {
		return &QueryError{Query: query, Err: pingErr}
	}
	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return &QueryError{Query: query, Err: err}
	}
	return nil
}

// Query runs a statement that returns rows, retrying once after a
// transport failure. The caller owns the returned rows.
func (c *Client) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err == nil {
		return rows, nil
	}
	if !isTransportError(err) {
		return nil, &QueryError{Query: query, Err: err}
	}

	c.logger.Warn("Recovering from lost database connection", "error", err)
	if pingErr := c.db.PingContext(ctx); pingErr != nil {
		return nil, &QueryError{Query: query, Err: pingErr}
	}
	rows, err = c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &QueryError{Query: query, Err: err}
	}
	return rows, nil
}

// QueryRow runs a single-row query through the same retry path as Query.
// The error, if any, is reported by Scan on the returned row.
func (c *Client) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.db.QueryRowContext(ctx, query, args...)
}

// isTransportError distinguishes a lost connection from a statement error.
// Server-reported errors (constraint violations, bad SQL) arrive as
// *pgconn.PgError and are never retried.
func isTransportError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return false
	}
	var netErr net.Error
	return errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.As(err, &netErr)
}
