package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"

	"funnel/internal/config"
)

// SQLite result codes that signal contention or exhaustion rather than a bad
// statement.
const (
	codeBusy   = 5
	codeLocked = 6
	codeIOErr  = 10
	codeFull   = 13
)

// SQLiteExecutor applies entry payloads as SQL statements against the single
// downstream SQLite database. It is the serialization point the whole queue
// exists for, so it holds exactly one connection.
type SQLiteExecutor struct {
	db   *sql.DB
	path string
}

// NewSQLite opens (or creates) the downstream datastore.
func NewSQLite(cfg *config.Config) (*SQLiteExecutor, error) {
	path := cfg.DatastorePath()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open datastore: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.Datastore.BusyTimeoutMS),
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	return &SQLiteExecutor{db: db, path: path}, nil
}

// Path returns the datastore file location.
func (e *SQLiteExecutor) Path() string {
	return e.path
}

// Execute runs the payload as a SQL statement. The operation label is
// caller-supplied context; the payload is what actually runs.
func (e *SQLiteExecutor) Execute(ctx context.Context, operation, payload string) error {
	statement := strings.TrimSpace(payload)
	if statement == "" {
		return Permanent(fmt.Errorf("operation %q: empty payload", operation))
	}
	if _, err := e.db.ExecContext(ctx, statement); err != nil {
		return classify(operation, err)
	}
	return nil
}

// Ping verifies the datastore is reachable, used by worker preflight.
func (e *SQLiteExecutor) Ping(ctx context.Context) error {
	return e.db.PingContext(ctx)
}

// Close releases the database connection.
func (e *SQLiteExecutor) Close() error {
	if e == nil || e.db == nil {
		return nil
	}
	return e.db.Close()
}

// classify maps a SQLite failure to the retry contract. Contention and
// resource exhaustion are transient; everything else (syntax errors,
// constraint violations, missing tables) will not get better on its own.
func classify(operation string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Transient(fmt.Errorf("operation %q: %w", operation, err))
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case codeBusy, codeLocked, codeIOErr, codeFull:
			return Transient(fmt.Errorf("operation %q: %w", operation, err))
		}
		return Permanent(fmt.Errorf("operation %q: %w", operation, err))
	}
	return Permanent(fmt.Errorf("operation %q: %w", operation, err))
}
