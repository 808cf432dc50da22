// ABOUTME: SQLite database connection and lifecycle management
// ABOUTME: Uses modernc.org/sqlite for pure-Go SQLite support
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	_ "modernc.org/sqlite"
)

// ErrDatabaseNotFound is returned when opening a database file that does not exist
// without permission to create it.
var ErrDatabaseNotFound = errors.New("database file not found")

// Querier is the subset of *sql.DB and *sql.Tx used by stores and the migration engine.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Options controls how a database file is opened.
type Options struct {
	// ReadOnly opens the file with mode=ro. The file must already exist.
	ReadOnly bool
	// Create allows a missing file to be created. Ignored when ReadOnly is set.
	Create bool
	// BusyTimeout is how long SQLite waits on a locked database before SQLITE_BUSY.
	BusyTimeout time.Duration
}

// DB wraps a SQLite database connection
type DB struct {
	conn     *sql.DB
	path     string
	readOnly bool
}

// DefaultDataDir returns the default data directory following the XDG spec.
func DefaultDataDir() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		dataHome = xdg.DataHome
	}
	if dataHome == "" {
		return filepath.Join(".local", "share", "healthdb")
	}
	return filepath.Join(dataHome, "healthdb")
}

// DefaultDBPath returns the default database file path
func DefaultDBPath() string {
	return filepath.Join(DefaultDataDir(), "health_bot.db")
}

// Open opens the SQLite database at path.
//
// Foreign keys are enforced on every connection and the pool is limited to a
// single connection, so a transaction owns the database for its lifetime.
// Open never switches the journal mode: the file's bytes are only touched by
// explicit writes.
func Open(path string, opts Options) (*DB, error) {
	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat database: %w", err)
		}
		if opts.ReadOnly || !opts.Create {
			return nil, fmt.Errorf("%w: %s", ErrDatabaseNotFound, path)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", buildDSN(path, opts))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{
		conn:     conn,
		path:     path,
		readOnly: opts.ReadOnly,
	}, nil
}

func buildDSN(path string, opts Options) string {
	params := []string{"_pragma=foreign_keys(1)"}
	if opts.BusyTimeout > 0 {
		params = append(params, fmt.Sprintf("_pragma=busy_timeout(%d)", opts.BusyTimeout.Milliseconds()))
	}

	if opts.ReadOnly {
		escaped := strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23").Replace(path)
		return "file:" + escaped + "?mode=ro&" + strings.Join(params, "&")
	}

	params = append(params, "_txlock=immediate")
	return path + "?" + strings.Join(params, "&")
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// ReadOnly reports whether the database was opened with mode=ro.
func (db *DB) ReadOnly() bool {
	return db.readOnly
}

// BeginTx starts a transaction. Read-write handles begin IMMEDIATE, taking the
// write lock up front.
func (db *DB) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return db.conn.BeginTx(ctx, nil)
}

// ExecContext executes a query without returning rows
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.conn.ExecContext(ctx, query, args...)
}

// QueryContext executes a query that returns rows
func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.conn.QueryContext(ctx, query, args...)
}

// QueryRowContext executes a query that returns at most one row
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.conn.QueryRowContext(ctx, query, args...)
}

// PrepareContext creates a prepared statement
func (db *DB) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	return db.conn.PrepareContext(ctx, query)
}

// IsBusy reports whether err is SQLite refusing a lock held by another connection.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
