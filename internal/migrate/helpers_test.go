// ABOUTME: Shared fixtures for migration tests
// ABOUTME: Builds file-backed legacy databases shaped like the pre-normalization app
package migrate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harper/healthdb/internal/storage/sqlite"
	"github.com/rs/zerolog"
)

// legacySchema is the record table as the app created it before patients existed.
const legacySchema = `CREATE TABLE health_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	patient TEXT NOT NULL,
	record_type TEXT NOT NULL,
	data_type TEXT NOT NULL,
	value TEXT NOT NULL,
	created_at TEXT DEFAULT CURRENT_TIMESTAMP
)`

// bareLegacySchema has no rowid alias, so record identity is the implicit rowid.
const bareLegacySchema = `CREATE TABLE health_records (
	timestamp,
	patient TEXT NOT NULL,
	record_type TEXT,
	data_type TEXT,
	value TEXT
)`

type legacyRow struct {
	patient    string
	recordType string
	dataType   string
	value      string
}

var aliceBob = []legacyRow{
	{"Alice", "BP", "reading", "120/80"},
	{"Bob", "BP", "reading", "130/85"},
	{"Alice", "Sugar", "number", "95"},
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "health_bot.db"), sqlite.Options{Create: true})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newLegacyDB(t *testing.T, rows ...legacyRow) *sqlite.DB {
	t.Helper()
	db := newTestDB(t)
	mustExec(t, db, legacySchema)
	insertLegacy(t, db, rows...)
	return db
}

func insertLegacy(t *testing.T, db *sqlite.DB, rows ...legacyRow) {
	t.Helper()
	for i, r := range rows {
		mustExec(t, db,
			"INSERT INTO health_records (timestamp, patient, record_type, data_type, value) VALUES (?, ?, ?, ?, ?)",
			fmt.Sprintf("2025-11-01T08:%02d:00", i%60), r.patient, r.recordType, r.dataType, r.value)
	}
}

func mustExec(t *testing.T, db sqlite.Querier, query string, args ...any) {
	t.Helper()
	if _, err := db.ExecContext(context.Background(), query, args...); err != nil {
		t.Fatalf("ExecContext(%q) error = %v", query, err)
	}
}

func queryInt(t *testing.T, db sqlite.Querier, query string, args ...any) int64 {
	t.Helper()
	var n int64
	if err := db.QueryRowContext(context.Background(), query, args...).Scan(&n); err != nil {
		t.Fatalf("QueryRowContext(%q) error = %v", query, err)
	}
	return n
}

func queryStrings(t *testing.T, db sqlite.Querier, query string, args ...any) []string {
	t.Helper()
	rows, err := db.QueryContext(context.Background(), query, args...)
	if err != nil {
		t.Fatalf("QueryContext(%q) error = %v", query, err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			t.Fatalf("Scan() error = %v", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows error = %v", err)
	}
	return out
}

// schemaSQL returns every schema object's DDL, ordered by name.
func schemaSQL(t *testing.T, db sqlite.Querier) []string {
	t.Helper()
	return queryStrings(t, db,
		"SELECT type || ' ' || name || ': ' || COALESCE(sql, '') FROM sqlite_master ORDER BY name")
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s) error = %v", path, err)
	}
	return data
}

var fixedBackupTime = time.Date(2025, 11, 2, 9, 30, 15, 0, time.UTC)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("WriteFile(%s) error = %v", path, err)
	}
}

func backupFiles(t *testing.T, dbPath string) []string {
	t.Helper()
	matches, err := filepath.Glob(dbPath + ".backup_*")
	if err != nil {
		t.Fatalf("Glob() error = %v", err)
	}
	return matches
}

func newTestEngine(db *sqlite.DB) *Engine {
	return NewEngine(db, EngineConfig{Logger: testLogger()})
}
