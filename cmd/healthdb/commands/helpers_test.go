// ABOUTME: Shared fixtures for CLI command tests
// ABOUTME: Builds file-backed legacy databases and runs the root command in-process

package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"

	"github.com/harper/healthdb/internal/storage/sqlite"
)

const legacyDDL = `CREATE TABLE health_records (
	timestamp TEXT NOT NULL,
	patient TEXT NOT NULL,
	record_type TEXT,
	data_type TEXT,
	value TEXT
);
INSERT INTO health_records VALUES
	('2025-11-01T08:00:00Z', 'Alice', 'BP', 'reading', '120/80'),
	('2025-11-01T09:00:00Z', 'Bob', 'BP', 'reading', '130/85'),
	('2025-11-01T10:00:00Z', 'Alice', 'Sugar', 'number', '95');`

// isolateEnv keeps config loading away from the developer's environment.
func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("HEALTHDB_DB_PATH", "")
	t.Setenv("HEALTHDB_LOG_LEVEL", "error")
	t.Setenv("HEALTHDB_LOG_FILE", "")
	color.NoColor = true
}

// newLegacyDB writes the Alice/Bob legacy database and returns its path.
func newLegacyDB(t *testing.T) string {
	t.Helper()
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "health_bot.db")
	db, err := sqlite.Open(path, sqlite.Options{Create: true})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = db.Close() }()
	if _, err := db.ExecContext(context.Background(), legacyDDL); err != nil {
		t.Fatalf("seed error = %v", err)
	}
	return path
}

// newMigratedDB returns the path of the Alice/Bob database after migration.
func newMigratedDB(t *testing.T) string {
	t.Helper()
	path := newLegacyDB(t)
	if _, err := runCLI(t, "migrate", "--db-path", path); err != nil {
		t.Fatalf("migrate error = %v", err)
	}
	return path
}

// runCLI executes the root command with args and returns stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func readBytes(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		t.Fatalf("ReadFile(%s) error = %v", path, err)
	}
	return data
}
