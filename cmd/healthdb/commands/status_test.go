// ABOUTME: Tests for the status command
// ABOUTME: Covers legacy, migrated, and missing databases in text and JSON form

package commands

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harper/healthdb/internal/migrate"
)

func TestStatus_Legacy(t *testing.T) {
	path := newLegacyDB(t)
	before := readBytes(t, path)

	out, err := runCLI(t, "status", "--db-path", path)
	if err != nil {
		t.Fatalf("status error = %v", err)
	}

	for _, want := range []string{
		"DATABASE MIGRATION STATUS",
		"KB",
		"patient column exists:       yes",
		"patient_id column exists:    no",
		"Migration needed.",
		"Records to migrate: 3",
		"Unique patients: 2",
		"Patient names: Alice, Bob",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}

	if string(readBytes(t, path)) != string(before) {
		t.Error("status modified the database file")
	}
}

func TestStatus_Migrated(t *testing.T) {
	path := newMigratedDB(t)

	out, err := runCLI(t, "status", "--db-path", path, "--format", "json")
	if err != nil {
		t.Fatalf("status error = %v", err)
	}

	var got statusOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if got.Status == nil {
		t.Fatalf("status missing: %+v", got)
	}
	if got.Status.State != migrate.StateMigrated {
		t.Errorf("state = %s, want MIGRATED", got.Status.State)
	}
	if got.Status.PatientCount != 2 || got.Status.RecordCount != 3 {
		t.Errorf("counts = %d patients, %d records; want 2 and 3", got.Status.PatientCount, got.Status.RecordCount)
	}
}

func TestStatus_MissingFile(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "nope.db")

	out, err := runCLI(t, "status", "--db-path", path)
	if err != nil {
		t.Fatalf("status should exit 0 for a missing file, got %v", err)
	}
	if !strings.Contains(out, "database file not found") {
		t.Errorf("output should report the missing file:\n%s", out)
	}
}

func TestStatus_InvalidConfig(t *testing.T) {
	path := newLegacyDB(t)
	t.Setenv("HEALTHDB_LOG_LEVEL", "bogus")

	out, err := runCLI(t, "status", "--db-path", path)
	if err != nil {
		t.Fatalf("status should exit 0 with bad config, got %v", err)
	}
	if !strings.Contains(out, "HEALTHDB_LOG_LEVEL") || !strings.Contains(out, path) {
		t.Errorf("output should report the config error for %s:\n%s", path, out)
	}

	out, err = runCLI(t, "status", "--db-path", path, "--format", "json")
	if err != nil {
		t.Fatalf("status --format json error = %v", err)
	}
	var got statusOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if got.Exists || !strings.Contains(got.Error, "loading config") {
		t.Errorf("status = %+v, want config error", got)
	}
}

func TestStatus_NoRecordTable(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "empty.db")
	if _, err := runCLI(t, "patients", "add", "Alice", "--db-path", path); err != nil {
		t.Fatalf("patients add error = %v", err)
	}

	out, err := runCLI(t, "status", "--db-path", path)
	if err != nil {
		t.Fatalf("status error = %v", err)
	}
	if !strings.Contains(out, "Database is already migrated.") {
		t.Errorf("fresh schema should report migrated:\n%s", out)
	}
}
