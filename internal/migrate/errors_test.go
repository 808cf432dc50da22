// ABOUTME: Tests for typed migration errors
// ABOUTME: Verifies kinds, wrapping, and diagnostic messages
package migrate

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"
)

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		err  MigrationError
		kind Kind
		text string
	}{
		{&SchemaReadError{Missing: []string{"health_records"}}, KindSchemaRead, "missing table(s) health_records"},
		{&BackupError{Path: "/x.backup_1", Err: fs.ErrPermission}, KindBackup, "/x.backup_1"},
		{&OrphanPatientError{RowID: 12, Patient: "Ghost"}, KindOrphanPatient, `record 12 has patient "Ghost"`},
		{&OrphanPatientError{RowID: 3, PatientID: 42}, KindOrphanPatient, "missing patient id 42"},
		{&RowCountMismatchError{Source: 10, Copied: 9}, KindRowCountMismatch, "source has 10 records, copy has 9"},
		{&AlreadyMigratedError{Table: "health_records"}, KindAlreadyMigrated, "already migrated"},
		{&InconsistentStateError{Reason: "both columns"}, KindInconsistentState, "both columns"},
	}
	for _, tt := range tests {
		if tt.err.Kind() != tt.kind {
			t.Errorf("%T.Kind() = %s, want %s", tt.err, tt.err.Kind(), tt.kind)
		}
		if !strings.Contains(tt.err.Error(), tt.text) {
			t.Errorf("%T.Error() = %q, want it to contain %q", tt.err, tt.err.Error(), tt.text)
		}
	}
}

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("migrate: %w", &RowCountMismatchError{Source: 1, Copied: 0})
	kind, ok := KindOf(err)
	if !ok || kind != KindRowCountMismatch {
		t.Errorf("KindOf() = %s, %v; want %s", kind, ok, KindRowCountMismatch)
	}

	if _, ok := KindOf(errors.New("plain")); ok {
		t.Error("KindOf(plain error) should report false")
	}
}

func TestErrorsUnwrap(t *testing.T) {
	err := &BackupError{Path: "p", Err: fs.ErrPermission}
	if !errors.Is(err, fs.ErrPermission) {
		t.Error("BackupError should unwrap to its cause")
	}
	readErr := &SchemaReadError{Err: fs.ErrNotExist}
	if !errors.Is(readErr, fs.ErrNotExist) {
		t.Error("SchemaReadError should unwrap to its cause")
	}
}
