// ABOUTME: Typed migration errors, each with a stable kind
// ABOUTME: Callers match them with errors.As and map kinds to exit codes
package migrate

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies a class of migration failure.
type Kind string

const (
	KindSchemaRead        Kind = "schema_read"
	KindBackup            Kind = "backup"
	KindOrphanPatient     Kind = "orphan_patient"
	KindRowCountMismatch  Kind = "row_count_mismatch"
	KindAlreadyMigrated   Kind = "already_migrated"
	KindInconsistentState Kind = "inconsistent_state"
)

// MigrationError is implemented by every typed error the engine returns.
type MigrationError interface {
	error
	Kind() Kind
}

// SchemaReadError means the schema could not be read or the base tables are absent.
type SchemaReadError struct {
	Missing []string
	Err     error
}

func (e *SchemaReadError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("database is not initialized: missing table(s) %s", strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("failed to read schema: %v", e.Err)
}

func (e *SchemaReadError) Unwrap() error { return e.Err }
func (e *SchemaReadError) Kind() Kind    { return KindSchemaRead }

// BackupError means the backup file could not be written. Nothing was mutated.
type BackupError struct {
	Path string
	Err  error
}

func (e *BackupError) Error() string {
	return fmt.Sprintf("backup to %s failed: %v", e.Path, e.Err)
}

func (e *BackupError) Unwrap() error { return e.Err }
func (e *BackupError) Kind() Kind    { return KindBackup }

// OrphanPatientError names the first record whose patient has no Patient row.
type OrphanPatientError struct {
	RowID   int64
	Patient string
	// PatientID is set when the orphan was found by the foreign key check.
	PatientID int64
}

func (e *OrphanPatientError) Error() string {
	if e.PatientID != 0 {
		return fmt.Sprintf("record %d references missing patient id %d", e.RowID, e.PatientID)
	}
	return fmt.Sprintf("record %d has patient %q with no matching patient row", e.RowID, e.Patient)
}

func (e *OrphanPatientError) Kind() Kind { return KindOrphanPatient }

// RowCountMismatchError means the copy did not preserve the record count.
type RowCountMismatchError struct {
	Source int64
	Copied int64
}

func (e *RowCountMismatchError) Error() string {
	return fmt.Sprintf("row count mismatch: source has %d records, copy has %d", e.Source, e.Copied)
}

func (e *RowCountMismatchError) Kind() Kind { return KindRowCountMismatch }

// AlreadyMigratedError refuses a rebuild of a table that is already normalized.
type AlreadyMigratedError struct {
	Table string
}

func (e *AlreadyMigratedError) Error() string {
	return fmt.Sprintf("table %s is already migrated; refusing to rebuild it", e.Table)
}

func (e *AlreadyMigratedError) Kind() Kind { return KindAlreadyMigrated }

// InconsistentStateError means the table matches neither the legacy nor the
// normalized shape.
type InconsistentStateError struct {
	Reason string
}

func (e *InconsistentStateError) Error() string {
	return fmt.Sprintf("inconsistent schema: %s", e.Reason)
}

func (e *InconsistentStateError) Kind() Kind { return KindInconsistentState }

// KindOf returns the kind of the first MigrationError in err's chain.
func KindOf(err error) (Kind, bool) {
	var me MigrationError
	if errors.As(err, &me) {
		return me.Kind(), true
	}
	return "", false
}
