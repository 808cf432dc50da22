// ABOUTME: SQLite database schema for health record storage
// ABOUTME: Defines the patients and normalized health_records tables
package sqlite

import (
	"context"
	"errors"
	"fmt"
)

// Table and column names shared by the stores and the migration engine.
const (
	PatientsTableName = "patients"
	RecordsTableName  = "health_records"

	LegacyPatientColumn = "patient"
	PatientIDColumn     = "patient_id"
)

// TimestampLayout matches SQLite's CURRENT_TIMESTAMP text format.
const TimestampLayout = "2006-01-02 15:04:05"

// ErrNotMigrated is returned when the record table still uses the legacy
// free-text patient column.
var ErrNotMigrated = errors.New("health_records uses the legacy patient column; run `healthdb migrate` first")

// PatientsTable is the patient table: (id INTEGER PRIMARY KEY, name TEXT UNIQUE NOT NULL, created_at TEXT).
func PatientsTable() Table {
	return Table{
		Name: PatientsTableName,
		Columns: []Column{
			{Name: "id", Type: "INTEGER", PrimaryKey: true},
			{Name: "name", Type: "TEXT", NotNull: true, Unique: true},
			{Name: "created_at", Type: "TEXT"},
		},
	}
}

// PatientIDColumnDef is the foreign key column that replaces the legacy patient name.
func PatientIDColumnDef() Column {
	return Column{
		Name:       PatientIDColumn,
		Type:       "INTEGER",
		NotNull:    true,
		References: &ForeignKey{Table: PatientsTableName, Column: "id"},
	}
}

// RecordsTable is the normalized record table created on fresh databases.
func RecordsTable() Table {
	return Table{
		Name: RecordsTableName,
		Columns: []Column{
			{Name: "id", Type: "INTEGER", PrimaryKey: true, AutoIncrement: true},
			{Name: "timestamp", Type: "TEXT", NotNull: true},
			PatientIDColumnDef(),
			{Name: "record_type", Type: "TEXT", NotNull: true},
			{Name: "data_type", Type: "TEXT", NotNull: true},
			{Name: "value", Type: "TEXT", NotNull: true},
			{Name: "created_at", Type: "TEXT", Default: "CURRENT_TIMESTAMP"},
		},
	}
}

// RecordsPatientIndex speeds up per-patient lookups on fresh databases.
func RecordsPatientIndex() Index {
	return Index{
		Name:    "idx_health_records_patient_id",
		Table:   RecordsTableName,
		Columns: []IndexColumn{{Name: PatientIDColumn}},
	}
}

// EnsureSchema creates the normalized tables when they do not exist yet.
// It refuses to touch a database whose record table is still denormalized.
func EnsureSchema(ctx context.Context, q Querier) error {
	exists, err := TableExists(ctx, q, RecordsTableName)
	if err != nil {
		return err
	}
	if exists {
		cols, err := ColumnNames(ctx, q, RecordsTableName)
		if err != nil {
			return err
		}
		if !contains(cols, PatientIDColumn) {
			return ErrNotMigrated
		}
	}

	stmts := []string{
		PatientsTable().CreateIfNotExistsSQL(),
		RecordsTable().CreateIfNotExistsSQL(),
	}
	if !exists {
		stmts = append(stmts, RecordsPatientIndex().CreateSQL())
	}
	for _, stmt := range stmts {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

func contains(items []string, item string) bool {
	for _, s := range items {
		if s == item {
			return true
		}
	}
	return false
}
