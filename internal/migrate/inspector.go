// ABOUTME: Reads the record table's shape and counts without mutating anything
// ABOUTME: Classifies the database as NOT_MIGRATED, MIGRATED, or INCONSISTENT
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/harper/healthdb/internal/storage/sqlite"
	"github.com/rs/zerolog"
)

// RebuildTableName is the temporary name of the table built during a rebuild.
const RebuildTableName = "health_records_new"

const samplePatientLimit = 5

// Inspection is a snapshot of the schema and its counts.
type Inspection struct {
	State  State  `json:"state" yaml:"state"`
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`

	HasPatientColumn   bool `json:"has_patient_column" yaml:"has_patient_column"`
	HasPatientIDColumn bool `json:"has_patient_id_column" yaml:"has_patient_id_column"`
	HasPatientFK       bool `json:"has_patient_fk" yaml:"has_patient_fk"`
	LeftoverRebuild    bool `json:"leftover_rebuild_table" yaml:"leftover_rebuild_table"`
	PatientsTable      bool `json:"patients_table_exists" yaml:"patients_table_exists"`

	RecordCount      int64    `json:"record_count" yaml:"record_count"`
	DistinctPatients int64    `json:"distinct_patients" yaml:"distinct_patients"`
	PatientCount     int64    `json:"patient_count" yaml:"patient_count"`
	SamplePatients   []string `json:"sample_patients,omitempty" yaml:"sample_patients,omitempty"`
}

// Inspector reads schema state.
type Inspector struct {
	log zerolog.Logger
}

// NewInspector creates an Inspector.
func NewInspector(log zerolog.Logger) *Inspector {
	return &Inspector{log: log}
}

// Inspect classifies the record table. It fails with *SchemaReadError when the
// record table does not exist.
func (i *Inspector) Inspect(ctx context.Context, q sqlite.Querier) (*Inspection, error) {
	exists, err := sqlite.TableExists(ctx, q, sqlite.RecordsTableName)
	if err != nil {
		return nil, &SchemaReadError{Err: err}
	}
	if !exists {
		return nil, &SchemaReadError{Missing: []string{sqlite.RecordsTableName}}
	}

	table, err := sqlite.ReadTable(ctx, q, sqlite.RecordsTableName)
	if err != nil {
		return nil, &SchemaReadError{Err: err}
	}

	insp := &Inspection{
		HasPatientColumn:   table.HasColumn(sqlite.LegacyPatientColumn),
		HasPatientIDColumn: table.HasColumn(sqlite.PatientIDColumn),
	}
	if col, ok := table.Column(sqlite.PatientIDColumn); ok && col.References != nil {
		insp.HasPatientFK = strings.EqualFold(col.References.Table, sqlite.PatientsTableName)
	}
	if insp.LeftoverRebuild, err = sqlite.TableExists(ctx, q, RebuildTableName); err != nil {
		return nil, &SchemaReadError{Err: err}
	}
	if insp.PatientsTable, err = sqlite.TableExists(ctx, q, sqlite.PatientsTableName); err != nil {
		return nil, &SchemaReadError{Err: err}
	}
	insp.State, insp.Reason = classify(insp)

	if err := i.count(ctx, q, insp); err != nil {
		return nil, &SchemaReadError{Err: err}
	}

	i.log.Debug().
		Str("state", string(insp.State)).
		Int64("records", insp.RecordCount).
		Int64("distinct_patients", insp.DistinctPatients).
		Int64("patients", insp.PatientCount).
		Msg("inspected schema")

	return insp, nil
}

func classify(insp *Inspection) (State, string) {
	switch {
	case insp.LeftoverRebuild:
		return StateInconsistent, fmt.Sprintf("leftover table %s from an interrupted run", RebuildTableName)
	case insp.HasPatientColumn && insp.HasPatientIDColumn:
		return StateInconsistent, "both patient and patient_id columns are present"
	case insp.HasPatientColumn:
		return StateNotMigrated, ""
	case insp.HasPatientIDColumn && insp.HasPatientFK && insp.PatientsTable:
		return StateMigrated, ""
	case insp.HasPatientIDColumn && insp.HasPatientFK:
		return StateInconsistent, "patient_id references a patients table that does not exist"
	case insp.HasPatientIDColumn:
		return StateInconsistent, "patient_id has no foreign key to patients(id)"
	default:
		return StateInconsistent, "neither patient nor patient_id column is present"
	}
}

func (i *Inspector) count(ctx context.Context, q sqlite.Querier, insp *Inspection) error {
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM health_records").Scan(&insp.RecordCount); err != nil {
		return fmt.Errorf("failed to count records: %w", err)
	}

	if insp.PatientsTable {
		if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM patients").Scan(&insp.PatientCount); err != nil {
			return fmt.Errorf("failed to count patients: %w", err)
		}
	}

	var sampleQuery string
	switch {
	case insp.HasPatientColumn:
		if err := q.QueryRowContext(ctx,
			"SELECT COUNT(DISTINCT patient COLLATE BINARY) FROM health_records WHERE patient <> ''").Scan(&insp.DistinctPatients); err != nil {
			return fmt.Errorf("failed to count distinct patients: %w", err)
		}
		sampleQuery = `
			SELECT patient FROM health_records
			WHERE patient IS NOT NULL AND patient <> ''
			GROUP BY patient COLLATE BINARY
			ORDER BY MIN(rowid)
			LIMIT ?`
	case insp.HasPatientIDColumn:
		if err := q.QueryRowContext(ctx,
			"SELECT COUNT(DISTINCT patient_id) FROM health_records").Scan(&insp.DistinctPatients); err != nil {
			return fmt.Errorf("failed to count distinct patients: %w", err)
		}
		if insp.PatientsTable {
			sampleQuery = `
				SELECT name FROM patients
				WHERE id IN (SELECT patient_id FROM health_records)
				ORDER BY id
				LIMIT ?`
		}
	}
	if sampleQuery == "" {
		return nil
	}

	rows, err := q.QueryContext(ctx, sampleQuery, samplePatientLimit)
	if err != nil {
		return fmt.Errorf("failed to sample patients: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var name sql.NullString
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("failed to scan patient name: %w", err)
		}
		insp.SamplePatients = append(insp.SamplePatients, name.String)
	}
	return rows.Err()
}

// Verify checks the post-migration invariants: the table is MIGRATED, the
// record count matches expectedRecords (skipped when negative) and every
// patient_id resolves.
func (i *Inspector) Verify(ctx context.Context, q sqlite.Querier, expectedRecords int64) (*Inspection, error) {
	insp, err := i.Inspect(ctx, q)
	if err != nil {
		return nil, err
	}
	if insp.State != StateMigrated {
		return insp, &InconsistentStateError{Reason: fmt.Sprintf("verification expected %s, found %s: %s", StateMigrated, insp.State, insp.Reason)}
	}
	if expectedRecords >= 0 && insp.RecordCount != expectedRecords {
		return insp, &RowCountMismatchError{Source: expectedRecords, Copied: insp.RecordCount}
	}
	if err := checkForeignKeys(ctx, q); err != nil {
		return insp, err
	}
	i.log.Debug().Int64("records", insp.RecordCount).Msg("verified migrated schema")
	return insp, nil
}

func checkForeignKeys(ctx context.Context, q sqlite.Querier) error {
	rows, err := q.QueryContext(ctx, `PRAGMA foreign_key_check("health_records")`)
	if err != nil {
		return fmt.Errorf("failed to run foreign key check: %w", err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		return rows.Err()
	}
	var (
		table, parent string
		rowID         sql.NullInt64
		fkid          int64
	)
	if err := rows.Scan(&table, &rowID, &parent, &fkid); err != nil {
		return fmt.Errorf("failed to scan foreign key violation: %w", err)
	}
	_ = rows.Close()

	orphan := &OrphanPatientError{RowID: rowID.Int64, PatientID: -1}
	if rowID.Valid {
		var pid sql.NullInt64
		if err := q.QueryRowContext(ctx,
			"SELECT patient_id FROM health_records WHERE rowid = ?", rowID.Int64).Scan(&pid); err == nil && pid.Valid {
			orphan.PatientID = pid.Int64
		}
	}
	return orphan
}
