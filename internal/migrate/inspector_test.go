// ABOUTME: Tests for schema inspection and post-migration verification
// ABOUTME: Verifies state classification for each table shape and the reported counts
package migrate

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/harper/healthdb/internal/storage/sqlite"
)

func TestInspectClassification(t *testing.T) {
	tests := []struct {
		name  string
		ddl   []string
		state State
	}{
		{
			name:  "legacy",
			ddl:   []string{legacySchema},
			state: StateNotMigrated,
		},
		{
			name:  "normalized",
			ddl:   []string{sqlite.PatientsTable().CreateSQL(), sqlite.RecordsTable().CreateSQL()},
			state: StateMigrated,
		},
		{
			name:  "table-level foreign key",
			ddl:   []string{sqlite.PatientsTable().CreateSQL(), `CREATE TABLE health_records (timestamp TEXT, patient_id INTEGER NOT NULL, value TEXT, FOREIGN KEY (patient_id) REFERENCES patients(id))`},
			state: StateMigrated,
		},
		{
			name:  "both columns",
			ddl:   []string{legacySchema, "ALTER TABLE health_records ADD COLUMN patient_id INTEGER"},
			state: StateInconsistent,
		},
		{
			name:  "patient_id without foreign key",
			ddl:   []string{sqlite.PatientsTable().CreateSQL(), "CREATE TABLE health_records (timestamp TEXT, patient_id INTEGER)"},
			state: StateInconsistent,
		},
		{
			name:  "foreign key to missing patients table",
			ddl:   []string{sqlite.RecordsTable().CreateSQL()},
			state: StateInconsistent,
		},
		{
			name:  "neither column",
			ddl:   []string{"CREATE TABLE health_records (timestamp TEXT, value TEXT)"},
			state: StateInconsistent,
		},
		{
			name:  "leftover rebuild table",
			ddl:   []string{legacySchema, "CREATE TABLE health_records_new (x)"},
			state: StateInconsistent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestDB(t)
			mustExec(t, db, "PRAGMA foreign_keys = OFF")
			for _, stmt := range tt.ddl {
				mustExec(t, db, stmt)
			}

			insp, err := NewInspector(testLogger()).Inspect(context.Background(), db)
			if err != nil {
				t.Fatalf("Inspect() error = %v", err)
			}
			if insp.State != tt.state {
				t.Errorf("State = %s (%s), want %s", insp.State, insp.Reason, tt.state)
			}
			if tt.state == StateInconsistent && insp.Reason == "" {
				t.Error("INCONSISTENT state should carry a reason")
			}
		})
	}
}

func TestInspectCountsAndSample(t *testing.T) {
	rows := []legacyRow{}
	for i, name := range []string{"Zed", "Amy", "Zed", "Kim", "Bo", "Cy", "Di", "Amy"} {
		rows = append(rows, legacyRow{name, "BP", "reading", fmt.Sprint(i)})
	}
	db := newLegacyDB(t, rows...)

	insp, err := NewInspector(testLogger()).Inspect(context.Background(), db)
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if insp.RecordCount != 8 || insp.DistinctPatients != 6 {
		t.Errorf("counts = %d records, %d distinct; want 8 and 6", insp.RecordCount, insp.DistinctPatients)
	}
	if insp.PatientsTable || insp.PatientCount != 0 {
		t.Errorf("patients table = %v with %d rows, want absent", insp.PatientsTable, insp.PatientCount)
	}
	if diff := cmp.Diff([]string{"Zed", "Amy", "Kim", "Bo", "Cy"}, insp.SamplePatients); diff != "" {
		t.Errorf("SamplePatients mismatch (-want +got):\n%s", diff)
	}
}

func TestInspectIgnoresEmptyNames(t *testing.T) {
	db := newLegacyDB(t,
		legacyRow{"", "BP", "reading", "110/70"},
		legacyRow{"Alice", "BP", "reading", "120/80"},
		legacyRow{"", "Sugar", "number", "90"},
	)

	insp, err := NewInspector(testLogger()).Inspect(context.Background(), db)
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if insp.RecordCount != 3 || insp.DistinctPatients != 1 {
		t.Errorf("counts = %d records, %d distinct; want 3 and 1", insp.RecordCount, insp.DistinctPatients)
	}
	if diff := cmp.Diff([]string{"Alice"}, insp.SamplePatients); diff != "" {
		t.Errorf("SamplePatients mismatch (-want +got):\n%s", diff)
	}
}

func TestVerifyDetectsCountMismatch(t *testing.T) {
	db := newLegacyDB(t, aliceBob...)
	if _, err := newTestEngine(db).Run(context.Background(), Options{}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	_, err := NewInspector(testLogger()).Verify(context.Background(), db, 4)
	var mismatch *RowCountMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("Verify() error = %v, want *RowCountMismatchError", err)
	}
	if mismatch.Source != 4 || mismatch.Copied != 3 {
		t.Errorf("mismatch = %+v", mismatch)
	}
}

func TestVerifyRejectsLegacyTable(t *testing.T) {
	db := newLegacyDB(t, aliceBob...)

	_, err := NewInspector(testLogger()).Verify(context.Background(), db, -1)
	var inconsistent *InconsistentStateError
	if !errors.As(err, &inconsistent) {
		t.Fatalf("Verify() error = %v, want *InconsistentStateError", err)
	}
}
