// ABOUTME: Derives the distinct patient set from legacy records
// ABOUTME: Inserts only names missing from the patients table and returns the full name to id mapping
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/harper/healthdb/internal/storage/sqlite"
	"github.com/rs/zerolog"
)

// Derivation is the result of matching legacy patient names against the
// patients table.
type Derivation struct {
	// Observed holds every distinct non-empty name, in order of first appearance.
	Observed []string
	// Existing is how many observed names already had a patient row.
	Existing int
	// Created holds the names inserted, or to be inserted when planning.
	Created []string
	// SkippedRows counts records whose patient is NULL or empty.
	SkippedRows int64
	// Mapping resolves every observed name that has a patient row.
	Mapping map[string]int64
}

// PatientDeriver materializes patients from legacy records.
type PatientDeriver struct {
	log zerolog.Logger
	now func() time.Time
}

// NewPatientDeriver creates a PatientDeriver.
func NewPatientDeriver(log zerolog.Logger) *PatientDeriver {
	return &PatientDeriver{log: log, now: time.Now}
}

// Plan computes the derivation without writing. Mapping only covers names
// that already exist.
func (d *PatientDeriver) Plan(ctx context.Context, q sqlite.Querier) (*Derivation, error) {
	observed, err := observedNames(ctx, q)
	if err != nil {
		return nil, err
	}

	var skipped int64
	if err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM health_records WHERE patient IS NULL OR patient = ''").Scan(&skipped); err != nil {
		return nil, fmt.Errorf("failed to count records without a patient: %w", err)
	}

	existing, err := existingPatients(ctx, q)
	if err != nil {
		return nil, err
	}

	deriv := &Derivation{
		Observed:    observed,
		SkippedRows: skipped,
		Mapping:     make(map[string]int64, len(observed)),
	}
	for _, name := range observed {
		if id, ok := existing[name]; ok {
			deriv.Mapping[name] = id
			deriv.Existing++
			continue
		}
		deriv.Created = append(deriv.Created, name)
	}
	return deriv, nil
}

// DeriveAndCreate inserts a patient row for every observed name that lacks
// one and returns the complete mapping. The patients table is created when
// absent. Running it again inserts nothing.
func (d *PatientDeriver) DeriveAndCreate(ctx context.Context, q sqlite.Querier) (*Derivation, error) {
	if _, err := q.ExecContext(ctx, sqlite.PatientsTable().CreateIfNotExistsSQL()); err != nil {
		return nil, fmt.Errorf("failed to create patients table: %w", err)
	}

	deriv, err := d.Plan(ctx, q)
	if err != nil {
		return nil, err
	}
	if deriv.SkippedRows > 0 {
		d.log.Warn().Int64("rows", deriv.SkippedRows).Msg("records without a patient name cannot be mapped")
	}
	if len(deriv.Created) == 0 {
		d.log.Debug().Int("existing", deriv.Existing).Msg("no new patients to create")
		return deriv, nil
	}

	stmt, err := q.PrepareContext(ctx, "INSERT INTO patients (name, created_at) VALUES (?, ?)")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare patient insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	createdAt := d.now().UTC().Format(sqlite.TimestampLayout)
	for _, name := range deriv.Created {
		res, err := stmt.ExecContext(ctx, name, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to create patient %q: %w", name, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to read id of patient %q: %w", name, err)
		}
		deriv.Mapping[name] = id
	}

	d.log.Info().
		Int("created", len(deriv.Created)).
		Int("existing", deriv.Existing).
		Msg("derived patients")
	return deriv, nil
}

func observedNames(ctx context.Context, q sqlite.Querier) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT patient FROM health_records
		WHERE patient IS NOT NULL AND patient <> ''
		GROUP BY patient COLLATE BINARY
		ORDER BY MIN(rowid)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to read patient names: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan patient name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func existingPatients(ctx context.Context, q sqlite.Querier) (map[string]int64, error) {
	exists, err := sqlite.TableExists(ctx, q, sqlite.PatientsTableName)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64)
	if !exists {
		return out, nil
	}

	rows, err := q.QueryContext(ctx, "SELECT id, name FROM patients")
	if err != nil {
		return nil, fmt.Errorf("failed to read patients: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			id   int64
			name sql.NullString
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("failed to scan patient: %w", err)
		}
		if name.Valid {
			out[name.String] = id
		}
	}
	return out, rows.Err()
}
