// ABOUTME: Patient storage operations for SQLite
// ABOUTME: Creates, looks up, and lists patients by exact name
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harper/healthdb/internal/models"
)

var (
	// ErrPatientExists is returned when creating a patient whose name is taken.
	ErrPatientExists = errors.New("patient already exists")
	// ErrInvalidPatientName is returned for empty patient names.
	ErrInvalidPatientName = errors.New("patient name must not be empty")
)

// PatientStore handles patient persistence
type PatientStore struct {
	db Querier
}

// NewPatientStore creates a new PatientStore
func NewPatientStore(db Querier) *PatientStore {
	return &PatientStore{db: db}
}

// Create inserts a new patient. The name is stored exactly as given.
func (s *PatientStore) Create(ctx context.Context, name string) (*models.Patient, error) {
	if name == "" {
		return nil, ErrInvalidPatientName
	}

	createdAt := time.Now().UTC().Truncate(time.Second)
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO patients (name, created_at) VALUES (?, ?)",
		name, createdAt.Format(TimestampLayout))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %q", ErrPatientExists, name)
		}
		return nil, fmt.Errorf("failed to insert patient: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read patient id: %w", err)
	}

	return &models.Patient{ID: id, Name: name, CreatedAt: createdAt}, nil
}

// GetByName retrieves a patient by exact name. Returns nil if not found.
func (s *PatientStore) GetByName(ctx context.Context, name string) (*models.Patient, error) {
	var (
		p         models.Patient
		createdAt sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, created_at FROM patients WHERE name = ?", name).
		Scan(&p.ID, &p.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.CreatedAt = parseTimestamp(createdAt.String)
	return &p, nil
}

// List returns all patients sorted alphabetically.
func (s *PatientStore) List(ctx context.Context) ([]models.Patient, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, created_at FROM patients ORDER BY name ASC")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var patients []models.Patient
	for rows.Next() {
		var (
			p         models.Patient
			createdAt sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Name, &createdAt); err != nil {
			return nil, err
		}
		p.CreatedAt = parseTimestamp(createdAt.String)
		patients = append(patients, p)
	}
	return patients, rows.Err()
}

// Count returns the number of patients.
func (s *PatientStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM patients").Scan(&n)
	return n, err
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	TimestampLayout,
	"2006-01-02",
}

// parseTimestamp accepts the formats written by this tool and by older
// releases (ISO 8601 with and without offset, CURRENT_TIMESTAMP).
func parseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
