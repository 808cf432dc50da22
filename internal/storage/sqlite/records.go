// ABOUTME: Health record storage operations for SQLite
// ABOUTME: Resolves patient names to ids on write and joins them back on read
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

// ErrPatientNotFound is returned when a record names a patient that does not exist.
var ErrPatientNotFound = errors.New("patient not found")

// RecordTimeLayout is how record timestamps are written: UTC with a fixed
// nanosecond width, so text ordering matches time ordering.
const RecordTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// RecordStore handles health record persistence
type RecordStore struct {
	db *DB
}

// NewRecordStore creates a new RecordStore
func NewRecordStore(db *DB) *RecordStore {
	return &RecordStore{db: db}
}

// Save stores a record for an existing patient and returns its id.
func (s *RecordStore) Save(ctx context.Context, record *models.HealthRecord) (int64, error) {
	patientID, err := lookupPatientID(ctx, s.db, record.Patient)
	if err != nil {
		return 0, err
	}
	return insertRecord(ctx, s.db, patientID, record)
}

// SaveBatch stores all records for one patient atomically: either every
// record is written or none is.
func (s *RecordStore) SaveBatch(ctx context.Context, patient string, records []models.HealthRecord) ([]int64, error) {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	patientID, err := lookupPatientID(ctx, tx, patient)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(records))
	for i := range records {
		id, err := insertRecord(ctx, tx, patientID, &records[i])
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit records: %w", err)
	}
	return ids, nil
}

// List returns records newest first, with the patient name resolved.
func (s *RecordStore) List(ctx context.Context, filter models.RecordFilter) ([]models.HealthRecord, error) {
	var (
		where []string
		args  []any
	)
	if filter.Patient != "" {
		where = append(where, "p.name = ?")
		args = append(args, filter.Patient)
	}
	if filter.RecordType != "" {
		where = append(where, "hr.record_type = ?")
		args = append(args, filter.RecordType)
	}

	query := `
		SELECT hr.rowid, hr.timestamp, p.name, hr.patient_id, hr.record_type, hr.data_type, hr.value
		FROM health_records hr
		INNER JOIN patients p ON hr.patient_id = p.id`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	query += "\n\t\tORDER BY hr.timestamp DESC, hr.rowid DESC"
	if filter.Limit > 0 {
		query += "\n\t\tLIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var records []models.HealthRecord
	for rows.Next() {
		var (
			r          models.HealthRecord
			timestamp  sql.NullString
			recordType sql.NullString
			dataType   sql.NullString
			value      sql.NullString
		)
		if err := rows.Scan(&r.ID, &timestamp, &r.Patient, &r.PatientID, &recordType, &dataType, &value); err != nil {
			return nil, err
		}
		r.Timestamp = parseTimestamp(timestamp.String)
		r.RecordType = recordType.String
		r.DataType = dataType.String
		r.Value = value.String
		records = append(records, r)
	}
	return records, rows.Err()
}

// Count returns the number of records.
func (s *RecordStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM health_records").Scan(&n)
	return n, err
}

func lookupPatientID(ctx context.Context, q Querier, name string) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, "SELECT id FROM patients WHERE name = ?", name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %q", ErrPatientNotFound, name)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up patient: %w", err)
	}
	return id, nil
}

func insertRecord(ctx context.Context, q Querier, patientID int64, record *models.HealthRecord) (int64, error) {
	timestamp := record.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO health_records (timestamp, patient_id, record_type, data_type, value)
		VALUES (?, ?, ?, ?, ?)
	`, timestamp.UTC().Format(RecordTimeLayout), patientID, record.RecordType, record.DataType, record.Value)
	if err != nil {
		return 0, fmt.Errorf("failed to insert record: %w", err)
	}
	return res.LastInsertId()
}
