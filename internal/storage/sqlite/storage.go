// ABOUTME: Store bundles the patient and record stores over one database handle
// ABOUTME: Guards application access against databases that still need migration
package sqlite

import (
	"context"
	"fmt"
)

// Store manages persistent health data using SQLite
type Store struct {
	db       *DB
	Patients *PatientStore
	Records  *RecordStore
}

// NewStore wraps an open database. Writable handles get the normalized schema
// created if missing; read-only handles must already be normalized.
func NewStore(ctx context.Context, db *DB) (*Store, error) {
	if db.ReadOnly() {
		if err := checkNormalized(ctx, db); err != nil {
			return nil, err
		}
	} else if err := EnsureSchema(ctx, db); err != nil {
		return nil, err
	}

	return &Store{
		db:       db,
		Patients: NewPatientStore(db),
		Records:  NewRecordStore(db),
	}, nil
}

// OpenStore opens the database at path and wraps it in a Store.
func OpenStore(ctx context.Context, path string, opts Options) (*Store, error) {
	db, err := Open(path, opts)
	if err != nil {
		return nil, err
	}
	store, err := NewStore(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// DB returns the underlying database handle
func (s *Store) DB() *DB {
	return s.db
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func checkNormalized(ctx context.Context, q Querier) error {
	for _, table := range []string{RecordsTableName, PatientsTableName} {
		exists, err := TableExists(ctx, q, table)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("table %s does not exist", table)
		}
		if table != RecordsTableName {
			continue
		}
		cols, err := ColumnNames(ctx, q, RecordsTableName)
		if err != nil {
			return err
		}
		if !contains(cols, PatientIDColumn) {
			return ErrNotMigrated
		}
	}
	return nil
}
