// ABOUTME: Rebuilds the record table with a patient_id foreign key via create, copy, and swap
// ABOUTME: Every step runs inside the caller's transaction so a failure leaves the legacy table intact
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/harper/healthdb/internal/storage/sqlite"
	"github.com/rs/zerolog"
)

const patientMapTable = "migrate_patient_map"

// RebuildPlan describes the table swap. Target is named RebuildTableName until
// it is renamed into place.
type RebuildPlan struct {
	Source *sqlite.Table
	Target sqlite.Table
	// Indexes are the user indexes of the source, adapted to patient_id.
	Indexes []sqlite.Index
	// DroppedIndexes were defined only on the stale patient_id column.
	DroppedIndexes []string
	// DiscardStalePatientID is set when a half-migrated patient_id column is thrown away.
	DiscardStalePatientID bool
	// DropLeftover is set when a rebuild table from an earlier run must be dropped first.
	DropLeftover bool
}

// CreateSQL is the DDL of the rebuilt table under its final name.
func (p *RebuildPlan) CreateSQL() string {
	final := p.Target
	final.Name = sqlite.RecordsTableName
	return final.CreateSQL()
}

// IndexSQL is the DDL of the recreated indexes.
func (p *RebuildPlan) IndexSQL() []string {
	out := make([]string, len(p.Indexes))
	for i, idx := range p.Indexes {
		out[i] = idx.CreateSQL()
	}
	return out
}

// RebuildResult reports what Execute did.
type RebuildResult struct {
	SourceRows     int64
	CopiedRows     int64
	IndexesCreated []string
}

// Rebuilder performs the create, copy, and swap of the record table.
type Rebuilder struct {
	log zerolog.Logger
}

// NewRebuilder creates a Rebuilder.
func NewRebuilder(log zerolog.Logger) *Rebuilder {
	return &Rebuilder{log: log}
}

// Plan reads the current record table and builds the target definition.
//
// The patient column is replaced in place by patient_id. With force, a stale
// patient_id column and a leftover rebuild table are discarded; without it
// they are an *InconsistentStateError. A table with no patient column is an
// *AlreadyMigratedError when it has patient_id.
func (r *Rebuilder) Plan(ctx context.Context, q sqlite.Querier, force bool) (*RebuildPlan, error) {
	src, err := sqlite.ReadTable(ctx, q, sqlite.RecordsTableName)
	if err != nil {
		return nil, &SchemaReadError{Err: err}
	}

	if !src.HasColumn(sqlite.LegacyPatientColumn) {
		if src.HasColumn(sqlite.PatientIDColumn) {
			return nil, &AlreadyMigratedError{Table: sqlite.RecordsTableName}
		}
		return nil, &InconsistentStateError{Reason: "record table has neither patient nor patient_id column"}
	}

	leftover, err := sqlite.TableExists(ctx, q, RebuildTableName)
	if err != nil {
		return nil, &SchemaReadError{Err: err}
	}
	stale := src.HasColumn(sqlite.PatientIDColumn)
	if (stale || leftover) && !force {
		reason := "both patient and patient_id columns are present"
		if leftover {
			reason = fmt.Sprintf("leftover table %s from an interrupted run", RebuildTableName)
		}
		return nil, &InconsistentStateError{Reason: reason + "; rerun with --force to rebuild from the patient column"}
	}

	plan := &RebuildPlan{
		Source:                src,
		DiscardStalePatientID: stale,
		DropLeftover:          leftover,
	}
	if plan.Target, err = targetTable(src); err != nil {
		return nil, err
	}

	if err := checkTriggers(ctx, q); err != nil {
		return nil, err
	}

	indexes, err := sqlite.ReadIndexes(ctx, q, sqlite.RecordsTableName)
	if err != nil {
		return nil, &SchemaReadError{Err: err}
	}
	for _, info := range indexes {
		if info.Partial || info.Expression {
			return nil, &InconsistentStateError{Reason: fmt.Sprintf("index %s is partial or uses expressions and cannot be adapted", info.Name)}
		}
		idx, keep := adaptIndex(info.Index)
		if !keep {
			plan.DroppedIndexes = append(plan.DroppedIndexes, info.Name)
			continue
		}
		plan.Indexes = append(plan.Indexes, idx)
	}

	return plan, nil
}

func targetTable(src *sqlite.Table) (sqlite.Table, error) {
	target := sqlite.Table{Name: RebuildTableName}
	for _, col := range src.Columns {
		switch col.Name {
		case sqlite.PatientIDColumn:
			continue
		case sqlite.LegacyPatientColumn:
			fk := sqlite.PatientIDColumnDef()
			fk.Unique = col.Unique
			target.Columns = append(target.Columns, fk)
		default:
			target.Columns = append(target.Columns, col)
		}
	}

	var err error
	if target.PrimaryKey, err = renameConstraint(src.PrimaryKey, "primary key"); err != nil {
		return target, err
	}
	for _, u := range src.Uniques {
		cols, err := renameConstraint(u, "unique constraint")
		if err != nil {
			return target, err
		}
		target.Uniques = append(target.Uniques, cols)
	}
	return target, nil
}

// renameConstraint maps patient to patient_id in a constraint's column list.
// A constraint on a stale patient_id column cannot be carried over.
func renameConstraint(cols []string, what string) ([]string, error) {
	if len(cols) == 0 {
		return nil, nil
	}
	out := make([]string, len(cols))
	for i, c := range cols {
		switch c {
		case sqlite.PatientIDColumn:
			return nil, &InconsistentStateError{Reason: fmt.Sprintf("%s on stale patient_id column cannot be carried over", what)}
		case sqlite.LegacyPatientColumn:
			out[i] = sqlite.PatientIDColumn
		default:
			out[i] = c
		}
	}
	return out, nil
}

// adaptIndex rewrites patient to patient_id. Indexes on a stale patient_id
// column are dropped with the legacy table and not recreated.
func adaptIndex(idx sqlite.Index) (sqlite.Index, bool) {
	out := idx
	out.Columns = make([]sqlite.IndexColumn, len(idx.Columns))
	for i, c := range idx.Columns {
		switch c.Name {
		case sqlite.PatientIDColumn:
			return idx, false
		case sqlite.LegacyPatientColumn:
			c.Name = sqlite.PatientIDColumn
			c.Collation = ""
		}
		out.Columns[i] = c
	}
	return out, true
}

func checkTriggers(ctx context.Context, q sqlite.Querier) error {
	var n int
	if err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'trigger' AND tbl_name = ?",
		sqlite.RecordsTableName).Scan(&n); err != nil {
		return &SchemaReadError{Err: err}
	}
	if n > 0 {
		return &InconsistentStateError{Reason: fmt.Sprintf("%d trigger(s) on %s would be lost by the rebuild", n, sqlite.RecordsTableName)}
	}
	return nil
}

// Execute runs the rebuild inside tx. mapping must resolve every patient name
// in the legacy table; the first record that does not resolve aborts with
// *OrphanPatientError before anything is dropped.
func (r *Rebuilder) Execute(ctx context.Context, tx sqlite.Querier, plan *RebuildPlan, mapping map[string]int64) (*RebuildResult, error) {
	if plan.DropLeftover {
		r.log.Warn().Str("table", RebuildTableName).Msg("dropping leftover rebuild table")
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+sqlite.QuoteIdent(RebuildTableName)); err != nil {
			return nil, fmt.Errorf("failed to drop leftover table: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, plan.Target.CreateSQL()); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", RebuildTableName, err)
	}

	if err := loadMapping(ctx, tx, mapping); err != nil {
		return nil, err
	}
	if err := findOrphan(ctx, tx); err != nil {
		return nil, err
	}

	seq, err := readSequence(ctx, tx, plan.Target)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, copySQL(plan)); err != nil {
		return nil, fmt.Errorf("failed to copy records: %w", err)
	}

	result := &RebuildResult{}
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM health_records").Scan(&result.SourceRows); err != nil {
		return nil, fmt.Errorf("failed to count source records: %w", err)
	}
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+sqlite.QuoteIdent(RebuildTableName)).Scan(&result.CopiedRows); err != nil {
		return nil, fmt.Errorf("failed to count copied records: %w", err)
	}
	if result.SourceRows != result.CopiedRows {
		return nil, &RowCountMismatchError{Source: result.SourceRows, Copied: result.CopiedRows}
	}

	swap := []string{
		"DROP TABLE " + sqlite.QuoteIdent(sqlite.RecordsTableName),
		"ALTER TABLE " + sqlite.QuoteIdent(RebuildTableName) + " RENAME TO " + sqlite.QuoteIdent(sqlite.RecordsTableName),
	}
	for _, stmt := range swap {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to swap tables: %w", err)
		}
	}

	if err := restoreSequence(ctx, tx, seq); err != nil {
		return nil, err
	}

	for _, idx := range plan.Indexes {
		if _, err := tx.ExecContext(ctx, idx.CreateSQL()); err != nil {
			return nil, fmt.Errorf("failed to recreate index %s: %w", idx.Name, err)
		}
		result.IndexesCreated = append(result.IndexesCreated, idx.Name)
	}

	if _, err := tx.ExecContext(ctx, "DROP TABLE temp."+sqlite.QuoteIdent(patientMapTable)); err != nil {
		return nil, fmt.Errorf("failed to drop patient map: %w", err)
	}

	r.log.Info().
		Int64("records", result.CopiedRows).
		Strs("indexes", result.IndexesCreated).
		Msg("rebuilt record table")
	return result, nil
}

func loadMapping(ctx context.Context, tx sqlite.Querier, mapping map[string]int64) error {
	stmts := []string{
		"DROP TABLE IF EXISTS temp." + sqlite.QuoteIdent(patientMapTable),
		"CREATE TEMP TABLE " + sqlite.QuoteIdent(patientMapTable) + " (name TEXT PRIMARY KEY, patient_id INTEGER NOT NULL)",
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create patient map: %w", err)
		}
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO temp."+sqlite.QuoteIdent(patientMapTable)+" (name, patient_id) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare patient map insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for name, id := range mapping {
		if _, err := stmt.ExecContext(ctx, name, id); err != nil {
			return fmt.Errorf("failed to load patient map: %w", err)
		}
	}
	return nil
}

func findOrphan(ctx context.Context, tx sqlite.Querier) error {
	var (
		rowID   int64
		patient sql.NullString
	)
	err := tx.QueryRowContext(ctx, `
		SELECT hr.rowid, hr.patient
		FROM health_records hr
		LEFT JOIN temp.migrate_patient_map m ON m.name = hr.patient
		WHERE m.patient_id IS NULL
		ORDER BY hr.rowid
		LIMIT 1
	`).Scan(&rowID, &patient)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to check for orphan records: %w", err)
	}
	return &OrphanPatientError{RowID: rowID, Patient: patient.String}
}

// copySQL builds INSERT ... SELECT in ascending rowid order. When the target
// has no INTEGER PRIMARY KEY the source rowid is copied explicitly so it
// survives the swap.
func copySQL(plan *RebuildPlan) string {
	var (
		dst []string
		src []string
	)
	if !hasRowIDAlias(plan.Target) {
		dst = append(dst, "rowid")
		src = append(src, "hr.rowid")
	}
	for _, col := range plan.Target.Columns {
		dst = append(dst, sqlite.QuoteIdent(col.Name))
		if col.Name == sqlite.PatientIDColumn {
			src = append(src, "m.patient_id")
			continue
		}
		src = append(src, "hr."+sqlite.QuoteIdent(col.Name))
	}

	return fmt.Sprintf(`INSERT INTO %s (%s)
SELECT %s
FROM health_records hr
JOIN temp.%s m ON m.name = hr.patient
ORDER BY hr.rowid`,
		sqlite.QuoteIdent(RebuildTableName),
		strings.Join(dst, ", "),
		strings.Join(src, ", "),
		sqlite.QuoteIdent(patientMapTable))
}

func hasRowIDAlias(t sqlite.Table) bool {
	for _, c := range t.Columns {
		if c.PrimaryKey && strings.EqualFold(c.Type, "INTEGER") {
			return true
		}
	}
	return false
}

type sequence struct {
	valid bool
	seq   int64
}

// readSequence captures the AUTOINCREMENT high-water mark of the legacy table.
func readSequence(ctx context.Context, tx sqlite.Querier, target sqlite.Table) (sequence, error) {
	auto := false
	for _, c := range target.Columns {
		auto = auto || c.AutoIncrement
	}
	if !auto {
		return sequence{}, nil
	}

	var s sequence
	err := tx.QueryRowContext(ctx,
		"SELECT seq FROM sqlite_sequence WHERE name = ?", sqlite.RecordsTableName).Scan(&s.seq)
	if errors.Is(err, sql.ErrNoRows) {
		return sequence{}, nil
	}
	if err != nil {
		return sequence{}, fmt.Errorf("failed to read autoincrement sequence: %w", err)
	}
	s.valid = true
	return s, nil
}

func restoreSequence(ctx context.Context, tx sqlite.Querier, s sequence) error {
	if !s.valid {
		return nil
	}
	res, err := tx.ExecContext(ctx,
		"UPDATE sqlite_sequence SET seq = MAX(seq, ?) WHERE name = ?", s.seq, sqlite.RecordsTableName)
	if err != nil {
		return fmt.Errorf("failed to restore autoincrement sequence: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO sqlite_sequence (name, seq) VALUES (?, ?)", sqlite.RecordsTableName, s.seq); err != nil {
		return fmt.Errorf("failed to restore autoincrement sequence: %w", err)
	}
	return nil
}
