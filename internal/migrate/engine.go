// ABOUTME: Migration engine sequencing inspection, backup, derivation, rebuild, and verification
// ABOUTME: Owns dry-run, force, and idempotency policy; all writes share one transaction
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harper/healthdb/internal/storage/sqlite"
	"github.com/harper/healthdb/internal/util"
	"github.com/rs/zerolog"
)

// Options selects what a run does.
type Options struct {
	DryRun     bool `json:"dry_run" yaml:"dry_run"`
	Backup     bool `json:"backup" yaml:"backup"`
	Force      bool `json:"force" yaml:"force"`
	StatusOnly bool `json:"status_only" yaml:"status_only"`
}

// EngineConfig tunes an Engine. The zero value is usable.
type EngineConfig struct {
	Logger zerolog.Logger
	// BeginRetries is how many times starting the write transaction is retried
	// while the database is locked.
	BeginRetries int
	RetryDelay   time.Duration
}

// Engine migrates one database. It holds its own handle; there is no shared
// connection state.
type Engine struct {
	db  *sqlite.DB
	cfg EngineConfig
	log zerolog.Logger

	inspector *Inspector
	backups   *BackupManager
	deriver   *PatientDeriver
	rebuilder *Rebuilder

	phases *phaseMachine
}

// NewEngine creates an engine over db.
func NewEngine(db *sqlite.DB, cfg EngineConfig) *Engine {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 100 * time.Millisecond
	}
	return &Engine{
		db:        db,
		cfg:       cfg,
		log:       cfg.Logger,
		inspector: NewInspector(cfg.Logger),
		backups:   NewBackupManager(cfg.Logger),
		deriver:   NewPatientDeriver(cfg.Logger),
		rebuilder: NewRebuilder(cfg.Logger),
		phases:    newPhaseMachine(),
	}
}

// Phase returns the phase reached by the last run.
func (e *Engine) Phase() Phase {
	return e.phases.current
}

// Inspect reads the current migration state.
func (e *Engine) Inspect(ctx context.Context) (*Inspection, error) {
	return e.inspector.Inspect(ctx, e.db)
}

// Run executes one migration run. The returned report is never nil; on error
// it records how far the run got.
func (e *Engine) Run(ctx context.Context, opts Options) (*Report, error) {
	e.phases = newPhaseMachine()
	report := &Report{
		RunID:     uuid.NewString(),
		DBPath:    e.db.Path(),
		Options:   opts,
		StartedAt: time.Now().UTC(),
	}
	log := e.log.With().Str("run_id", report.RunID).Logger()

	err := e.run(ctx, log, opts, report)

	report.FinishedAt = time.Now().UTC()
	if err != nil {
		e.phases.fail()
		report.Outcome = OutcomeFailed
		report.Error = err.Error()
		log.Error().Err(err).Str("phase", string(report.Phase)).Msg("migration failed")
	}
	report.Phase = e.phases.current
	return report, err
}

func (e *Engine) run(ctx context.Context, log zerolog.Logger, opts Options, report *Report) error {
	insp, err := e.inspector.Inspect(ctx, e.db)
	if err != nil {
		return err
	}
	report.Before = insp
	if err := e.advance(report, PhaseInspected); err != nil {
		return err
	}
	log.Info().Str("state", string(insp.State)).Int64("records", insp.RecordCount).Msg("inspected database")

	if opts.StatusOnly {
		report.Outcome = OutcomeStatus
		return e.advance(report, PhaseDone)
	}

	switch insp.State {
	case StateMigrated:
		if !opts.Force {
			report.Outcome = OutcomeAlreadyMigrated
			log.Info().Msg("database is already migrated")
			return e.advance(report, PhaseDone)
		}
		after, err := e.inspector.Verify(ctx, e.db, -1)
		if err != nil {
			return err
		}
		report.After = after
		report.Outcome = OutcomeVerified
		if err := e.advance(report, PhaseVerified); err != nil {
			return err
		}
		return e.advance(report, PhaseDone)
	case StateInconsistent:
		if !opts.Force {
			return &InconsistentStateError{Reason: insp.Reason + "; rerun with --force to rebuild from the patient column"}
		}
		log.Warn().Str("reason", insp.Reason).Msg("forcing migration of inconsistent schema")
	}

	rebuild, err := e.rebuilder.Plan(ctx, e.db, opts.Force)
	if err != nil {
		return err
	}
	deriv, err := e.deriver.Plan(ctx, e.db)
	if err != nil {
		return err
	}
	report.Plan = &Plan{
		RecordsToMigrate:   insp.RecordCount,
		PatientsToCreate:   deriv.Created,
		ExistingPatients:   deriv.Existing,
		UnmappableRecords:  deriv.SkippedRows,
		CreateTable:        rebuild.CreateSQL(),
		Indexes:            rebuild.IndexSQL(),
		DroppedIndexes:     rebuild.DroppedIndexes,
		DiscardsPatientID:  rebuild.DiscardStalePatientID,
		DropsLeftoverTable: rebuild.DropLeftover,
	}

	if opts.DryRun {
		report.Outcome = OutcomeDryRun
		log.Info().
			Int64("records", insp.RecordCount).
			Int("patients_to_create", len(deriv.Created)).
			Msg("dry run, no changes made")
		return e.advance(report, PhaseDone)
	}

	if opts.Backup {
		if err := e.backup(ctx, report); err != nil {
			return err
		}
	} else {
		report.Warnings = append(report.Warnings, WarningNoBackup)
		log.Warn().Msg(WarningNoBackup)
	}
	if err := e.advance(report, PhaseBackedUp); err != nil {
		return err
	}

	if err := e.migrate(ctx, report, rebuild, insp.RecordCount); err != nil {
		return err
	}

	after, err := e.inspector.Inspect(ctx, e.db)
	if err != nil {
		return err
	}
	report.After = after
	report.Outcome = OutcomeMigrated
	log.Info().
		Int("patients_created", report.PatientsCreated).
		Int64("records", report.RecordsCopied).
		Msg("migration complete")
	return e.advance(report, PhaseDone)
}

func (e *Engine) backup(ctx context.Context, report *Report) error {
	mode, err := sqlite.JournalMode(ctx, e.db)
	if err != nil {
		return &BackupError{Path: e.db.Path(), Err: err}
	}
	if mode == "wal" {
		if _, err := e.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			return &BackupError{Path: e.db.Path(), Err: fmt.Errorf("failed to checkpoint WAL: %w", err)}
		}
	}
	path, err := e.backups.Create(e.db.Path())
	if err != nil {
		return err
	}
	report.BackupPath = path
	return nil
}

// migrate runs derivation, rebuild, and verification in one transaction.
func (e *Engine) migrate(ctx context.Context, report *Report, plan *RebuildPlan, expected int64) error {
	tx, err := e.begin(ctx)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	deriv, err := e.deriver.DeriveAndCreate(ctx, tx)
	if err != nil {
		return err
	}
	report.PatientsCreated = len(deriv.Created)
	if err := e.advance(report, PhaseDerived); err != nil {
		return err
	}

	result, err := e.rebuilder.Execute(ctx, tx, plan, deriv.Mapping)
	if err != nil {
		return err
	}
	report.RecordsCopied = result.CopiedRows
	report.IndexesCreated = result.IndexesCreated
	if err := e.advance(report, PhaseRebuilt); err != nil {
		return err
	}

	if _, err := e.inspector.Verify(ctx, tx, expected); err != nil {
		return err
	}
	if err := e.advance(report, PhaseVerified); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	committed = true
	return nil
}

func (e *Engine) begin(ctx context.Context) (*sql.Tx, error) {
	var tx *sql.Tx
	err := util.Retry(ctx, e.cfg.BeginRetries, e.cfg.RetryDelay, sqlite.IsBusy, func() error {
		var err error
		tx, err = e.db.BeginTx(ctx)
		if err != nil {
			e.log.Debug().Err(err).Msg("begin transaction failed")
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to begin migration transaction: %w", err)
	}
	return tx, nil
}

func (e *Engine) advance(report *Report, to Phase) error {
	if err := e.phases.advance(to); err != nil {
		return err
	}
	report.Phase = to
	return nil
}
