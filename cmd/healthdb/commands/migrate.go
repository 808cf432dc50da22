// ABOUTME: CLI command to normalize patient names into the patients table
// ABOUTME: Drives the migration engine and renders its report
package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/harper/healthdb/internal/migrate"
)

var (
	migrateBackup bool
	migrateDryRun bool
	migrateForce  bool
	migrateStatus bool
)

// NewMigrateCmd creates the migrate command
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Move patient names into a patients table",
		Long: `Migrate health_records from a free-text patient column to a
patient_id foreign key referencing a new patients table.

One patient is created per distinct name (exact match, case-sensitive),
then health_records is rebuilt with patient_id in place of patient.
Everything after the optional backup runs in one transaction: any
failure leaves the database exactly as it was.

Running migrate on an already migrated database does nothing. Use
--force to re-verify a migrated database or to rebuild one left
inconsistent by an interrupted run.

Exit codes:
  0  success or nothing to do
  2  schema could not be read
  3  backup failed
  4  a record references a missing patient
  5  row count changed during the copy
  6  already migrated (rebuild refused)
  7  inconsistent schema

Examples:
  healthdb migrate --dry-run
  healthdb migrate --backup
  healthdb migrate --status
  healthdb migrate --force --format json`,
		Args: cobra.NoArgs,
		RunE: runMigrate,
	}

	cmd.Flags().BoolVar(&migrateBackup, "backup", false, "Copy the database file before migrating")
	cmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "Show what would change without writing anything")
	cmd.Flags().BoolVar(&migrateForce, "force", false, "Verify a migrated database or rebuild an inconsistent one")
	cmd.Flags().BoolVar(&migrateStatus, "status", false, "Only report the current migration state")

	return cmd
}

func runMigrate(cmd *cobra.Command, args []string) error {
	rt, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	opts := migrate.Options{
		DryRun:     migrateDryRun,
		Backup:     migrateBackup,
		Force:      migrateForce,
		StatusOnly: migrateStatus,
	}

	// Previews never need a writable handle.
	readOnly := opts.DryRun || opts.StatusOnly
	db, err := rt.open(readOnly)
	if err != nil {
		if isNotFound(err) {
			return &migrate.SchemaReadError{Err: err}
		}
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = db.Close() }()

	engine := migrate.NewEngine(db, migrate.EngineConfig{
		Logger:       rt.log.Logger,
		BeginRetries: rt.cfg.BeginRetries,
		RetryDelay:   rt.cfg.RetryDelay,
	})

	report, runErr := engine.Run(cmd.Context(), opts)
	if structured() {
		if err := writeStructured(cmd.OutOrStdout(), report); err != nil {
			return err
		}
	} else if !quiet {
		printReport(cmd.OutOrStdout(), report)
	}
	return runErr
}

func printReport(w io.Writer, r *migrate.Report) {
	for _, warning := range r.Warnings {
		fmt.Fprintf(w, "%s %s\n", yellow("Warning:"), warning)
	}

	switch r.Outcome {
	case migrate.OutcomeStatus:
		printInspection(w, r.Before)
	case migrate.OutcomeAlreadyMigrated:
		fmt.Fprintf(w, "%s No action needed.\n", green("Database is already migrated."))
		printInspection(w, r.Before)
	case migrate.OutcomeVerified:
		fmt.Fprintf(w, "%s\n", green("Migrated schema verified."))
		printInspection(w, r.After)
	case migrate.OutcomeDryRun:
		fmt.Fprintf(w, "%s\n", bold("DRY RUN: no changes made"))
		printPlan(w, r.Plan)
	case migrate.OutcomeMigrated:
		fmt.Fprintf(w, "%s\n", green("Migration complete."))
		if r.BackupPath != "" {
			fmt.Fprintf(w, "   Backup: %s\n", r.BackupPath)
		}
		fmt.Fprintf(w, "   Patients created: %d\n", r.PatientsCreated)
		fmt.Fprintf(w, "   Records migrated: %d\n", r.RecordsCopied)
		if len(r.IndexesCreated) > 0 {
			fmt.Fprintf(w, "   Indexes recreated: %s\n", strings.Join(r.IndexesCreated, ", "))
		}
		fmt.Fprintf(w, "   Duration: %s\n", r.Duration().Round(time.Millisecond))
	case migrate.OutcomeFailed:
		fmt.Fprintf(w, "%s at phase %s; no changes were committed.\n", red("Migration failed"), r.Phase)
		if r.BackupPath != "" {
			fmt.Fprintf(w, "   Backup: %s\n", r.BackupPath)
		}
	}
}

func printInspection(w io.Writer, insp *migrate.Inspection) {
	if insp == nil {
		return
	}
	fmt.Fprintf(w, "   State: %s\n", insp.State)
	if insp.Reason != "" {
		fmt.Fprintf(w, "   Reason: %s\n", insp.Reason)
	}
	fmt.Fprintf(w, "   Records: %d\n", insp.RecordCount)
	if insp.PatientsTable {
		fmt.Fprintf(w, "   Patients: %d\n", insp.PatientCount)
	}
	if insp.State == migrate.StateNotMigrated {
		fmt.Fprintf(w, "   Unique patients: %d\n", insp.DistinctPatients)
	}
	if len(insp.SamplePatients) > 0 {
		fmt.Fprintf(w, "   Patient names: %s\n", joinNames(insp.SamplePatients, insp.DistinctPatients, 5))
	}
}

func printPlan(w io.Writer, p *migrate.Plan) {
	if p == nil {
		return
	}
	fmt.Fprintf(w, "   Records to migrate: %d\n", p.RecordsToMigrate)
	fmt.Fprintf(w, "   Patients to create: %d\n", len(p.PatientsToCreate))
	if len(p.PatientsToCreate) > 0 {
		fmt.Fprintf(w, "   Patient names: %s\n", joinNames(p.PatientsToCreate, int64(len(p.PatientsToCreate)), 5))
	}
	if p.ExistingPatients > 0 {
		fmt.Fprintf(w, "   Existing patients reused: %d\n", p.ExistingPatients)
	}
	if p.UnmappableRecords > 0 {
		fmt.Fprintf(w, "   %s %d record(s) have an empty patient name and would abort the migration\n",
			red("!"), p.UnmappableRecords)
	}
	if p.DiscardsPatientID {
		fmt.Fprintf(w, "   %s the stale patient_id column will be discarded\n", yellow("!"))
	}
	if p.DropsLeftoverTable {
		fmt.Fprintf(w, "   %s the leftover rebuild table will be dropped\n", yellow("!"))
	}
	fmt.Fprintf(w, "\nNew table:\n%s\n", p.CreateTable)
	for _, stmt := range p.Indexes {
		fmt.Fprintf(w, "%s\n", stmt)
	}
	for _, name := range p.DroppedIndexes {
		fmt.Fprintf(w, "Dropped index: %s\n", name)
	}
}
