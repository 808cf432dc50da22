// ABOUTME: CLI command to show the migration status of the database
// ABOUTME: Read-only; always exits 0 so scripts can poll it, even with bad config
package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/harper/healthdb/internal/migrate"
)

const statusRule = "============================================================"

// statusOutput is the structured form of the status command.
type statusOutput struct {
	DBPath    string              `json:"db_path" yaml:"db_path"`
	Exists    bool                `json:"exists" yaml:"exists"`
	SizeBytes int64               `json:"size_bytes,omitempty" yaml:"size_bytes,omitempty"`
	Status    *migrate.Inspection `json:"status,omitempty" yaml:"status,omitempty"`
	Error     string              `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorKind migrate.Kind        `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
}

// NewStatusCmd creates the status command
func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		Long: `Show whether the database still needs the patient migration.

Prints whether health_records has the legacy patient column or the
normalized patient_id column, whether the patients table exists, and
the record and patient counts. The database is opened read-only.

Examples:
  healthdb status
  healthdb status --db-path ./health_bot.db
  healthdb status --format json`,
		Args: cobra.NoArgs,
		RunE: runStatus,
	}

	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	var out *statusOutput
	rt, err := newSession(cmd)
	if err != nil {
		out = &statusOutput{DBPath: dbPath, Error: err.Error()}
	} else {
		defer rt.close()
		out = collectStatus(cmd, rt)
	}

	if structured() {
		return writeStructured(cmd.OutOrStdout(), out)
	}
	printStatus(cmd.OutOrStdout(), out)
	return nil
}

func collectStatus(cmd *cobra.Command, rt *session) *statusOutput {
	out := &statusOutput{DBPath: rt.cfg.DBPath}

	info, err := os.Stat(rt.cfg.DBPath)
	if err != nil {
		out.Error = fmt.Sprintf("database file not found: %s", rt.cfg.DBPath)
		return out
	}
	out.Exists = true
	out.SizeBytes = info.Size()

	db, err := rt.open(true)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	defer func() { _ = db.Close() }()

	insp, err := migrate.NewInspector(rt.log.Logger).Inspect(cmd.Context(), db)
	if err != nil {
		rt.log.Debug().Err(err).Msg("status inspection failed")
		out.Error = err.Error()
		out.ErrorKind, _ = migrate.KindOf(err)
		return out
	}
	out.Status = insp
	return out
}

func printStatus(w io.Writer, out *statusOutput) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, statusRule)
	fmt.Fprintln(w, bold("DATABASE MIGRATION STATUS"))
	fmt.Fprintln(w, statusRule)
	defer func() {
		fmt.Fprintln(w, statusRule)
		fmt.Fprintln(w)
	}()

	if out.DBPath != "" {
		fmt.Fprintf(w, "Database: %s\n", out.DBPath)
	}
	if !out.Exists {
		fmt.Fprintf(w, "%s %s\n", red("!"), out.Error)
		return
	}
	fmt.Fprintf(w, "Size: %s\n\n", formatKB(out.SizeBytes))

	if out.Status == nil {
		if out.ErrorKind == migrate.KindSchemaRead {
			fmt.Fprintf(w, "%s %s\n", yellow("!"), out.Error)
			fmt.Fprintln(w, "   No migration needed: the normalized schema is created on first use.")
			return
		}
		fmt.Fprintf(w, "%s %s\n", red("!"), out.Error)
		return
	}

	s := out.Status
	fmt.Fprintf(w, "health_records table exists: %s\n", mark(true))
	fmt.Fprintf(w, "patient column exists:       %s\n", mark(s.HasPatientColumn))
	fmt.Fprintf(w, "patient_id column exists:    %s\n", mark(s.HasPatientIDColumn))
	if s.PatientsTable {
		fmt.Fprintf(w, "patients table exists:       %s (%d patients)\n", mark(true), s.PatientCount)
	} else {
		fmt.Fprintf(w, "patients table exists:       %s\n", mark(false))
	}
	fmt.Fprintln(w)

	switch s.State {
	case migrate.StateMigrated:
		fmt.Fprintf(w, "%s\n", green("Database is already migrated."))
		fmt.Fprintf(w, "   Records: %d\n", s.RecordCount)
		fmt.Fprintf(w, "   Patients: %d\n", s.PatientCount)
	case migrate.StateNotMigrated:
		fmt.Fprintf(w, "%s\n", yellow("Migration needed."))
		fmt.Fprintf(w, "   Records to migrate: %d\n", s.RecordCount)
		fmt.Fprintf(w, "   Unique patients: %d\n", s.DistinctPatients)
		if len(s.SamplePatients) > 0 {
			fmt.Fprintf(w, "   Patient names: %s\n", joinNames(s.SamplePatients, s.DistinctPatients, 5))
		}
	default:
		fmt.Fprintf(w, "%s %s\n", red("Inconsistent state:"), s.Reason)
		fmt.Fprintf(w, "   Records: %d\n", s.RecordCount)
		fmt.Fprintln(w, "   Check the database manually or rerun migrate with --force.")
	}
}
