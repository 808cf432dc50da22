// ABOUTME: Root command and global flags for the healthdb CLI
// ABOUTME: Resolves configuration, logging, and the database handle for subcommands
package commands

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harper/healthdb/internal/config"
	"github.com/harper/healthdb/internal/logging"
	"github.com/harper/healthdb/internal/storage/sqlite"
)

// Output formats accepted by --format
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	dbPath       string
	verbose      bool
	quiet        bool
	outputFormat string
)

// NewRootCmd creates the root command with every subcommand attached
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "healthdb",
		Short: "Health record database tools",
		Long: `healthdb manages the health bot's SQLite database.

It normalizes legacy databases, where every health record carries the
patient's name as free text, into a patients table referenced by
health_records.patient_id. Once migrated, patients and records can be
listed, added, and exported.

Start with:
  healthdb status
  healthdb migrate --dry-run
  healthdb migrate --backup`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch outputFormat {
			case formatText, formatJSON, formatYAML:
				return nil
			default:
				return fmt.Errorf("--format must be text, json, or yaml, got %q", outputFormat)
			}
		},
	}

	cmd.PersistentFlags().StringVar(&dbPath, "db-path", "", "Path to the SQLite database (default $HEALTHDB_DB_PATH or XDG data dir)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (debug logging)")
	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only print errors")
	cmd.PersistentFlags().StringVar(&outputFormat, "format", formatText, "Output format: text, json, or yaml")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(
		NewStatusCmd(),
		NewMigrateCmd(),
		NewPatientsCmd(),
		NewRecordsCmd(),
		NewExportCmd(),
		NewMCPCmd(),
		NewVersionCmd(),
	)

	return cmd
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}

// session is what a subcommand needs once flags are parsed.
type session struct {
	cfg *config.Config
	log *logging.Logger
}

func newSession(cmd *cobra.Command) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}

	level := cfg.LogLevel
	switch {
	case verbose:
		level = "debug"
	case quiet:
		level = "error"
	}

	log, err := logging.New(logging.Options{
		Level:      level,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		Console:    cmd.ErrOrStderr(),
		NoColor:    color.NoColor,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing logging: %w", err)
	}

	return &session{cfg: cfg, log: log}, nil
}

func (r *session) open(readOnly bool) (*sqlite.DB, error) {
	return sqlite.Open(r.cfg.DBPath, sqlite.Options{
		ReadOnly:    readOnly,
		BusyTimeout: r.cfg.BusyTimeout,
	})
}

// openStore opens the application store. Writes may create a fresh database.
func (r *session) openStore(cmd *cobra.Command, write bool) (*sqlite.Store, error) {
	return sqlite.OpenStore(cmd.Context(), r.cfg.DBPath, sqlite.Options{
		ReadOnly:    !write,
		Create:      write,
		BusyTimeout: r.cfg.BusyTimeout,
	})
}

func (r *session) close() {
	_ = r.log.Close()
}

// say writes a line unless --quiet is set.
func say(w io.Writer, format string, args ...interface{}) {
	if quiet {
		return
	}
	fmt.Fprintf(w, format+"\n", args...)
}
