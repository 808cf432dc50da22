// ABOUTME: CLI command to export patients and their records
// ABOUTME: Writes YAML, JSON, or Markdown to stdout or a file
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harper/healthdb/internal/storage/sqlite"
)

var (
	exportFormat string
	exportOutput string
)

// NewExportCmd creates the export command
func NewExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export patients and records",
		Long: `Export every patient with their records, newest first.

Examples:
  healthdb export
  healthdb export --format json --output health.json
  healthdb export --format markdown`,
		Args: cobra.NoArgs,
		RunE: runExport,
	}

	cmd.Flags().StringVar(&exportFormat, "format", sqlite.FormatYAML, "Export format: yaml, json, or markdown")
	cmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write to file instead of stdout")

	return cmd
}

func runExport(cmd *cobra.Command, args []string) error {
	rt, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	store, err := rt.openStore(cmd, false)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = store.Close() }()

	if exportOutput != "" {
		if err := store.ExportToFile(cmd.Context(), exportOutput, exportFormat); err != nil {
			return err
		}
		say(cmd.ErrOrStderr(), "Exported to %s", exportOutput)
		return nil
	}

	data, err := store.Export(cmd.Context())
	if err != nil {
		return err
	}
	return sqlite.WriteExport(cmd.OutOrStdout(), data, exportFormat)
}
