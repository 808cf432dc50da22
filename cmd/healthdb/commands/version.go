// ABOUTME: Version command reporting the build and the schema change it applies
// ABOUTME: Prints the source column and target table the migrate command works on
package commands

import (
	"github.com/spf13/cobra"

	"github.com/harper/healthdb/internal/storage/sqlite"
)

var build = buildInfo{Version: "dev", Commit: "none", Date: "unknown"}

type buildInfo struct {
	Version string `json:"version" yaml:"version"`
	Commit  string `json:"commit" yaml:"commit"`
	Date    string `json:"date" yaml:"date"`
}

// schemaTarget names the normalization this binary performs.
type schemaTarget struct {
	RecordsTable  string `json:"records_table" yaml:"records_table"`
	LegacyColumn  string `json:"legacy_column" yaml:"legacy_column"`
	PatientsTable string `json:"patients_table" yaml:"patients_table"`
	ForeignKey    string `json:"foreign_key" yaml:"foreign_key"`
}

type versionOutput struct {
	Build  buildInfo    `json:"build" yaml:"build"`
	Schema schemaTarget `json:"schema" yaml:"schema"`
}

// SetVersion records build metadata injected by the linker.
func SetVersion(version, commit, date string) {
	build = buildInfo{Version: version, Commit: commit, Date: date}
}

func currentVersion() versionOutput {
	return versionOutput{
		Build: build,
		Schema: schemaTarget{
			RecordsTable:  sqlite.RecordsTableName,
			LegacyColumn:  sqlite.LegacyPatientColumn,
			PatientsTable: sqlite.PatientsTableName,
			ForeignKey:    sqlite.RecordsTableName + "." + sqlite.PatientIDColumn + " -> " + sqlite.PatientsTableName + ".id",
		},
	}
}

// NewVersionCmd creates the version command
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show build information and the schema change healthdb applies",
		Long: `Display the build version and the schema normalization this binary
performs: the free-text patient column it retires and the patients table
and foreign key that replace it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := currentVersion()
			if structured() {
				return writeStructured(cmd.OutOrStdout(), v)
			}

			w := cmd.OutOrStdout()
			say(w, "%s %s (%s, built %s)", bold("healthdb"), v.Build.Version, v.Build.Commit, v.Build.Date)
			say(w, "Migrates: %s.%s -> %s", v.Schema.RecordsTable, v.Schema.LegacyColumn, v.Schema.PatientsTable)
			say(w, "Links:    %s", v.Schema.ForeignKey)
			return nil
		},
	}
}
