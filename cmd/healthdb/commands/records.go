// ABOUTME: CLI commands to list and add health records
// ABOUTME: Records are written by patient name and resolved to patient_id
package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/harper/healthdb/internal/models"
	"github.com/harper/healthdb/internal/storage/sqlite"
)

var (
	recordsPatient   string
	recordsType      string
	recordsLimit     int
	recordsDataType  string
	recordsTimestamp string
	recordsFile      string
)

// importFile is the layout read by records import. It matches the record
// entries written by export, so an exported patient can be re-imported.
type importFile struct {
	Records []sqlite.ExportRecord `yaml:"records"`
}

// NewRecordsCmd creates the records command group
func NewRecordsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "List and add health records",
		Long: `List and add health records in a migrated database.

Examples:
  healthdb records list --patient Alice --limit 10
  healthdb records list --type BP --format json
  healthdb records add Alice BP 120/80
  healthdb records add Bob Sugar 95 --data-type number --timestamp 2025-11-01T08:00:00Z
  healthdb records import Alice --file lab_results.yaml`,
	}

	cmd.AddCommand(newRecordsListCmd(), newRecordsAddCmd(), newRecordsImportCmd())
	return cmd
}

func newRecordsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List records, newest first",
		Args:  cobra.NoArgs,
		RunE:  runRecordsList,
	}

	cmd.Flags().StringVar(&recordsPatient, "patient", "", "Only records for this patient")
	cmd.Flags().StringVar(&recordsType, "type", "", "Only records of this type (BP, Sugar, ...)")
	cmd.Flags().IntVarP(&recordsLimit, "limit", "n", 20, "Maximum number of records")

	return cmd
}

func newRecordsAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <patient> <record-type> <value>",
		Short: "Add a record for an existing patient",
		Args:  cobra.ExactArgs(3),
		RunE:  runRecordsAdd,
	}

	cmd.Flags().StringVar(&recordsDataType, "data-type", "text", "Data type of the value")
	cmd.Flags().StringVar(&recordsTimestamp, "timestamp", "", "RFC 3339 timestamp (default now)")

	return cmd
}

func newRecordsImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <patient>",
		Short: "Import a lab report for a patient, all records or none",
		Long: `Import every record in a YAML (or JSON) file for one patient.

The file lists records under a "records" key, in the same shape export
writes them:

  records:
    - timestamp: 2025-11-01T08:00:00Z
      record_type: Creatinine
      data_type: number
      value: "0.9"

The import is atomic: if any record fails, none are saved.`,
		Args: cobra.ExactArgs(1),
		RunE: runRecordsImport,
	}

	cmd.Flags().StringVarP(&recordsFile, "file", "f", "", "YAML or JSON file of records")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runRecordsList(cmd *cobra.Command, args []string) error {
	if err := validatePositiveInt(recordsLimit, "--limit"); err != nil {
		return err
	}

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

	records, err := store.Records.List(cmd.Context(), models.RecordFilter{
		Patient:    recordsPatient,
		RecordType: recordsType,
		Limit:      recordsLimit,
	})
	if err != nil {
		return fmt.Errorf("listing records: %w", err)
	}

	if structured() {
		if records == nil {
			records = []models.HealthRecord{}
		}
		return writeStructured(cmd.OutOrStdout(), records)
	}
	if len(records) == 0 {
		say(cmd.OutOrStdout(), "No records found")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "TIMESTAMP\tPATIENT\tTYPE\tDATA TYPE\tVALUE\n")
	fmt.Fprintf(w, "---------\t-------\t----\t---------\t-----\n")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.Timestamp.Format("2006-01-02 15:04"),
			truncate(r.Patient, 25),
			r.RecordType,
			r.DataType,
			truncate(r.Value, 40))
	}
	_ = w.Flush()

	say(cmd.OutOrStdout(), "\nTotal: %d record(s)", len(records))
	return nil
}

func runRecordsAdd(cmd *cobra.Command, args []string) error {
	timestamp := time.Now()
	if recordsTimestamp != "" {
		parsed, err := time.Parse(time.RFC3339, recordsTimestamp)
		if err != nil {
			return fmt.Errorf("invalid --timestamp: %w", err)
		}
		timestamp = parsed
	}

	rt, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	store, err := rt.openStore(cmd, true)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = store.Close() }()

	record := &models.HealthRecord{
		Timestamp:  timestamp,
		Patient:    args[0],
		RecordType: args[1],
		DataType:   recordsDataType,
		Value:      args[2],
	}
	id, err := store.Records.Save(cmd.Context(), record)
	if err != nil {
		return err
	}
	record.ID = id

	if structured() {
		return writeStructured(cmd.OutOrStdout(), record)
	}
	say(cmd.OutOrStdout(), "%s %s record for %q (id %d)", green("Added"), record.RecordType, record.Patient, id)
	return nil
}

func runRecordsImport(cmd *cobra.Command, args []string) error {
	records, err := readImportFile(recordsFile)
	if err != nil {
		return err
	}

	rt, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	store, err := rt.openStore(cmd, true)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = store.Close() }()

	patient, err := store.Patients.GetByName(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("looking up patient: %w", err)
	}
	if patient == nil {
		return fmt.Errorf("%w: %q", sqlite.ErrPatientNotFound, args[0])
	}

	ids, err := store.Records.SaveBatch(cmd.Context(), patient.Name, records)
	if err != nil {
		return fmt.Errorf("importing %s: %w", recordsFile, err)
	}
	total, err := store.Records.Count(cmd.Context())
	if err != nil {
		return fmt.Errorf("counting records: %w", err)
	}
	rt.log.Info().Str("patient", patient.Name).Int("records", len(ids)).Msg("imported records")

	if structured() {
		return writeStructured(cmd.OutOrStdout(), map[string]interface{}{
			"patient":       patient.Name,
			"patient_id":    patient.ID,
			"imported":      len(ids),
			"record_ids":    ids,
			"total_records": total,
		})
	}
	say(cmd.OutOrStdout(), "%s %d record(s) for %q (%d records in database)", green("Imported"), len(ids), patient.Name, total)
	return nil
}

func readImportFile(path string) ([]models.HealthRecord, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	var file importFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(file.Records) == 0 {
		return nil, fmt.Errorf("%s contains no records", path)
	}

	now := time.Now()
	records := make([]models.HealthRecord, 0, len(file.Records))
	for i, r := range file.Records {
		if r.RecordType == "" || r.Value == "" {
			return nil, fmt.Errorf("record %d: record_type and value are required", i+1)
		}
		timestamp := now
		if r.Timestamp != "" {
			timestamp, err = time.Parse(time.RFC3339, r.Timestamp)
			if err != nil {
				return nil, fmt.Errorf("record %d: invalid timestamp: %w", i+1, err)
			}
		}
		dataType := r.DataType
		if dataType == "" {
			dataType = "text"
		}
		records = append(records, models.HealthRecord{
			Timestamp:  timestamp,
			RecordType: r.RecordType,
			DataType:   dataType,
			Value:      r.Value,
		})
	}
	return records, nil
}
