// ABOUTME: Report produced by every engine run
// ABOUTME: Serializable to JSON and YAML; text rendering lives in the CLI
package migrate

import "time"

// Outcome summarizes how a run ended.
type Outcome string

const (
	OutcomeStatus          Outcome = "status"
	OutcomeAlreadyMigrated Outcome = "already_migrated"
	OutcomeVerified        Outcome = "verified"
	OutcomeDryRun          Outcome = "dry_run"
	OutcomeMigrated        Outcome = "migrated"
	OutcomeFailed          Outcome = "failed"
)

// WarningNoBackup is reported when a migration runs without --backup.
const WarningNoBackup = "no backup was requested: migrating with reduced safety"

// Plan is the dry-run preview of a migration.
type Plan struct {
	RecordsToMigrate   int64    `json:"records_to_migrate" yaml:"records_to_migrate"`
	PatientsToCreate   []string `json:"patients_to_create" yaml:"patients_to_create"`
	ExistingPatients   int      `json:"existing_patients" yaml:"existing_patients"`
	UnmappableRecords  int64    `json:"unmappable_records,omitempty" yaml:"unmappable_records,omitempty"`
	CreateTable        string   `json:"create_table" yaml:"create_table"`
	Indexes            []string `json:"indexes,omitempty" yaml:"indexes,omitempty"`
	DroppedIndexes     []string `json:"dropped_indexes,omitempty" yaml:"dropped_indexes,omitempty"`
	DiscardsPatientID  bool     `json:"discards_stale_patient_id,omitempty" yaml:"discards_stale_patient_id,omitempty"`
	DropsLeftoverTable bool     `json:"drops_leftover_table,omitempty" yaml:"drops_leftover_table,omitempty"`
}

// Report describes one engine run.
type Report struct {
	RunID      string    `json:"run_id" yaml:"run_id"`
	DBPath     string    `json:"db_path" yaml:"db_path"`
	Options    Options   `json:"options" yaml:"options"`
	Outcome    Outcome   `json:"outcome" yaml:"outcome"`
	Phase      Phase     `json:"phase" yaml:"phase"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`

	Before *Inspection `json:"before,omitempty" yaml:"before,omitempty"`
	After  *Inspection `json:"after,omitempty" yaml:"after,omitempty"`
	Plan   *Plan       `json:"plan,omitempty" yaml:"plan,omitempty"`

	BackupPath      string   `json:"backup_path,omitempty" yaml:"backup_path,omitempty"`
	PatientsCreated int      `json:"patients_created" yaml:"patients_created"`
	RecordsCopied   int64    `json:"records_copied" yaml:"records_copied"`
	IndexesCreated  []string `json:"indexes_created,omitempty" yaml:"indexes_created,omitempty"`
	Warnings        []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Error           string   `json:"error,omitempty" yaml:"error,omitempty"`
}

// Duration is how long the run took.
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
