// ABOUTME: CLI commands to list and add patients
// ABOUTME: Operates on a migrated database through the patient store
package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewPatientsCmd creates the patients command group
func NewPatientsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patients",
		Short: "List and add patients",
		Long: `List and add patients in a migrated database.

Patient names are unique and matched exactly: "Alice" and "alice" are
two different patients.

Examples:
  healthdb patients list
  healthdb patients add "Alice"`,
	}

	cmd.AddCommand(newPatientsListCmd(), newPatientsAddCmd())
	return cmd
}

func newPatientsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List patients alphabetically",
		Args:  cobra.NoArgs,
		RunE:  runPatientsList,
	}
}

func newPatientsAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <name>",
		Short: "Add a patient",
		Args:  cobra.ExactArgs(1),
		RunE:  runPatientsAdd,
	}
}

func runPatientsList(cmd *cobra.Command, args []string) error {
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

	patients, err := store.Patients.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing patients: %w", err)
	}

	if structured() {
		return writeStructured(cmd.OutOrStdout(), patients)
	}
	if len(patients) == 0 {
		say(cmd.OutOrStdout(), "No patients found")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tNAME\tCREATED\n")
	fmt.Fprintf(w, "--\t----\t-------\n")
	for _, p := range patients {
		created := "-"
		if !p.CreatedAt.IsZero() {
			created = p.CreatedAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", p.ID, truncate(p.Name, 40), created)
	}
	_ = w.Flush()

	say(cmd.OutOrStdout(), "\nTotal: %d patient(s)", len(patients))
	return nil
}

func runPatientsAdd(cmd *cobra.Command, args []string) error {
	rt, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	name := args[0]
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("patient name must not be empty")
	}

	store, err := rt.openStore(cmd, true)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = store.Close() }()

	patient, err := store.Patients.Create(cmd.Context(), name)
	if err != nil {
		return err
	}
	rt.log.Debug().Int64("patient_id", patient.ID).Str("name", patient.Name).Msg("patient created")

	if structured() {
		return writeStructured(cmd.OutOrStdout(), patient)
	}
	say(cmd.OutOrStdout(), "%s patient %q (id %d)", green("Added"), patient.Name, patient.ID)
	return nil
}
