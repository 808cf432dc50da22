// ABOUTME: Tests for shared utility functions used by CLI commands
// ABOUTME: Verifies exit code mapping, truncation, and name lists

package commands

import (
	"errors"
	"fmt"
	"testing"

	"github.com/harper/healthdb/internal/migrate"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"plain error", errors.New("boom"), 1},
		{"schema read", &migrate.SchemaReadError{Missing: []string{"health_records"}}, 2},
		{"backup", &migrate.BackupError{Path: "x", Err: errors.New("disk full")}, 3},
		{"orphan", &migrate.OrphanPatientError{RowID: 2, Patient: ""}, 4},
		{"row count", &migrate.RowCountMismatchError{Source: 3, Copied: 2}, 5},
		{"already migrated", &migrate.AlreadyMigratedError{Table: "health_records"}, 6},
		{"inconsistent", &migrate.InconsistentStateError{Reason: "both columns"}, 7},
		{"wrapped", fmt.Errorf("running: %w", &migrate.BackupError{Path: "x"}), 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{"short string unchanged", "hello", 10, "hello"},
		{"exact length unchanged", "hello", 5, "hello"},
		{"long string truncated", "hello world", 8, "hello..."},
		{"very short maxLen", "hello", 2, "he"},
		{"unicode kept whole", "José María López", 7, "José..."},
		{"empty string", "", 10, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncate(tt.input, tt.maxLen); got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestJoinNames(t *testing.T) {
	tests := []struct {
		name  string
		names []string
		total int64
		want  string
	}{
		{"all shown", []string{"Alice", "Bob"}, 2, "Alice, Bob"},
		{"more remain", []string{"A", "B", "C", "D", "E"}, 8, "A, B, C, D, E ... and 3 more"},
		{"capped at limit", []string{"A", "B", "C", "D", "E", "F"}, 6, "A, B, C, D, E ... and 1 more"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := joinNames(tt.names, tt.total, 5); got != tt.want {
				t.Errorf("joinNames() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatKB(t *testing.T) {
	if got := formatKB(12288); got != "12.00 KB" {
		t.Errorf("formatKB(12288) = %q, want %q", got, "12.00 KB")
	}
}

func TestValidatePositiveInt(t *testing.T) {
	if err := validatePositiveInt(1, "--limit"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := validatePositiveInt(0, "--limit"); err == nil {
		t.Error("expected error for 0")
	}
}
