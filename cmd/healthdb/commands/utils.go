// ABOUTME: Shared utility functions for CLI commands
// ABOUTME: Structured output, coloured markers, and the error to exit code mapping
package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/harper/healthdb/internal/migrate"
	"github.com/harper/healthdb/internal/storage/sqlite"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// exitCodes maps migration error kinds to process exit codes.
var exitCodes = map[migrate.Kind]int{
	migrate.KindSchemaRead:        2,
	migrate.KindBackup:            3,
	migrate.KindOrphanPatient:     4,
	migrate.KindRowCountMismatch:  5,
	migrate.KindAlreadyMigrated:   6,
	migrate.KindInconsistentState: 7,
}

// ExitCode returns the process exit code for err: 0 for nil, a distinct code
// per migration error kind, and 1 for anything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if kind, ok := migrate.KindOf(err); ok {
		if code, ok := exitCodes[kind]; ok {
			return code
		}
	}
	return 1
}

// structured reports whether --format asks for machine-readable output.
func structured() bool {
	return outputFormat == formatJSON || outputFormat == formatYAML
}

// writeStructured encodes v as JSON or YAML according to --format.
func writeStructured(w io.Writer, v interface{}) error {
	switch outputFormat {
	case formatYAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(v); err != nil {
			return fmt.Errorf("marshaling YAML: %w", err)
		}
		return encoder.Close()
	default:
		jsonData, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		fmt.Fprintf(w, "%s\n", jsonData)
		return nil
	}
}

// mark renders a yes/no flag.
func mark(ok bool) string {
	if ok {
		return green("yes")
	}
	return red("no")
}

// formatKB renders a file size in kilobytes.
func formatKB(size int64) string {
	return fmt.Sprintf("%.2f KB", float64(size)/1024)
}

// truncate shortens a string to maxLen, adding "..." if truncated
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// joinNames lists up to limit names, noting how many were left out.
func joinNames(names []string, total int64, limit int) string {
	if len(names) > limit {
		names = names[:limit]
	}
	s := strings.Join(names, ", ")
	if rest := total - int64(len(names)); rest > 0 {
		s += fmt.Sprintf(" ... and %d more", rest)
	}
	return s
}

// validatePositiveInt returns error if n is not positive
func validatePositiveInt(n int, name string) error {
	if n <= 0 {
		return fmt.Errorf("%s must be positive, got %d", name, n)
	}
	return nil
}

// isNotFound reports whether err means the database file is missing.
func isNotFound(err error) bool {
	return errors.Is(err, sqlite.ErrDatabaseNotFound)
}
