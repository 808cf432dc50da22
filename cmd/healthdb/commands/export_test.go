// ABOUTME: Tests for the export command
// ABOUTME: Exports a migrated database to stdout and to a file

package commands

import (
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/harper/healthdb/internal/storage/sqlite"
)

func TestExport_YAMLToStdout(t *testing.T) {
	path := newMigratedDB(t)

	out, err := runCLI(t, "export", "--db-path", path)
	if err != nil {
		t.Fatalf("export error = %v", err)
	}

	var data sqlite.ExportData
	if err := yaml.Unmarshal([]byte(out), &data); err != nil {
		t.Fatalf("invalid YAML: %v\n%s", err, out)
	}
	if len(data.Patients) != 2 {
		t.Fatalf("got %d patients, want 2", len(data.Patients))
	}
	if data.Patients[0].Name != "Alice" || len(data.Patients[0].Records) != 2 {
		t.Errorf("Alice export = %+v", data.Patients[0])
	}
}

func TestExport_MarkdownToFile(t *testing.T) {
	path := newMigratedDB(t)
	outPath := filepath.Join(t.TempDir(), "out", "health.md")

	if _, err := runCLI(t, "export", "--format", "markdown", "--output", outPath, "--db-path", path); err != nil {
		t.Fatalf("export error = %v", err)
	}

	content := string(readBytes(t, outPath))
	for _, want := range []string{"## Alice", "## Bob", "| 130/85 |"} {
		if !strings.Contains(content, want) {
			t.Errorf("markdown missing %q:\n%s", want, content)
		}
	}
}

func TestExport_UnknownFormat(t *testing.T) {
	path := newMigratedDB(t)

	_, err := runCLI(t, "export", "--format", "csv", "--db-path", path)
	if err == nil {
		t.Error("expected error for unknown export format")
	}
}
