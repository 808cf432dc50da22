// ABOUTME: Tests for MCP tool handlers
// ABOUTME: Runs each tool against legacy and migrated databases
package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harper/healthdb/internal/migrate"
	"github.com/harper/healthdb/internal/storage/sqlite"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
)

const legacyDDL = `CREATE TABLE health_records (
	timestamp TEXT NOT NULL,
	patient TEXT NOT NULL,
	record_type TEXT,
	data_type TEXT,
	value TEXT
);
INSERT INTO health_records VALUES
	('2025-11-01T08:00:00', 'Alice', 'BP', 'reading', '120/80'),
	('2025-11-01T09:00:00', 'Bob', 'BP', 'reading', '130/85'),
	('2025-11-01T10:00:00', 'Alice', 'Sugar', 'number', '95');`

func newHandlers(t *testing.T, migrated bool) *Handlers {
	t.Helper()
	path := filepath.Join(t.TempDir(), "health_bot.db")
	rw, err := sqlite.Open(path, sqlite.Options{Create: true})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := rw.ExecContext(context.Background(), legacyDDL); err != nil {
		t.Fatalf("seed error = %v", err)
	}
	if migrated {
		if _, err := migrate.NewEngine(rw, migrate.EngineConfig{Logger: zerolog.Nop()}).Run(context.Background(), migrate.Options{}); err != nil {
			t.Fatalf("migrate error = %v", err)
		}
	}
	_ = rw.Close()

	db, err := sqlite.Open(path, sqlite.Options{ReadOnly: true})
	if err != nil {
		t.Fatalf("Open(ReadOnly) error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewHandlers(db, zerolog.Nop())
}

func callTool(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]interface{}) (*mcp.CallToolResult, string) {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if len(result.Content) == 0 {
		t.Fatal("handler returned no content")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want mcp.TextContent", result.Content[0])
	}
	return result, text.Text
}

func TestMigrationStatus(t *testing.T) {
	h := newHandlers(t, true)

	result, text := callTool(t, h.MigrationStatus, nil)
	if result.IsError {
		t.Fatalf("tool error: %s", text)
	}

	var resp struct {
		Status migrate.Inspection `json:"status"`
	}
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Status.State != migrate.StateMigrated || resp.Status.PatientCount != 2 || resp.Status.RecordCount != 3 {
		t.Errorf("status = %+v, want MIGRATED with 2 patients and 3 records", resp.Status)
	}
}

func TestMigrationPlan(t *testing.T) {
	h := newHandlers(t, false)

	result, text := callTool(t, h.MigrationPlan, map[string]interface{}{"force": false})
	if result.IsError {
		t.Fatalf("tool error: %s", text)
	}

	var resp struct {
		Outcome migrate.Outcome `json:"outcome"`
		Plan    migrate.Plan    `json:"plan"`
	}
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Outcome != migrate.OutcomeDryRun {
		t.Errorf("outcome = %s, want dry_run", resp.Outcome)
	}
	if resp.Plan.RecordsToMigrate != 3 || len(resp.Plan.PatientsToCreate) != 2 {
		t.Errorf("plan = %+v", resp.Plan)
	}
}

func TestListPatients(t *testing.T) {
	h := newHandlers(t, true)

	result, text := callTool(t, h.ListPatients, map[string]interface{}{"limit": float64(1)})
	if result.IsError {
		t.Fatalf("tool error: %s", text)
	}

	var resp struct {
		Patients []struct {
			Name    string `json:"name"`
			Records int64  `json:"records"`
		} `json:"patients"`
		Count int `json:"count"`
		Total int `json:"total"`
	}
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Total != 2 {
		t.Errorf("total = %d, want 2 patients before the limit", resp.Total)
	}
	if resp.Count != 1 || resp.Patients[0].Name != "Alice" || resp.Patients[0].Records != 2 {
		t.Errorf("response = %+v, want Alice with 2 records", resp)
	}
}

func TestListPatientsBeforeMigration(t *testing.T) {
	h := newHandlers(t, false)

	result, text := callTool(t, h.ListPatients, nil)
	if !result.IsError {
		t.Fatalf("expected tool error, got %s", text)
	}
	if !strings.Contains(text, "NOT_MIGRATED") {
		t.Errorf("error should name the state: %s", text)
	}
}
