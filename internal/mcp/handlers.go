// ABOUTME: MCP tool handler implementations for the healthdb server
// ABOUTME: Each handler reads through the migration engine or patient store and returns JSON
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/harper/healthdb/internal/migrate"
	"github.com/harper/healthdb/internal/storage/sqlite"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
)

// Handlers contains the handler functions for all MCP tools
type Handlers struct {
	db  *sqlite.DB
	log zerolog.Logger
}

// NewHandlers creates handlers over db.
func NewHandlers(db *sqlite.DB, log zerolog.Logger) *Handlers {
	return &Handlers{db: db, log: log}
}

// MigrationStatus handles the migration_status tool
func (h *Handlers) MigrationStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	insp, err := migrate.NewInspector(h.log).Inspect(ctx, h.db)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to inspect database: %v", err)), nil
	}

	response := map[string]interface{}{
		"db_path": h.db.Path(),
		"status":  insp,
	}
	return jsonResult(response)
}

// MigrationPlan handles the migration_plan tool
func (h *Handlers) MigrationPlan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	force := request.GetBool("force", false)

	engine := migrate.NewEngine(h.db, migrate.EngineConfig{Logger: h.log})
	report, err := engine.Run(ctx, migrate.Options{DryRun: true, Force: force})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to plan migration: %v", err)), nil
	}

	response := map[string]interface{}{
		"outcome": report.Outcome,
		"state":   report.Before.State,
	}
	if report.Plan != nil {
		response["plan"] = report.Plan
	}
	return jsonResult(response)
}

// ListPatients handles the list_patients tool
func (h *Handlers) ListPatients(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := request.GetInt("limit", 0)
	if limit < 0 {
		return mcp.NewToolResultError("limit must not be negative"), nil
	}

	insp, err := migrate.NewInspector(h.log).Inspect(ctx, h.db)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to inspect database: %v", err)), nil
	}
	if insp.State != migrate.StateMigrated {
		return mcp.NewToolResultError(fmt.Sprintf("database is %s; run `healthdb migrate` first", insp.State)), nil
	}

	store := sqlite.NewPatientStore(h.db)
	patients, err := store.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list patients: %v", err)), nil
	}
	total, err := store.Count(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to count patients: %v", err)), nil
	}
	counts, err := recordCounts(ctx, h.db)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to count records: %v", err)), nil
	}

	if limit > 0 && len(patients) > limit {
		patients = patients[:limit]
	}
	results := make([]map[string]interface{}, 0, len(patients))
	for _, p := range patients {
		results = append(results, map[string]interface{}{
			"id":      p.ID,
			"name":    p.Name,
			"records": counts[p.ID],
		})
	}

	return jsonResult(map[string]interface{}{
		"patients": results,
		"count":    len(results),
		"total":    total,
	})
}

func recordCounts(ctx context.Context, q sqlite.Querier) (map[int64]int64, error) {
	rows, err := q.QueryContext(ctx, "SELECT patient_id, COUNT(*) FROM health_records GROUP BY patient_id")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[int64]int64)
	for rows.Next() {
		var id, n int64
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

func jsonResult(response interface{}) (*mcp.CallToolResult, error) {
	responseJSON, err := json.Marshal(response)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(responseJSON)), nil
}
