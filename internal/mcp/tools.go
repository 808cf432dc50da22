// ABOUTME: MCP tool definitions and registration for the healthdb server
// ABOUTME: Exposes read-only migration status, dry-run plans, and patient listings
package mcp

import (
	"github.com/harper/healthdb/internal/storage/sqlite"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

// RegisterTools registers all MCP tools with the server. db should be opened
// read-only; no tool writes.
func RegisterTools(server *mcpserver.MCPServer, db *sqlite.DB, log zerolog.Logger) *Handlers {
	handlers := NewHandlers(db, log)

	// 1. migration_status - Classify the record table and report counts
	server.AddTool(mcp.Tool{
		Name:        "migration_status",
		Description: "Report whether the health database is NOT_MIGRATED, MIGRATED, or INCONSISTENT, with record and patient counts.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, handlers.MigrationStatus)

	// 2. migration_plan - Dry-run preview of the normalization
	server.AddTool(mcp.Tool{
		Name:        "migration_plan",
		Description: "Preview the patient normalization without changing anything: records to migrate, patients to create, and the new table definition.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"force": map[string]interface{}{
					"type":        "boolean",
					"description": "Plan as if --force were given (rebuild an inconsistent table)",
					"default":     false,
				},
			},
		},
	}, handlers.MigrationPlan)

	// 3. list_patients - List normalized patients
	server.AddTool(mcp.Tool{
		Name:        "list_patients",
		Description: "List patients from a migrated database, alphabetically, with their record counts.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"limit": map[string]interface{}{
					"type":        "number",
					"description": "Maximum number of patients to return (default: all)",
					"default":     0,
				},
			},
		},
	}, handlers.ListPatients)

	return handlers
}
