// ABOUTME: MCP command starts Model Context Protocol server
// ABOUTME: Lets LLM agents inspect migration state and patients via stdio
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harper/healthdb/internal/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// NewMCPCmd creates the MCP command
func NewMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for LLM agents",
		Long: `Start MCP server for LLM agents

Runs healthdb as an MCP (Model Context Protocol) server over stdio,
giving LLM agents read-only tools: migration_status, migration_plan,
and list_patients. The database is opened read-only; migrations are
never run from MCP.`,
		Args: cobra.NoArgs,
		RunE: runMCP,
		Example: `  # Start MCP server (typically called by an MCP client)
  healthdb mcp --db-path ~/health_bot.db

  # Configure in the client's config file:
  # {
  #   "mcpServers": {
  #     "healthdb": {
  #       "command": "healthdb",
  #       "args": ["mcp"]
  #     }
  #   }
  # }`,
	}

	return cmd
}

// runMCP starts the MCP server
func runMCP(cmd *cobra.Command, args []string) error {
	rt, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	db, err := rt.open(true)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	server := mcpserver.NewMCPServer("healthdb", build.Version)
	mcp.RegisterTools(server, db, rt.log.Logger)

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt.log.Info().Str("db_path", db.Path()).Msg("MCP server starting on stdio")

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- mcpserver.ServeStdio(server)
	}()

	select {
	case <-ctx.Done():
		rt.log.Info().Msg("shutdown signal received")
		if err := db.Close(); err != nil {
			rt.log.Warn().Err(err).Msg("error closing database")
		}
	case err := <-serverErr:
		_ = db.Close()
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	return nil
}
