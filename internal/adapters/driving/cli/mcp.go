package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/adapters/driving/mcp"
)

var mcpHTTPAddr string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol server so an AI assistant can run reviews.

By default, the server communicates over stdio using JSON-RPC and can be
used with Claude Desktop and other MCP-compatible assistants.

Use --http to serve streamable HTTP instead, which enables:
  - Testing with MCP Inspector web UI
  - Remote access via HTTP

Examples:
  # Stdio mode (default, for Claude Desktop)
  registry-review mcp

  # HTTP mode (for MCP Inspector, remote access)
  registry-review mcp --http localhost:8080

Claude Desktop configuration (claude_desktop_config.json):
  {
    "mcpServers": {
      "registry-review": {
        "command": "/path/to/registry-review",
        "args": ["mcp"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&mcpHTTPAddr, "http", "", "serve streamable HTTP on this address instead of stdio")
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	if sessionService == nil || evidenceService == nil {
		return errors.New("review services not configured")
	}

	server, err := mcp.NewServer(&mcp.Ports{
		Sessions: sessionService,
		Evidence: evidenceService,
	})
	if err != nil {
		return err
	}

	if mcpHTTPAddr != "" {
		cmd.PrintErrf("MCP server listening on http://%s\n", mcpHTTPAddr)
		return server.RunHTTP(cmd.Context(), mcpHTTPAddr)
	}
	return server.Run(cmd.Context())
}
