package main

import (
	"fmt"
	"io"

	"github.com/siherrmann/ragbot/helper"
	"github.com/siherrmann/ragbot/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server over stdio",
	Long: `Start the Model Context Protocol server for AI assistants.

The server communicates over stdio using JSON-RPC and offers the tools
"ask" and "ingest_website" and the resource ragbot://status. Use
"ragbot serve --mcp" for streamable HTTP instead.

Claude Desktop configuration (claude_desktop_config.json):
  {
    "mcpServers": {
      "ragbot": {
        "command": "/path/to/ragbot",
        "args": ["mcp"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	// stdout carries the protocol
	logger = helper.NewLoggerTo(cmd.ErrOrStderr(), cfg.Log.Level)

	bot, err := openRagbot(cmd)
	if err != nil {
		return err
	}
	defer bot.Close()

	server, err := mcp.NewServer(bot)
	if err != nil {
		return err
	}
	if err := server.Run(cmd.Context()); err != nil && err != io.EOF {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
