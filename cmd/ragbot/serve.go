package main

import (
	"fmt"
	"log/slog"

	"github.com/siherrmann/ragbot"
	"github.com/siherrmann/ragbot/mcp"
	"github.com/siherrmann/ragbot/server"
	"github.com/siherrmann/ragbot/watcher"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web chat server",
	Long: `Start the HTTP server with the chat page and the JSON API:

  POST /chat             {"message": "..."}
  POST /upload           multipart form with one or more "files"
  POST /process-website  {"url": "...", "max_pages": 5, "max_depth": 1}
  GET  /status
  GET  /health

With --mcp the MCP tools are served over streamable HTTP at /mcp.
Folders given with --watch (or watcher.dirs in the config) are ingested
on start and kept in sync while the server runs.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default from config, :5000)")
	serveCmd.Flags().Bool("mcp", false, "also serve MCP over HTTP at /mcp")
	serveCmd.Flags().StringSlice("watch", nil, "folders to ingest and keep in sync")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	addr, err := cmd.Flags().GetString("addr")
	if err != nil {
		return fmt.Errorf("getting addr flag: %w", err)
	}
	withMCP, err := cmd.Flags().GetBool("mcp")
	if err != nil {
		return fmt.Errorf("getting mcp flag: %w", err)
	}
	dirs, err := cmd.Flags().GetStringSlice("watch")
	if err != nil {
		return fmt.Errorf("getting watch flag: %w", err)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	dirs = append(append([]string{}, cfg.Watcher.Dirs...), dirs...)

	bot, err := openRagbot(cmd)
	if err != nil {
		return err
	}
	defer bot.Close()

	// Loads an existing index so the first answer does not wait for it.
	if err := bot.Engine.Initialize(cmd.Context()); err != nil {
		logger.Warn("Knowledge base not ready", slog.Any("error", err))
	}

	srv := server.New(bot, cfg.Server, logger)
	if withMCP {
		mcpServer, err := mcp.NewServer(bot)
		if err != nil {
			return err
		}
		srv.Mount("/mcp", mcpServer.Handler())
	}

	g, ctx := errgroup.WithContext(cmd.Context())
	if len(dirs) > 0 {
		w, err := newWatcher(bot, dirs)
		if err != nil {
			return err
		}
		g.Go(func() error {
			if err := w.Sync(ctx); err != nil {
				logger.Warn("Initial folder sync failed", slog.Any("error", err))
			}
			return w.Run(ctx)
		})
	}
	g.Go(func() error {
		return srv.Run(ctx)
	})

	return g.Wait()
}

func newWatcher(bot *ragbot.Ragbot, dirs []string) (*watcher.Watcher, error) {
	w, err := watcher.New(bot, bot.Loader.Supports, cfg.Watcher.Debounce, logger)
	if err != nil {
		return nil, err
	}
	for _, dir := range dirs {
		if err := w.Add(dir); err != nil {
			return nil, err
		}
		logger.Info("Watching folder", slog.String("dir", dir))
	}
	return w, nil
}
