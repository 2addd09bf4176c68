package main

import (
	"log/slog"
	"os"

	"github.com/siherrmann/ragbot"
	"github.com/siherrmann/ragbot/config"
	"github.com/siherrmann/ragbot/helper"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ragbot",
	Short: "Chat with your documents",
	Long: `ragbot answers questions about a personal knowledge base.

Documents (pdf, docx, xlsx, csv, txt, md, html, json and more) and crawled
websites are chunked, embedded and stored in a vector index. Questions are
answered by a chat model from the most similar chunks.

Secrets are read from the environment or a .env file in the working
directory. The config file lists the names of the variables to read.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default ./ragbot.yaml or ~/.config/ragbot/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn or error")
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	if err := config.LoadEnv(); err != nil {
		return err
	}

	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	loaded, used, err := config.LoadDefault(path)
	if err != nil {
		return err
	}

	level, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return err
	}
	if level != "" {
		loaded.Log.Level = level
	}

	cfg = loaded
	// stdout is kept for command output
	logger = helper.NewLoggerTo(os.Stderr, cfg.Log.Level)
	if used != "" {
		logger.Debug("Loaded config", slog.String("path", used))
	}
	return nil
}

// openRagbot builds the knowledge base of the loaded config. The caller
// closes it.
func openRagbot(cmd *cobra.Command) (*ragbot.Ragbot, error) {
	return ragbot.New(cmd.Context(), cfg, logger)
}
