package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Add documents to the knowledge base",
	Long: `Load, chunk and index one or more documents.

Folders are walked recursively and every supported file in them is
ingested. A file that fails is reported and the others are still
processed. Files are cited by their base name unless --name is given for
a single file.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

var crawlCmd = &cobra.Command{
	Use:   "crawl <url>",
	Short: "Add a website to the knowledge base",
	Long: `Fetch a website breadth first and index the text of every page.

Only links on the same host are followed. --max-depth 0 fetches the given
page only.`,
	Args: cobra.ExactArgs(1),
	RunE: runCrawl,
}

func init() {
	ingestCmd.Flags().String("name", "", "source name of a single file")
	rootCmd.AddCommand(ingestCmd)

	crawlCmd.Flags().Int("max-pages", 0, "maximum pages to fetch (default from config, 5)")
	crawlCmd.Flags().Int("max-depth", -1, "maximum link depth (default from config, 1)")
	crawlCmd.Flags().Bool("json", false, "output as JSON")
	rootCmd.AddCommand(crawlCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	name, err := cmd.Flags().GetString("name")
	if err != nil {
		return fmt.Errorf("getting name flag: %w", err)
	}
	if name != "" && len(args) > 1 {
		return errors.New("--name needs exactly one file")
	}

	bot, err := openRagbot(cmd)
	if err != nil {
		return err
	}
	defer bot.Close()

	paths, err := expandPaths(args, bot.Loader.Supports)
	if err != nil {
		return err
	}

	failed := 0
	for _, path := range paths {
		n, err := bot.IngestFile(cmd.Context(), path, name)
		if err != nil {
			failed++
			cmd.PrintErrf("%s: %v\n", path, err)
			continue
		}
		cmd.Printf("%s: %d chunks\n", path, n)
	}

	if failed > 0 {
		if failed == len(paths) {
			return errors.New("all files failed")
		}
		logger.Warn("Some files could not be processed", slog.Int("failed", failed))
	}
	return nil
}

// expandPaths replaces folders with the supported files below them.
func expandPaths(args []string, supports func(string) bool) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && supports(path) {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	if len(paths) == 0 {
		return nil, errors.New("no supported files found")
	}
	return paths, nil
}

func runCrawl(cmd *cobra.Command, args []string) error {
	maxPages, err := cmd.Flags().GetInt("max-pages")
	if err != nil {
		return fmt.Errorf("getting max-pages flag: %w", err)
	}
	maxDepth, err := cmd.Flags().GetInt("max-depth")
	if err != nil {
		return fmt.Errorf("getting max-depth flag: %w", err)
	}
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return fmt.Errorf("getting json flag: %w", err)
	}

	bot, err := openRagbot(cmd)
	if err != nil {
		return err
	}
	defer bot.Close()

	result, err := bot.IngestWebsite(cmd.Context(), args[0], maxPages, maxDepth)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	cmd.Printf("Processed %d pages from %s into %d chunks\n", result.PagesProcessed, result.URL, result.ChunksCreated)
	for _, u := range result.ProcessedURLs {
		cmd.Printf("  %s\n", u)
	}
	return nil
}
