package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the knowledge base status",
	Long: `Show the engine state, the vector index statistics and which
credentials are present in the environment.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List ingested sources",
	Long:  `List the ingested files and web pages. Needs the pgvector store.`,
	Args:  cobra.NoArgs,
	RunE:  runSources,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <source>",
	Short: "Remove a source from the knowledge base",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the vector index",
	Long: `Drop and rebuild the pgvector index of the chunks table.

Supported types are hnsw and ivfflat. Their parameters are read from
vector_store.index in the config.`,
	Args: cobra.NoArgs,
	RunE: runReindex,
}

func init() {
	statusCmd.Flags().Bool("json", false, "output as JSON")
	rootCmd.AddCommand(statusCmd)

	sourcesCmd.Flags().Int("limit", 100, "maximum sources to list")
	sourcesCmd.Flags().Bool("json", false, "output as JSON")
	rootCmd.AddCommand(sourcesCmd)

	rootCmd.AddCommand(deleteCmd)

	reindexCmd.Flags().String("type", "", "index type (default from config, hnsw)")
	rootCmd.AddCommand(reindexCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return fmt.Errorf("getting json flag: %w", err)
	}

	bot, err := openRagbot(cmd)
	if err != nil {
		return err
	}
	defer bot.Close()

	// Initialize so the state reflects the stored index.
	_ = bot.Engine.Initialize(cmd.Context())
	status := bot.Status(cmd.Context())

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	cmd.Printf("Engine:  %s\n", status.Engine)
	if status.EngineError != "" {
		cmd.Printf("         %s\n", status.EngineError)
	}
	if status.IndexError != "" {
		cmd.Printf("Index:   %s\n", status.IndexError)
	} else {
		cmd.Printf("Index:   %s, %d chunks, dimension %d\n", status.Index.Name, status.Index.Count, status.Index.Dimension)
	}

	names := make([]string, 0, len(status.Credentials))
	for name := range status.Credentials {
		names = append(names, name)
	}
	sort.Strings(names)
	cmd.Println("Credentials:")
	for _, name := range names {
		state := "missing"
		if status.Credentials[name] {
			state = "set"
		}
		cmd.Printf("  %s: %s\n", name, state)
	}
	return nil
}

func runSources(cmd *cobra.Command, _ []string) error {
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return fmt.Errorf("getting limit flag: %w", err)
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

	sources, err := bot.ListSources(cmd.Context(), limit)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(sources)
	}

	if len(sources) == 0 {
		cmd.Println("No sources ingested.")
		return nil
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTYPE\tCHUNKS\tUPDATED")
	for _, s := range sources {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.Name, s.Type, s.Chunks, s.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runDelete(cmd *cobra.Command, args []string) error {
	bot, err := openRagbot(cmd)
	if err != nil {
		return err
	}
	defer bot.Close()

	n, err := bot.DeleteSource(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	cmd.Printf("Deleted %d chunks of %s\n", n, args[0])
	return nil
}

func runReindex(cmd *cobra.Command, _ []string) error {
	indexType, err := cmd.Flags().GetString("type")
	if err != nil {
		return fmt.Errorf("getting type flag: %w", err)
	}

	bot, err := openRagbot(cmd)
	if err != nil {
		return err
	}
	defer bot.Close()

	if err := bot.ChangeIndexType(cmd.Context(), indexType); err != nil {
		return err
	}
	cmd.Println("Index rebuilt.")
	return nil
}
