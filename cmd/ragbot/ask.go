package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/siherrmann/ragbot/helper"
	"github.com/siherrmann/ragbot/tui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask the knowledge base one question",
	Long: `Answer a single question and print the cited sources.

Without arguments the question is read from stdin, so it can be piped:
  echo "What projects has Yash built?" | ragbot ask`,
	RunE: runAsk,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the knowledge base in the terminal",
	Long: `Open an interactive chat. The conversation keeps a short history
for the session.

Controls:
  Enter       - Send the question
  PgUp/PgDn   - Scroll the transcript
  Esc/Ctrl+C  - Quit`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	askCmd.Flags().Bool("json", false, "output as JSON")
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(chatCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return fmt.Errorf("getting json flag: %w", err)
	}

	question, err := readQuestion(cmd, args)
	if err != nil {
		return err
	}

	bot, err := openRagbot(cmd)
	if err != nil {
		return err
	}
	defer bot.Close()

	response := bot.Chat(cmd.Context(), question)

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(response)
	}

	cmd.Println(response.Response)
	if len(response.Sources) > 0 {
		cmd.Printf("\nSources: %s\n", strings.Join(response.Sources, ", "))
	}
	return nil
}

func readQuestion(cmd *cobra.Command, args []string) (string, error) {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question != "" {
		return question, nil
	}

	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return "", errors.New("question is required")
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("reading question: %w", err)
	}
	question = strings.TrimSpace(string(data))
	if question == "" {
		return "", errors.New("question is required")
	}
	return question, nil
}

func runChat(cmd *cobra.Command, _ []string) error {
	// the alt screen owns the terminal
	logger = helper.NewLoggerTo(io.Discard, cfg.Log.Level)

	bot, err := openRagbot(cmd)
	if err != nil {
		return err
	}
	defer bot.Close()

	p := tea.NewProgram(tui.New(cmd.Context(), bot, bot.Engine.Persona().BotName), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
