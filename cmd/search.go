package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/reqflow/reqflow/internal/tui"
)

var (
	searchLimit       int
	searchInteractive bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query...]",
	Short: "Query the project knowledge base",
	Example: `  reqflow search how does chunk overlap work
  reqflow search -i`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if searchInteractive {
			return runInteractiveSearch()
		}
		if len(args) == 0 {
			return fmt.Errorf("provide a query or use --interactive")
		}
		return runSearch(strings.Join(args, " "))
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 5, "maximum number of results")
	searchCmd.Flags().BoolVarP(&searchInteractive, "interactive", "i", false, "open the interactive search browser")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(query string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.engine.Search(ctx, projectID, query, searchLimit)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("No results.")
		return nil
	}

	for i, r := range results {
		fmt.Printf("%d. %s (score %.3f)\n", i+1, r.Filename, r.Score)
		fmt.Println(indent(r.Content, "   "))
		fmt.Println()
	}
	return nil
}

func runInteractiveSearch() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	model := tui.New(ctx, a.engine, projectID)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = program.Run()
	return err
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := range lines {
		lines[i] = prefix + lines[i]
	}
	return strings.Join(lines, "\n")
}
