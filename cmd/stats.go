package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show document and chunk counts for the project",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStats()
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.engine.Stats(ctx, projectID)
	if err != nil {
		return err
	}

	fmt.Printf("Project:   %s\n", projectID)
	fmt.Printf("Documents: %d\n", stats.DocumentCount)
	fmt.Printf("Chunks:    %d\n", stats.ChunkCount)
	return nil
}
