package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var deleteDocumentCmd = &cobra.Command{
	Use:   "delete-document <document-id>",
	Short: "Remove all stored chunks for a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDeleteDocument(args[0])
	},
}

var deleteProjectCmd = &cobra.Command{
	Use:   "delete-project",
	Short: "Remove the entire knowledge base of the project",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDeleteProject()
	},
}

func init() {
	rootCmd.AddCommand(deleteDocumentCmd)
	rootCmd.AddCommand(deleteProjectCmd)
}

func runDeleteDocument(documentID string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.engine.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	fmt.Printf("Deleted document %s\n", documentID)
	return nil
}

func runDeleteProject() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.engine.DeleteProject(ctx, projectID); err != nil {
		return err
	}
	fmt.Printf("Deleted project %s\n", projectID)
	return nil
}
