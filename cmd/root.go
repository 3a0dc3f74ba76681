// Package cmd provides the reqflow CLI.
//
// Commands:
//   - ingest: add files, directories, or web pages to a project
//   - search: query a project's knowledge base
//   - stats: show document and chunk counts
//   - delete-document, delete-project: remove stored content
//   - migrate: apply database migrations
//   - mcp: serve the knowledge tools over the Model Context Protocol
//
// Signal handling and graceful shutdown are implemented for all commands
// via context cancellation.
package cmd

import (
	"github.com/spf13/cobra"
)

// projectID is the tenant every command operates on.
var projectID string

var rootCmd = &cobra.Command{
	Use:   "reqflow",
	Short: "reqflow - project knowledge ingestion and retrieval",
	Long: `reqflow ingests documents into a per-project knowledge base and
retrieves the most relevant chunks by semantic similarity, falling back to
keyword matching when the embedding service is unavailable.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&projectID, "project", "p", "default",
		"project whose knowledge base to operate on")
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}
