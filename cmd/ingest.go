package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/reqflow/reqflow/internal/extract"
	"github.com/reqflow/reqflow/internal/ingest"
)

var ingestURL string

var ingestCmd = &cobra.Command{
	Use:   "ingest [path...]",
	Short: "Add files, directories, or web pages to the project knowledge base",
	Example: `  reqflow ingest ./docs
  reqflow ingest README.md CHANGELOG.md
  reqflow ingest --url https://example.com/guide`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if ingestURL == "" && len(args) == 0 {
			return fmt.Errorf("provide at least one path or --url")
		}
		return runIngest(args)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestURL, "url", "", "web page to fetch and ingest")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(paths []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if ingestURL != "" {
		if err := ingestPage(ctx, a, ingestURL); err != nil {
			return err
		}
	}

	if len(paths) == 0 {
		return nil
	}

	ing, err := ingest.New(a.engine, a.logger)
	if err != nil {
		return err
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}

		if info.IsDir() {
			result, err := ing.Directory(ctx, projectID, path)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d files added, %d skipped, %d failed, %d chunks stored (%s)\n",
				path, result.FilesAdded, result.FilesSkipped, result.FilesFailed,
				result.ChunksStored, result.Duration.Round(time.Millisecond))
			continue
		}

		stored, err := ing.File(ctx, projectID, path)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d chunks stored\n", path, stored)
	}
	return nil
}

// ingestPage fetches a URL, extracts its text, and stores it under a
// document ID derived from the URL.
func ingestPage(ctx context.Context, a *app, rawURL string) error {
	extractor := extract.New(a.logger)
	doc, err := extractor.Fetch(ctx, rawURL)
	if err != nil {
		return err
	}

	filename := doc.Title
	if filename == "" {
		filename = rawURL
	}

	stored, err := a.engine.Ingest(ctx, ingest.DocumentID(rawURL), projectID, filename, doc.Text)
	if err != nil {
		return fmt.Errorf("ingesting %s: %w", rawURL, err)
	}
	fmt.Printf("%s: %d chunks stored\n", rawURL, stored)
	return nil
}
