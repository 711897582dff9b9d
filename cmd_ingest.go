package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github/itish2003/newsrag/models"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest FILE...",
	Short: "Index documents from JSON files",
	Long: `Reads one or more files, each holding a JSON array of articles, and
indexes them. Articles sharing a URL are deduplicated.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

var ingestReset bool

func init() {
	ingestCmd.Flags().BoolVar(&ingestReset, "reset", false, "delete the vector collection before indexing")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	var docs []models.Document
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		var batch []models.Document
		if err := json.Unmarshal(data, &batch); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		docs = append(docs, batch...)
	}

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to assemble pipeline: %w", err)
	}
	defer a.Close()

	if ingestReset {
		if err := a.index.DeleteCollection(ctx); err != nil {
			return fmt.Errorf("failed to reset collection: %w", err)
		}
	}

	n, err := a.ingest.Ingest(ctx, docs)
	if err != nil {
		return fmt.Errorf("ingestion failed after %d documents: %w", n, err)
	}
	cmd.Printf("Indexed %d of %d documents (embedding: %s, index: %s)\n", n, len(docs), a.embedder.Mode(), a.index.Backend())
	return nil
}
