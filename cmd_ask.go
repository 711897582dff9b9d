package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github/itish2003/newsrag/models"
)

var (
	askSession string
	askJSON    bool
	askStream  bool
)

var askCmd = &cobra.Command{
	Use:   "ask QUESTION",
	Short: "Ask a question against the indexed articles",
	Long: `Runs one turn of the pipeline. Without --session a new session is
created and its id printed so later questions can continue the conversation.
Sessions only outlive the process with the redis cache backend.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askSession, "session", "s", "", "session id to continue")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the full result as JSON")
	askCmd.Flags().BoolVar(&askStream, "stream", false, "print the answer as it is generated")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
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

	if askStream && !askJSON {
		stream, err := a.rag.AskStream(ctx, askSession, args[0])
		if err != nil {
			return err
		}
		for f := range stream.Fragments() {
			cmd.Print(f)
		}
		cmd.Println()
		result, err := stream.Wait()
		if err != nil {
			return err
		}
		printSources(cmd, result)
		return nil
	}

	result, err := a.rag.Ask(ctx, askSession, args[0])
	if err != nil {
		return err
	}
	if askJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}
	cmd.Println(result.Text)
	printSources(cmd, result)
	return nil
}

func printSources(cmd *cobra.Command, result *models.QueryResult) {
	if result.Note != "" {
		cmd.Println()
		cmd.Println(result.Note)
	}
	if len(result.Citations) > 0 {
		cmd.Println()
		cmd.Println("Sources:")
		for i, c := range result.Citations {
			cmd.Printf("  [%d] %s (%.2f)\n      %s\n", i+1, c.Title, c.Score, c.URL)
		}
	}
	suffix := ""
	if result.Cached {
		suffix = " (cached)"
	}
	cmd.Printf("\nsession: %s%s\n", result.SessionID, suffix)
}
