package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github/itish2003/newsrag/models"
)

var (
	historyArchived bool
	historyJSON     bool
)

var historyCmd = &cobra.Command{
	Use:   "history SESSION_ID",
	Short: "Print the messages of a session",
	Long: `Prints the live history of a session. With --archived the history is
read from the SQLite archive instead, which outlives session expiry.`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().BoolVar(&historyArchived, "archived", false, "read from the SQLite archive")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "output messages as JSON")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if historyArchived && !cfg.Archive.Enabled {
		return errors.New("archive is disabled in the configuration")
	}
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to assemble pipeline: %w", err)
	}
	defer a.Close()

	var messages []models.Message
	if historyArchived {
		messages, err = a.archive.Messages(ctx, args[0])
	} else {
		messages, err = a.rag.GetHistory(ctx, args[0])
	}
	if err != nil {
		return err
	}

	if historyJSON {
		data, err := json.MarshalIndent(models.HistoryResponse{SessionID: args[0], Messages: messages}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal history: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}
	if len(messages) == 0 {
		cmd.Println("No messages.")
		return nil
	}
	for _, m := range messages {
		cmd.Printf("[%s] %s: %s\n", m.Timestamp.Format("2006-01-02 15:04:05"), m.Role, m.Content)
	}
	return nil
}
