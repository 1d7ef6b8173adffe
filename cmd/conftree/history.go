package main

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/artpar/conftree/core/formatter"
	"github.com/artpar/conftree/ports"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List saved versions of a document",
	Long: `List the saved versions of a document, newest first.

Examples:
  conftree history -s schema.json --store conf.db
  conftree history -s schema.json --store conf.db --limit 5 -o json`,
	RunE: runHistory,
}

var (
	historyLimit    int
	historyOutput   string
	historyMaxWidth int
)

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVar(&historyLimit, "limit", 0, "newest versions to list (0 = all)")
	historyCmd.Flags().StringVarP(&historyOutput, "output", "o", "table", "output format (table, json, yaml)")
	historyCmd.Flags().IntVar(&historyMaxWidth, "max-width", 0, "truncate descriptions to this width")
}

func runHistory(cmd *cobra.Command, args []string) error {
	sess, closeStore, err := openSession()
	if err != nil {
		return err
	}
	defer closeStore()

	records, err := sess.History(context.Background(), historyLimit)
	if err != nil && !errors.Is(err, ports.ErrNotFound) {
		return err
	}

	f := outputFormatter(historyOutput)
	return f.FormatHistory(os.Stdout, docName, records, formatter.FormatOptions{MaxWidth: historyMaxWidth})
}
