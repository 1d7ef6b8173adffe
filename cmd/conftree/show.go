package main

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/artpar/conftree/core/formatter"
	"github.com/artpar/conftree/core/schema"
	"github.com/artpar/conftree/core/tree"
	"github.com/artpar/conftree/ports"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show a configuration document",
	Long: `Show the current configuration document.

Without --store or -f this shows the schema defaults. Secret values
are masked unless --reveal is passed.

Examples:
  conftree show -s schema.json
  conftree show -s schema.json --store conf.db -o yaml
  conftree show -s schema.json --store conf.db --version 3
  conftree show -s schema.json -f values.yaml -o json --compact`,
	RunE: runShow,
}

var (
	showValuesFile string
	showVersion    int64
	showOutput     string
	showReveal     bool
	showCompact    bool
	showNoHeader   bool
	showMaxWidth   int
)

func init() {
	rootCmd.AddCommand(showCmd)

	showCmd.Flags().StringVarP(&showValuesFile, "file", "f", "", "show a values document from disk instead of the store")
	showCmd.Flags().Int64Var(&showVersion, "version", 0, "show a specific stored version (default: newest)")
	showCmd.Flags().StringVarP(&showOutput, "output", "o", "table", "output format (table, json, yaml)")
	showCmd.Flags().BoolVar(&showReveal, "reveal", false, "print secret values in the clear")
	showCmd.Flags().BoolVar(&showCompact, "compact", false, "single-line JSON output")
	showCmd.Flags().BoolVar(&showNoHeader, "no-header", false, "omit the table header row")
	showCmd.Flags().IntVar(&showMaxWidth, "max-width", 0, "truncate table values to this width")
}

func runShow(cmd *cobra.Command, args []string) error {
	tr, err := currentTree(showValuesFile, showVersion)
	if err != nil {
		return err
	}
	f := outputFormatter(showOutput)
	return f.FormatTree(os.Stdout, docName, tr, formatter.FormatOptions{
		Reveal:   showReveal,
		Compact:  showCompact,
		NoHeader: showNoHeader,
		MaxWidth: showMaxWidth,
	})
}

// outputFormatter resolves -o, falling back to the default formatter
// for unknown names.
func outputFormatter(name string) formatter.Formatter {
	if f, ok := formatter.Get(name); ok {
		return f
	}
	return formatter.Default()
}

// currentTree loads the tree the display commands operate on: a values
// file from disk, a specific stored version, the stored head, or schema
// defaults when nothing was ever saved.
func currentTree(valuesFile string, version int64) (*tree.Tree, error) {
	if valuesFile != "" {
		schemaData, err := readSchema()
		if err != nil {
			return nil, err
		}
		desc, err := schema.Parse(schemaData)
		if err != nil {
			return nil, err
		}
		return loadValuesFile(desc, valuesFile)
	}

	sess, closeStore, err := openSession()
	if err != nil {
		return nil, err
	}
	defer closeStore()

	ctx := context.Background()
	if version > 0 {
		if err := sess.LoadVersion(ctx, version); err != nil {
			return nil, err
		}
	} else if err := sess.Load(ctx); err != nil && !errors.Is(err, ports.ErrNotFound) {
		return nil, err
	}
	return sess.Tree(), nil
}
