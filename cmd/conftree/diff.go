package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/artpar/conftree/core/diff"
	"github.com/artpar/conftree/core/formatter"
	"github.com/artpar/conftree/ports"
)

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Compare configuration versions",
	Long: `Compare two configuration documents field by field.

With -f the stored head (or the schema defaults) is compared against
a values file on disk. With --from the stored version is compared
against --to, or against the head when --to is omitted. Secret values
are masked on both sides.

Examples:
  conftree diff -s schema.json --store conf.db -f proposed.yaml
  conftree diff -s schema.json --store conf.db --from 2
  conftree diff -s schema.json --store conf.db --from 2 --to 5 -o json`,
	RunE: runDiff,
}

var (
	diffValuesFile string
	diffFrom       int64
	diffTo         int64
	diffOutput     string
	diffCompact    bool
)

func init() {
	rootCmd.AddCommand(diffCmd)

	diffCmd.Flags().StringVarP(&diffValuesFile, "file", "f", "", "compare the store against this values document")
	diffCmd.Flags().Int64Var(&diffFrom, "from", 0, "older version to compare")
	diffCmd.Flags().Int64Var(&diffTo, "to", 0, "newer version to compare (default: newest)")
	diffCmd.Flags().StringVarP(&diffOutput, "output", "o", "table", "output format (table, json, yaml)")
	diffCmd.Flags().BoolVar(&diffCompact, "compact", false, "single-line JSON output")
}

func runDiff(cmd *cobra.Command, args []string) error {
	sess, closeStore, err := openSession()
	if err != nil {
		return err
	}
	defer closeStore()
	ctx := context.Background()

	var changes []diff.Change
	switch {
	case diffValuesFile != "":
		if err := sess.Load(ctx); err != nil && !errors.Is(err, ports.ErrNotFound) {
			return err
		}
		before := sess.Tree().Serialize()

		after, err := loadValuesFile(sess.Descriptor(), diffValuesFile)
		if err != nil {
			return err
		}
		changes = diff.Compute(sess.Descriptor(), before, after.Serialize())

	case diffFrom > 0:
		if err := sess.LoadVersion(ctx, diffFrom); err != nil {
			return err
		}
		before := sess.Tree().Serialize()

		if diffTo > 0 {
			err = sess.LoadVersion(ctx, diffTo)
		} else {
			err = sess.Load(ctx)
		}
		if err != nil {
			return err
		}
		changes = diff.Compute(sess.Descriptor(), before, sess.Tree().Serialize())

	default:
		return fmt.Errorf("nothing to compare: pass -f or --from")
	}

	f := outputFormatter(diffOutput)
	return f.FormatDiff(os.Stdout, docName, changes, formatter.FormatOptions{Compact: diffCompact})
}
