package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artpar/conftree/ports"
)

var setCmd = &cobra.Command{
	Use:   "set <path> [value]",
	Short: "Change a field and save a new version",
	Long: `Change one field and save the document as a new version.

Values are read as JSON where possible: 8080 is a number, true a
bool, ["a","b"] a list. Anything else is taken as a string.

Examples:
  conftree set -s schema.json --store conf.db /smtp/host mail.example.com
  conftree set -s schema.json --store conf.db /smtp/port 2525
  conftree set -s schema.json --store conf.db --activate /relay
  conftree set -s schema.json --store conf.db --append /servers node-3
  conftree set -s schema.json --store conf.db --remove-at 0 /servers`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSet,
}

var (
	setActivate    bool
	setDeactivate  bool
	setAppend      bool
	setRemoveAt    int
	setDescription string
)

func init() {
	rootCmd.AddCommand(setCmd)

	setCmd.Flags().BoolVar(&setActivate, "activate", false, "activate the group at <path>")
	setCmd.Flags().BoolVar(&setDeactivate, "deactivate", false, "deactivate the group at <path>")
	setCmd.Flags().BoolVar(&setAppend, "append", false, "append <value> to the list at <path>")
	setCmd.Flags().IntVar(&setRemoveAt, "remove-at", -1, "remove the element at this index from the list at <path>")
	setCmd.Flags().StringVarP(&setDescription, "description", "d", "", "description stored with the new version")
}

func runSet(cmd *cobra.Command, args []string) error {
	sess, closeStore, err := openSession()
	if err != nil {
		return err
	}
	defer closeStore()

	ctx := context.Background()
	if err := sess.Load(ctx); err != nil && !errors.Is(err, ports.ErrNotFound) {
		return err
	}

	node, err := resolveNode(sess.Tree(), args[0])
	if err != nil {
		return err
	}

	path := node.Path().String()
	description := setDescription
	switch {
	case setActivate:
		if err := node.Activate(); err != nil {
			return err
		}
		if description == "" {
			description = "activate " + path
		}
	case setDeactivate:
		if err := node.Deactivate(); err != nil {
			return err
		}
		if description == "" {
			description = "deactivate " + path
		}
	case setAppend:
		if len(args) < 2 {
			return fmt.Errorf("append needs a value")
		}
		if err := node.Append(parseCLIValue(args[1])); err != nil {
			return err
		}
		if description == "" {
			description = "append to " + path
		}
	case setRemoveAt >= 0:
		if err := node.RemoveAt(setRemoveAt); err != nil {
			return err
		}
		if description == "" {
			description = fmt.Sprintf("remove %s[%d]", path, setRemoveAt)
		}
	default:
		if len(args) < 2 {
			return fmt.Errorf("set needs a value")
		}
		if err := node.Set(parseCLIValue(args[1])); err != nil {
			return err
		}
		if description == "" {
			description = "set " + path
		}
	}

	saved, err := sess.Save(ctx, description)
	if err != nil {
		return err
	}

	fmt.Printf("Saved %s version %d\n", saved.Name, saved.Version)
	if storePath == "" {
		fmt.Println("Note: without --store the document is gone when this command exits.")
	}
	return nil
}
