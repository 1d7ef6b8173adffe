package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Print one field's value",
	Long: `Print the value at a path.

Paths are slash-separated field names with [i] for list elements.
Display titles work too: "Relay Settings/Relay Host" and /relay/host
name the same field.

Examples:
  conftree get -s schema.json --store conf.db /smtp/host
  conftree get -s schema.json --store conf.db /servers[0]
  conftree get -s schema.json --store conf.db "Relay Settings/Relay Host"`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

var (
	getValuesFile string
	getVersion    int64
	getReveal     bool
)

func init() {
	rootCmd.AddCommand(getCmd)

	getCmd.Flags().StringVarP(&getValuesFile, "file", "f", "", "read from a values document instead of the store")
	getCmd.Flags().Int64Var(&getVersion, "version", 0, "read from a specific stored version")
	getCmd.Flags().BoolVar(&getReveal, "reveal", false, "print secret values in the clear")
}

func runGet(cmd *cobra.Command, args []string) error {
	tr, err := currentTree(getValuesFile, getVersion)
	if err != nil {
		return err
	}
	node, err := resolveNode(tr, args[0])
	if err != nil {
		return err
	}

	var v any
	if getReveal {
		v = node.Reveal()
	} else {
		v = node.Get()
	}

	switch val := v.(type) {
	case nil:
		fmt.Println("null")
	case string:
		fmt.Println(val)
	case bool, json.Number:
		fmt.Println(val)
	default:
		out, err := json.MarshalIndent(val, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	}
	return nil
}
