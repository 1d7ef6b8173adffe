package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/artpar/conftree/core/schema"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a schema before deployment",
	Long: `Validate a configuration schema file.

Checks:
  - File exists and parses (JSON or YAML)
  - Root is a closed object and every field classifies
  - A values document loads and is complete (optional)

Examples:
  conftree validate -s schema.json
  conftree validate -s schema.yaml -f values.yaml`,
	RunE: runValidate,
}

var validateValuesFile string

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validateValuesFile, "file", "f", "", "values document to check against the schema")
}

func runValidate(cmd *cobra.Command, args []string) error {
	if schemaPath == "" {
		return fmt.Errorf("no schema file: pass --schema")
	}
	fmt.Printf("Validating %s...\n\n", schemaPath)

	// Check file exists
	if _, err := os.Stat(schemaPath); os.IsNotExist(err) {
		fmt.Printf("  %s Schema file exists\n", crossMark)
		return fmt.Errorf("schema file not found: %s", schemaPath)
	}
	fmt.Printf("  %s Schema file exists\n", checkMark)

	desc, err := schema.ParseFile(schemaPath)
	if err != nil {
		fmt.Printf("  %s Schema parses\n", crossMark)
		return fmt.Errorf("schema error: %w", err)
	}
	fmt.Printf("  %s Schema parses\n", checkMark)

	// Walk visits the root group too
	fields := -1
	desc.Walk(func(*schema.Descriptor) { fields++ })
	fmt.Printf("  %s Fields declared: %d\n", checkMark, fields)
	fmt.Printf("  %s Secret fields: %d\n", checkMark, len(desc.SecretPaths()))

	if validateValuesFile != "" {
		tr, err := loadValuesFile(desc, validateValuesFile)
		if err != nil {
			fmt.Printf("  %s Values document loads\n", crossMark)
			return fmt.Errorf("values error: %w", err)
		}
		fmt.Printf("  %s Values document loads\n", checkMark)

		if res := tr.Check(); !res.Complete() {
			fmt.Printf("  %s Document complete\n", crossMark)
			for _, issue := range res.Issues {
				fmt.Printf("      %s: %s\n", issue.Path, issue.Message)
			}
			return fmt.Errorf("document has %d issues", len(res.Issues))
		}
		fmt.Printf("  %s Document complete\n", checkMark)
	}

	fmt.Println()
	fmt.Println("Schema is valid.")
	return nil
}

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)
