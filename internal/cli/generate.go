package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var generateOut string

var generateCmd = &cobra.Command{
	Use:   "generate <requirements.txt>",
	Short: "Generate test cases from a requirements document",
	Long: `Sends a requirements document through the generation pipeline and
writes the resulting test cases to a JSON file ready for review and export.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read document: %w", err)
		}

		result, err := api.Generate(cmd.Context(), string(doc))
		if err != nil {
			return fmt.Errorf("generate: %w", err)
		}

		out := generateOut
		if out == "" {
			out = "test_cases.json"
		}

		data, err := json.MarshalIndent(result.TestCases, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal test cases: %w", err)
		}
		if err := os.WriteFile(out, data, 0644); err != nil {
			return fmt.Errorf("write test cases: %w", err)
		}

		fmt.Printf("Generated %d test cases from %d requirements → %s\n",
			result.Summary.TotalTestCases, result.Summary.TotalRequirements, out)
		return nil
	},
}

func init() {
	generateCmd.Flags().StringVarP(&generateOut, "output", "o", "", "output file (default test_cases.json)")
	rootCmd.AddCommand(generateCmd)
}
