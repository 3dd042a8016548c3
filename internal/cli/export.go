package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jfellner/veritest-go/internal/models"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export <test-cases.json>",
	Short: "Submit approved test cases for export to the tracker",
	Long: `Reads a JSON file of approved test cases and submits them for
asynchronous export. The server partitions the set into batches and queues
each batch; use "veritest watch" to follow per-batch progress.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cases, err := readTestCases(args[0])
		if err != nil {
			return err
		}

		result, err := api.SubmitExport(cmd.Context(), cases)
		if err != nil {
			return fmt.Errorf("submit export: %w", err)
		}

		fmt.Printf("Export accepted: job %s (%d test cases in %d batches)\n",
			result.JobID, result.TestCaseCount, result.BatchCount)
		fmt.Printf("Follow progress with: veritest watch\n")
		fmt.Printf("Fetch evidence with:  veritest evidence %s %s\n", result.JobID, args[0])
		return nil
	},
}

// readTestCases loads test cases from either a plain array file or a
// generation results file with a "test_cases" key.
func readTestCases(path string) ([]models.TestCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read test cases: %w", err)
	}

	var cases []models.TestCase
	if err := json.Unmarshal(data, &cases); err == nil {
		return cases, nil
	}

	var results struct {
		TestCases []models.TestCase `json:"test_cases"`
	}
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("parse test cases: %w", err)
	}
	if len(results.TestCases) == 0 {
		return nil, fmt.Errorf("no test cases found in %s", path)
	}
	return results.TestCases, nil
}

func init() {
	rootCmd.AddCommand(exportCmd)
}
