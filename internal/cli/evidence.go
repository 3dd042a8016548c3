package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var evidenceOut string

var evidenceCmd = &cobra.Command{
	Use:   "evidence <job-id> <test-cases.json>",
	Short: "Download the evidence bundle for an export job",
	Long: `Requests the evidence bundle for a job: the original test cases, the
raw tracker traffic from the audit log, and the derived traceability matrix,
packaged as a zip archive.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID := args[0]

		cases, err := readTestCases(args[1])
		if err != nil {
			return err
		}

		out := evidenceOut
		if out == "" {
			out = "evidence_" + jobID + ".zip"
		}

		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()

		if err := api.DownloadEvidence(cmd.Context(), jobID, cases, f); err != nil {
			os.Remove(out)
			return err
		}

		fmt.Printf("Evidence bundle written to %s\n", out)
		return nil
	},
}

func init() {
	evidenceCmd.Flags().StringVarP(&evidenceOut, "output", "o", "", "output file (default evidence_<job-id>.zip)")
	rootCmd.AddCommand(evidenceCmd)
}
