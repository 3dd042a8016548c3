package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show how many export attempts a job has recorded",
	Long: `Reports the number of audit records written for a job. A job is
complete once every submitted test case has a record; compare the count
against the test case count from the export submission.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := api.GetJobStatus(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("job status: %w", err)
		}

		fmt.Printf("Job %s: %d audit records\n", status.JobID, status.AuditRecords)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
