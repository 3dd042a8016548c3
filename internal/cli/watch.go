package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jfellner/veritest-go/internal/models"
	"github.com/spf13/cobra"
)

var (
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#5FAFD7"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#00D787")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF005F")).Bold(true)
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C6C6C")).Italic(true)
)

var watchJobID string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream live export progress",
	Long: `Connects to the server's progress stream and prints events as they
arrive. Only events published while connected are shown; there is no replay
of earlier progress.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(hintStyle.Render("watching progress (Ctrl+C to stop)..."))

		return api.WatchProgress(cmd.Context(), func(event models.ProgressEvent) {
			if watchJobID != "" && event.JobID != "" && event.JobID != watchJobID {
				return
			}
			fmt.Println(renderEvent(event))
		})
	},
}

func renderEvent(event models.ProgressEvent) string {
	var b strings.Builder

	switch event.Status {
	case models.ProgressBatchExported, models.ProgressResultsReady:
		b.WriteString(successStyle.Render("✓ " + event.Status))
	case models.ProgressBatchFailed, models.ProgressPipelineFailed:
		b.WriteString(errorStyle.Render("✗ " + event.Status))
	default:
		b.WriteString(statusStyle.Render("· " + event.Status))
	}

	if event.JobID != "" {
		b.WriteString(hintStyle.Render(" [" + event.JobID + "]"))
	}
	b.WriteString(" " + event.Message)

	if len(event.IssueKeys) > 0 {
		b.WriteString(hintStyle.Render(" → " + strings.Join(event.IssueKeys, ", ")))
	}
	return b.String()
}

func init() {
	watchCmd.Flags().StringVar(&watchJobID, "job", "", "only show events for this job ID")
	rootCmd.AddCommand(watchCmd)
}
