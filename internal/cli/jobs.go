package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var jobsLimit int

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Show background indexing history",
	Long: `Show recent indexing jobs started through the HTTP API, newest first.

Examples:
  podsearch jobs
  podsearch jobs -n 50`,
	Args: cobra.NoArgs,
	RunE: runJobs,
}

func init() {
	jobsCmd.Flags().IntVarP(&jobsLimit, "limit", "n", 20, "max jobs to show")
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	out := cmd.OutOrStdout()

	jobs, err := application.DB.ListIndexJobs(ctx, jobsLimit)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}
	if len(jobs) == 0 {
		fmt.Fprintln(out, "No indexing jobs recorded.")
		return nil
	}

	for _, j := range jobs {
		status := j.Status
		switch j.Status {
		case "completed":
			status = defaultTheme.successStyle().Render(status)
		case "failed":
			status = defaultTheme.errorStyle().Render(status)
		}
		fmt.Fprintf(out, "%s  %-9s  %d/%d  %s  %s\n", j.ID, status, j.Progress, j.Total,
			j.StartedAt.Local().Format("2006-01-02 15:04"), j.DirPath)
		if j.Error != nil {
			fmt.Fprintf(out, "          %s\n", defaultTheme.hintStyle().Render(*j.Error))
		}
	}
	return nil
}
