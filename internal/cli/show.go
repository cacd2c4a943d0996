package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/raphaelgruber/podsearch/internal/models"
	"github.com/spf13/cobra"
)

var (
	showFull   bool
	showChunks bool
)

var showCmd = &cobra.Command{
	Use:   "show <episode-id>",
	Short: "Show an indexed episode",
	Long: `Show the title and transcript of an indexed episode.

The transcript is cut after 1000 characters unless --full is given.

Examples:
  podsearch show episode_42.txt
  podsearch show episode_42.txt --full
  podsearch show episode_42.txt --chunks`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	showCmd.Flags().BoolVar(&showFull, "full", false, "print the complete transcript")
	showCmd.Flags().BoolVar(&showChunks, "chunks", false, "list chunk boundaries")
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	out := cmd.OutOrStdout()

	ep, err := application.DB.GetEpisode(ctx, args[0])
	if errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("episode not found: %s", args[0])
	}
	if err != nil {
		return fmt.Errorf("get episode: %w", err)
	}

	fmt.Fprintln(out, defaultTheme.titleStyle().Render(ep.Title))
	fmt.Fprintf(out, "ID: %s\n", ep.ID)
	fmt.Fprintf(out, "Characters: %d\n", ep.CharCount)
	fmt.Fprintf(out, "Indexed: %s\n", ep.IndexedAt.Local().Format("2006-01-02 15:04:05"))

	if showChunks {
		chunks, err := application.DB.GetChunks(ctx, ep.ID)
		if err != nil {
			return fmt.Errorf("get chunks: %w", err)
		}
		fmt.Fprintf(out, "\nChunks (%d):\n", len(chunks))
		for _, c := range chunks {
			fmt.Fprintf(out, "  %3d  [%d-%d]  %s\n", c.Index, c.CharStart, c.CharEnd, models.Preview(c.Content, 60))
		}
	}

	fmt.Fprintln(out)
	if showFull {
		fmt.Fprintln(out, ep.Content)
		return nil
	}
	fmt.Fprintln(out, models.Preview(ep.Content, 1000))
	if len([]rune(ep.Content)) > 1000 {
		hint(out, "Transcript truncated, use --full to see all of it.")
	}
	return nil
}
