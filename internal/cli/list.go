package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed episodes",
	Long: `List every indexed episode with its size and when it was indexed.

Examples:
  podsearch list`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	episodes, err := application.DB.ListEpisodes(ctx)
	if err != nil {
		return fmt.Errorf("list episodes: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(episodes) == 0 {
		fmt.Fprintln(out, "No episodes indexed.")
		hint(out, "Run 'podsearch index <dir>' to index transcripts.")
		return nil
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(defaultTheme.Hint)).
		Headers("ID", "TITLE", "CHARS", "CHUNKS", "INDEXED").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return defaultTheme.titleStyle().Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	for _, ep := range episodes {
		t.Row(ep.ID, truncate(ep.Title, 50), strconv.Itoa(ep.CharCount), strconv.Itoa(ep.ChunkCount),
			ep.IndexedAt.Local().Format("2006-01-02 15:04"))
	}

	fmt.Fprintln(out, t)
	fmt.Fprintf(out, "%d episodes\n", len(episodes))
	return nil
}

// truncate shortens s to n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
