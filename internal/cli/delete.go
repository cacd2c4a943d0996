package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/raphaelgruber/podsearch/internal/models"
	"github.com/spf13/cobra"
)

var deleteForce bool

var deleteCmd = &cobra.Command{
	Use:   "delete <episode-id>",
	Short: "Remove an episode from the index",
	Long: `Remove an episode and its chunks from the index.
The transcript file itself is left untouched.
Requires confirmation unless --force is used.

Examples:
  podsearch delete episode_42.txt
  podsearch delete episode_42.txt --force`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "skip confirmation")
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	out := cmd.OutOrStdout()

	ep, err := application.DB.GetEpisode(ctx, args[0])
	if errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("episode not found: %s", args[0])
	}
	if err != nil {
		return fmt.Errorf("get episode: %w", err)
	}

	if !deleteForce {
		fmt.Fprintf(out, "About to delete: %s (%s)\n", ep.Title, ep.ID)
		fmt.Fprint(out, "\nContinue? [y/N]: ")

		response, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && response == "" {
			return fmt.Errorf("read input: %w", err)
		}
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
	}

	if err := application.DB.DeleteEpisode(ctx, ep.ID); err != nil {
		return fmt.Errorf("delete episode: %w", err)
	}

	fmt.Fprintf(out, "%s %s\n", defaultTheme.successStyle().Render("Deleted:"), ep.ID)
	return nil
}
