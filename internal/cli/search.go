package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/raphaelgruber/podsearch/internal/service"
	"github.com/spf13/cobra"
)

var (
	searchTopK int
	searchJSON bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find episodes relevant to a topic",
	Long: `Search indexed episodes by meaning.

Episodes are ranked by a weighted blend of how well the title, the opening,
the best matching passage and the closing match the query.

Examples:
  podsearch search "kubernetes operators"
  podsearch search "how to start a sourdough" -k 10
  podsearch search "rust async" --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 0, "number of episodes to return (default from config)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "print results as JSON")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	query := strings.Join(args, " ")

	searcher, err := application.Searcher()
	if err != nil {
		return err
	}

	resp, err := searcher.Search(ctx, service.SearchOptions{Query: query, TopK: searchTopK})
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	out := cmd.OutOrStdout()
	if searchJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	printSearchResults(out, resp, verbose)
	return nil
}

func printSearchResults(w io.Writer, resp *service.SearchResponse, detailed bool) {
	if len(resp.Results) == 0 {
		fmt.Fprintln(w, "No episodes found. Index transcripts with 'podsearch index'.")
		return
	}

	fmt.Fprintf(w, "Found %d episodes for %q:\n\n", len(resp.Results), resp.Query)
	for i, r := range resp.Results {
		conf := defaultTheme.confidenceStyle(r.Confidence).Render(formatConfidence(r.Confidence))
		fmt.Fprintf(w, "%d. %s  %s\n", i+1, defaultTheme.titleStyle().Render(r.Title), conf)
		fmt.Fprintf(w, "   %s\n", r.EpisodeID)
		if detailed {
			fmt.Fprintf(w, "   title %.3f  intro %.3f  content %.3f (chunk %d)  outro %.3f\n",
				r.Scores.Title, r.Scores.Intro, r.Scores.Chunks, r.Scores.BestChunk, r.Scores.Outro)
		}
		if r.Preview != "" {
			fmt.Fprintf(w, "   %s\n", defaultTheme.hintStyle().Render(strings.ReplaceAll(r.Preview, "\n", " ")))
		}
		fmt.Fprintln(w)
	}

	if resp.Profile == service.ProfileContent {
		hint(w, "No title matched strongly; ranked mostly by transcript content.")
	}
	if len(resp.Skipped) > 0 {
		hint(w, "Skipped %d episode(s) indexed with a different embedding model; re-index with --force.", len(resp.Skipped))
	}
}
