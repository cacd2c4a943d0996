package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/raphaelgruber/podsearch/internal/service"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	indexForce bool
	indexPrune bool
)

var indexCmd = &cobra.Command{
	Use:   "index [path...]",
	Short: "Index transcript files or directories",
	Long: `Index podcast transcripts (.txt, .html, .htm) for search and chat.

Each path may be a file or a directory; directories are scanned (not
recursively) for transcripts. With no path the configured transcripts
directory is indexed. Unchanged episodes are skipped unless --force is set.

An episode is stored only when every part of it was embedded; a failure
leaves any previously indexed version untouched.

Examples:
  podsearch index
  podsearch index ~/podcasts/transcripts
  podsearch index episode_42.txt --force
  podsearch index ~/podcasts/transcripts --prune`,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVarP(&indexForce, "force", "f", false, "re-embed episodes even when unchanged")
	indexCmd.Flags().BoolVar(&indexPrune, "prune", false, "delete stored episodes not found under any given path")
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	indexer, err := application.Indexer()
	if err != nil {
		return err
	}

	paths := args
	if len(paths) == 0 {
		paths = []string{cfg.TranscriptsDir}
	}

	res, err := indexPaths(ctx, cmd.OutOrStdout(), indexer, paths)
	if err != nil {
		return err
	}
	if n := len(res.Errors); n > 0 {
		return fmt.Errorf("%d transcript(s) failed to index", n)
	}
	return nil
}

// collectPaths expands directories into their transcript files and keeps
// plain files as given. Duplicates are dropped.
func collectPaths(indexer *service.IndexService, paths []string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("index %s: %w", path, err)
		}

		found := []string{path}
		if info.IsDir() {
			if found, err = indexer.CollectFiles(path); err != nil {
				return nil, fmt.Errorf("index %s: %w", path, err)
			}
		}
		for _, f := range found {
			if !seen[f] {
				seen[f] = true
				files = append(files, f)
			}
		}
	}
	return files, nil
}

// indexPaths indexes every path in a single run, so --prune keeps the
// episodes of all of them.
func indexPaths(ctx context.Context, w io.Writer, indexer *service.IndexService, paths []string) (*service.DirectoryResult, error) {
	files, err := collectPaths(indexer, paths)
	if err != nil {
		return nil, err
	}

	label := paths[0]
	if len(paths) > 1 {
		label = fmt.Sprintf("%d paths", len(paths))
	}
	return indexFiles(ctx, w, indexer, label, files)
}

func indexFiles(ctx context.Context, w io.Writer, indexer *service.IndexService, label string, files []string) (*service.DirectoryResult, error) {
	var bar *progressbar.ProgressBar

	res, err := indexer.IndexFiles(ctx, files, service.IndexOptions{
		Force: indexForce,
		Prune: indexPrune,
		Progress: func(done, total int, file string) {
			if bar == nil {
				bar = newProgressBar(total, "indexing")
			}
			bar.Describe(file)
			_ = bar.Set(done)
		},
	})
	if bar != nil {
		_ = bar.Finish()
	}
	if res == nil {
		return nil, err
	}

	fmt.Fprintf(w, "%s %s: %d indexed, %d unchanged, %d chunks",
		defaultTheme.successStyle().Render("✓"), label, res.Indexed, res.Skipped, res.ChunksCreated)
	if res.Pruned > 0 {
		fmt.Fprintf(w, ", %d pruned", res.Pruned)
	}
	fmt.Fprintln(w)
	for _, e := range res.Errors {
		fmt.Fprintf(w, "  %s %s\n", defaultTheme.errorStyle().Render("✗"), e)
	}
	if res.Aborted {
		hint(w, "stopped early: the provider rejected the request (check credentials and quota)")
	}
	if errors.Is(err, context.Canceled) {
		hint(w, "interrupted")
		return res, nil
	}
	return res, err
}
