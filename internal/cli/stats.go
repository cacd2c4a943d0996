package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index statistics and configuration",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	out := cmd.OutOrStdout()

	stats, err := application.DB.Stats(ctx)
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}

	fmt.Fprintln(out, defaultTheme.titleStyle().Render("Index"))
	fmt.Fprintf(out, "  Episodes:   %d\n", stats.Episodes)
	fmt.Fprintf(out, "  Chunks:     %d\n", stats.Chunks)
	fmt.Fprintf(out, "  Characters: %d\n", stats.TotalChars)
	fmt.Fprintf(out, "  Sessions:   %d (%d messages)\n", stats.Sessions, stats.Messages)
	if stats.LastIndexed != nil {
		fmt.Fprintf(out, "  Last index: %s\n", stats.LastIndexed.Local().Format("2006-01-02 15:04:05"))
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, defaultTheme.titleStyle().Render("Configuration"))
	fmt.Fprintf(out, "  Database:    %s\n", cfg.DBPath)
	fmt.Fprintf(out, "  Transcripts: %s\n", cfg.TranscriptsDir)
	fmt.Fprintf(out, "  Embeddings:  %s/%s\n", cfg.EmbedProvider, cfg.EmbedModel)
	fmt.Fprintf(out, "  Chat model:  %s/%s\n", cfg.LLMProvider, cfg.LLMModel)
	fmt.Fprintf(out, "  Weights:     title %.2f  intro %.2f  content %.2f  outro %.2f\n",
		cfg.WeightTitle, cfg.WeightIntro, cfg.WeightChunks, cfg.WeightOutro)
	if cfg.ConfigFileUsed != "" {
		fmt.Fprintf(out, "  Config file: %s\n", cfg.ConfigFileUsed)
	}
	return nil
}
