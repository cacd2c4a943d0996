package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/raphaelgruber/podsearch/internal/tools"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve search and chat tools over MCP on stdio",
	Long: `Run a Model Context Protocol server on stdin/stdout.

Exposes search_podcasts, list_podcasts and ask_podcast to MCP clients.
Logs go to the configured log file, never to stdout.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.InitAll(ctx); err != nil {
		return fmt.Errorf("init services: %w", err)
	}
	search, err := application.Searcher()
	if err != nil {
		return err
	}
	chat, err := application.Chatter(ctx)
	if err != nil {
		return err
	}

	srv := tools.NewServer(Version, &tools.Dependencies{
		DB:     application.DB,
		Search: search,
		Chat:   chat,
		Logger: logger,
	})

	logger.Info("mcp server starting", "version", Version)
	return srv.Run(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
}
