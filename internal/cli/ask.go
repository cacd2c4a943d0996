package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/raphaelgruber/podsearch/internal/service"
	"github.com/spf13/cobra"
)

var (
	askSession     string
	askStream      bool
	askRaw         bool
	askInteractive bool
)

var askCmd = &cobra.Command{
	Use:   "ask <episode-id> [question]",
	Short: "Ask a question about an episode",
	Long: `Ask a question about one episode and get an answer grounded in its transcript.

The most relevant passages of the transcript are handed to the language model
along with recent conversation history. Pass --session to continue an earlier
conversation, or -i to keep asking questions interactively.

Examples:
  podsearch ask episode_42.txt "What did they say about testing?"
  podsearch ask episode_42.txt "And deployment?" --session 3f1c...
  podsearch ask episode_42.txt -i`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askSession, "session", "s", "", "continue an existing chat session")
	askCmd.Flags().BoolVar(&askStream, "stream", false, "print the answer as it is generated")
	askCmd.Flags().BoolVar(&askRaw, "raw", false, "print the answer without markdown rendering")
	askCmd.Flags().BoolVarP(&askInteractive, "interactive", "i", false, "read questions from stdin until EOF")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	chat, err := application.Chatter(ctx)
	if err != nil {
		return err
	}

	episodeID := args[0]
	out := cmd.OutOrStdout()
	session := askSession

	if !askInteractive {
		if len(args) < 2 {
			return fmt.Errorf("a question is required (or use -i)")
		}
		resp, err := askOnce(ctx, out, chat, service.ChatRequest{
			EpisodeID: episodeID,
			SessionID: session,
			Message:   strings.Join(args[1:], " "),
		})
		if err != nil {
			return err
		}
		hint(cmd.ErrOrStderr(), "session %s (continue with --session %s)", resp.SessionID, resp.SessionID)
		return nil
	}

	scanner := bufio.NewScanner(cmd.InOrStdin())
	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			fmt.Fprint(out, "> ")
			continue
		}
		resp, err := askOnce(ctx, out, chat, service.ChatRequest{EpisodeID: episodeID, SessionID: session, Message: question})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(out, "%s %v\n", defaultTheme.errorStyle().Render("error:"), err)
		} else {
			session = resp.SessionID
		}
		fmt.Fprint(out, "\n> ")
	}
	fmt.Fprintln(out)
	return scanner.Err()
}

func askOnce(ctx context.Context, out io.Writer, chat *service.ChatService, req service.ChatRequest) (*service.ChatResponse, error) {
	if askStream {
		resp, err := chat.AskStream(ctx, req, func(token string) error {
			_, err := io.WriteString(out, token)
			return err
		})
		if err != nil {
			return nil, err
		}
		fmt.Fprintln(out)
		return resp, nil
	}

	resp, err := chat.Ask(ctx, req)
	if err != nil {
		return nil, err
	}

	answer := resp.Response
	if !askRaw {
		if rendered, err := renderMarkdown(answer); err == nil {
			answer = rendered
		}
	}
	fmt.Fprintln(out, strings.TrimRight(answer, "\n"))
	if verbose {
		hint(out, "%s, chunks %v, %s", resp.EpisodeTitle, resp.ChunksUsed, resp.Duration.Round(1e6))
	}
	return resp, nil
}
