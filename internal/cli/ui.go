package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// Theme holds the color scheme for terminal output.
type Theme struct {
	Title   lipgloss.Color
	High    lipgloss.Color
	Medium  lipgloss.Color
	Low     lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Title:   lipgloss.Color("#5FAFD7"), // light blue
	High:    lipgloss.Color("#00D787"), // green
	Medium:  lipgloss.Color("#FFD75F"), // yellow
	Low:     lipgloss.Color("#6C6C6C"), // dim gray
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) titleStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Title).Bold(true)
}

func (t Theme) successStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// confidenceStyle colors a confidence by strength.
func (t Theme) confidenceStyle(c float64) lipgloss.Style {
	switch {
	case c >= 0.6:
		return lipgloss.NewStyle().Foreground(t.High).Bold(true)
	case c >= 0.3:
		return lipgloss.NewStyle().Foreground(t.Medium)
	default:
		return lipgloss.NewStyle().Foreground(t.Low)
	}
}

// formatConfidence renders c as a percentage, e.g. "62.0%".
func formatConfidence(c float64) string {
	return fmt.Sprintf("%.1f%%", c*100)
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// terminalWidth returns the usable width of stdout, 80 when unknown.
func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 10 {
		return 80
	}
	return width - 4
}

// renderMarkdown renders markdown for the terminal. Non-terminal output is
// returned unchanged.
func renderMarkdown(content string) (string, error) {
	if !isTerminal(os.Stdout) {
		return content, nil
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(terminalWidth()),
		glamour.WithColorProfile(termenv.EnvColorProfile()),
	)
	if err != nil {
		return "", fmt.Errorf("creating terminal renderer: %w", err)
	}
	return r.Render(content)
}

// newProgressBar creates a progress bar on stderr, silent when stderr is
// not a terminal.
func newProgressBar(total int, description string) *progressbar.ProgressBar {
	if !isTerminal(os.Stderr) {
		return progressbar.DefaultSilent(int64(total))
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}

// hint prints a dim italic line to w.
func hint(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, defaultTheme.hintStyle().Render(fmt.Sprintf(format, args...)))
}
