package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"nightjar/internal/catalog"
	"nightjar/internal/exchange"
	"nightjar/internal/store"
)

var (
	askMode    string
	askToggles []string
	askText    bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a one-shot question and stream the answer",
	Long: `Ask a single question outside any saved conversation. The answer
streams to stdout and nothing is persisted.

Examples:
  nightjar ask "What is the capital of France?"
  nightjar ask --mode engineer "Why does this select leak goroutines?"
  nightjar ask --toggle web "What changed in the latest Go release?"
  nightjar ask --text "List 5 window managers" > wm.txt
  cat crash.log | nightjar ask "What went wrong here?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)

	askCmd.Flags().StringVarP(&askMode, "mode", "m", "", "Conversation mode for this question")
	askCmd.Flags().StringSliceVar(&askToggles, "toggle", nil, "Capability toggle to enable (repeatable)")
	askCmd.Flags().BoolVarP(&askText, "text", "t", false, "Output plain text instead of rendered markdown")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := loadSettings()
	if err != nil {
		return err
	}
	if askMode != "" {
		if _, ok := catalog.ModeByName(askMode); !ok {
			return fmt.Errorf("unknown mode %q", askMode)
		}
		s.Mode = askMode
	}
	if len(askToggles) > 0 {
		for _, name := range askToggles {
			if _, ok := catalog.ToggleByName(name); !ok {
				return fmt.Errorf("unknown toggle %q", name)
			}
		}
		s.Toggles = askToggles
	}

	client := endpointClient(s)
	if client == nil {
		return fmt.Errorf("no API key configured; run 'nightjar settings set-key' or export ANTHROPIC_API_KEY")
	}

	question := strings.Join(args, " ")
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		piped, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		if text := strings.TrimSpace(string(piped)); text != "" {
			question = question + "\n\n" + text
		}
	}

	// The exchange machinery needs somewhere to commit; a scratch store keeps
	// the one-shot path identical to a real conversation without leaving
	// anything behind.
	dir, err := os.MkdirTemp("", "nightjar-ask-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)
	st, err := store.Open(dir)
	if err != nil {
		return err
	}
	defer st.Close()

	conv, err := st.Create("one-shot")
	if err != nil {
		return err
	}

	orch := exchange.New(st, buildRegistry(s), exchange.Config{
		Client:   client,
		Settings: s,
	})

	isTTY := term.IsTerminal(int(os.Stdout.Fd()))
	rendered := isTTY && !askText
	sink := &askSink{
		out:           os.Stdout,
		notices:       os.Stderr,
		buffered:      rendered,
		showReasoning: s.ShowReasoning && isTTY,
	}

	msg, err := orch.Conduct(ctx, conv.ID, question, sink)
	if err != nil {
		return err
	}

	if rendered {
		fmt.Print(renderAnswer(msg.Content))
	} else if !strings.HasSuffix(msg.Content, "\n") {
		fmt.Println()
	}
	return nil
}

var (
	askToolStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	askReasoningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true)
)

// askSink prints one streamed answer to the terminal. Text goes to stdout;
// reasoning and tool notices go to stderr so piped output stays clean. When
// buffered, text is withheld and rendered once the answer is complete.
type askSink struct {
	out           io.Writer
	notices       io.Writer
	buffered      bool
	showReasoning bool
	segment       int
	needBreak     bool
}

func (s *askSink) breakReasoning() {
	if s.needBreak {
		fmt.Fprintln(s.notices)
		s.needBreak = false
	}
}

func (s *askSink) TextDelta(delta string) {
	s.breakReasoning()
	if !s.buffered {
		fmt.Fprint(s.out, delta)
	}
}

func (s *askSink) ReasoningDelta(segment int, delta string) {
	if !s.showReasoning {
		return
	}
	if segment != s.segment {
		s.breakReasoning()
		s.segment = segment
	}
	fmt.Fprint(s.notices, askReasoningStyle.Render(delta))
	s.needBreak = true
}

func (s *askSink) ToolUse(name string, input json.RawMessage) {
	s.breakReasoning()
	fmt.Fprintln(s.notices, askToolStyle.Render("• "+name))
}

func (s *askSink) Done(message *store.Message) {}

func (s *askSink) Error(err error) {}

// renderAnswer renders the completed answer as terminal markdown, falling
// back to the raw text when rendering fails.
func renderAnswer(content string) string {
	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = min(w, 100)
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}
	out, err := renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimSpace(out) + "\n"
}
