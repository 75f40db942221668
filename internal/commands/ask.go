package commands

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/renameio/v2"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/diogo/geminichat/internal/app"
	"github.com/diogo/geminichat/internal/render"
)

var (
	colorPrimary = lipgloss.Color("#1E90FF")
	colorSuccess = lipgloss.Color("#4CAF50")
	colorTextDim = lipgloss.Color("#6B6B6B")

	assistantLabelStyle = lipgloss.NewStyle().
				Foreground(colorPrimary).
				Bold(true)

	assistantBubbleStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(colorPrimary).
				Padding(0, 1).
				MarginBottom(1)

	statusStyle  = lipgloss.NewStyle().Foreground(colorTextDim)
	successStyle = lipgloss.NewStyle().Foreground(colorSuccess)
)

type askOptions struct {
	conversation string
	newName      string
	file         string
	output       string
	raw          bool
}

func newAskCmd(opts *rootOptions, deps *Dependencies) *cobra.Command {
	ask := &askOptions{}

	cmd := &cobra.Command{
		Use:   "ask [message]",
		Short: "Send a single message and print the reply",
		Long: `Send one message to Gemini and print the reply. The exchange is stored in
the last active conversation unless -c or --new picks another one.

The message is taken from the argument, from --file, or from stdin.

Examples:
  geminichat ask "What is Go?"
  geminichat ask -c @last "And in one sentence?"
  geminichat ask --new "Review" -f main.go
  cat notes.md | geminichat ask -o summary.md`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := ask.readPrompt(args, deps.Stdin)
			if err != nil {
				return err
			}
			return withApp(cmd, opts, deps, func(a *app.App) error {
				return ask.run(cmd, a, deps, prompt)
			})
		},
	}

	cmd.Flags().StringVarP(&ask.conversation, "conversation", "c", "", "Conversation to continue (ID, index, @last or part of the name)")
	cmd.Flags().StringVar(&ask.newName, "new", "", "Start a new conversation with this name")
	cmd.Flags().StringVarP(&ask.file, "file", "f", "", "Read the message from a file")
	cmd.Flags().StringVarP(&ask.output, "output", "o", "", "Save the reply to a file")
	cmd.Flags().BoolVar(&ask.raw, "raw", false, "Print the reply without formatting")
	cmd.MarkFlagsMutuallyExclusive("conversation", "new")

	return cmd
}

func (o *askOptions) readPrompt(args []string, stdin io.Reader) (string, error) {
	switch {
	case o.file != "":
		data, err := os.ReadFile(o.file)
		if err != nil {
			return "", fmt.Errorf("failed to read file: %w", err)
		}
		return string(data), nil
	case len(args) > 0:
		return args[0], nil
	}

	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return "", fmt.Errorf("no message given; pass it as an argument, with --file or on stdin")
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}

func (o *askOptions) selectConversation(a *app.App) error {
	switch {
	case o.conversation != "":
		return a.Open(o.conversation)
	case o.newName != "":
		_, err := a.Session.CreateNew(o.newName)
		return err
	}
	return a.Resume()
}

func (o *askOptions) run(cmd *cobra.Command, a *app.App, deps *Dependencies, prompt string) error {
	if err := o.selectConversation(a); err != nil {
		return err
	}

	decorated := !o.raw && isTTY(cmd.OutOrStdout())
	if decorated {
		fmt.Fprintln(cmd.ErrOrStderr(), statusStyle.Render(fmt.Sprintf("✦ %s • %s • generating...", a.Session.Name(), a.ModelName)))
	}

	start := time.Now()
	p, err := a.Dispatcher.Send(cmd.Context(), a.Session, prompt)
	if err != nil {
		return err
	}
	res := p.Wait()
	if err := a.Dispatcher.Complete(a.Session, res); err != nil {
		return err
	}
	text := res.Text

	if decorated {
		fmt.Fprintln(cmd.ErrOrStderr(), successStyle.Render(fmt.Sprintf("✓ Done in %s", time.Since(start).Round(time.Millisecond))))
	}

	if a.Config.CopyToClipboard && deps.Clipboard != nil {
		if err := deps.Clipboard(text); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed to copy to clipboard: %v\n", err)
		} else if decorated {
			fmt.Fprintln(cmd.ErrOrStderr(), successStyle.Render("✓ Copied to clipboard"))
		}
	}

	if o.output != "" {
		if err := renameio.WriteFile(o.output, []byte(text), 0o644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Reply saved to %s\n", o.output)
		return nil
	}

	out := cmd.OutOrStdout()
	if !decorated {
		fmt.Fprintln(out, text)
		return nil
	}

	bubbleWidth := min(max(terminalWidth(out)-4, 40), 120)
	renderOpts := render.OptionsFromConfig(*a.Config).WithWidth(bubbleWidth - 4)
	rendered, err := render.Reply(text, renderOpts)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
	}

	fmt.Fprintln(out, assistantLabelStyle.Render("✦ Gemini"))
	fmt.Fprintln(out, assistantBubbleStyle.Width(bubbleWidth).Render(strings.TrimRight(rendered, "\n")))
	return nil
}

// isTTY reports whether w is a terminal
func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// terminalWidth returns the width of w or a default of 80
func terminalWidth(w io.Writer) int {
	if f, ok := w.(*os.File); ok {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
			return width
		}
	}
	return 80
}
