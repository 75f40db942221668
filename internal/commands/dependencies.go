package commands

import (
	"context"
	"io"
	"os"

	"github.com/atotto/clipboard"

	"github.com/diogo/geminichat/internal/api"
	"github.com/diogo/geminichat/internal/tui"
)

// TUIInterface defines the methods required from the TUI package.
type TUIInterface interface {
	RunChat(ctx context.Context, deps tui.Deps) error
}

// Dependencies holds the external dependencies for the commands.
// This allows for dependency injection and easier testing.
type Dependencies struct {
	// Client replaces the Gemini client built from the stored API key.
	Client api.ChatClient

	// TUI is the terminal user interface.
	TUI TUIInterface

	// Stdin is read by commands that accept piped input and by set-key.
	Stdin io.Reader

	// Clipboard copies text to the system clipboard.
	Clipboard func(string) error
}

// DefaultTUI is the production implementation of TUIInterface.
type DefaultTUI struct{}

func (d *DefaultTUI) RunChat(ctx context.Context, deps tui.Deps) error {
	return tui.Run(ctx, deps)
}

// NewDependencies creates a new Dependencies struct with default implementations.
func NewDependencies() *Dependencies {
	return &Dependencies{
		TUI:       &DefaultTUI{},
		Stdin:     os.Stdin,
		Clipboard: clipboard.WriteAll,
	}
}
