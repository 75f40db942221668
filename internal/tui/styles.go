// Package tui provides the terminal user interface for geminichat.
package tui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	apperrors "github.com/diogo/geminichat/internal/errors"
	"github.com/diogo/geminichat/internal/render"
)

// Color variables (updated from palette)
var (
	colorSurface lipgloss.Color
	colorBorder  lipgloss.Color
	colorSelect  lipgloss.Color

	colorUser    lipgloss.Color
	colorModel   lipgloss.Color
	colorAccent  lipgloss.Color
	colorWarning lipgloss.Color
	colorError   lipgloss.Color

	colorText    lipgloss.Color
	colorTextDim lipgloss.Color
)

// Style variables (rebuilt when the palette changes)
var (
	headerStyle   lipgloss.Style
	titleStyle    lipgloss.Style
	subtitleStyle lipgloss.Style
	hintStyle     lipgloss.Style

	messagesAreaStyle    lipgloss.Style
	userLabelStyle       lipgloss.Style
	userBubbleStyle      lipgloss.Style
	assistantLabelStyle  lipgloss.Style
	assistantBubbleStyle lipgloss.Style
	annotationStyle      lipgloss.Style

	inputPanelStyle lipgloss.Style
	inputLabelStyle lipgloss.Style
	loadingStyle    lipgloss.Style

	statusBarStyle  lipgloss.Style
	statusKeyStyle  lipgloss.Style
	statusDescStyle lipgloss.Style
	noticeStyle     lipgloss.Style
	errorStyle      lipgloss.Style
	confirmStyle    lipgloss.Style

	welcomeTitleStyle lipgloss.Style
	welcomeStyle      lipgloss.Style

	pickerPanelStyle    lipgloss.Style
	pickerTitleStyle    lipgloss.Style
	pickerItemStyle     lipgloss.Style
	pickerSelectedStyle lipgloss.Style
	pickerCursorStyle   lipgloss.Style
	pickerDetailStyle   lipgloss.Style
)

func init() {
	ApplyPalette(render.LightPalette)
}

// ApplyPalette refreshes all styles from p
func ApplyPalette(p render.Palette) {
	colorSurface = p.Surface
	colorBorder = p.Border
	colorSelect = p.Selected
	colorUser = p.UserPrefix
	colorModel = p.ModelPrefix
	colorAccent = p.Accent
	colorWarning = p.Warning
	colorError = p.Error
	colorText = p.Text
	colorTextDim = p.TextDim

	rebuildStyles()
}

func rebuildStyles() {
	headerStyle = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Padding(0, 2)

	titleStyle = lipgloss.NewStyle().
		Foreground(colorModel).
		Bold(true)

	subtitleStyle = lipgloss.NewStyle().
		Foreground(colorText)

	hintStyle = lipgloss.NewStyle().
		Foreground(colorTextDim).
		Italic(true)

	messagesAreaStyle = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Padding(0, 1)

	userLabelStyle = lipgloss.NewStyle().
		Foreground(colorUser).
		Bold(true).
		MarginLeft(4)

	userBubbleStyle = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(colorUser).
		Foreground(colorText).
		Padding(0, 1).
		MarginLeft(4)

	assistantLabelStyle = lipgloss.NewStyle().
		Foreground(colorModel).
		Bold(true)

	assistantBubbleStyle = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(colorModel).
		Padding(0, 1).
		MarginRight(4)

	annotationStyle = lipgloss.NewStyle().
		Foreground(colorError).
		Bold(true).
		MarginLeft(2)

	inputPanelStyle = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Padding(0, 1)

	inputLabelStyle = lipgloss.NewStyle().
		Foreground(colorUser).
		Bold(true)

	loadingStyle = lipgloss.NewStyle().
		Foreground(colorAccent).
		Bold(true)

	statusBarStyle = lipgloss.NewStyle().
		Foreground(colorTextDim)

	statusKeyStyle = lipgloss.NewStyle().
		Foreground(colorText).
		Bold(true)

	statusDescStyle = lipgloss.NewStyle().
		Foreground(colorTextDim)

	noticeStyle = lipgloss.NewStyle().
		Foreground(colorModel).
		Italic(true)

	errorStyle = lipgloss.NewStyle().
		Foreground(colorError).
		Bold(true)

	confirmStyle = lipgloss.NewStyle().
		Foreground(colorWarning).
		Bold(true)

	welcomeTitleStyle = lipgloss.NewStyle().
		Foreground(colorModel).
		Bold(true).
		Align(lipgloss.Center)

	welcomeStyle = lipgloss.NewStyle().
		Foreground(colorTextDim).
		Align(lipgloss.Center)

	pickerPanelStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorAccent).
		Background(colorSurface).
		Padding(1, 2)

	pickerTitleStyle = lipgloss.NewStyle().
		Foreground(colorText).
		Bold(true)

	pickerItemStyle = lipgloss.NewStyle().
		Foreground(colorText)

	pickerSelectedStyle = lipgloss.NewStyle().
		Foreground(colorText).
		Background(colorSelect).
		Bold(true)

	pickerCursorStyle = lipgloss.NewStyle().
		Foreground(colorAccent)

	pickerDetailStyle = lipgloss.NewStyle().
		Foreground(colorTextDim)
}

// FormatError returns a styled error message with a hint for the known
// error kinds.
func FormatError(err error) string {
	if err == nil {
		return ""
	}

	errStyle := lipgloss.NewStyle().Foreground(colorError)
	dimStyle := lipgloss.NewStyle().Foreground(colorTextDim)

	var sb strings.Builder
	sb.WriteString(errStyle.Render(fmt.Sprintf("✗ %v", err)))

	switch {
	case apperrors.IsTransient(err):
		sb.WriteString(dimStyle.Render("\n  Hint: The service is busy or unreachable. Try again in a moment"))
	case apperrors.IsTransport(err):
		sb.WriteString(dimStyle.Render("\n  Hint: Check your API key with 'geminichat config show'"))
	case apperrors.IsCorrupt(err):
		sb.WriteString(dimStyle.Render("\n  Hint: The conversation file is damaged; it can be deleted with 'geminichat conversations delete'"))
	case apperrors.IsNotFound(err):
		sb.WriteString(dimStyle.Render("\n  Hint: List conversations with 'geminichat conversations list'"))
	default:
		if msg := apperrors.FormatForTranscript(err); strings.Contains(msg, "set-key") {
			sb.WriteString(dimStyle.Render("\n  Hint: " + msg))
		}
	}

	return sb.String()
}

// PrintError prints a styled error message to stderr.
func PrintError(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, FormatError(err))
}
