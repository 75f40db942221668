package render

import (
	"github.com/charmbracelet/lipgloss"
)

// Palette is the TUI color scheme for one display mode
type Palette struct {
	Name string

	Background lipgloss.Color
	Surface    lipgloss.Color
	Border     lipgloss.Color
	Selected   lipgloss.Color

	UserPrefix  lipgloss.Color
	ModelPrefix lipgloss.Color
	Accent      lipgloss.Color
	Warning     lipgloss.Color
	Error       lipgloss.Color

	Text    lipgloss.Color
	TextDim lipgloss.Color
}

var (
	LightPalette = Palette{
		Name: StyleLight,

		Background: lipgloss.Color("#F0F0F0"),
		Surface:    lipgloss.Color("#FFFFFF"),
		Border:     lipgloss.Color("#CCCCCC"),
		Selected:   lipgloss.Color("#C0E0FF"),

		UserPrefix:  lipgloss.Color("#0066CC"),
		ModelPrefix: lipgloss.Color("#009933"),
		Accent:      lipgloss.Color("#A6D5FA"),
		Warning:     lipgloss.Color("#B58900"),
		Error:       lipgloss.Color("#CC0000"),

		Text:    lipgloss.Color("#333333"),
		TextDim: lipgloss.Color("#888888"),
	}

	DarkPalette = Palette{
		Name: StyleDark,

		Background: lipgloss.Color("#2B2B2B"),
		Surface:    lipgloss.Color("#212121"),
		Border:     lipgloss.Color("#555555"),
		Selected:   lipgloss.Color("#4A6E8A"),

		UserPrefix:  lipgloss.Color("#78A9FF"),
		ModelPrefix: lipgloss.Color("#7FC97F"),
		Accent:      lipgloss.Color("#5F7A9B"),
		Warning:     lipgloss.Color("#E0AF68"),
		Error:       lipgloss.Color("#FF6B6B"),

		Text:    lipgloss.Color("#E0E0E0"),
		TextDim: lipgloss.Color("#8A8A8A"),
	}
)

// PaletteFor returns the palette for the dark mode setting
func PaletteFor(dark bool) Palette {
	if dark {
		return DarkPalette
	}
	return LightPalette
}
