// Package render turns model replies into styled terminal text.
package render

import (
	"github.com/diogo/geminichat/internal/config"
)

const (
	StyleDark  = "dark"
	StyleLight = "light"
)

// Options configures the markdown renderer behavior.
type Options struct {
	// Width defines the maximum output width (default: 80)
	Width int

	// Style is a glamour standard style name or a path to a JSON style
	Style string

	// EnableEmoji converts :emoji: to unicode characters
	EnableEmoji bool

	// PreserveNewLines preserves original line breaks
	PreserveNewLines bool

	// TableWrap enables word wrap in table cells
	TableWrap bool

	// InlineTableLinks renders links inline in tables
	InlineTableLinks bool
}

// DefaultOptions returns the default configuration.
func DefaultOptions() Options {
	return Options{
		Width:            80,
		Style:            StyleLight,
		EnableEmoji:      true,
		PreserveNewLines: true,
		TableWrap:        true,
		InlineTableLinks: false,
	}
}

// StyleFor returns the glamour style matching the dark mode setting
func StyleFor(dark bool) string {
	if dark {
		return StyleDark
	}
	return StyleLight
}

// OptionsFromConfig builds options from the user configuration
func OptionsFromConfig(cfg config.Config) Options {
	md := cfg.Markdown
	return Options{
		Width:            80,
		Style:            StyleFor(cfg.DarkMode),
		EnableEmoji:      md.EnableEmoji,
		PreserveNewLines: md.PreserveNewLines,
		TableWrap:        md.TableWrap,
		InlineTableLinks: md.InlineTableLinks,
	}
}

// WithWidth returns Options with the specified width.
func (o Options) WithWidth(width int) Options {
	o.Width = width
	return o
}

// WithStyle returns Options with the specified style.
func (o Options) WithStyle(style string) Options {
	o.Style = style
	return o
}

// WithDarkMode returns Options with the style for the given mode.
func (o Options) WithDarkMode(dark bool) Options {
	o.Style = StyleFor(dark)
	return o
}

// WithEmoji returns Options with emoji support enabled/disabled.
func (o Options) WithEmoji(enabled bool) Options {
	o.EnableEmoji = enabled
	return o
}
