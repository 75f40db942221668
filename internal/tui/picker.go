package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type pickerKind int

const (
	pickConversation pickerKind = iota
	pickPreprompt
)

type pickerItem struct {
	ID     string
	Title  string
	Detail string
	Active bool
}

// picker is a filterable list overlay used for conversations and preprompts
type picker struct {
	kind   pickerKind
	title  string
	items  []pickerItem
	cursor int
	filter string
}

func newPicker(kind pickerKind, title string, items []pickerItem) *picker {
	p := &picker{kind: kind, title: title, items: items}
	for i, it := range items {
		if it.Active {
			p.cursor = i
			break
		}
	}
	return p
}

func (p *picker) filtered() []pickerItem {
	if p.filter == "" {
		return p.items
	}
	f := strings.ToLower(p.filter)
	var out []pickerItem
	for _, it := range p.items {
		if strings.Contains(strings.ToLower(it.Title), f) ||
			strings.Contains(strings.ToLower(it.Detail), f) {
			out = append(out, it)
		}
	}
	return out
}

func (p *picker) move(delta int) {
	n := len(p.filtered())
	if n == 0 {
		p.cursor = 0
		return
	}
	p.cursor = (p.cursor + delta + n) % n
}

func (p *picker) selected() (pickerItem, bool) {
	items := p.filtered()
	if p.cursor < 0 || p.cursor >= len(items) {
		return pickerItem{}, false
	}
	return items[p.cursor], true
}

type pickerAction int

const (
	pickerNone pickerAction = iota
	pickerChoose
	pickerCancel
	pickerDelete
)

// handleKey updates the picker and reports what the key asked for
func (p *picker) handleKey(msg tea.KeyMsg) pickerAction {
	switch msg.String() {
	case "esc":
		return pickerCancel
	case "enter":
		if _, ok := p.selected(); ok {
			return pickerChoose
		}
	case "ctrl+d", "delete":
		if _, ok := p.selected(); ok {
			return pickerDelete
		}
	case "up", "ctrl+k":
		p.move(-1)
	case "down", "ctrl+j":
		p.move(1)
	case "home":
		p.cursor = 0
	case "end":
		p.cursor = max(0, len(p.filtered())-1)
	case "backspace":
		if p.filter != "" {
			r := []rune(p.filter)
			p.filter = string(r[:len(r)-1])
			p.cursor = 0
		}
	default:
		if msg.Type == tea.KeyRunes || msg.Type == tea.KeySpace {
			p.filter += string(msg.Runes)
			p.cursor = 0
		}
	}
	return pickerNone
}

func (p *picker) view(width, height int) string {
	width = max(width, 40)

	var content strings.Builder
	content.WriteString(pickerTitleStyle.Render(p.title))
	content.WriteString("\n\n")

	if p.filter != "" {
		content.WriteString(inputLabelStyle.Render("Filter: ") + p.filter + "_")
		content.WriteString("\n\n")
	}

	items := p.filtered()
	switch {
	case len(p.items) == 0:
		content.WriteString(hintStyle.Render("  Nothing here yet"))
		content.WriteString("\n")
	case len(items) == 0:
		content.WriteString(hintStyle.Render("  No match"))
		content.WriteString("\n")
	default:
		maxItems := max(5, height-12)
		start := 0
		if p.cursor >= maxItems {
			start = p.cursor - maxItems + 1
		}
		end := min(start+maxItems, len(items))

		if start > 0 {
			content.WriteString(hintStyle.Render("  ↑ more above"))
			content.WriteString("\n")
		}
		for i := start; i < end; i++ {
			it := items[i]
			cursor := "  "
			style := pickerItemStyle
			if i == p.cursor {
				cursor = pickerCursorStyle.Render("▸ ")
				style = pickerSelectedStyle
			}
			line := cursor + style.Render(it.Title)
			if it.Active {
				line += pickerDetailStyle.Render(" (active)")
			}
			if it.Detail != "" {
				detail := it.Detail
				if room := width - lipgloss.Width(line) - 8; room > 10 {
					if r := []rune(detail); len(r) > room {
						detail = string(r[:room-1]) + "…"
					}
					line += pickerDetailStyle.Render("  " + detail)
				}
			}
			content.WriteString(line)
			content.WriteString("\n")
		}
		if end < len(items) {
			content.WriteString(hintStyle.Render("  ↓ more below"))
			content.WriteString("\n")
		}
	}

	content.WriteString("\n")
	shortcuts := []string{
		statusKeyStyle.Render("↑↓") + statusDescStyle.Render(" Navigate"),
		statusKeyStyle.Render("Enter") + statusDescStyle.Render(" Select"),
		statusKeyStyle.Render("Ctrl+D") + statusDescStyle.Render(" Delete"),
		statusKeyStyle.Render("Esc") + statusDescStyle.Render(" Cancel"),
	}
	content.WriteString(strings.Join(shortcuts, "  │  "))

	return pickerPanelStyle.Width(width).Render(content.String())
}
