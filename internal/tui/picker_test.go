package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func testItems() []pickerItem {
	return []pickerItem{
		{ID: "a", Title: "Zakupy", Detail: "lista"},
		{ID: "b", Title: "Go notes", Active: true},
		{ID: "c", Title: "Przepisy", Detail: "go na obiad"},
	}
}

func TestPicker_StartsOnActive(t *testing.T) {
	p := newPicker(pickConversation, "Conversations", testItems())
	item, ok := p.selected()
	if !ok || item.ID != "b" {
		t.Errorf("selected = %+v, want b", item)
	}
}

func TestPicker_MoveWraps(t *testing.T) {
	p := newPicker(pickConversation, "Conversations", testItems())

	p.handleKey(tea.KeyMsg{Type: tea.KeyDown})
	p.handleKey(tea.KeyMsg{Type: tea.KeyDown})
	if item, _ := p.selected(); item.ID != "a" {
		t.Errorf("selected = %s, want a", item.ID)
	}

	p.handleKey(tea.KeyMsg{Type: tea.KeyUp})
	if item, _ := p.selected(); item.ID != "c" {
		t.Errorf("selected = %s, want c", item.ID)
	}
}

func TestPicker_Filter(t *testing.T) {
	p := newPicker(pickPreprompt, "Preprompts", testItems())

	p.handleKey(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("go")})
	items := p.filtered()
	if len(items) != 2 {
		t.Fatalf("filtered = %d items, want 2", len(items))
	}
	if item, _ := p.selected(); item.ID != "b" {
		t.Errorf("selected = %s, want b", item.ID)
	}

	p.handleKey(tea.KeyMsg{Type: tea.KeyBackspace})
	if p.filter != "g" {
		t.Errorf("filter = %q", p.filter)
	}

	p.filter = "nothing"
	if action := p.handleKey(tea.KeyMsg{Type: tea.KeyEnter}); action != pickerNone {
		t.Error("enter on an empty list should do nothing")
	}
	if !strings.Contains(p.view(80, 30), "No match") {
		t.Error("view should report no match")
	}
}

func TestPicker_Actions(t *testing.T) {
	tests := []struct {
		name string
		key  tea.KeyMsg
		want pickerAction
	}{
		{"enter", tea.KeyMsg{Type: tea.KeyEnter}, pickerChoose},
		{"esc", tea.KeyMsg{Type: tea.KeyEscape}, pickerCancel},
		{"ctrl+d", tea.KeyMsg{Type: tea.KeyCtrlD}, pickerDelete},
		{"down", tea.KeyMsg{Type: tea.KeyDown}, pickerNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPicker(pickConversation, "Conversations", testItems())
			if got := p.handleKey(tt.key); got != tt.want {
				t.Errorf("handleKey(%s) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestPicker_ViewEmpty(t *testing.T) {
	p := newPicker(pickPreprompt, "Preprompts", nil)
	view := p.view(60, 20)
	if !strings.Contains(view, "Preprompts") || !strings.Contains(view, "Nothing here yet") {
		t.Errorf("unexpected view: %q", view)
	}
}
