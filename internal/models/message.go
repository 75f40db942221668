package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Role identifies who produced a Turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Valid reports whether r is one of the persisted roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleModel
}

// Label returns the display name of the role used in exports.
func (r Role) Label() string {
	switch r {
	case RoleUser:
		return "User"
	case RoleModel:
		return "Model"
	}
	return string(r)
}

// UnmarshalJSON rejects roles other than user and model.
func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	role := Role(s)
	if !role.Valid() {
		return fmt.Errorf("unknown role %q", s)
	}
	*r = role
	return nil
}

// Part is one content fragment of a Turn. Fragments that carry something
// other than text are kept in Extra so they survive a rewrite of the record.
// Extra values are held in compact form.
type Part struct {
	Text  string
	Extra map[string]json.RawMessage

	// emptyText records an explicit "text":"" next to Extra keys
	emptyText bool
}

// IsText reports whether the part carries a text payload.
func (p Part) IsText() bool {
	return p.Text != "" || p.Extra == nil || p.emptyText
}

func (p Part) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(p.Extra)+1)
	for k, v := range p.Extra {
		out[k] = v
	}
	if p.IsText() {
		text, err := json.Marshal(p.Text)
		if err != nil {
			return nil, err
		}
		out["text"] = text
	}
	return json.Marshal(out)
}

func (p *Part) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = Part{}
	text, hasText := raw["text"]
	if hasText {
		if err := json.Unmarshal(text, &p.Text); err != nil {
			return fmt.Errorf("part text: %w", err)
		}
		delete(raw, "text")
		if len(raw) == 0 {
			return nil
		}
	}
	for k, v := range raw {
		var buf bytes.Buffer
		if err := json.Compact(&buf, v); err != nil {
			return fmt.Errorf("part %s: %w", k, err)
		}
		raw[k] = buf.Bytes()
	}
	p.Extra = raw
	p.emptyText = hasText && p.Text == ""
	return nil
}

// Turn is one message in a conversation.
type Turn struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// NewTurn creates a single-part text turn.
func NewTurn(role Role, text string) Turn {
	return Turn{Role: role, Parts: []Part{{Text: text}}}
}

// Text concatenates the text parts of the turn, skipping opaque fragments.
func (t Turn) Text() string {
	var sb strings.Builder
	for _, p := range t.Parts {
		if p.IsText() {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// EntryKind tags a line of the displayed transcript.
type EntryKind int

const (
	EntryUser EntryKind = iota
	EntryModel
	// EntryError annotates a failed operation. It is shown but never persisted.
	EntryError
)

func (k EntryKind) String() string {
	switch k {
	case EntryUser:
		return "user"
	case EntryModel:
		return "model"
	case EntryError:
		return "error"
	}
	return "unknown"
}

// Entry is a transcript line for display.
type Entry struct {
	Kind EntryKind
	Text string
}

// EntryFromTurn converts a persisted turn into its transcript line.
func EntryFromTurn(t Turn) Entry {
	kind := EntryUser
	if t.Role == RoleModel {
		kind = EntryModel
	}
	return Entry{Kind: kind, Text: t.Text()}
}
