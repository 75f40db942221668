package tui

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/renameio/v2"

	apperrors "github.com/diogo/geminichat/internal/errors"
	"github.com/diogo/geminichat/internal/models"
)

const helpText = `/new [name]  /switch <ref>  /list  /rename <name>  /delete  /save
/export <file>  /copy  /clear  /prompt [text]  /preprompt [name|save <name>|delete <name>]
/tokens [n]  /dark  /quit`

// runCommand executes a slash command typed in the input box
func (m *Model) runCommand(input string) tea.Cmd {
	name, arg, _ := strings.Cut(strings.TrimPrefix(input, "/"), " ")
	arg = strings.TrimSpace(arg)
	m.err = nil

	switch strings.ToLower(name) {
	case "help", "?":
		m.notice = helpText

	case "new":
		m.newConversation(arg)

	case "list", "conversations":
		m.openConversationPicker()

	case "switch":
		if arg == "" {
			m.openConversationPicker()
			return nil
		}
		id, err := m.resolver.Resolve(arg)
		if err != nil {
			m.err = err
			return nil
		}
		m.switchTo(id)

	case "rename":
		if err := m.sess.Rename(arg); err != nil {
			m.err = err
			return nil
		}
		m.notice = fmt.Sprintf("Renamed to '%s'", m.sess.Name())

	case "delete":
		if !m.sess.HasActive() {
			m.err = apperrors.ErrNoActive
			return nil
		}
		m.confirmDeleteConversation(m.sess.CurrentID(), m.sess.Name())

	case "save":
		if err := m.sess.Save(); err != nil {
			m.err = err
			return nil
		}
		m.notice = fmt.Sprintf("Saved '%s'", m.sess.Name())

	case "export":
		m.exportTo(arg)

	case "copy":
		m.copyLastReply()

	case "clear":
		m.sess.ClearAnnotations()
		m.updateViewport()

	case "prompt", "system":
		if arg == "" {
			m.notice = "System prompt: " + m.sess.SystemPrompt()
			return nil
		}
		m.sess.SetSystemPrompt(arg)
		m.notice = "System prompt changed; /save to keep it"

	case "preprompt", "preprompts":
		m.prepromptCommand(arg)

	case "tokens":
		m.setTokens(arg)

	case "dark", "theme":
		if err := m.setDarkMode(!m.cfg.DarkMode); err != nil {
			m.err = err
			return nil
		}
		m.notice = "Dark mode " + onOff(m.cfg.DarkMode)

	case "quit", "exit", "q":
		return m.requestQuit()

	default:
		m.err = apperrors.NewValidationError("command", fmt.Sprintf("unknown command /%s, try /help", name))
	}
	return nil
}

func (m *Model) exportTo(path string) {
	if path == "" {
		m.err = apperrors.NewValidationError("path", "usage: /export <file>")
		return
	}

	var buf bytes.Buffer
	if err := m.sess.Export(&buf); err != nil {
		m.err = err
		return
	}
	if err := renameio.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		m.err = fmt.Errorf("failed to write export: %w", err)
		return
	}
	m.notice = fmt.Sprintf("Exported to %s", path)
}

func (m *Model) copyLastReply() {
	hist := m.sess.History()
	for i := len(hist) - 1; i >= 0; i-- {
		if hist[i].Role != models.RoleModel {
			continue
		}
		if err := m.copyText(hist[i].Text()); err != nil {
			m.err = fmt.Errorf("failed to copy to clipboard: %w", err)
			return
		}
		m.notice = "Last reply copied to clipboard"
		return
	}
	m.notice = "Nothing to copy yet"
}

func (m *Model) prepromptCommand(arg string) {
	sub, name, _ := strings.Cut(arg, " ")
	name = strings.TrimSpace(name)

	switch strings.ToLower(sub) {
	case "":
		m.openPrepromptPicker()
	case "save":
		m.savePreprompt(name)
	case "delete", "rm":
		if !m.lib.Exists(name) {
			m.err = fmt.Errorf("preprompt '%s' not found", name)
			return
		}
		m.confirmDeletePreprompt(name)
	default:
		m.applyPreprompt(strings.TrimSpace(arg))
	}
}

// savePreprompt stores the current system prompt under name, asking before
// replacing an existing entry
func (m *Model) savePreprompt(name string) {
	text := m.sess.SystemPrompt()
	err := m.lib.Save(name, text, false)
	switch {
	case err == nil:
		m.notice = fmt.Sprintf("Saved preprompt '%s'", name)
	case errors.Is(err, apperrors.ErrPrepromptExists):
		m.ask(&confirmation{
			question: fmt.Sprintf("Preprompt '%s' exists. Overwrite? (y/n)", name),
			onYes: func(m *Model) tea.Cmd {
				if err := m.lib.Save(name, text, true); err != nil {
					m.err = err
					return nil
				}
				m.notice = fmt.Sprintf("Updated preprompt '%s'", name)
				return nil
			},
		})
	default:
		m.err = err
	}
}

func (m *Model) setTokens(arg string) {
	if arg == "" {
		m.notice = fmt.Sprintf("Max output tokens: %d", m.cfg.MaxOutputTokens)
		return
	}
	if err := m.cfg.Set("max_output_tokens", arg); err != nil {
		m.err = err
		return
	}
	m.disp.SetMaxTokens(m.cfg.MaxOutputTokens)
	if err := m.persistConfig(); err != nil {
		m.err = err
		return
	}
	m.notice = fmt.Sprintf("Max output tokens set to %d", m.cfg.MaxOutputTokens)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
