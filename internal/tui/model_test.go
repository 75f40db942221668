package tui

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/diogo/geminichat/internal/api"
	"github.com/diogo/geminichat/internal/config"
	"github.com/diogo/geminichat/internal/dispatch"
	"github.com/diogo/geminichat/internal/history"
	"github.com/diogo/geminichat/internal/models"
	"github.com/diogo/geminichat/internal/render"
	"github.com/diogo/geminichat/internal/session"
)

type testEnv struct {
	dir     string
	store   *history.Store
	sess    *session.Session
	disp    *dispatch.Dispatcher
	lib     *config.PrepromptLibrary
	cfg     *config.Config
	client  *api.MockClient
	clipped []string
}

func newTestEnv(t *testing.T, client *api.MockClient) *testEnv {
	t.Helper()
	dir := t.TempDir()

	store, err := history.NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	sess := session.New(store)
	if _, err := sess.CreateNew("Chat"); err != nil {
		t.Fatalf("CreateNew failed: %v", err)
	}

	var chat api.ChatClient
	if client != nil {
		chat = client
	}

	cfg := config.DefaultConfig()
	return &testEnv{
		dir:    dir,
		store:  store,
		sess:   sess,
		disp:   dispatch.New(chat),
		lib:    config.LoadPrepromptLibrary(dir),
		cfg:    &cfg,
		client: client,
	}
}

func (e *testEnv) model() Model {
	m := NewModel(context.Background(), Deps{
		Session:    e.sess,
		Dispatcher: e.disp,
		Preprompts: e.lib,
		Resolver:   history.NewResolver(e.store),
		Config:     e.cfg,
		ConfigDir:  e.dir,
		ModelName:  models.DefaultModel.Name,
		Clipboard: func(s string) error {
			e.clipped = append(e.clipped, s)
			return nil
		},
	})
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return updated.(Model)
}

func keyMsg(key string) tea.KeyMsg {
	switch key {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEscape}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "ctrl+o":
		return tea.KeyMsg{Type: tea.KeyCtrlO}
	case "ctrl+p":
		return tea.KeyMsg{Type: tea.KeyCtrlP}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
}

func press(m Model, key string) (Model, tea.Cmd) {
	updated, cmd := m.Update(keyMsg(key))
	return updated.(Model), cmd
}

func submit(m Model, text string) (Model, tea.Cmd) {
	m.textarea.SetValue(text)
	return press(m, "enter")
}

func finish(t *testing.T, m Model, d *dispatch.Dispatcher) Model {
	t.Helper()
	p := d.Pending()
	if p == nil {
		t.Fatal("no request in flight")
	}
	updated, _ := m.Update(dispatchResultMsg{res: p.Wait()})
	return updated.(Model)
}

func TestModel_SendAndReceive(t *testing.T) {
	env := newTestEnv(t, &api.MockClient{Response: "Cześć! $x^2$"})
	m := env.model()

	m, cmd := submit(m, "Hello")
	if cmd == nil {
		t.Fatal("expected a command waiting for the reply")
	}
	if !m.loading {
		t.Error("expected loading state")
	}
	if m.textarea.Value() != "" {
		t.Error("input should be cleared after send")
	}

	m = finish(t, m, env.disp)
	if m.loading {
		t.Error("loading should end with the reply")
	}
	if env.sess.Len() != 2 {
		t.Fatalf("history length = %d, want 2", env.sess.Len())
	}
	if env.disp.State() != dispatch.Idle {
		t.Error("dispatcher should be idle")
	}

	view := m.View()
	if !strings.Contains(view, "Hello") {
		t.Errorf("view should show the user message")
	}
	if !strings.Contains(view, "x²") {
		t.Errorf("view should show the rendered formula")
	}
}

func TestModel_SendWhileBusy(t *testing.T) {
	client := &api.MockClient{Response: "ok", Gate: make(chan struct{})}
	env := newTestEnv(t, client)
	m := env.model()

	m, _ = submit(m, "first")
	m, cmd := submit(m, "second")
	if cmd != nil {
		t.Error("busy send must not start a request")
	}
	if !strings.Contains(m.notice, "Wait") {
		t.Errorf("notice = %q", m.notice)
	}
	if m.textarea.Value() != "second" {
		t.Error("rejected input should stay in the box")
	}
	if env.sess.Len() != 1 {
		t.Errorf("history length = %d, want 1", env.sess.Len())
	}

	close(client.Gate)
	m = finish(t, m, env.disp)
	if env.sess.Len() != 2 {
		t.Errorf("history length = %d, want 2", env.sess.Len())
	}
}

func TestModel_SendWithoutKey(t *testing.T) {
	env := newTestEnv(t, nil)
	m := env.model()

	m, cmd := submit(m, "Hello")
	if cmd != nil {
		t.Error("no request should start without a key")
	}
	if env.sess.Len() != 1 {
		t.Errorf("history length = %d, want 1", env.sess.Len())
	}

	annotations := 0
	for _, e := range env.sess.Transcript() {
		if e.Kind == models.EntryError {
			annotations++
		}
	}
	if annotations != 1 {
		t.Errorf("annotations = %d, want 1", annotations)
	}
	if !strings.Contains(m.View(), "no API key") {
		t.Error("header should flag the missing key")
	}
}

func TestModel_ReplyAfterSwitchAway(t *testing.T) {
	client := &api.MockClient{Response: "late", Gate: make(chan struct{})}
	env := newTestEnv(t, client)
	origin := env.sess.CurrentID()
	m := env.model()

	m, _ = submit(m, "Question")
	m, _ = submit(m, "/new Other")
	if env.sess.CurrentID() == origin {
		t.Fatal("expected a new active conversation")
	}

	close(client.Gate)
	m = finish(t, m, env.disp)

	if env.sess.Len() != 0 {
		t.Errorf("active conversation changed: %d turns", env.sess.Len())
	}
	if !strings.Contains(m.notice, "left") {
		t.Errorf("notice = %q", m.notice)
	}
	rec, err := env.store.Load(origin)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(rec.History) != 2 {
		t.Errorf("origin history = %d, want 2", len(rec.History))
	}
}

func TestModel_SwitchAsksAboutUnsavedChanges(t *testing.T) {
	env := newTestEnv(t, &api.MockClient{})
	first := env.sess.CurrentID()
	other, err := env.store.Create("Other", models.BootstrapSystemPrompt)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	m := env.model()

	m, _ = submit(m, "/prompt Be brief.")
	if !env.sess.Dirty() {
		t.Fatal("prompt change should mark the session dirty")
	}

	m, _ = submit(m, "/switch Other")
	if m.mode != modeConfirm {
		t.Fatalf("expected confirmation, mode = %v", m.mode)
	}
	if !strings.Contains(m.View(), "Save changes to 'Chat'") {
		t.Error("view should show the question")
	}

	m, _ = press(m, "n")
	if env.sess.CurrentID() != other.ID {
		t.Errorf("active = %s, want %s", env.sess.CurrentID(), other.ID)
	}

	rec, err := env.store.Load(first)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if rec.SystemPrompt != models.BootstrapSystemPrompt {
		t.Errorf("discarded prompt was saved: %q", rec.SystemPrompt)
	}
}

func TestModel_SwitchCancelled(t *testing.T) {
	env := newTestEnv(t, &api.MockClient{})
	first := env.sess.CurrentID()
	if _, err := env.store.Create("Other", ""); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	m := env.model()

	m, _ = submit(m, "/prompt Be brief.")
	m, _ = submit(m, "/switch Other")
	m, _ = press(m, "esc")

	if m.mode != modeChat {
		t.Error("esc should close the question")
	}
	if env.sess.CurrentID() != first || !env.sess.Dirty() {
		t.Error("cancel must leave the session untouched")
	}
}

func TestModel_ConversationPicker(t *testing.T) {
	env := newTestEnv(t, &api.MockClient{})
	other, err := env.store.Create("Zeta", "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	m := env.model()

	m, _ = press(m, "ctrl+o")
	if m.mode != modePicker {
		t.Fatal("ctrl+o should open the picker")
	}
	if !strings.Contains(m.View(), "Zeta") {
		t.Error("picker should list conversations")
	}

	m, _ = press(m, "down")
	m, _ = press(m, "enter")
	if m.mode != modeChat {
		t.Error("picker should close after selection")
	}
	if env.sess.CurrentID() != other.ID {
		t.Errorf("active = %s, want %s", env.sess.CurrentID(), other.ID)
	}
}

func TestModel_RenameAndDelete(t *testing.T) {
	env := newTestEnv(t, &api.MockClient{})
	m := env.model()

	m, _ = submit(m, "/rename Projekt")
	if env.sess.Name() != "Projekt" {
		t.Errorf("name = %q", env.sess.Name())
	}

	deleted := env.sess.CurrentID()
	m, _ = submit(m, "/delete")
	if m.mode != modeConfirm {
		t.Fatal("delete should ask first")
	}
	m, _ = press(m, "y")

	if env.store.Exists(deleted) {
		t.Error("record should be deleted")
	}
	if !env.sess.HasActive() || env.sess.Name() != models.DefaultConversationName {
		t.Errorf("expected a fresh default conversation, got %q", env.sess.Name())
	}
}

func TestModel_PrepromptSaveOverwrite(t *testing.T) {
	env := newTestEnv(t, &api.MockClient{})
	if err := env.lib.Save("tutor", "old text", false); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	m := env.model()

	m, _ = submit(m, "/prompt Explain step by step.")
	m, _ = submit(m, "/preprompt save tutor")
	if m.mode != modeConfirm {
		t.Fatal("existing name should ask before overwriting")
	}
	m, _ = press(m, "y")

	text, _ := env.lib.Get("tutor")
	if text != "Explain step by step." {
		t.Errorf("preprompt = %q", text)
	}

	m, _ = submit(m, "/prompt something else")
	m, _ = submit(m, "/preprompt tutor")
	if env.sess.SystemPrompt() != "Explain step by step." {
		t.Errorf("system prompt = %q", env.sess.SystemPrompt())
	}
}

func TestModel_TokensAndDarkModePersist(t *testing.T) {
	env := newTestEnv(t, &api.MockClient{Response: "ok"})
	m := env.model()

	m, _ = submit(m, "/tokens 2048")
	if env.cfg.MaxOutputTokens != 2048 {
		t.Errorf("MaxOutputTokens = %d", env.cfg.MaxOutputTokens)
	}
	m, _ = submit(m, "/tokens -1")
	if m.err == nil {
		t.Error("negative token count should be rejected")
	}

	m, _ = submit(m, "/dark")
	if !env.cfg.DarkMode {
		t.Error("dark mode should be on")
	}
	defer ApplyPalette(render.LightPalette)

	loaded, err := config.LoadConfig(env.dir)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.MaxOutputTokens != 2048 || !loaded.DarkMode {
		t.Errorf("persisted config = %+v", loaded)
	}

	m, _ = submit(m, "Hi")
	m = finish(t, m, env.disp)
	call, _ := env.client.LastCall()
	if call.MaxTokens != 2048 {
		t.Errorf("request MaxTokens = %d", call.MaxTokens)
	}
}

func TestModel_ExportAndCopy(t *testing.T) {
	env := newTestEnv(t, &api.MockClient{Response: "Odpowiedź"})
	m := env.model()

	m, _ = submit(m, "/copy")
	if !strings.Contains(m.notice, "Nothing") {
		t.Errorf("notice = %q", m.notice)
	}

	m, _ = submit(m, "Pytanie")
	m = finish(t, m, env.disp)

	m, _ = submit(m, "/copy")
	if len(env.clipped) != 1 || env.clipped[0] != "Odpowiedź" {
		t.Errorf("clipboard = %v", env.clipped)
	}

	path := filepath.Join(env.dir, "out.txt")
	m, _ = submit(m, "/export "+path)
	if m.err != nil {
		t.Fatalf("export failed: %v", m.err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !strings.Contains(string(data), "User: Pytanie") || !strings.Contains(string(data), "Model: Odpowiedź") {
		t.Errorf("export = %q", data)
	}
}

func TestModel_UnknownCommand(t *testing.T) {
	env := newTestEnv(t, &api.MockClient{})
	m := env.model()

	m, _ = submit(m, "/frobnicate")
	if m.err == nil || !strings.Contains(m.err.Error(), "/help") {
		t.Errorf("err = %v", m.err)
	}
}

func TestModel_QuitAsksWhenDirty(t *testing.T) {
	env := newTestEnv(t, &api.MockClient{})
	m := env.model()

	m, _ = submit(m, "/prompt changed")
	m, cmd := press(m, "esc")
	if cmd != nil || m.mode != modeConfirm {
		t.Fatal("dirty session should ask before quitting")
	}

	m, _ = press(m, "esc")
	if m.mode != modeChat || m.quitting {
		t.Error("esc should keep the app open")
	}

	m, _ = press(m, "esc")
	m, cmd = press(m, "y")
	if cmd == nil || !m.quitting {
		t.Error("answering yes should save and quit")
	}
	if env.sess.Dirty() {
		t.Error("changes should be saved")
	}
}

func TestModel_QuitClean(t *testing.T) {
	env := newTestEnv(t, &api.MockClient{})
	m := env.model()

	m, cmd := press(m, "esc")
	if cmd == nil || !m.quitting {
		t.Error("clean session should quit immediately")
	}
	if m.View() != "" {
		t.Error("view should be empty after quit")
	}
}
