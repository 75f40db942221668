package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"

	"github.com/diogo/geminichat/internal/config"
	"github.com/diogo/geminichat/internal/dispatch"
	apperrors "github.com/diogo/geminichat/internal/errors"
	"github.com/diogo/geminichat/internal/history"
	"github.com/diogo/geminichat/internal/models"
	"github.com/diogo/geminichat/internal/render"
	"github.com/diogo/geminichat/internal/session"
)

// Animation tick message
type animationTickMsg time.Time

// dispatchResultMsg carries a finished request back to the UI goroutine
type dispatchResultMsg struct {
	res dispatch.Result
}

type mode int

const (
	modeChat mode = iota
	modePicker
	modeConfirm
)

// confirmation is a pending yes/no question. When onCancel is nil, esc
// answers no.
type confirmation struct {
	question string
	onYes    func(*Model) tea.Cmd
	onNo     func(*Model) tea.Cmd
	onCancel func(*Model) tea.Cmd
}

// eventLog collects session events between two updates
type eventLog struct {
	events []session.Event
}

func (l *eventLog) drain() []session.Event {
	ev := l.events
	l.events = nil
	return ev
}

// Deps are the collaborators the chat screen drives
type Deps struct {
	Session    *session.Session
	Dispatcher *dispatch.Dispatcher
	Preprompts *config.PrepromptLibrary
	Resolver   *history.Resolver
	Config     *config.Config
	ConfigDir  string
	ModelName  string

	// Clipboard writes text to the system clipboard; defaults to atotto/clipboard
	Clipboard func(string) error
}

// Model represents the TUI state
type Model struct {
	ctx       context.Context
	sess      *session.Session
	disp      *dispatch.Dispatcher
	lib       *config.PrepromptLibrary
	resolver  *history.Resolver
	cfg       *config.Config
	configDir string
	modelName string
	copyText  func(string) error
	events    *eventLog

	renderOpts render.Options

	// UI components
	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model

	// State
	mode           mode
	picker         *picker
	confirm        *confirmation
	loading        bool
	ready          bool
	quitting       bool
	notice         string
	err            error
	animationFrame int

	// Dimensions
	width  int
	height int
}

// NewModel creates the chat screen for the session in deps
func NewModel(ctx context.Context, deps Deps) Model {
	ta := textarea.New()
	ta.Placeholder = "Type a message, or /help for commands..."
	ta.CharLimit = 0
	ta.ShowLineNumbers = false
	ta.SetHeight(3)
	ta.KeyMap.InsertNewline.SetKeys("alt+enter", "ctrl+j")
	ta.Focus()

	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.FocusedStyle.Base = lipgloss.NewStyle().Foreground(colorText)
	ta.FocusedStyle.Placeholder = lipgloss.NewStyle().Foreground(colorTextDim)
	ta.BlurredStyle = ta.FocusedStyle

	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = loadingStyle

	copyFn := deps.Clipboard
	if copyFn == nil {
		copyFn = clipboard.WriteAll
	}

	cfg := deps.Config
	if cfg == nil {
		def := config.DefaultConfig()
		cfg = &def
	}

	events := &eventLog{}
	deps.Session.Subscribe(func(ev session.Event) {
		events.events = append(events.events, ev)
	})

	return Model{
		ctx:        ctx,
		sess:       deps.Session,
		disp:       deps.Dispatcher,
		lib:        deps.Preprompts,
		resolver:   deps.Resolver,
		cfg:        cfg,
		configDir:  deps.ConfigDir,
		modelName:  deps.ModelName,
		copyText:   copyFn,
		events:     events,
		renderOpts: render.OptionsFromConfig(*cfg),
		textarea:   ta,
		spinner:    s,
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

// animationTick returns a command that sends animation tick messages
func animationTick() tea.Cmd {
	return tea.Tick(time.Millisecond*80, func(t time.Time) tea.Msg {
		return animationTickMsg(t)
	})
}

// waitForResult blocks on the pending request off the UI goroutine
func waitForResult(p *dispatch.Pending) tea.Cmd {
	return func() tea.Msg {
		return dispatchResultMsg{res: p.Wait()}
	}
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)

	case dispatchResultMsg:
		m.loading = false
		m.completeRequest(msg.res)

	case spinner.TickMsg:
		if m.loading {
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)

	case animationTickMsg:
		if m.loading {
			m.animationFrame++
			cmds = append(cmds, animationTick())
		}
		return m, tea.Batch(cmds...)

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, m.quit()
		}

		switch m.mode {
		case modeConfirm:
			cmd = m.updateConfirm(msg)
			m.syncEvents()
			return m, cmd
		case modePicker:
			cmd = m.updatePicker(msg)
			m.syncEvents()
			return m, cmd
		}

		m.notice = ""
		switch msg.String() {
		case "esc":
			cmd = m.requestQuit()
			m.syncEvents()
			return m, cmd
		case "ctrl+o":
			m.openConversationPicker()
			return m, nil
		case "ctrl+p":
			m.openPrepromptPicker()
			return m, nil
		case "ctrl+n":
			m.newConversation("")
			m.syncEvents()
			return m, nil
		case "enter":
			cmd = m.submit()
			m.syncEvents()
			return m, cmd
		case "pgup", "pgdown":
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

		m.textarea, cmd = m.textarea.Update(msg)
		return m, cmd
	}

	m.syncEvents()
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height

	headerHeight := 3
	inputHeight := 6
	statusHeight := 2
	vpHeight := max(5, height-headerHeight-inputHeight-statusHeight-2)
	contentWidth := max(20, width-4)

	if !m.ready {
		m.viewport = viewport.New(contentWidth, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = contentWidth
		m.viewport.Height = vpHeight
	}
	m.textarea.SetWidth(contentWidth - 4)
	m.renderOpts = m.renderOpts.WithWidth(max(20, contentWidth-14))
	m.updateViewport()
}

// submit handles enter: a slash command or a message to send
func (m *Model) submit() tea.Cmd {
	input := strings.TrimSpace(m.textarea.Value())
	if input == "" {
		return nil
	}

	if strings.HasPrefix(input, "/") {
		m.textarea.Reset()
		return m.runCommand(input)
	}
	if input == "exit" || input == "quit" {
		m.textarea.Reset()
		return m.requestQuit()
	}

	m.err = nil
	p, err := m.disp.Send(m.ctx, m.sess, input)
	switch {
	case errors.Is(err, apperrors.ErrBusy):
		m.notice = apperrors.FormatForTranscript(err)
		return nil
	case errors.Is(err, apperrors.ErrModelUnavailable):
		// the user turn is kept and the transcript carries the error
		m.textarea.Reset()
		return nil
	case err != nil:
		m.err = err
		return nil
	}

	m.textarea.Reset()
	m.loading = true
	m.animationFrame = 0
	return tea.Batch(waitForResult(p), m.spinner.Tick, animationTick())
}

func (m *Model) completeRequest(res dispatch.Result) {
	if err := m.disp.Complete(m.sess, res); err != nil {
		if res.ConversationID != m.sess.CurrentID() {
			m.notice = "A reply for another conversation failed: " + apperrors.FormatForTranscript(err)
		}
		return
	}
	if m.cfg.CopyToClipboard && res.ConversationID == m.sess.CurrentID() {
		if err := m.copyText(res.Text); err != nil {
			log.Warn().Err(err).Msg("Failed to copy reply to clipboard")
		}
	}
}

// syncEvents turns session events into notices and refreshes the transcript
func (m *Model) syncEvents() {
	events := m.events.drain()
	if len(events) == 0 {
		return
	}
	for _, ev := range events {
		if ev.Kind == session.EventBackgroundSaved {
			m.notice = "Reply stored in a conversation you left"
		}
	}
	m.updateViewport()
}

func (m *Model) ask(c *confirmation) {
	m.confirm = c
	m.mode = modeConfirm
}

func (m *Model) updateConfirm(msg tea.KeyMsg) tea.Cmd {
	c := m.confirm
	answer := func(fn func(*Model) tea.Cmd) tea.Cmd {
		m.confirm = nil
		m.mode = modeChat
		if fn == nil {
			return nil
		}
		return fn(m)
	}

	switch strings.ToLower(msg.String()) {
	case "y":
		return answer(c.onYes)
	case "n":
		return answer(c.onNo)
	case "esc":
		if c.onCancel != nil {
			return answer(c.onCancel)
		}
		return answer(c.onNo)
	}
	return nil
}

func (m *Model) updatePicker(msg tea.KeyMsg) tea.Cmd {
	p := m.picker
	switch p.handleKey(msg) {
	case pickerCancel:
		m.closePicker()
	case pickerChoose:
		item, _ := p.selected()
		m.closePicker()
		switch p.kind {
		case pickConversation:
			m.switchTo(item.ID)
		case pickPreprompt:
			m.applyPreprompt(item.ID)
		}
	case pickerDelete:
		item, _ := p.selected()
		m.closePicker()
		switch p.kind {
		case pickConversation:
			m.confirmDeleteConversation(item.ID, item.Title)
		case pickPreprompt:
			m.confirmDeletePreprompt(item.ID)
		}
	}
	return nil
}

func (m *Model) closePicker() {
	m.picker = nil
	m.mode = modeChat
}

func (m *Model) openConversationPicker() {
	list, err := m.sess.List()
	if err != nil {
		m.err = err
		return
	}
	items := make([]pickerItem, len(list))
	for i, meta := range list {
		items[i] = pickerItem{
			ID:     meta.ID,
			Title:  meta.Name,
			Active: meta.ID == m.sess.CurrentID(),
		}
	}
	m.picker = newPicker(pickConversation, "Conversations", items)
	m.mode = modePicker
}

func (m *Model) openPrepromptPicker() {
	names := m.lib.List()
	items := make([]pickerItem, len(names))
	for i, name := range names {
		text, _ := m.lib.Get(name)
		items[i] = pickerItem{
			ID:     name,
			Title:  name,
			Detail: strings.Join(strings.Fields(text), " "),
			Active: text == m.sess.SystemPrompt(),
		}
	}
	m.picker = newPicker(pickPreprompt, "Preprompts", items)
	m.mode = modePicker
}

// withSavePrompt runs action once the user has decided what happens to
// unsaved changes in the active conversation.
func (m *Model) withSavePrompt(action func(*Model, session.DecideFunc)) {
	if !m.sess.Dirty() {
		action(m, nil)
		return
	}

	decided := func(d session.SaveDecision) session.DecideFunc {
		return func(string) session.SaveDecision { return d }
	}
	m.ask(&confirmation{
		question: fmt.Sprintf("Save changes to '%s'? (y/n, esc cancels)", m.sess.Name()),
		onYes: func(m *Model) tea.Cmd {
			action(m, decided(session.SaveBeforeSwitch))
			return nil
		},
		onNo: func(m *Model) tea.Cmd {
			action(m, decided(session.DiscardChanges))
			return nil
		},
		onCancel: func(m *Model) tea.Cmd {
			m.notice = "Cancelled"
			return nil
		},
	})
}

func (m *Model) switchTo(id string) {
	if id == m.sess.CurrentID() {
		return
	}
	m.withSavePrompt(func(m *Model, decide session.DecideFunc) {
		err := m.sess.SwitchTo(id, decide)
		switch {
		case err == nil:
			m.notice = fmt.Sprintf("Switched to '%s'", m.sess.Name())
		case m.sess.CurrentID() == id:
			m.sess.AddErrorAnnotation(apperrors.FormatForTranscript(err))
		default:
			m.err = err
		}
	})
}

func (m *Model) newConversation(name string) {
	if strings.TrimSpace(name) == "" {
		name = models.DefaultConversationName
	}
	m.withSavePrompt(func(m *Model, decide session.DecideFunc) {
		if err := m.sess.ResolvePending(decide); err != nil {
			m.err = err
			return
		}
		if _, err := m.sess.CreateNew(name); err != nil {
			m.err = err
			return
		}
		m.notice = fmt.Sprintf("Created '%s'", name)
	})
}

func (m *Model) confirmDeleteConversation(id, name string) {
	m.ask(&confirmation{
		question: fmt.Sprintf("Delete conversation '%s'? (y/n)", name),
		onYes: func(m *Model) tea.Cmd {
			if _, err := m.sess.DeleteConversation(id); err != nil {
				m.err = err
				return nil
			}
			if err := m.sess.EnsureActive(); err != nil {
				m.err = err
			}
			m.notice = fmt.Sprintf("Deleted '%s'", name)
			return nil
		},
	})
}

func (m *Model) applyPreprompt(name string) {
	if err := m.sess.ApplyPreprompt(m.lib, name); err != nil {
		m.err = err
		return
	}
	m.notice = fmt.Sprintf("System prompt set from '%s'; /save to keep it", name)
}

func (m *Model) confirmDeletePreprompt(name string) {
	m.ask(&confirmation{
		question: fmt.Sprintf("Delete preprompt '%s'? (y/n)", name),
		onYes: func(m *Model) tea.Cmd {
			if err := m.lib.Delete(name); err != nil {
				m.err = err
				return nil
			}
			m.notice = fmt.Sprintf("Deleted preprompt '%s'", name)
			return nil
		},
	})
}

func (m *Model) requestQuit() tea.Cmd {
	if m.sess.Dirty() {
		m.ask(&confirmation{
			question: fmt.Sprintf("Save changes to '%s' before quitting? (y/n, esc stays)", m.sess.Name()),
			onYes: func(m *Model) tea.Cmd {
				if err := m.sess.Save(); err != nil {
					m.err = err
					return nil
				}
				return m.quit()
			},
			onNo: func(m *Model) tea.Cmd {
				return m.quit()
			},
			onCancel: func(*Model) tea.Cmd { return nil },
		})
		return nil
	}
	return m.quit()
}

func (m *Model) quit() tea.Cmd {
	m.disp.Close()
	m.quitting = true
	return tea.Quit
}

// setDarkMode switches palette and markdown style and persists the choice
func (m *Model) setDarkMode(dark bool) error {
	m.cfg.DarkMode = dark
	ApplyPalette(render.PaletteFor(dark))
	m.renderOpts = m.renderOpts.WithDarkMode(dark)
	render.ClearCache()
	m.spinner.Style = loadingStyle
	m.updateViewport()
	return m.persistConfig()
}

func (m *Model) persistConfig() error {
	if m.configDir == "" {
		return nil
	}
	return config.SaveConfig(m.configDir, *m.cfg)
}

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return loadingStyle.Render("  Initializing...")
	}

	contentWidth := max(20, m.width-4)

	if m.mode == modePicker && m.picker != nil {
		return m.picker.view(contentWidth, m.height)
	}

	var sections []string
	sections = append(sections, m.renderHeader(contentWidth))

	var messages string
	if len(m.sess.Transcript()) == 0 {
		messages = m.renderWelcome()
	} else {
		messages = m.viewport.View()
	}
	sections = append(sections, messagesAreaStyle.
		Width(contentWidth).
		Height(m.viewport.Height).
		Render(messages))

	var input string
	switch {
	case m.mode == modeConfirm && m.confirm != nil:
		input = confirmStyle.Render(m.confirm.question)
	case m.loading:
		input = lipgloss.JoinVertical(lipgloss.Left,
			m.renderLoadingAnimation(),
			m.textarea.View(),
		)
	default:
		input = lipgloss.JoinVertical(lipgloss.Left,
			inputLabelStyle.Render("You"),
			m.textarea.View(),
		)
	}
	sections = append(sections, inputPanelStyle.Width(contentWidth).Render(input))

	sections = append(sections, m.renderStatusBar(contentWidth))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderHeader(width int) string {
	name := m.sess.Name()
	if name == "" {
		name = "(no conversation)"
	}
	if m.sess.Dirty() {
		name += " *"
	}

	parts := []string{
		titleStyle.Render("✦ Gemini Chat"),
		hintStyle.Render("  •  "),
		subtitleStyle.Render(name),
		hintStyle.Render("  •  "),
		hintStyle.Render(m.modelName),
	}
	if !m.disp.Available() {
		parts = append(parts, hintStyle.Render("  •  "), errorStyle.Render("no API key"))
	}
	return headerStyle.Width(width).Render(lipgloss.JoinHorizontal(lipgloss.Center, parts...))
}

func (m Model) renderWelcome() string {
	width := m.viewport.Width - 4
	content := lipgloss.JoinVertical(lipgloss.Center,
		"",
		welcomeTitleStyle.Width(width).Render("✦ "+m.sess.Name()),
		"",
		welcomeStyle.Width(width).Render("Start the conversation by typing a message below"),
		welcomeStyle.Width(width).Render("Ctrl+O conversations  •  Ctrl+P preprompts  •  /help"),
	)
	top := max(0, (m.viewport.Height-lipgloss.Height(content))/2)
	return strings.Repeat("\n", top) + content
}

func (m Model) renderLoadingAnimation() string {
	dots := strings.Repeat("●", (m.animationFrame/3)%4)
	return m.spinner.View() + loadingStyle.Render(" Gemini is thinking "+dots)
}

func (m Model) renderStatusBar(width int) string {
	var line string
	switch {
	case m.err != nil:
		line = FormatError(m.err)
	case m.notice != "":
		line = noticeStyle.Render(m.notice)
	default:
		shortcuts := []struct {
			key  string
			desc string
		}{
			{"Enter", "Send"},
			{"Alt+Enter", "Newline"},
			{"Ctrl+O", "Conversations"},
			{"Ctrl+P", "Preprompts"},
			{"Ctrl+N", "New"},
			{"Esc", "Quit"},
		}
		items := make([]string, 0, len(shortcuts))
		for _, s := range shortcuts {
			items = append(items, statusKeyStyle.Render(s.key)+statusDescStyle.Render(" "+s.desc))
		}
		line = strings.Join(items, "  │  ")
	}
	return statusBarStyle.Width(width).Render(line)
}

// updateViewport refreshes the viewport content from the session transcript
func (m *Model) updateViewport() {
	if !m.ready {
		return
	}

	var content strings.Builder
	bubbleWidth := max(20, m.viewport.Width-6)

	for i, entry := range m.sess.Transcript() {
		if i > 0 {
			content.WriteString("\n")
		}
		switch entry.Kind {
		case models.EntryUser:
			content.WriteString(userLabelStyle.Render("● You"))
			content.WriteString("\n")
			content.WriteString(userBubbleStyle.Width(bubbleWidth).Render(entry.Text))
		case models.EntryModel:
			rendered, err := render.Reply(entry.Text, m.renderOpts)
			if err != nil {
				log.Debug().Err(err).Msg("Markdown rendering failed")
			}
			content.WriteString(assistantLabelStyle.Render("✦ Gemini"))
			content.WriteString("\n")
			content.WriteString(assistantBubbleStyle.Width(bubbleWidth).Render(strings.TrimRight(rendered, "\n")))
		case models.EntryError:
			content.WriteString(annotationStyle.Render("⚠ " + entry.Text))
		}
		content.WriteString("\n")
	}

	m.viewport.SetContent(content.String())
	m.viewport.GotoBottom()
}

// Run starts the chat TUI and blocks until the user quits
func Run(ctx context.Context, deps Deps) error {
	if deps.Config != nil {
		ApplyPalette(render.PaletteFor(deps.Config.DarkMode))
	}
	m := NewModel(ctx, deps)

	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	_, err := p.Run()
	return err
}
