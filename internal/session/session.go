// Package session holds the conversation the user is currently looking at
// and mediates every change to it.
package session

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/diogo/geminichat/internal/errors"
	"github.com/diogo/geminichat/internal/history"
	"github.com/diogo/geminichat/internal/models"
)

// Store is the persistence the session needs. *history.Store implements it.
type Store interface {
	Create(name, systemPrompt string) (*models.Record, error)
	Load(id string) (*models.Record, error)
	Save(rec *models.Record) error
	Delete(id string) error
	ListAll() ([]models.Metadata, error)
	SetLastActive(id string) error
}

// PrepromptSource looks up preprompt text by name
type PrepromptSource interface {
	Get(name string) (string, bool)
}

// SaveDecision is the answer to "save changes before leaving?"
type SaveDecision int

const (
	SaveBeforeSwitch SaveDecision = iota
	DiscardChanges
	CancelSwitch
)

// DecideFunc is asked what to do with unsaved changes to the named
// conversation. A nil DecideFunc saves.
type DecideFunc func(name string) SaveDecision

// DeleteOutcome tells the caller what should become active after a delete
type DeleteOutcome struct {
	// NextID is the first remaining conversation, empty when none remain
	NextID string
	// CreateDefault is set when no conversation remains
	CreateDefault bool
}

type annotation struct {
	pos  int
	text string
}

// Session is the single source of truth for the active conversation. It is
// not safe for concurrent use: all calls must come from the goroutine that
// owns the interaction loop.
type Session struct {
	store     Store
	now       func() time.Time
	observers []subscription
	nextObsID int

	currentID    string
	name         string
	systemPrompt string
	history      []models.Turn
	annotations  []annotation
	dirty        bool
}

// Option configures a Session
type Option func(*Session)

// WithClock replaces time.Now, used for generated names
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// New creates a session with no active conversation
func New(store Store, opts ...Option) *Session {
	s := &Session{
		store:        store,
		now:          time.Now,
		systemPrompt: models.BootstrapSystemPrompt,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CurrentID returns the active conversation id, "" when none is active
func (s *Session) CurrentID() string { return s.currentID }

// HasActive reports whether a conversation is active
func (s *Session) HasActive() bool { return s.currentID != "" }

// Name returns the active conversation's display name
func (s *Session) Name() string { return s.name }

// SystemPrompt returns the active system prompt
func (s *Session) SystemPrompt() string { return s.systemPrompt }

// Dirty reports whether the in-memory conversation differs from disk
func (s *Session) Dirty() bool { return s.dirty }

// History returns a copy of the active history
func (s *Session) History() []models.Turn {
	out := make([]models.Turn, len(s.history))
	copy(out, s.history)
	return out
}

// Len returns the number of turns in the active history
func (s *Session) Len() int { return len(s.history) }

// Transcript returns the history interleaved with error annotations, in the
// order they happened
func (s *Session) Transcript() []models.Entry {
	out := make([]models.Entry, 0, len(s.history)+len(s.annotations))
	ai := 0
	for i, turn := range s.history {
		for ai < len(s.annotations) && s.annotations[ai].pos <= i {
			out = append(out, models.Entry{Kind: models.EntryError, Text: s.annotations[ai].text})
			ai++
		}
		out = append(out, models.EntryFromTurn(turn))
	}
	for ; ai < len(s.annotations); ai++ {
		out = append(out, models.Entry{Kind: models.EntryError, Text: s.annotations[ai].text})
	}
	return out
}

// Record returns a snapshot of the active conversation as a record
func (s *Session) Record() *models.Record {
	return &models.Record{
		ID:           s.currentID,
		Name:         s.name,
		SystemPrompt: s.systemPrompt,
		History:      s.History(),
	}
}

// List returns the metadata of every stored conversation
func (s *Session) List() ([]models.Metadata, error) {
	return s.store.ListAll()
}

// CreateNew creates and activates an empty conversation. It does not ask
// about unsaved changes; call ResolvePending first when that matters.
func (s *Session) CreateNew(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperrors.ErrEmptyName
	}

	rec, err := s.store.Create(name, s.systemPrompt)
	if err != nil {
		return "", err
	}

	s.activate(rec)
	log.Info().Str("conversation_id", rec.ID).Str("name", rec.Name).Msg("New conversation")
	s.notify(Event{Kind: EventCreated, ID: rec.ID})
	return rec.ID, nil
}

// ResolvePending asks decide what to do with unsaved changes, if any, and
// saves when told to. It returns ErrSwitchCancelled on cancel.
func (s *Session) ResolvePending(decide DecideFunc) error {
	if !s.dirty || s.currentID == "" {
		return nil
	}

	choice := SaveBeforeSwitch
	if decide != nil {
		choice = decide(s.name)
	}

	switch choice {
	case CancelSwitch:
		return apperrors.ErrSwitchCancelled
	case DiscardChanges:
		log.Debug().Str("conversation_id", s.currentID).Msg("Discarding unsaved changes")
		s.dirty = false
		return nil
	default:
		return s.Save()
	}
}

// SwitchTo activates the conversation id. Unsaved changes to the current
// conversation go through decide first. A missing or corrupt record still
// becomes active with the bootstrap prompt and empty history; the load
// error is returned so the caller can report it.
func (s *Session) SwitchTo(id string, decide DecideFunc) error {
	if id == "" {
		return apperrors.NewValidationError("id", "must not be empty")
	}
	if id == s.currentID {
		return nil
	}

	if err := s.ResolvePending(decide); err != nil {
		return err
	}

	rec, loadErr := s.store.Load(id)
	if loadErr != nil {
		log.Warn().Err(loadErr).Str("conversation_id", id).Msg("Falling back to empty conversation")
		rec = &models.Record{
			ID:           id,
			Name:         id,
			SystemPrompt: models.BootstrapSystemPrompt,
		}
	}

	s.activate(rec)
	s.notify(Event{Kind: EventSwitched, ID: id})

	if loadErr != nil {
		if apperrors.IsPersistence(loadErr) {
			return loadErr
		}
		return &apperrors.PersistenceError{Op: "switch", ID: id, Err: loadErr}
	}
	return nil
}

// AppendUserTurn appends the user's message to the in-memory history. With
// no active conversation one is created first under a dated name. The
// history is not persisted here.
func (s *Session) AppendUserTurn(text string) error {
	if strings.TrimSpace(text) == "" {
		return apperrors.ErrEmptyInput
	}

	if s.currentID == "" {
		if _, err := s.CreateNew(s.datedName()); err != nil {
			return fmt.Errorf("creating conversation for message: %w", err)
		}
	}

	s.history = append(s.history, models.NewTurn(models.RoleUser, text))
	s.dirty = true
	s.notify(Event{Kind: EventHistoryChanged, ID: s.currentID})
	return nil
}

// AppendModelTurn appends a successful model reply to the in-memory history
func (s *Session) AppendModelTurn(text string) error {
	if s.currentID == "" {
		return apperrors.ErrNoActive
	}

	s.history = append(s.history, models.NewTurn(models.RoleModel, text))
	s.dirty = true
	s.notify(Event{Kind: EventHistoryChanged, ID: s.currentID})
	return nil
}

// DeliverModelTurn records a model reply for conversation id. When id is
// active the reply joins the displayed history and is saved; otherwise it
// is appended to that conversation's stored record, leaving the active
// conversation untouched.
func (s *Session) DeliverModelTurn(id, text string) error {
	if id == s.currentID && id != "" {
		if err := s.AppendModelTurn(text); err != nil {
			return err
		}
		return s.Save()
	}

	rec, err := s.store.Load(id)
	if err != nil {
		return fmt.Errorf("delivering reply to %s: %w", id, err)
	}
	rec.History = append(rec.History, models.NewTurn(models.RoleModel, text))
	if err := s.store.Save(rec); err != nil {
		return fmt.Errorf("delivering reply to %s: %w", id, err)
	}

	log.Info().Str("conversation_id", id).Msg("Stored reply for inactive conversation")
	s.notify(Event{Kind: EventBackgroundSaved, ID: id})
	return nil
}

// AddErrorAnnotation shows msg in the transcript. Annotations are never
// persisted and are cleared when another conversation becomes active.
func (s *Session) AddErrorAnnotation(msg string) {
	s.annotations = append(s.annotations, annotation{pos: len(s.history), text: msg})
	s.notify(Event{Kind: EventAnnotated, ID: s.currentID})
}

// ClearAnnotations drops all error annotations
func (s *Session) ClearAnnotations() {
	s.annotations = nil
}

// Save persists the active conversation. With no active conversation one is
// created under a dated name first.
func (s *Session) Save() error {
	if s.currentID == "" {
		if _, err := s.CreateNew(s.datedName()); err != nil {
			return err
		}
	}

	rec := s.Record()
	if err := s.store.Save(rec); err != nil {
		return err
	}

	s.dirty = false
	s.notify(Event{Kind: EventSaved, ID: s.currentID})
	return nil
}

// Rename changes the display name of the active conversation and persists
// the full record. The id and file name are unchanged.
func (s *Session) Rename(newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return apperrors.ErrEmptyName
	}
	if s.currentID == "" {
		return apperrors.ErrNoActive
	}

	old := s.name
	s.name = newName
	if err := s.store.Save(s.Record()); err != nil {
		s.name = old
		return err
	}

	s.dirty = false
	log.Info().Str("conversation_id", s.currentID).Str("from", old).Str("to", newName).Msg("Renamed conversation")
	s.notify(Event{Kind: EventRenamed, ID: s.currentID})
	return nil
}

// Delete removes the active conversation and leaves the session with no
// active conversation. The outcome names what the caller should activate
// next; EnsureActive does that.
func (s *Session) Delete() (DeleteOutcome, error) {
	if s.currentID == "" {
		return DeleteOutcome{}, apperrors.ErrNoActive
	}

	id := s.currentID
	if err := s.store.Delete(id); err != nil && !apperrors.IsNotFound(err) {
		return DeleteOutcome{}, err
	}

	s.clear()
	if err := s.store.SetLastActive(""); err != nil {
		log.Warn().Err(err).Msg("Failed to clear last active conversation")
	}
	log.Info().Str("conversation_id", id).Msg("Deleted conversation")
	s.notify(Event{Kind: EventDeleted, ID: id})

	return s.nextAfterDelete()
}

// DeleteConversation removes the conversation id. Deleting the active one
// behaves like Delete.
func (s *Session) DeleteConversation(id string) (DeleteOutcome, error) {
	if id == s.currentID {
		return s.Delete()
	}

	if err := s.store.Delete(id); err != nil && !apperrors.IsNotFound(err) {
		return DeleteOutcome{}, err
	}
	s.notify(Event{Kind: EventDeleted, ID: id})
	return DeleteOutcome{NextID: s.currentID}, nil
}

// EnsureActive makes sure some conversation is active: the first listed one
// or, when none exist, a new default conversation.
func (s *Session) EnsureActive() error {
	if s.currentID != "" {
		return nil
	}

	list, err := s.store.ListAll()
	if err != nil {
		return err
	}
	if len(list) > 0 {
		return s.SwitchTo(list[0].ID, nil)
	}

	_, err = s.CreateNew(models.DefaultConversationName)
	return err
}

// SetSystemPrompt replaces the system prompt of the active conversation
func (s *Session) SetSystemPrompt(text string) {
	if text == s.systemPrompt {
		return
	}
	s.systemPrompt = text
	if s.currentID != "" {
		s.dirty = true
	}
	s.notify(Event{Kind: EventPromptChanged, ID: s.currentID})
}

// ApplyPreprompt loads the named preprompt into the system prompt
func (s *Session) ApplyPreprompt(lib PrepromptSource, name string) error {
	text, ok := lib.Get(name)
	if !ok {
		return fmt.Errorf("preprompt '%s' not found", name)
	}
	s.SetSystemPrompt(text)
	return nil
}

// Export writes the active conversation as plain text
func (s *Session) Export(w io.Writer) error {
	if len(s.history) == 0 {
		return apperrors.NewValidationError("conversation", "nothing to export")
	}
	return history.ExportText(s.Record(), w)
}

func (s *Session) activate(rec *models.Record) {
	s.currentID = rec.ID
	s.name = rec.Name
	s.systemPrompt = rec.SystemPrompt
	if strings.TrimSpace(s.systemPrompt) == "" {
		s.systemPrompt = models.BootstrapSystemPrompt
	}
	s.history = append([]models.Turn(nil), rec.History...)
	s.annotations = nil
	s.dirty = false

	if err := s.store.SetLastActive(rec.ID); err != nil {
		log.Warn().Err(err).Msg("Failed to record last active conversation")
	}
}

func (s *Session) clear() {
	s.currentID = ""
	s.name = ""
	s.history = nil
	s.annotations = nil
	s.dirty = false
}

func (s *Session) nextAfterDelete() (DeleteOutcome, error) {
	list, err := s.store.ListAll()
	if err != nil {
		return DeleteOutcome{CreateDefault: true}, err
	}
	if len(list) == 0 {
		return DeleteOutcome{CreateDefault: true}, nil
	}
	return DeleteOutcome{NextID: list[0].ID}, nil
}

func (s *Session) datedName() string {
	return s.now().Format(models.DatedNameLayout)
}
