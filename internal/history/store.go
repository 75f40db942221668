// Package history provides local conversation storage, one JSON file per
// conversation.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	apperrors "github.com/diogo/geminichat/internal/errors"
	"github.com/diogo/geminichat/internal/models"
)

// Store manages conversation record persistence
type Store struct {
	baseDir string
	mu      sync.RWMutex
}

// NewStore creates a new conversation store under baseDir/conversations
func NewStore(baseDir string) (*Store, error) {
	dir := filepath.Join(baseDir, "conversations")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create conversations directory: %w", err)
	}

	return &Store{
		baseDir: dir,
	}, nil
}

// Dir returns the directory holding the records
func (s *Store) Dir() string {
	return s.baseDir
}

// Create writes a new, empty record and returns it
func (s *Store) Create(name, systemPrompt string) (*models.Record, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.ErrEmptyName
	}

	rec := &models.Record{
		ID:           generateConvID(),
		Name:         name,
		SystemPrompt: systemPrompt,
		History:      []models.Turn{},
	}

	if err := s.Save(rec); err != nil {
		return nil, err
	}

	log.Debug().Str("conversation_id", rec.ID).Str("name", name).Msg("Created conversation")
	return rec, nil
}

// ListAll returns id and name for every readable record, sorted
// case-insensitively by name. Unreadable records are logged and skipped.
func (s *Store) ListAll() ([]models.Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, &apperrors.PersistenceError{Op: "list", Err: err}
	}

	list := make([]models.Metadata, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		id := strings.TrimSuffix(entry.Name(), ".json")
		meta, err := s.readMetadata(id)
		if err != nil {
			log.Warn().Err(err).Str("file", entry.Name()).Msg("Skipping unreadable conversation")
			continue
		}
		list = append(list, meta)
	}

	sort.Slice(list, func(i, j int) bool {
		a, b := strings.ToLower(list[i].Name), strings.ToLower(list[j].Name)
		if a != b {
			return a < b
		}
		return list[i].ID < list[j].ID
	})

	return list, nil
}

// Load reads the full record for id
func (s *Store) Load(id string) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.loadConversation(id)
}

// Exists reports whether a record is stored for id
func (s *Store) Exists(id string) bool {
	if validateID(id) != nil {
		return false
	}
	_, err := os.Stat(s.conversationPath(id))
	return err == nil
}

// Save writes the full record. CreatedAt is taken from the record already on
// disk when there is one; LastModified is always set to now. Both are updated
// on rec.
func (s *Store) Save(rec *models.Record) error {
	if rec == nil {
		return apperrors.NewValidationError("record", "must not be nil")
	}
	if err := validateID(rec.ID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := models.Now()
	created, ok := s.existingCreatedAt(rec.ID)
	if !ok {
		created = now
	}
	rec.CreatedAt = created
	rec.LastModified = now
	if rec.History == nil {
		rec.History = []models.Turn{}
	}

	return s.saveConversation(rec)
}

// Delete removes the record for id. A missing record returns a NotFound
// error that callers may treat as already gone.
func (s *Store) Delete(id string) error {
	if err := validateID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.conversationPath(id)); err != nil {
		if os.IsNotExist(err) {
			return apperrors.NewNotFoundError("delete", id)
		}
		return &apperrors.PersistenceError{Op: "delete", ID: id, Err: err}
	}

	log.Debug().Str("conversation_id", id).Msg("Deleted conversation")
	return nil
}

// ClearAll deletes all conversations
func (s *Store) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return &apperrors.PersistenceError{Op: "clear", Err: err}
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		path := filepath.Join(s.baseDir, entry.Name())
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to delete %s: %w", entry.Name(), err)
		}
	}

	return nil
}

// Internal methods

func (s *Store) conversationPath(id string) string {
	return filepath.Join(s.baseDir, id+".json")
}

func (s *Store) readMetadata(id string) (models.Metadata, error) {
	data, err := os.ReadFile(s.conversationPath(id))
	if err != nil {
		return models.Metadata{}, err
	}
	if !gjson.ValidBytes(data) {
		return models.Metadata{}, apperrors.NewCorruptError("list", id, fmt.Errorf("invalid JSON"))
	}
	if !gjson.ParseBytes(data).IsObject() {
		return models.Metadata{}, apperrors.NewCorruptError("list", id, fmt.Errorf("record is not an object"))
	}

	meta := models.Metadata{ID: id, Name: gjson.GetBytes(data, "name").String()}
	if strings.TrimSpace(meta.Name) == "" {
		meta.Name = meta.ID
	}
	return meta, nil
}

func (s *Store) loadConversation(id string) (*models.Record, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.conversationPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NewNotFoundError("load", id)
		}
		return nil, &apperrors.PersistenceError{Op: "load", ID: id, Err: err}
	}

	var rec models.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, apperrors.NewCorruptError("load", id, err)
	}

	if rec.ID != id {
		log.Debug().Str("conversation_id", id).Str("stored_id", rec.ID).Msg("Record id differs from file name")
		rec.ID = id
	}
	if strings.TrimSpace(rec.SystemPrompt) == "" {
		rec.SystemPrompt = models.BootstrapSystemPrompt
	}
	if rec.History == nil {
		rec.History = []models.Turn{}
	}

	return &rec, nil
}

// existingCreatedAt reads created_at from the record on disk, if any.
func (s *Store) existingCreatedAt(id string) (models.Timestamp, bool) {
	data, err := os.ReadFile(s.conversationPath(id))
	if err != nil {
		return models.Timestamp{}, false
	}

	raw := gjson.GetBytes(data, "created_at")
	if !raw.Exists() || raw.String() == "" {
		return models.Timestamp{}, false
	}

	var ts models.Timestamp
	if err := json.Unmarshal([]byte(raw.Raw), &ts); err != nil {
		log.Warn().Err(err).Str("conversation_id", id).Msg("Ignoring unreadable created_at")
		return models.Timestamp{}, false
	}
	return ts, true
}

func (s *Store) saveConversation(rec *models.Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return &apperrors.PersistenceError{Op: "save", ID: rec.ID, Err: err}
	}

	if err := renameio.WriteFile(s.conversationPath(rec.ID), data, 0o600); err != nil {
		return &apperrors.PersistenceError{Op: "save", ID: rec.ID, Err: err}
	}

	return nil
}

func validateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return apperrors.NewValidationError("id", "must not be empty")
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return apperrors.NewValidationError("id", "must not contain path separators")
	}
	return nil
}

func generateConvID() string {
	return uuid.NewString()
}
