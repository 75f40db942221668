package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/renameio/v2"
	"github.com/rs/zerolog/log"

	apperrors "github.com/diogo/geminichat/internal/errors"
)

const prepromptsFileName = "preprompts.json"

// PrepromptLibrary is a named set of reusable system prompts backed by a
// single JSON object file. Every change rewrites the whole file.
type PrepromptLibrary struct {
	path  string
	mu    sync.RWMutex
	items map[string]string
}

// GetPrepromptsPath returns the path to the preprompts file in dir
func GetPrepromptsPath(dir string) string {
	return filepath.Join(dir, prepromptsFileName)
}

// LoadPrepromptLibrary reads the library from dir. An unreadable file is
// logged and the library starts empty.
func LoadPrepromptLibrary(dir string) *PrepromptLibrary {
	lib := &PrepromptLibrary{
		path:  GetPrepromptsPath(dir),
		items: make(map[string]string),
	}

	data, err := os.ReadFile(lib.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", lib.path).Msg("Failed to read preprompts")
		}
		return lib
	}

	var items map[string]string
	if err := json.Unmarshal(data, &items); err != nil {
		log.Warn().Err(err).Str("path", lib.path).Msg("Failed to parse preprompts, starting empty")
		return lib
	}
	if items != nil {
		lib.items = items
	}

	return lib
}

// Path returns the backing file path
func (l *PrepromptLibrary) Path() string {
	return l.path
}

// List returns the preprompt names sorted alphabetically
func (l *PrepromptLibrary) List() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	names := make([]string, 0, len(l.items))
	for name := range l.items {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the text stored under name
func (l *PrepromptLibrary) Get(name string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	text, ok := l.items[name]
	return text, ok
}

// Exists reports whether name is in the library
func (l *PrepromptLibrary) Exists(name string) bool {
	_, ok := l.Get(name)
	return ok
}

// Save stores text under name. Replacing an existing entry requires
// overwrite; without it ErrPrepromptExists is returned so the caller can ask
// the user and retry.
func (l *PrepromptLibrary) Save(name, text string, overwrite bool) error {
	name = strings.TrimSpace(name)
	if err := validatePreprompt(name, text); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.items[name]; exists && !overwrite {
		return fmt.Errorf("%w: '%s'", apperrors.ErrPrepromptExists, name)
	}

	next := cloneItems(l.items)
	next[name] = text
	if err := l.write(next); err != nil {
		return err
	}
	l.items = next
	return nil
}

// Delete removes name if present. Deleting an absent name is not an error.
func (l *PrepromptLibrary) Delete(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.items[name]; !exists {
		return nil
	}

	next := cloneItems(l.items)
	delete(next, name)
	if err := l.write(next); err != nil {
		return err
	}
	l.items = next
	return nil
}

func (l *PrepromptLibrary) write(items map[string]string) error {
	if err := EnsureDir(filepath.Dir(l.path)); err != nil {
		return err
	}

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal preprompts: %w", err)
	}

	if err := renameio.WriteFile(l.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write preprompts: %w", err)
	}
	return nil
}

// prepromptInput carries the field constraints of a library entry. Text is
// trimmed before validation so whitespace-only prompts are rejected.
type prepromptInput struct {
	Name string `validate:"required"`
	Text string `validate:"required"`
}

func validatePreprompt(name, text string) error {
	err := getValidator().Struct(prepromptInput{Name: name, Text: strings.TrimSpace(text)})
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}
	switch fieldErrs[0].Field() {
	case "Name":
		return apperrors.ErrEmptyName
	case "Text":
		return apperrors.ErrEmptyInput
	}
	return apperrors.NewValidationError("preprompt", fieldErrs[0].Error())
}

func cloneItems(items map[string]string) map[string]string {
	out := make(map[string]string, len(items)+1)
	for k, v := range items {
		out[k] = v
	}
	return out
}
