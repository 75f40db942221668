package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog/log"
)

const (
	stateFileName = "state.json"
	stateVersion  = 1
)

// State is client state kept beside the records
type State struct {
	Version    int    `json:"version"`
	LastActive string `json:"last_active,omitempty"`
}

// statePath lives next to the conversations directory, not inside it, so
// listings never see it.
func (s *Store) statePath() string {
	return filepath.Join(filepath.Dir(s.baseDir), stateFileName)
}

func (s *Store) loadState() *State {
	data, err := os.ReadFile(s.statePath())
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Msg("Failed to read state file")
		}
		return &State{Version: stateVersion}
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		log.Warn().Err(err).Msg("Ignoring corrupt state file")
		return &State{Version: stateVersion}
	}
	return &st
}

// LastActive returns the id of the conversation that was active when the
// client last ran, or "" if it is unknown or no longer exists.
func (s *Store) LastActive() string {
	s.mu.RLock()
	st := s.loadState()
	s.mu.RUnlock()

	if st.LastActive == "" || !s.Exists(st.LastActive) {
		return ""
	}
	return st.LastActive
}

// SetLastActive records id as the active conversation. An empty id clears it.
func (s *Store) SetLastActive(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.loadState()
	if st.LastActive == id {
		return nil
	}
	st.Version = stateVersion
	st.LastActive = id

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := renameio.WriteFile(s.statePath(), data, 0o600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}
