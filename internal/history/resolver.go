package history

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/diogo/geminichat/internal/models"
)

// Resolver resolves user-friendly references to conversation IDs
type Resolver struct {
	store *Store
}

// NewResolver creates a new reference resolver
func NewResolver(store *Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve converts a user-friendly reference to a conversation ID
//
// Supported references:
//   - "@last" - most recently modified conversation
//   - "@first" - first conversation in the listing
//   - "1", "2", "3" - by index in the listing (1-based)
//   - an exact conversation ID
//   - "substring" - case-insensitive match on name (error if multiple matches)
func (r *Resolver) Resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)

	if ref == "" {
		return "", fmt.Errorf("empty reference")
	}

	list, err := r.store.ListAll()
	if err != nil {
		return "", fmt.Errorf("failed to list conversations: %w", err)
	}

	if len(list) == 0 {
		return "", fmt.Errorf("no conversations found")
	}

	switch strings.ToLower(ref) {
	case "@last":
		recent := r.store.sortByModified(list)
		return recent[0].ID, nil
	case "@first":
		return list[0].ID, nil
	}

	if index, err := strconv.Atoi(ref); err == nil {
		if index < 1 || index > len(list) {
			return "", fmt.Errorf("index %d out of range (1-%d)", index, len(list))
		}
		return list[index-1].ID, nil
	}

	for _, meta := range list {
		if meta.ID == ref {
			return meta.ID, nil
		}
	}

	refLower := strings.ToLower(ref)
	var matches []models.Metadata
	for _, meta := range list {
		if strings.Contains(strings.ToLower(meta.Name), refLower) {
			matches = append(matches, meta)
		}
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no conversation matching '%s'", ref)
	case 1:
		return matches[0].ID, nil
	default:
		var names []string
		for _, m := range matches {
			names = append(names, fmt.Sprintf("'%s'", m.Name))
		}
		return "", fmt.Errorf("multiple conversations match '%s': %s. Use ID or be more specific",
			ref, strings.Join(names, ", "))
	}
}

// sortByModified returns a copy of list ordered by last_modified, newest
// first. Records without a readable timestamp fall back to the file mtime.
func (s *Store) sortByModified(list []models.Metadata) []models.Metadata {
	out := make([]models.Metadata, len(list))
	copy(out, list)

	times := make(map[string]time.Time, len(out))
	for _, meta := range out {
		times[meta.ID] = s.modifiedAt(meta.ID)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return times[out[i].ID].After(times[out[j].ID])
	})
	return out
}

func (s *Store) modifiedAt(id string) time.Time {
	path := s.conversationPath(id)
	if data, err := os.ReadFile(path); err == nil {
		var ts models.Timestamp
		raw := gjson.GetBytes(data, "last_modified")
		if raw.Exists() && ts.UnmarshalJSON([]byte(raw.Raw)) == nil && !ts.IsZero() {
			return ts.Time
		}
	}
	if info, err := os.Stat(path); err == nil {
		return info.ModTime()
	}
	return time.Time{}
}
