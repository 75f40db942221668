package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/diogo/geminichat/internal/models"
)

// ExportFormat represents the format for exporting conversations
type ExportFormat string

const (
	ExportFormatText     ExportFormat = "text"
	ExportFormatMarkdown ExportFormat = "markdown"
	ExportFormatJSON     ExportFormat = "json"
)

// ParseExportFormat maps a user-supplied format name to an ExportFormat
func ParseExportFormat(s string) (ExportFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return ExportFormatText, nil
	case "markdown", "md":
		return ExportFormatMarkdown, nil
	case "json":
		return ExportFormatJSON, nil
	}
	return "", fmt.Errorf("unknown export format %q (use text, markdown or json)", s)
}

// Export writes rec to w in the given format
func Export(rec *models.Record, format ExportFormat, w io.Writer) error {
	switch format {
	case ExportFormatText:
		return ExportText(rec, w)
	case ExportFormatMarkdown:
		_, err := io.WriteString(w, ExportMarkdown(rec))
		return err
	case ExportFormatJSON:
		data, err := ExportJSON(rec)
		if err != nil {
			return err
		}
		_, err = w.Write(append(data, '\n'))
		return err
	}
	return fmt.Errorf("unknown export format %q", format)
}

// ExportText flattens the system prompt and every turn into plain text:
// one "Role: text" paragraph per turn.
func ExportText(rec *models.Record, w io.Writer) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "System prompt: %s\n\n", rec.SystemPrompt)
	for _, turn := range rec.History {
		fmt.Fprintf(bw, "%s: %s\n\n", turn.Role.Label(), turn.Text())
	}

	return bw.Flush()
}

// ExportMarkdown exports a conversation to Markdown format
func ExportMarkdown(rec *models.Record) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# ")
	sb.WriteString(rec.Name)
	sb.WriteString("\n\n")

	// Metadata
	sb.WriteString("**ID:** ")
	sb.WriteString(rec.ID)
	sb.WriteString("\n")
	if !rec.CreatedAt.IsZero() {
		sb.WriteString("**Created:** ")
		sb.WriteString(rec.CreatedAt.Format("2006-01-02 15:04:05"))
		sb.WriteString("\n")
	}
	if !rec.LastModified.IsZero() {
		sb.WriteString("**Updated:** ")
		sb.WriteString(rec.LastModified.Format("2006-01-02 15:04:05"))
		sb.WriteString("\n")
	}
	sb.WriteString(fmt.Sprintf("**Messages:** %d\n\n", len(rec.History)))

	if rec.SystemPrompt != "" {
		sb.WriteString("> ")
		sb.WriteString(strings.ReplaceAll(rec.SystemPrompt, "\n", "\n> "))
		sb.WriteString("\n\n")
	}
	sb.WriteString("---\n\n")

	for i, turn := range rec.History {
		sb.WriteString("## ")
		sb.WriteString(turn.Role.Label())
		sb.WriteString("\n\n")
		sb.WriteString(turn.Text())
		sb.WriteString("\n")

		// Separator between messages (except last)
		if i < len(rec.History)-1 {
			sb.WriteString("\n---\n\n")
		}
	}

	return sb.String()
}

// ExportJSON exports a conversation in its persisted JSON form
func ExportJSON(rec *models.Record) ([]byte, error) {
	return json.MarshalIndent(rec, "", "  ")
}

// SearchResult represents a search match in conversations
type SearchResult struct {
	Meta         models.Metadata
	MatchSnippet string // Snippet where the term was found
	MatchField   string // "name" or "content"
	MatchIndex   int    // Turn index if MatchField is "content", -1 for name
}

// Search looks for query in conversation names and optionally turn text
func (s *Store) Search(query string, searchContent bool) ([]*SearchResult, error) {
	list, err := s.ListAll()
	if err != nil {
		return nil, err
	}

	queryLower := strings.ToLower(query)
	var results []*SearchResult

	for _, meta := range list {
		if strings.Contains(strings.ToLower(meta.Name), queryLower) {
			results = append(results, &SearchResult{
				Meta:         meta,
				MatchSnippet: meta.Name,
				MatchField:   "name",
				MatchIndex:   -1,
			})
			continue
		}

		if !searchContent {
			continue
		}

		rec, err := s.Load(meta.ID)
		if err != nil {
			continue
		}
		for i, turn := range rec.History {
			text := turn.Text()
			if strings.Contains(strings.ToLower(text), queryLower) {
				results = append(results, &SearchResult{
					Meta:         meta,
					MatchSnippet: extractSnippet(text, query, 100),
					MatchField:   "content",
					MatchIndex:   i,
				})
				break // Only one match per conversation
			}
		}
	}

	return results, nil
}

// extractSnippet extracts a snippet around the first occurrence of query
func extractSnippet(content, query string, maxLen int) string {
	runes := []rune(content)
	lower := []rune(strings.ToLower(content))
	q := []rune(strings.ToLower(query))

	idx := indexRunes(lower, q)
	if idx == -1 || len(lower) != len(runes) {
		if len(runes) > maxLen {
			return string(runes[:maxLen]) + "..."
		}
		return content
	}

	half := maxLen / 2
	start := idx - half
	end := idx + len(q) + half

	if start < 0 {
		start = 0
		end = maxLen
	}
	if end > len(runes) {
		end = len(runes)
		start = end - maxLen
		if start < 0 {
			start = 0
		}
	}

	snippet := string(runes[start:end])
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(runes) {
		snippet = snippet + "..."
	}

	return snippet
}

func indexRunes(s, sub []rune) int {
	if len(sub) == 0 {
		return 0
	}
	for i := 0; i+len(sub) <= len(s); i++ {
		match := true
		for j := range sub {
			if s[i+j] != sub[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
