package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Record is the persisted form of a conversation.
type Record struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	SystemPrompt string    `json:"system_prompt"`
	History      []Turn    `json:"history"`
	CreatedAt    Timestamp `json:"created_at"`
	LastModified Timestamp `json:"last_modified"`
}

// Metadata is the lightweight listing entry for a conversation.
type Metadata struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Timestamp is a time that also accepts ISO 8601 values without a zone
// offset, as written by older versions of the client.
type Timestamp struct {
	time.Time
}

// timestampLayouts are tried in order when decoding.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// Now returns the current time as a Timestamp.
func Now() Timestamp {
	return Timestamp{Time: time.Now()}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*t = Timestamp{}
		return nil
	}
	for _, layout := range timestampLayouts {
		parsed, err := time.ParseInLocation(layout, s, time.Local)
		if err == nil {
			*t = Timestamp{Time: parsed}
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", s)
}
