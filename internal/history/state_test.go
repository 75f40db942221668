package history

import (
	"os"
	"testing"
)

func TestLastActive(t *testing.T) {
	store := newTestStore(t)

	if got := store.LastActive(); got != "" {
		t.Errorf("LastActive() = %q, want empty", got)
	}

	rec, _ := store.Create("Test", "")
	if err := store.SetLastActive(rec.ID); err != nil {
		t.Fatalf("SetLastActive failed: %v", err)
	}
	if got := store.LastActive(); got != rec.ID {
		t.Errorf("LastActive() = %q, want %q", got, rec.ID)
	}

	// The state file must not show up as a conversation
	list, _ := store.ListAll()
	if len(list) != 1 {
		t.Errorf("expected 1 conversation, got %d", len(list))
	}

	_ = store.Delete(rec.ID)
	if got := store.LastActive(); got != "" {
		t.Errorf("LastActive() for deleted record = %q, want empty", got)
	}
}

func TestLastActive_CorruptState(t *testing.T) {
	store := newTestStore(t)

	if err := os.WriteFile(store.statePath(), []byte("garbage"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := store.LastActive(); got != "" {
		t.Errorf("LastActive() = %q, want empty", got)
	}
	if err := store.SetLastActive(""); err != nil {
		t.Errorf("SetLastActive on corrupt state failed: %v", err)
	}
}
