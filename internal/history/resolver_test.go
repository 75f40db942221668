package history

import (
	"strings"
	"testing"
	"time"
)

func TestResolver_ResolveAtLast(t *testing.T) {
	store := newTestStore(t)

	conv1, _ := store.Create("alpha", "")
	time.Sleep(10 * time.Millisecond)
	_, _ = store.Create("bravo", "")
	time.Sleep(10 * time.Millisecond)
	conv3, _ := store.Create("charlie", "")

	resolver := NewResolver(store)

	id, err := resolver.Resolve("@last")
	if err != nil {
		t.Fatalf("Resolve @last failed: %v", err)
	}
	if id != conv3.ID {
		t.Errorf("@last = %s, want %s", id, conv3.ID)
	}

	// Saving conv1 again makes it the most recently modified
	time.Sleep(10 * time.Millisecond)
	if err := store.Save(conv1); err != nil {
		t.Fatal(err)
	}
	id, _ = resolver.Resolve("@last")
	if id != conv1.ID {
		t.Errorf("@last after save = %s, want %s", id, conv1.ID)
	}
}

func TestResolver_ResolveAtFirst(t *testing.T) {
	store := newTestStore(t)

	store.Create("zulu", "")
	conv, _ := store.Create("Alpha", "")

	id, err := NewResolver(store).Resolve("@FIRST")
	if err != nil {
		t.Fatalf("Resolve @first failed: %v", err)
	}
	if id != conv.ID {
		t.Errorf("@first = %s, want %s", id, conv.ID)
	}
}

func TestResolver_ResolveNumericIndex(t *testing.T) {
	store := newTestStore(t)

	a, _ := store.Create("a", "")
	b, _ := store.Create("b", "")
	resolver := NewResolver(store)

	tests := []struct {
		ref  string
		want string
	}{
		{"1", a.ID},
		{"2", b.ID},
	}
	for _, tt := range tests {
		id, err := resolver.Resolve(tt.ref)
		if err != nil {
			t.Fatalf("Resolve(%s) failed: %v", tt.ref, err)
		}
		if id != tt.want {
			t.Errorf("Resolve(%s) = %s, want %s", tt.ref, id, tt.want)
		}
	}

	if _, err := resolver.Resolve("3"); err == nil || !strings.Contains(err.Error(), "out of range") {
		t.Errorf("expected out of range error, got %v", err)
	}
}

func TestResolver_ResolveDirectID(t *testing.T) {
	store := newTestStore(t)

	conv, _ := store.Create("Test", "")

	id, err := NewResolver(store).Resolve(conv.ID)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if id != conv.ID {
		t.Errorf("Resolve = %s, want %s", id, conv.ID)
	}
}

func TestResolver_ResolveSubstring(t *testing.T) {
	store := newTestStore(t)

	store.Create("Go generics", "")
	target, _ := store.Create("Polish grammar", "")
	store.Create("Gardening", "")

	resolver := NewResolver(store)

	id, err := resolver.Resolve("POLISH")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if id != target.ID {
		t.Errorf("Resolve = %s, want %s", id, target.ID)
	}

	if _, err := resolver.Resolve("nothing"); err == nil {
		t.Error("expected error for no match")
	}

	_, err = resolver.Resolve("g")
	if err == nil || !strings.Contains(err.Error(), "multiple conversations match") {
		t.Errorf("expected ambiguity error, got %v", err)
	}
}

func TestResolver_ResolveEmpty(t *testing.T) {
	store := newTestStore(t)
	resolver := NewResolver(store)

	if _, err := resolver.Resolve("  "); err == nil {
		t.Error("expected error for empty reference")
	}
	if _, err := resolver.Resolve("@last"); err == nil || !strings.Contains(err.Error(), "no conversations") {
		t.Errorf("expected no conversations error, got %v", err)
	}
}
