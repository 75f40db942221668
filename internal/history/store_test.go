package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	apperrors "github.com/diogo/geminichat/internal/errors"
	"github.com/diogo/geminichat/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return store
}

func TestNewStore(t *testing.T) {
	tmpDir := t.TempDir()

	store, err := NewStore(tmpDir)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	if store.Dir() != filepath.Join(tmpDir, "conversations") {
		t.Errorf("Dir() = %s", store.Dir())
	}
	if _, err := os.Stat(store.Dir()); os.IsNotExist(err) {
		t.Error("conversations directory was not created")
	}
}

func TestStore_Create(t *testing.T) {
	store := newTestStore(t)

	rec, err := store.Create("Test", "be brief")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if len(rec.ID) != 36 {
		t.Errorf("ID = %q, want a UUID", rec.ID)
	}
	if rec.CreatedAt.IsZero() || rec.LastModified.IsZero() {
		t.Error("timestamps not set")
	}
	if !store.Exists(rec.ID) {
		t.Error("record was not written on create")
	}

	other, _ := store.Create("Test", "")
	if other.ID == rec.ID {
		t.Error("ids must not repeat")
	}
}

func TestStore_Create_EmptyName(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Create("   ", "")
	if !apperrors.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestStore_RoundTrip(t *testing.T) {
	store := newTestStore(t)

	rec := &models.Record{
		ID:           "0b7c1d2e-aaaa-4bbb-8ccc-123456789abc",
		Name:         "Zażółć",
		SystemPrompt: "Answer in English.",
		History: []models.Turn{
			models.NewTurn(models.RoleUser, "Hello"),
			models.NewTurn(models.RoleModel, "Hi! $x^2$"),
			{Role: models.RoleUser, Parts: []models.Part{
				{Text: "see"},
				{Extra: map[string]json.RawMessage{"inline_data": json.RawMessage(`{"mime_type":"image/png"}`)}},
			}},
		},
	}

	if err := store.Save(rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load(rec.ID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.ID != rec.ID || loaded.Name != rec.Name || loaded.SystemPrompt != rec.SystemPrompt {
		t.Errorf("loaded = %+v, want %+v", loaded, rec)
	}
	if !reflect.DeepEqual(loaded.History, rec.History) {
		t.Errorf("History = %+v, want %+v", loaded.History, rec.History)
	}
}

func TestStore_Save_PreservesCreatedAt(t *testing.T) {
	store := newTestStore(t)

	rec, _ := store.Create("Test", "")
	created := rec.CreatedAt
	firstModified := rec.LastModified

	time.Sleep(5 * time.Millisecond)

	// A fresh record value with the same id must not reset created_at
	again := &models.Record{ID: rec.ID, Name: "Renamed", History: []models.Turn{models.NewTurn(models.RoleUser, "x")}}
	if err := store.Save(again); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, _ := store.Load(rec.ID)
	if !loaded.CreatedAt.Equal(created.Time) {
		t.Errorf("CreatedAt = %v, want %v", loaded.CreatedAt, created)
	}
	if !loaded.LastModified.After(firstModified.Time) {
		t.Errorf("LastModified = %v, want after %v", loaded.LastModified, firstModified)
	}
}

func TestStore_Load_Errors(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Load("missing")
	if !apperrors.IsNotFound(err) {
		t.Errorf("expected NotFound, got %v", err)
	}

	if err := os.WriteFile(filepath.Join(store.Dir(), "broken.json"), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err = store.Load("broken")
	if !apperrors.IsCorrupt(err) {
		t.Errorf("expected Corrupt, got %v", err)
	}

	badRole := `{"id":"r","name":"r","history":[{"role":"error","parts":[{"text":"x"}]}]}`
	_ = os.WriteFile(filepath.Join(store.Dir(), "r.json"), []byte(badRole), 0o600)
	_, err = store.Load("r")
	if !apperrors.IsCorrupt(err) {
		t.Errorf("expected Corrupt for unknown role, got %v", err)
	}

	_, err = store.Load("../escape")
	if !apperrors.IsValidation(err) {
		t.Errorf("expected validation error for path id, got %v", err)
	}
}

func TestStore_Load_Defaults(t *testing.T) {
	store := newTestStore(t)

	_ = os.WriteFile(filepath.Join(store.Dir(), "legacy.json"), []byte(`{"name":"Old"}`), 0o600)

	rec, err := store.Load("legacy")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if rec.ID != "legacy" {
		t.Errorf("ID = %s, want legacy", rec.ID)
	}
	if rec.SystemPrompt != models.BootstrapSystemPrompt {
		t.Errorf("SystemPrompt = %q, want bootstrap prompt", rec.SystemPrompt)
	}
	if rec.History == nil || len(rec.History) != 0 {
		t.Errorf("History = %v, want empty", rec.History)
	}
}

func TestStore_ListAll_SkipsCorrupt(t *testing.T) {
	store := newTestStore(t)

	for _, name := range []string{"delta", "Alpha", "charlie", "Bravo"} {
		if _, err := store.Create(name, ""); err != nil {
			t.Fatal(err)
		}
	}
	_ = os.WriteFile(filepath.Join(store.Dir(), "corrupt.json"), []byte(`{"id": "corrupt", "name": `), 0o600)
	_ = os.WriteFile(filepath.Join(store.Dir(), "notes.txt"), []byte("ignored"), 0o600)

	list, err := store.ListAll()
	if err != nil {
		t.Fatalf("ListAll failed: %v", err)
	}

	if len(list) != 4 {
		t.Fatalf("expected 4 entries, got %d: %v", len(list), list)
	}

	want := []string{"Alpha", "Bravo", "charlie", "delta"}
	for i, meta := range list {
		if meta.Name != want[i] {
			t.Errorf("list[%d].Name = %s, want %s", i, meta.Name, want[i])
		}
	}
}

func TestStore_ListAll_NameFallback(t *testing.T) {
	store := newTestStore(t)

	_ = os.WriteFile(filepath.Join(store.Dir(), "abc.json"), []byte(`{"history":[]}`), 0o600)

	list, err := store.ListAll()
	if err != nil {
		t.Fatalf("ListAll failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != "abc" || list[0].Name != "abc" {
		t.Errorf("list = %+v, want id/name abc", list)
	}
}

func TestStore_FileNameIsID(t *testing.T) {
	store := newTestStore(t)

	data := `{"id":"xyz","name":"N","history":[{"role":"user","parts":[{"text":"hi"}]}]}`
	_ = os.WriteFile(filepath.Join(store.Dir(), "abc.json"), []byte(data), 0o600)

	list, err := store.ListAll()
	if err != nil {
		t.Fatalf("ListAll failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != "abc" || list[0].Name != "N" {
		t.Fatalf("list = %+v, want id abc", list)
	}

	rec, err := store.Load(list[0].ID)
	if err != nil {
		t.Fatalf("Load(%q) failed: %v", list[0].ID, err)
	}
	if rec.ID != "abc" || len(rec.History) != 1 {
		t.Errorf("loaded = %+v", rec)
	}

	rec.Name = "Renamed"
	if err := store.Save(rec); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(store.Dir(), "xyz.json")); !os.IsNotExist(err) {
		t.Errorf("save wrote a second file keyed by the inner id: %v", err)
	}
	if list, _ := store.ListAll(); len(list) != 1 || list[0].Name != "Renamed" {
		t.Errorf("list after save = %+v", list)
	}
}

func TestStore_Rename_KeepsFile(t *testing.T) {
	store := newTestStore(t)

	rec, _ := store.Create("A", "")
	rec.Name = "B"
	if err := store.Save(rec); err != nil {
		t.Fatal(err)
	}

	list, _ := store.ListAll()
	if len(list) != 1 || list[0].ID != rec.ID || list[0].Name != "B" {
		t.Errorf("list = %+v", list)
	}
	if _, err := os.Stat(filepath.Join(store.Dir(), rec.ID+".json")); err != nil {
		t.Errorf("record file not keyed by id: %v", err)
	}
}

func TestStore_Delete(t *testing.T) {
	store := newTestStore(t)

	rec, _ := store.Create("Test", "")
	if err := store.Delete(rec.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if store.Exists(rec.ID) {
		t.Error("record still exists")
	}

	err := store.Delete(rec.ID)
	if !apperrors.IsNotFound(err) {
		t.Errorf("second delete = %v, want NotFound", err)
	}
}

func TestStore_ClearAll(t *testing.T) {
	store := newTestStore(t)

	store.Create("one", "")
	store.Create("two", "")

	if err := store.ClearAll(); err != nil {
		t.Fatalf("ClearAll failed: %v", err)
	}

	list, _ := store.ListAll()
	if len(list) != 0 {
		t.Errorf("expected empty list, got %d", len(list))
	}
}
