package config

import (
	"encoding/json"
	"errors"
	"os"
	"reflect"
	"strings"
	"testing"

	apperrors "github.com/diogo/geminichat/internal/errors"
)

func TestPrepromptLibrary_Empty(t *testing.T) {
	lib := LoadPrepromptLibrary(t.TempDir())

	if names := lib.List(); len(names) != 0 {
		t.Errorf("List() = %v, want empty", names)
	}
	if _, ok := lib.Get("x"); ok {
		t.Error("Get() found a name in an empty library")
	}
}

func TestPrepromptLibrary_SaveListDelete(t *testing.T) {
	dir := t.TempDir()
	lib := LoadPrepromptLibrary(dir)

	for _, name := range []string{"translator", "Coder", "analyst"} {
		if err := lib.Save(name, "prompt for "+name, false); err != nil {
			t.Fatalf("Save(%s) failed: %v", name, err)
		}
	}

	want := []string{"Coder", "analyst", "translator"}
	if got := lib.List(); !reflect.DeepEqual(got, want) {
		t.Errorf("List() = %v, want %v", got, want)
	}

	// Reload from disk
	reloaded := LoadPrepromptLibrary(dir)
	if got := reloaded.List(); !reflect.DeepEqual(got, want) {
		t.Errorf("reloaded List() = %v, want %v", got, want)
	}
	text, ok := reloaded.Get("Coder")
	if !ok || text != "prompt for Coder" {
		t.Errorf("Get(Coder) = %q, %v", text, ok)
	}

	if err := lib.Delete("Coder"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := lib.Delete("never-existed"); err != nil {
		t.Errorf("Delete of absent name = %v, want nil", err)
	}

	data, _ := os.ReadFile(lib.Path())
	var onDisk map[string]string
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("library file is not a JSON object: %v", err)
	}
	if len(onDisk) != 2 || onDisk["analyst"] != "prompt for analyst" {
		t.Errorf("file contents = %v", onDisk)
	}
}

func TestPrepromptLibrary_OverwriteNeedsConfirmation(t *testing.T) {
	lib := LoadPrepromptLibrary(t.TempDir())

	if err := lib.Save("p", "first", false); err != nil {
		t.Fatal(err)
	}

	err := lib.Save("p", "second", false)
	if !errors.Is(err, apperrors.ErrPrepromptExists) {
		t.Fatalf("expected ErrPrepromptExists, got %v", err)
	}
	if text, _ := lib.Get("p"); text != "first" {
		t.Errorf("text = %q, want unchanged", text)
	}

	if err := lib.Save("p", "second", true); err != nil {
		t.Fatalf("confirmed overwrite failed: %v", err)
	}
	if text, _ := lib.Get("p"); text != "second" {
		t.Errorf("text = %q, want second", text)
	}
}

func TestPrepromptLibrary_Validation(t *testing.T) {
	lib := LoadPrepromptLibrary(t.TempDir())

	tests := []struct {
		name  string
		pName string
		text  string
		want  error
	}{
		{"empty name", "  ", "text", apperrors.ErrEmptyName},
		{"empty text", "n", " \n ", apperrors.ErrEmptyInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := lib.Save(tt.pName, tt.text, false)
			if !errors.Is(err, tt.want) {
				t.Errorf("Save() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPrepromptLibrary_LongEntries(t *testing.T) {
	dir := t.TempDir()
	lib := LoadPrepromptLibrary(dir)

	name := strings.Repeat("n", 300)
	text := strings.Repeat("Answer carefully. ", 4000)
	if err := lib.Save(name, text, false); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	got, ok := LoadPrepromptLibrary(dir).Get(name)
	if !ok || got != text {
		t.Errorf("reloaded entry missing or changed (ok=%v, len=%d)", ok, len(got))
	}
}

func TestPrepromptLibrary_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	_ = os.WriteFile(GetPrepromptsPath(dir), []byte("[1, 2"), 0o600)

	lib := LoadPrepromptLibrary(dir)
	if len(lib.List()) != 0 {
		t.Error("corrupt library should load empty")
	}

	if err := lib.Save("fresh", "text", false); err != nil {
		t.Errorf("Save after corrupt load failed: %v", err)
	}
}
