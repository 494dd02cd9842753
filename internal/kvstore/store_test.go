package kvstore

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFile_MissingFileIsEmpty(t *testing.T) {
	store, err := NewFile(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	if _, ok, _ := store.Get("defaultPrinter"); ok {
		t.Error("Expected no value in a new store")
	}
}

func TestFile_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	store1, _ := NewFile(path)
	if err := store1.Set("defaultPrinter", `{"macAddress":"AA"}`); err != nil {
		t.Fatalf("Failed to set value: %v", err)
	}

	// New instance simulates a restart
	store2, err := NewFile(path)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}

	v, ok, _ := store2.Get("defaultPrinter")
	if !ok || v != `{"macAddress":"AA"}` {
		t.Errorf("Expected value to persist, got '%s' (%v)", v, ok)
	}
}

func TestFile_Overwrite(t *testing.T) {
	store, _ := NewFile(filepath.Join(t.TempDir(), "state.json"))

	store.Set("k", "one")
	store.Set("k", "two")

	if v, _, _ := store.Get("k"); v != "two" {
		t.Errorf("Expected 'two', got '%s'", v)
	}
}

func TestFile_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	os.WriteFile(path, []byte("{not json"), 0644)

	if _, err := NewFile(path); err == nil {
		t.Error("Expected error for corrupt store file")
	}
}

func TestFile_SaveFailureKeepsPreviousValue(t *testing.T) {
	sub := filepath.Join(t.TempDir(), "sub")

	store, err := NewFile(filepath.Join(sub, "state.json"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	// The parent "directory" becomes a regular file, so every write fails
	os.WriteFile(sub, []byte("x"), 0644)

	if err := store.Set("k", "v"); err == nil {
		t.Fatal("Expected save error")
	}
	if _, ok, _ := store.Get("k"); ok {
		t.Error("Expected failed Set to leave no value")
	}
}

func TestMemory(t *testing.T) {
	var store Store = NewMemory()

	if _, ok, _ := store.Get("k"); ok {
		t.Error("Expected empty memory store")
	}
	store.Set("k", "v")
	if v, ok, _ := store.Get("k"); !ok || v != "v" {
		t.Errorf("Expected 'v', got '%s'", v)
	}
}
