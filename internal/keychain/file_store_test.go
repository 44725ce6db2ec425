package keychain

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFileStore(filepath.Join(t.TempDir(), "identity"))
}

func TestFileStoreSaveLoad(t *testing.T) {
	store := newTestStore(t)

	store.Save("001234.abcdef.5678")

	got, ok := store.Load()
	if !ok {
		t.Fatal("Load() ok = false after Save")
	}
	if got != "001234.abcdef.5678" {
		t.Errorf("Load() = %q, want %q", got, "001234.abcdef.5678")
	}
}

func TestFileStoreLastWriteWins(t *testing.T) {
	store := newTestStore(t)

	store.Save("first-identity")
	store.Save("second-identity")

	got, ok := store.Load()
	if !ok {
		t.Fatal("Load() ok = false after Save")
	}
	if got != "second-identity" {
		t.Errorf("Load() = %q, want %q", got, "second-identity")
	}
}

func TestFileStoreLoadAbsent(t *testing.T) {
	store := newTestStore(t)

	if got, ok := store.Load(); ok {
		t.Errorf("Load() on empty store = %q, ok = true; want absent", got)
	}
}

func TestFileStoreDelete(t *testing.T) {
	store := newTestStore(t)

	store.Save("some-identity")
	store.Delete()

	if got, ok := store.Load(); ok {
		t.Errorf("Load() after Delete = %q, ok = true; want absent", got)
	}

	// Deleting when absent is a no-op, not an error
	store.Delete()
}

func TestFileStoreEncryptsAtRest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "identity")
	store := NewFileStore(path)

	store.Save("plaintext-identity")

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading identity file: %v", err)
	}
	if string(raw) == "plaintext-identity" {
		t.Error("identity stored in plaintext")
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()

	if _, ok := store.Load(); ok {
		t.Error("Load() on empty memory store should be absent")
	}

	store.Save("id-1")
	store.Save("id-2")

	got, ok := store.Load()
	if !ok || got != "id-2" {
		t.Errorf("Load() = %q, %v; want %q, true", got, ok, "id-2")
	}

	store.Delete()
	if _, ok := store.Load(); ok {
		t.Error("Load() after Delete should be absent")
	}
	store.Delete()
}
