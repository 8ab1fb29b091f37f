package client

import (
	"path/filepath"
	"testing"
)

func testStoreContract(t *testing.T, store Store) {
	t.Helper()

	// missing key reads as empty
	if v, err := store.Get("missing"); err != nil || v != "" {
		t.Fatalf("Get(missing) = (%q, %v), want empty", v, err)
	}

	if err := store.Set("k", "v1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if v, _ := store.Get("k"); v != "v1" {
		t.Fatalf("Get after Set = %q, want v1", v)
	}

	// overwrite
	if err := store.Set("k", "v2"); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	if v, _ := store.Get("k"); v != "v2" {
		t.Fatalf("Get after overwrite = %q, want v2", v)
	}

	if err := store.Remove("k"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if v, _ := store.Get("k"); v != "" {
		t.Fatalf("Get after Remove = %q, want empty", v)
	}

	// removing a missing key is not an error
	if err := store.Remove("k"); err != nil {
		t.Fatalf("Remove of missing key failed: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	testStoreContract(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	testStoreContract(t, NewFileStore(path))
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "session.json")

	first := NewFileStore(path)
	if err := first.Set("token", "abc"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	second := NewFileStore(path)
	if v, _ := second.Get("token"); v != "abc" {
		t.Fatalf("reopened store Get = %q, want abc", v)
	}
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	testStoreContract(t, store)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "session.db")

	first, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	if err := first.Set("token", "abc"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	second, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	t.Cleanup(func() { _ = second.Close() })

	if v, _ := second.Get("token"); v != "abc" {
		t.Fatalf("reopened store Get = %q, want abc", v)
	}
}
