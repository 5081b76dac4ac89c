package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"piatto/internal/database"
)

// exerciseKV runs the same contract against every KV implementation.
func exerciseKV(t *testing.T, kv KV) {
	t.Helper()

	t.Run("Get-Missing", func(t *testing.T) {
		_, ok, err := kv.GetItem("missing")
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if ok {
			t.Error("Expected missing key to be absent")
		}
	})

	t.Run("Set-Get", func(t *testing.T) {
		if err := kv.SetItem("piatto_preparing_session_id", "42"); err != nil {
			t.Fatalf("Failed to set item: %v", err)
		}
		v, ok, err := kv.GetItem("piatto_preparing_session_id")
		if err != nil || !ok {
			t.Fatalf("Expected item to exist, got ok=%v err=%v", ok, err)
		}
		if v != "42" {
			t.Errorf("Expected '42', got '%s'", v)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		if err := kv.SetItem("piatto_preparing_session_id", "43"); err != nil {
			t.Fatalf("Failed to overwrite item: %v", err)
		}
		v, _, _ := kv.GetItem("piatto_preparing_session_id")
		if v != "43" {
			t.Errorf("Expected '43', got '%s'", v)
		}
	})

	t.Run("Remove", func(t *testing.T) {
		if err := kv.RemoveItem("piatto_preparing_session_id"); err != nil {
			t.Fatalf("Failed to remove item: %v", err)
		}
		if _, ok, _ := kv.GetItem("piatto_preparing_session_id"); ok {
			t.Error("Expected item to be removed")
		}
		if err := kv.RemoveItem("piatto_preparing_session_id"); err != nil {
			t.Errorf("Expected removing a missing key to succeed, got %v", err)
		}
	})
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "local_storage.json")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("Failed to create FileStore: %v", err)
	}
	exerciseKV(t, store)

	t.Run("SurvivesReopen", func(t *testing.T) {
		if err := store.SetItem("k", "v"); err != nil {
			t.Fatalf("Failed to set item: %v", err)
		}
		reopened, _ := NewFileStore(path)
		v, ok, err := reopened.GetItem("k")
		if err != nil || !ok || v != "v" {
			t.Errorf("Expected 'v' after reopen, got '%s' ok=%v err=%v", v, ok, err)
		}
	})

	t.Run("Corrupt", func(t *testing.T) {
		if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, _, err := store.GetItem("k"); err == nil {
			t.Error("Expected an error for a corrupt storage file")
		}
	})
}

func TestMemoryStore(t *testing.T) {
	exerciseKV(t, NewMemoryStore())
}

func TestSQLStore(t *testing.T) {
	db, err := database.NewDB(filepath.Join(t.TempDir(), "piatto.db"), nil)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	store := NewSQLStore(db.SQL)
	exerciseKV(t, store)

	t.Run("Cleanup", func(t *testing.T) {
		store.SetItem("old", "1")
		n, err := store.CleanupOlderThan(context.Background(), time.Now().Add(time.Minute))
		if err != nil {
			t.Fatalf("Cleanup failed: %v", err)
		}
		if n != 1 {
			t.Errorf("Expected 1 removed row, got %d", n)
		}
	})
}

func TestNamespaced(t *testing.T) {
	base := NewMemoryStore()
	chatA := Namespaced(base, "chat:1")
	chatB := Namespaced(base, "chat:2")

	chatA.SetItem("piatto_preparing_session_id", "1")
	chatB.SetItem("piatto_preparing_session_id", "2")

	a, _, _ := chatA.GetItem("piatto_preparing_session_id")
	b, _, _ := chatB.GetItem("piatto_preparing_session_id")
	if a != "1" || b != "2" {
		t.Errorf("Expected namespaces to be isolated, got a=%s b=%s", a, b)
	}
	if _, ok, _ := base.GetItem("chat:1:piatto_preparing_session_id"); !ok {
		t.Error("Expected prefixed key in the base store")
	}
}
