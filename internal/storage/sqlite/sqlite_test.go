package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/mmynk/rngenius/internal/models"
	"github.com/mmynk/rngenius/internal/storage"
)

func TestSQLiteStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "device.db")
	store, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	t.Run("Get missing key returns ErrNotFound", func(t *testing.T) {
		_, err := store.Get(ctx, "missing")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Set then Get", func(t *testing.T) {
		if err := store.Set(ctx, storage.KeyEmail, "alice@example.com"); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		got, err := store.Get(ctx, storage.KeyEmail)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got != "alice@example.com" {
			t.Errorf("got %q, want %q", got, "alice@example.com")
		}
	})

	t.Run("Set overwrites", func(t *testing.T) {
		if err := store.Set(ctx, storage.KeyFirstName, "Alice"); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if err := store.Set(ctx, storage.KeyFirstName, "Alicia"); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		got, _ := store.Get(ctx, storage.KeyFirstName)
		if got != "Alicia" {
			t.Errorf("got %q, want %q", got, "Alicia")
		}
	})

	t.Run("Delete removes and tolerates missing keys", func(t *testing.T) {
		if err := store.Delete(ctx, storage.KeyFirstName); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := store.Get(ctx, storage.KeyFirstName); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
		if err := store.Delete(ctx, "never-set"); err != nil {
			t.Errorf("Delete of a missing key should succeed, got %v", err)
		}
	})

	t.Run("JSON helpers round-trip a snapshot", func(t *testing.T) {
		gens := []models.Generator{{
			ID:      1,
			Title:   "Lunch",
			Options: []models.Option{{ID: 2, Name: "Tacos", Categories: []string{"Food"}}},
		}}
		if err := storage.SetJSON(ctx, store, storage.KeyGenerators, gens); err != nil {
			t.Fatalf("SetJSON failed: %v", err)
		}

		var got []models.Generator
		if err := storage.GetJSON(ctx, store, storage.KeyGenerators, &got); err != nil {
			t.Fatalf("GetJSON failed: %v", err)
		}
		if len(got) != 1 || got[0].Options[0].Name != "Tacos" {
			t.Errorf("unexpected snapshot: %+v", got)
		}
	})

	t.Run("Keys lists stored keys", func(t *testing.T) {
		keys, err := storedKeys(ctx, store)
		if err != nil {
			t.Fatalf("Keys failed: %v", err)
		}
		want := []string{storage.KeyEmail, storage.KeyGenerators}
		if len(keys) != len(want) {
			t.Fatalf("got keys %v, want %v", keys, want)
		}
		for i := range want {
			if keys[i] != want[i] {
				t.Errorf("key %d: got %s, want %s", i, keys[i], want[i])
			}
		}
	})
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "device.db")
	ctx := context.Background()

	store, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if err := store.Set(ctx, storage.KeyGreeting, "hello"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	store.Close()

	reopened, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, storage.KeyGreeting)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "hello" {
		t.Errorf("got %q, want %q", got, "hello")
	}
}

// storedKeys lists every stored key in order.
func storedKeys(ctx context.Context, s *SQLiteStore) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key FROM kv ORDER BY key")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func TestSQLiteStore_ConcurrentWrites(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "device.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	const writers, writes = 16, 25

	var wg sync.WaitGroup
	errs := make(chan error, writers*writes)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < writes; i++ {
				key := fmt.Sprintf("k%d", i%5)
				if err := store.Set(ctx, key, fmt.Sprintf("%d-%d", w, i)); err != nil {
					errs <- err
					continue
				}
				if _, err := store.Get(ctx, key); err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)

	failed := 0
	var first error
	for err := range errs {
		if first == nil {
			first = err
		}
		failed++
	}
	if failed > 0 {
		t.Fatalf("%d failed operations, first: %v", failed, first)
	}
}

func TestSQLiteStore_SharedFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "device.db")
	ctx := context.Background()

	// Two handles on one file stand in for the poller and a second CLI run.
	var stores []*SQLiteStore
	for i := 0; i < 2; i++ {
		s, err := New(dbPath)
		if err != nil {
			t.Fatalf("Failed to open store %d: %v", i, err)
		}
		defer s.Close()
		stores = append(stores, s)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2*50)
	for i, s := range stores {
		wg.Add(1)
		go func(i int, s *SQLiteStore) {
			defer wg.Done()
			for n := 0; n < 50; n++ {
				if err := s.Set(ctx, storage.KeyGenerators, fmt.Sprintf("%d-%d", i, n)); err != nil {
					errs <- err
				}
			}
		}(i, s)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("write through a shared file failed: %v", err)
	}
}
