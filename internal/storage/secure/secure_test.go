package secure

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mmynk/rngenius/internal/storage"
	"github.com/mmynk/rngenius/internal/storage/sqlite"
)

func newInner(t *testing.T) *sqlite.SQLiteStore {
	t.Helper()
	inner, err := sqlite.New(filepath.Join(t.TempDir(), "secure.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { inner.Close() })
	return inner
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	inner := newInner(t)
	key := bytes.Repeat([]byte{7}, 32)

	store, err := New(inner, key)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	const token = "eyJhbGciOiJIUzI1NiJ9.secret"

	t.Run("round-trips values", func(t *testing.T) {
		if err := store.Set(ctx, storage.KeyAccessToken, token); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		got, err := store.Get(ctx, storage.KeyAccessToken)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got != token {
			t.Errorf("got %q, want %q", got, token)
		}
	})

	t.Run("never writes plaintext", func(t *testing.T) {
		raw, err := inner.Get(ctx, storage.KeyAccessToken)
		if err != nil {
			t.Fatalf("inner Get failed: %v", err)
		}
		if strings.Contains(raw, "secret") {
			t.Error("plaintext token leaked into the wrapped store")
		}
	})

	t.Run("values are bound to their key", func(t *testing.T) {
		raw, _ := inner.Get(ctx, storage.KeyAccessToken)
		if err := inner.Set(ctx, storage.KeyRefreshToken, raw); err != nil {
			t.Fatalf("inner Set failed: %v", err)
		}
		if _, err := store.Get(ctx, storage.KeyRefreshToken); !errors.Is(err, ErrDecrypt) {
			t.Errorf("expected ErrDecrypt for a swapped value, got %v", err)
		}
	})

	t.Run("wrong key fails to open", func(t *testing.T) {
		other, err := New(inner, bytes.Repeat([]byte{8}, 32))
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		if _, err := other.Get(ctx, storage.KeyAccessToken); !errors.Is(err, ErrDecrypt) {
			t.Errorf("expected ErrDecrypt, got %v", err)
		}
	})

	t.Run("missing key passes ErrNotFound through", func(t *testing.T) {
		if _, err := store.Get(ctx, storage.KeySession); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestNew_ShortKey(t *testing.T) {
	if _, err := New(newInner(t), []byte("short")); err == nil {
		t.Error("expected error for a short device key")
	}
}

func TestLoadOrCreateKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "device.key")

	first, err := LoadOrCreateKey(path)
	if err != nil {
		t.Fatalf("LoadOrCreateKey failed: %v", err)
	}
	if len(first) != 32 {
		t.Errorf("expected 32-byte key, got %d", len(first))
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("expected mode 0600, got %o", perm)
	}

	second, err := LoadOrCreateKey(path)
	if err != nil {
		t.Fatalf("LoadOrCreateKey failed: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("expected the existing key to be reused")
	}
}
