// Package secure wraps a storage.Store so every value is sealed with
// XChaCha20-Poly1305 before it reaches disk. Tokens and the session id live
// here. Everything else goes to the plain store.
package secure

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/mmynk/rngenius/internal/storage"
)

const deviceKeySize = 32

// hkdfInfo binds derived keys to this use so the device key can serve other purposes later.
var hkdfInfo = []byte("rngenius secure store v1")

// ErrDecrypt is returned when a stored value cannot be opened with the current key.
var ErrDecrypt = errors.New("failed to decrypt stored value")

var _ storage.Store = (*Store)(nil)

// Store seals values before delegating to the wrapped store.
type Store struct {
	inner storage.Store
	aead  cipher.AEAD
}

// New derives the sealing key from deviceKey and wraps inner.
func New(inner storage.Store, deviceKey []byte) (*Store, error) {
	if len(deviceKey) < deviceKeySize {
		return nil, fmt.Errorf("device key must be at least %d bytes", deviceKeySize)
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, deviceKey, nil, hkdfInfo), key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return &Store{inner: inner, aead: aead}, nil
}

// LoadOrCreateKey reads the device key at path, creating a random one with
// mode 0600 if the file does not exist.
func LoadOrCreateKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err == nil {
		if len(key) < deviceKeySize {
			return nil, fmt.Errorf("device key %s is truncated", path)
		}
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read device key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	key = make([]byte, deviceKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate device key: %w", err)
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write device key: %w", err)
	}
	return key, nil
}

// Get opens the value stored under key.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	sealed, err := s.inner.Get(ctx, key)
	if err != nil {
		return "", err
	}

	raw, err := base64.RawStdEncoding.DecodeString(sealed)
	if err != nil || len(raw) < s.aead.NonceSize() {
		return "", fmt.Errorf("%w: %s is malformed", ErrDecrypt, key)
	}
	nonce, ciphertext := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]

	// The key name is authenticated so a value cannot be swapped between keys.
	plain, err := s.aead.Open(nil, nonce, ciphertext, []byte(key))
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrDecrypt, key)
	}
	return string(plain), nil
}

// Set seals value and stores it under key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(value), []byte(key))
	return s.inner.Set(ctx, key, base64.RawStdEncoding.EncodeToString(sealed))
}

// Delete removes key from the wrapped store.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

// Close closes the wrapped store.
func (s *Store) Close() error {
	return s.inner.Close()
}
