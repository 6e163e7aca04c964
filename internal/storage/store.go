// Package storage provides the device-local key/value storage the client
// persists its session and snapshots in.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a key has no value.
var ErrNotFound = errors.New("key not found")

// Keys persisted by the client.
const (
	// Secure store.
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeySession      = "session"

	// Plain store.
	KeyEmail               = "email"
	KeyFirstName           = "firstName"
	KeyLastName            = "lastName"
	KeyGenerators          = "generators"
	KeyResults             = "results"
	KeyLatestCheckedResult = "latestCheckedResult"
	KeyGreeting            = "greeting"
)

// Store defines the interface for key/value persistence.
// This abstraction allows swapping storage backends (SQLite, encrypted, in-memory)
// without changing the layers above.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the store.
	Close() error
}

// GetJSON decodes the value stored under key into v.
func GetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.Set(ctx, key, string(raw))
}

// SetOrDelete stores value, or deletes the key when value is empty.
func SetOrDelete(ctx context.Context, s Store, key, value string) error {
	if value == "" {
		return s.Delete(ctx, key)
	}
	return s.Set(ctx, key, value)
}
