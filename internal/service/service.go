// Package service implements the user actions behind the client screens:
// input validation, authenticated REST calls, optimistic patches and the
// refetch that follows them.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mmynk/rngenius/internal/api"
	"github.com/mmynk/rngenius/internal/auth"
	"github.com/mmynk/rngenius/internal/cache"
	"github.com/mmynk/rngenius/internal/models"
	"github.com/mmynk/rngenius/internal/storage"
)

var (
	ErrGeneratorNotFound = errors.New("generator not found")
	ErrOptionNotFound    = errors.New("generated option is unknown, try again later")
	ErrNoEligibleOptions = errors.New("every option is excluded")
	ErrActionPending     = errors.New("action already in progress")
)

// FieldError is a validation failure on one input field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func fieldError(field, message string) *FieldError {
	return &FieldError{Field: field, Message: message}
}

// Service runs user actions against the backend and keeps the cache in step.
type Service struct {
	client  *api.Client
	caller  *auth.Caller
	session *auth.Session
	cache   *cache.Cache
	plain   storage.Store

	pending pendingSet
}

// New creates a service. It resets the cache on every sign-out.
func New(client *api.Client, caller *auth.Caller, c *cache.Cache, plain storage.Store) *Service {
	s := &Service{
		client:  client,
		caller:  caller,
		session: caller.Session(),
		cache:   c,
		plain:   plain,
		pending: pendingSet{keys: make(map[string]struct{})},
	}
	s.session.OnSignOut(c.Reset)
	return s
}

// Session returns the session the service acts for.
func (s *Service) Session() *auth.Session {
	return s.session
}

// Cache returns the generator data cache.
func (s *Service) Cache() *cache.Cache {
	return s.cache
}

// Pending reports whether the named action on id is in flight.
func (s *Service) Pending(action string, id int64) bool {
	return s.pending.has(pendingKey(action, id))
}

// pendingSet tracks in-flight actions so a second press is refused.
type pendingSet struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func pendingKey(action string, id int64) string {
	return fmt.Sprintf("%s:%d", action, id)
}

func (p *pendingSet) begin(key string) (func(), bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.keys[key]; ok {
		return nil, false
	}
	p.keys[key] = struct{}{}
	return func() {
		p.mu.Lock()
		delete(p.keys, key)
		p.mu.Unlock()
	}, true
}

func (p *pendingSet) has(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.keys[key]
	return ok
}

// mutation is one optimistic action.
type mutation struct {
	action string
	id     int64
	call   func(ctx context.Context, token string) error
	// patch is applied to the snapshot after a successful call. Nil means
	// refetch only.
	patch func([]models.Generator) []models.Generator
}

func (s *Service) mutate(ctx context.Context, m mutation) error {
	done, ok := s.pending.begin(pendingKey(m.action, m.id))
	if !ok {
		return ErrActionPending
	}
	defer done()

	if err := s.caller.Run(ctx, m.call); err != nil {
		logFailure(m.action, m.id, err)
		return fmt.Errorf("failed to %s: %w", m.action, err)
	}

	if m.patch != nil {
		if err := s.cache.Patch(ctx, m.patch); err != nil {
			slog.Error("Failed to patch generators", "action", m.action, "id", m.id, "error", err)
		}
	}
	s.cache.Refresh(ctx)
	return nil
}

// logFailure logs errors the backend did not explain.
func logFailure(action string, id int64, err error) {
	if api.StatusOf(err) != 0 || errors.Is(err, auth.ErrSessionExpired) {
		slog.Warn("Action rejected", "action", action, "id", id, "error", err)
		return
	}
	slog.Error("Action failed", "action", action, "id", id, "error", err)
}

func (s *Service) userID(ctx context.Context) (int64, error) {
	id, err := s.session.UserID(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read session: %w", err)
	}
	return id, nil
}
