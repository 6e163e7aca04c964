// Package auth keeps the signed-in session on the device and wraps
// authenticated calls with a single token refresh.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mmynk/rngenius/internal/models"
	"github.com/mmynk/rngenius/internal/storage"
)

var (
	ErrNotSignedIn    = errors.New("not signed in")
	ErrSessionExpired = errors.New("session expired, please sign in again")
)

// Session stores the tokens in the secure store and the profile in the plain
// store. It is safe for concurrent use.
type Session struct {
	secure storage.Store
	plain  storage.Store

	mu    sync.Mutex
	hooks []func()
}

// NewSession creates a session over the given stores.
func NewSession(secure, plain storage.Store) *Session {
	return &Session{secure: secure, plain: plain}
}

// OnSignOut registers fn to run after every sign-out, including the forced
// one when a refresh is rejected.
func (s *Session) OnSignOut(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// SignIn persists a successful login.
func (s *Session) SignIn(ctx context.Context, resp *models.LoginResponse) error {
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		return fmt.Errorf("failed to sign in: login response carries no tokens")
	}

	secure := map[string]string{
		storage.KeyAccessToken:  resp.AccessToken,
		storage.KeyRefreshToken: resp.RefreshToken,
		storage.KeySession:      strconv.FormatInt(resp.ID, 10),
	}
	for key, value := range secure {
		if err := s.secure.Set(ctx, key, value); err != nil {
			return fmt.Errorf("failed to store %s: %w", key, err)
		}
	}

	plain := map[string]string{
		storage.KeyEmail:     resp.Email,
		storage.KeyFirstName: resp.FirstName,
		storage.KeyLastName:  resp.LastName,
	}
	for key, value := range plain {
		if err := storage.SetOrDelete(ctx, s.plain, key, value); err != nil {
			return fmt.Errorf("failed to store %s: %w", key, err)
		}
	}
	return nil
}

// SignOut removes the credentials and the profile, then runs the sign-out
// hooks.
func (s *Session) SignOut(ctx context.Context) error {
	if err := s.clearCredentials(ctx); err != nil {
		return err
	}
	for _, key := range []string{storage.KeyEmail, storage.KeyFirstName, storage.KeyLastName} {
		if err := s.plain.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to delete %s: %w", key, err)
		}
	}
	s.runHooks()
	return nil
}

// expire is the forced sign-out after the backend rejected the refresh
// token. Only the credentials are removed.
func (s *Session) expire(ctx context.Context) error {
	if err := s.clearCredentials(ctx); err != nil {
		return err
	}
	s.runHooks()
	return nil
}

func (s *Session) clearCredentials(ctx context.Context) error {
	for _, key := range []string{storage.KeyAccessToken, storage.KeyRefreshToken, storage.KeySession} {
		if err := s.secure.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to delete %s: %w", key, err)
		}
	}
	return nil
}

func (s *Session) runHooks() {
	s.mu.Lock()
	hooks := append([]func(){}, s.hooks...)
	s.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

// SignedIn reports whether a session id is stored.
func (s *Session) SignedIn(ctx context.Context) bool {
	_, err := s.UserID(ctx)
	return err == nil
}

// UserID returns the signed-in user's id, or ErrNotSignedIn.
func (s *Session) UserID(ctx context.Context) (int64, error) {
	raw, err := s.secure.Get(ctx, storage.KeySession)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, ErrNotSignedIn
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read session: %w", err)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse session %q: %w", raw, err)
	}
	return id, nil
}

// AccessToken returns the stored access token, or "" when there is none.
func (s *Session) AccessToken(ctx context.Context) (string, error) {
	return s.optional(ctx, storage.KeyAccessToken)
}

// RefreshToken returns the stored refresh token, or "" when there is none.
func (s *Session) RefreshToken(ctx context.Context) (string, error) {
	return s.optional(ctx, storage.KeyRefreshToken)
}

func (s *Session) optional(ctx context.Context, key string) (string, error) {
	value, err := s.secure.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, nil
}

// SetTokens replaces both tokens after a refresh.
func (s *Session) SetTokens(ctx context.Context, pair *models.TokenPair) error {
	if err := s.secure.Set(ctx, storage.KeyAccessToken, pair.AccessToken); err != nil {
		return fmt.Errorf("failed to store access token: %w", err)
	}
	if err := s.secure.Set(ctx, storage.KeyRefreshToken, pair.RefreshToken); err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return nil
}

// Profile returns the stored account. ID is 0 when signed out.
func (s *Session) Profile(ctx context.Context) (models.User, error) {
	var user models.User
	id, err := s.UserID(ctx)
	if err != nil && !errors.Is(err, ErrNotSignedIn) {
		return user, err
	}
	user.ID = id

	fields := map[string]*string{
		storage.KeyEmail:     &user.Email,
		storage.KeyFirstName: &user.FirstName,
		storage.KeyLastName:  &user.LastName,
	}
	for key, dst := range fields {
		value, err := s.plain.Get(ctx, key)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return user, fmt.Errorf("failed to read %s: %w", key, err)
		}
		*dst = value
	}
	return user, nil
}

// TokenExpiry reads the exp claim of an access token without verifying the
// signature. The client never holds the signing key.
func TokenExpiry(token string) (time.Time, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, fmt.Errorf("failed to parse token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, nil
	}
	return claims.ExpiresAt.Time, nil
}
