package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mmynk/rngenius/internal/api"
	"github.com/mmynk/rngenius/internal/metrics"
	"github.com/mmynk/rngenius/internal/models"
)

// Refresher exchanges a refresh token for a new pair. *api.Client implements it.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken, accessToken string) (*models.TokenPair, error)
}

var _ Refresher = (*api.Client)(nil)

// Caller runs authenticated calls with the stored access token.
type Caller struct {
	session   *Session
	refresher Refresher
	metrics   *metrics.Metrics
}

// NewCaller creates a caller. m may be nil.
func NewCaller(session *Session, refresher Refresher, m *metrics.Metrics) *Caller {
	return &Caller{session: session, refresher: refresher, metrics: m}
}

// Session returns the session the caller reads tokens from.
func (c *Caller) Session() *Session {
	return c.session
}

// Do runs call with the stored access token. On a 401 it refreshes once and
// retries once; the retry's result is returned as-is. A rejected refresh, or
// a 401 with no token stored, signs the session out and returns an error
// wrapping ErrSessionExpired and the original 401.
func Do[T any](ctx context.Context, c *Caller, call func(ctx context.Context, token string) (T, error)) (T, error) {
	var zero T

	token, err := c.session.AccessToken(ctx)
	if err != nil {
		return zero, err
	}

	result, err := call(ctx, token)
	if !api.IsUnauthorized(err) {
		return result, err
	}

	if token == "" {
		return zero, c.signOutExpired(ctx, err)
	}

	refreshToken, rerr := c.session.RefreshToken(ctx)
	if rerr != nil {
		return zero, rerr
	}

	pair, rerr := c.refresher.Refresh(ctx, refreshToken, token)
	switch {
	case rerr == nil:
		c.metrics.ObserveRefresh(metrics.RefreshOK)
		if err := c.session.SetTokens(ctx, pair); err != nil {
			return zero, err
		}
		slog.Debug("Access token refreshed")
		return call(ctx, pair.AccessToken)
	case api.IsUnauthorized(rerr):
		c.metrics.ObserveRefresh(metrics.RefreshExpired)
		return zero, c.signOutExpired(ctx, err)
	default:
		c.metrics.ObserveRefresh(metrics.RefreshFailed)
		slog.Warn("Token refresh failed", "error", rerr)
		return zero, err
	}
}

// Run is Do for calls without a result.
func (c *Caller) Run(ctx context.Context, call func(ctx context.Context, token string) error) error {
	_, err := Do(ctx, c, func(ctx context.Context, token string) (struct{}, error) {
		return struct{}{}, call(ctx, token)
	})
	return err
}

func (c *Caller) signOutExpired(ctx context.Context, cause error) error {
	slog.Info("Session expired, signing out")
	if err := c.session.expire(ctx); err != nil {
		return fmt.Errorf("failed to clear expired session: %w", err)
	}
	return fmt.Errorf("%w: %w", ErrSessionExpired, cause)
}
