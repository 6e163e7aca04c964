package fakeapi

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrMissingToken = errors.New("authorization token required")
)

// TokenManager issues and validates HS256 access tokens.
type TokenManager struct {
	secretKey     []byte
	tokenDuration time.Duration
	clock         clockwork.Clock

	// generation is embedded in every token. Bumping it invalidates all
	// tokens issued before.
	generation atomic.Int64
}

// Claims are the access token claims.
type Claims struct {
	UserID     int64  `json:"id"`
	Email      string `json:"email"`
	Generation int64  `json:"gen"`
	jwt.RegisteredClaims
}

// NewTokenManager creates a token manager.
func NewTokenManager(secretKey string, tokenDuration time.Duration, clock clockwork.Clock) *TokenManager {
	return &TokenManager{
		secretKey:     []byte(secretKey),
		tokenDuration: tokenDuration,
		clock:         clock,
	}
}

// Generate creates an access token for the user.
func (m *TokenManager) Generate(userID int64, email string) (string, error) {
	now := m.clock.Now()
	claims := &Claims{
		UserID:     userID,
		Email:      email,
		Generation: m.generation.Load(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprint(userID),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(m.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// Validate parses a token, checking signature, expiry and generation.
func (m *TokenManager) Validate(tokenString string) (*Claims, error) {
	claims, err := m.parse(tokenString, jwt.WithTimeFunc(m.clock.Now))
	if err != nil {
		return nil, err
	}
	if claims.Generation != m.generation.Load() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Requester returns the user id of a possibly expired token, as the refresh
// endpoint needs. The signature is still verified. A "Bearer " prefix is
// accepted.
func (m *TokenManager) Requester(tokenString string) (int64, error) {
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")
	claims, err := m.parse(tokenString, jwt.WithoutClaimsValidation())
	if err != nil {
		return 0, err
	}
	return claims.UserID, nil
}

// ExpireAll invalidates every token issued so far.
func (m *TokenManager) ExpireAll() {
	m.generation.Add(1)
}

func (m *TokenManager) parse(tokenString string, opts ...jwt.ParserOption) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return m.secretKey, nil
		},
		opts...,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
