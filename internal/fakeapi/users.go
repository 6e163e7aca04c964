package fakeapi

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmynk/rngenius/internal/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailExists        = errors.New("email already registered")
	ErrInvalidRefresh     = errors.New("invalid refresh token")
)

// userRecord is an account with hashed secrets.
type userRecord struct {
	models.User
	PasswordHash     []byte
	RefreshTokenHash []byte
}

// hashSecret hashes a password or refresh token.
func hashSecret(secret string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash secret: %w", err)
	}
	return hash, nil
}

// AddUser creates an account. Call it to seed the backend.
func (s *Server) AddUser(email, firstName, lastName, password string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(email, firstName, lastName, password)
}

func (s *Server) addUserLocked(email, firstName, lastName, password string) (models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, ok := s.userByEmail(email); ok {
		return models.User{}, ErrEmailExists
	}

	passwordHash, err := hashSecret(password)
	if err != nil {
		return models.User{}, err
	}
	refreshHash, err := hashSecret(uuid.NewString())
	if err != nil {
		return models.User{}, err
	}

	s.nextID++
	u := &userRecord{
		User: models.User{
			ID:        s.nextID,
			Email:     email,
			FirstName: firstName,
			LastName:  lastName,
		},
		PasswordHash:     passwordHash,
		RefreshTokenHash: refreshHash,
	}
	s.users[u.ID] = u
	return u.User, nil
}

func (s *Server) userByEmail(email string) (*userRecord, bool) {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.users {
		if u.Email == email {
			return u, true
		}
	}
	return nil, false
}

// authenticate verifies the email and password.
func (s *Server) authenticate(email, password string) (*userRecord, error) {
	u, ok := s.userByEmail(email)
	if !ok {
		return nil, fmt.Errorf("%w: no user", ErrInvalidCredentials)
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// rotateRefreshToken issues a new refresh token, invalidating the previous one.
func (s *Server) rotateRefreshToken(u *userRecord) (string, error) {
	token := uuid.NewString()
	hash, err := hashSecret(token)
	if err != nil {
		return "", err
	}
	u.RefreshTokenHash = hash
	return token, nil
}

// checkRefreshToken verifies the refresh token presented for a user.
func (s *Server) checkRefreshToken(userID int64, token string) (*userRecord, error) {
	u, ok := s.users[userID]
	if !ok {
		return nil, ErrInvalidRefresh
	}
	if err := bcrypt.CompareHashAndPassword(u.RefreshTokenHash, []byte(token)); err != nil {
		return nil, ErrInvalidRefresh
	}
	return u, nil
}
