package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mmynk/rngenius/internal/api"
	"github.com/mmynk/rngenius/internal/models"
	"github.com/mmynk/rngenius/internal/storage"
)

// RegisterInput is the sign-up form.
type RegisterInput struct {
	FirstName       string
	LastName        string
	Email           string
	Password        string
	ConfirmPassword string
}

// Validate checks the form the way the sign-up screen does.
func (in RegisterInput) Validate() error {
	switch {
	case strings.TrimSpace(in.Email) == "":
		return fieldError("email", "Email is required")
	case in.Password == "":
		return fieldError("password", "Password is required")
	case in.Password != in.ConfirmPassword:
		return fieldError("confirmPassword", "Passwords do not match")
	case strings.TrimSpace(in.FirstName) == "":
		return fieldError("firstName", "First name is required")
	case strings.TrimSpace(in.LastName) == "":
		return fieldError("lastName", "Last name is required")
	}
	return nil
}

// ChangePasswordInput is the change password form.
type ChangePasswordInput struct {
	OldPassword     string
	NewPassword     string
	ConfirmPassword string
}

// Validate checks the form the way the account screen does.
func (in ChangePasswordInput) Validate() error {
	if in.OldPassword == "" || in.NewPassword == "" || in.ConfirmPassword == "" {
		return fieldError("password", "All fields are required")
	}
	if in.NewPassword != in.ConfirmPassword {
		return fieldError("confirmPassword", "Passwords do not match")
	}
	return nil
}

// Login signs in and stores the session.
func (s *Service) Login(ctx context.Context, email, password string) (models.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return models.User{}, fieldError("email", "Email is required")
	}
	if password == "" {
		return models.User{}, fieldError("password", "Password is required")
	}

	resp, err := s.client.Login(ctx, email, password)
	if err != nil {
		logFailure("login", 0, err)
		return models.User{}, fmt.Errorf("failed to sign in: %w", err)
	}
	if err := s.session.SignIn(ctx, resp); err != nil {
		return models.User{}, err
	}

	slog.Info("Signed in", "user_id", resp.ID)
	return resp.User(), nil
}

// Register creates an account. It does not sign in.
func (s *Service) Register(ctx context.Context, in RegisterInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	err := s.client.Register(ctx, api.RegisterRequest{
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Email:     strings.TrimSpace(in.Email),
		Password:  in.Password,
	})
	if err != nil {
		logFailure("register", 0, err)
		return fmt.Errorf("failed to register: %w", err)
	}
	return nil
}

// Logout signs out on this device only.
func (s *Service) Logout(ctx context.Context) error {
	if err := s.session.SignOut(ctx); err != nil {
		return fmt.Errorf("failed to sign out: %w", err)
	}
	slog.Info("Signed out")
	return nil
}

// LogoutAllDevices invalidates every refresh token of the account, then signs
// out here.
func (s *Service) LogoutAllDevices(ctx context.Context) error {
	if err := s.caller.Run(ctx, s.client.LogoutAllDevices); err != nil {
		logFailure("logoutAllDevices", 0, err)
		return fmt.Errorf("failed to log out all devices: %w", err)
	}
	return s.Logout(ctx)
}

// ChangePassword changes the account password.
func (s *Service) ChangePassword(ctx context.Context, in ChangePasswordInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	err := s.caller.Run(ctx, func(ctx context.Context, token string) error {
		return s.client.ChangePassword(ctx, token, api.ChangePasswordRequest{
			OldPassword: in.OldPassword,
			NewPassword: in.NewPassword,
		})
	})
	if err != nil {
		logFailure("changePassword", 0, err)
		return fmt.Errorf("failed to change password: %w", err)
	}
	return nil
}

// Greeting fetches the backend greeting. When the backend is unreachable the
// last stored greeting is returned instead.
func (s *Service) Greeting(ctx context.Context) (string, error) {
	greeting, err := s.client.Greeting(ctx)
	if err == nil {
		if err := s.plain.Set(ctx, storage.KeyGreeting, greeting.Message); err != nil {
			slog.Error("Failed to store greeting", "error", err)
		}
		return greeting.Message, nil
	}

	cached, cerr := s.plain.Get(ctx, storage.KeyGreeting)
	if cerr == nil {
		slog.Debug("Serving stored greeting", "error", err)
		return cached, nil
	}
	if !errors.Is(cerr, storage.ErrNotFound) {
		slog.Error("Failed to read stored greeting", "error", cerr)
	}
	return "", fmt.Errorf("failed to fetch greeting: %w", err)
}
