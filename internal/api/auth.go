package api

import (
	"context"
	"net/http"

	"github.com/mmynk/rngenius/internal/models"
)

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// RefreshRequest is the body of PUT /auth/refresh. AccessToken carries the
// "Bearer " prefix.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
	AccessToken  string `json:"accessToken"`
}

// ChangePasswordRequest is the body of PUT /auth/changePassword.
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// Login exchanges credentials for a token pair and the account profile.
func (c *Client) Login(ctx context.Context, email, password string) (*models.LoginResponse, error) {
	var resp models.LoginResponse
	err := c.do(ctx, request{
		endpoint: "login",
		method:   http.MethodPost,
		path:     "/auth/login",
		body:     LoginRequest{Email: email, Password: password},
		out:      &resp,
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register creates an account. It does not sign in.
func (c *Client) Register(ctx context.Context, req RegisterRequest) error {
	return c.do(ctx, request{
		endpoint: "register",
		method:   http.MethodPost,
		path:     "/auth/register",
		body:     req,
	})
}

// Refresh trades a refresh token and the expired access token for a new pair.
func (c *Client) Refresh(ctx context.Context, refreshToken, accessToken string) (*models.TokenPair, error) {
	var pair models.TokenPair
	err := c.do(ctx, request{
		endpoint: "refresh",
		method:   http.MethodPut,
		path:     "/auth/refresh",
		body:     RefreshRequest{RefreshToken: refreshToken, AccessToken: "Bearer " + accessToken},
		out:      &pair,
	})
	if err != nil {
		return nil, err
	}
	return &pair, nil
}

// ChangePassword changes the signed-in user's password.
func (c *Client) ChangePassword(ctx context.Context, token string, req ChangePasswordRequest) error {
	return c.do(ctx, request{
		endpoint: "changePassword",
		method:   http.MethodPut,
		path:     "/auth/changePassword",
		token:    token,
		body:     req,
	})
}

// LogoutAllDevices invalidates every refresh token issued to the user.
func (c *Client) LogoutAllDevices(ctx context.Context, token string) error {
	return c.do(ctx, request{
		endpoint: "logoutAllDevices",
		method:   http.MethodPut,
		path:     "/auth/logoutAllDevices",
		token:    token,
	})
}

// Greeting fetches the public greeting.
func (c *Client) Greeting(ctx context.Context) (*models.Greeting, error) {
	var greeting models.Greeting
	err := c.do(ctx, request{
		endpoint: "hello",
		method:   http.MethodGet,
		path:     "/hello",
		out:      &greeting,
	})
	if err != nil {
		return nil, err
	}
	return &greeting, nil
}
