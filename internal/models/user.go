package models

// User represents a registered account as the backend exposes it.
type User struct {
	// ID is the backend-assigned numeric identifier.
	ID int64 `json:"id"`

	// Email is the user's login address (unique).
	Email string `json:"email"`

	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// FullName returns "First Last".
func (u User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// LoginResponse is the body of a successful POST /auth/login.
type LoginResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ID           int64  `json:"id"`
	Email        string `json:"email"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
}

// User returns the account part of the login response.
func (r LoginResponse) User() User {
	return User{ID: r.ID, Email: r.Email, FirstName: r.FirstName, LastName: r.LastName}
}

// TokenPair is the body of a successful PUT /auth/refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Greeting is the body of GET /hello.
type Greeting struct {
	Message string `json:"message"`
}
