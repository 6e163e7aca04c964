// Package fakeapi is an in-memory implementation of the rngenius REST
// backend. It serves the development server and the end-to-end tests, and
// can count hits, inject failures and expire tokens on demand.
package fakeapi

import (
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"

	"github.com/mmynk/rngenius/internal/middleware"
)

const (
	defaultSecret        = "rngenius-dev-secret"
	defaultTokenDuration = 15 * time.Minute
	defaultGreeting      = "Hello from rngenius!"
)

// Server is the fake backend. It implements http.Handler.
type Server struct {
	router *mux.Router
	tokens *TokenManager
	clock  clockwork.Clock

	mu         sync.Mutex
	rand       *rand.Rand
	greeting   string
	nextID     int64
	users      map[int64]*userRecord
	generators map[int64]*generatorRecord
	results    []resultRecord
	hits       map[string]int
	failures   map[string][]int
}

type config struct {
	clock         clockwork.Clock
	secret        string
	tokenDuration time.Duration
	seed          uint64
	greeting      string
}

// Option configures a Server.
type Option func(*config)

// WithClock sets the clock used for token expiry and result timestamps.
func WithClock(clock clockwork.Clock) Option {
	return func(c *config) { c.clock = clock }
}

// WithTokenDuration sets how long access tokens stay valid.
func WithTokenDuration(d time.Duration) Option {
	return func(c *config) { c.tokenDuration = d }
}

// WithSecret sets the token signing key.
func WithSecret(secret string) Option {
	return func(c *config) { c.secret = secret }
}

// WithSeed makes option generation deterministic.
func WithSeed(seed uint64) Option {
	return func(c *config) { c.seed = seed }
}

// WithGreeting sets the GET /hello message.
func WithGreeting(message string) Option {
	return func(c *config) { c.greeting = message }
}

// New creates an empty backend.
func New(opts ...Option) *Server {
	cfg := config{
		clock:         clockwork.NewRealClock(),
		secret:        defaultSecret,
		tokenDuration: defaultTokenDuration,
		seed:          uint64(time.Now().UnixNano()),
		greeting:      defaultGreeting,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Server{
		tokens:     NewTokenManager(cfg.secret, cfg.tokenDuration, cfg.clock),
		clock:      cfg.clock,
		rand:       rand.New(rand.NewPCG(cfg.seed, cfg.seed>>1)),
		greeting:   cfg.greeting,
		users:      make(map[int64]*userRecord),
		generators: make(map[int64]*generatorRecord),
		hits:       make(map[string]int),
		failures:   make(map[string][]int),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "path", "No route for "+r.URL.Path)
	})
	r.Use(s.track)

	r.HandleFunc("/hello", s.handleHello).Methods(http.MethodGet).Name("hello")
	r.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost).Name("login")
	r.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost).Name("register")
	r.HandleFunc("/auth/refresh", s.handleRefresh).Methods(http.MethodPut).Name("refresh")

	authed := r.NewRoute().Subrouter()
	authed.Use(middleware.RequireAuth(s))

	authed.HandleFunc("/auth/changePassword", s.handleChangePassword).Methods(http.MethodPut).Name("changePassword")
	authed.HandleFunc("/auth/logoutAllDevices", s.handleLogoutAllDevices).Methods(http.MethodPut).Name("logoutAllDevices")

	g := authed.PathPrefix("/generator").Subrouter()
	g.HandleFunc("/myGenerators", s.handleMyGenerators).Methods(http.MethodGet).Name("myGenerators")
	g.HandleFunc("/myResults", s.handleMyResults).Methods(http.MethodGet).Name("myResults")
	g.HandleFunc("/generate/{id:[0-9]+}", s.handleGenerate).Methods(http.MethodGet).Name("generate")
	g.HandleFunc("/add", s.handleAddGenerator).Methods(http.MethodPost).Name("add")
	g.HandleFunc("/update/{id:[0-9]+}", s.handleUpdateGenerator).Methods(http.MethodPut).Name("update")
	g.HandleFunc("/delete/{id:[0-9]+}", s.handleDeleteGenerator).Methods(http.MethodDelete).Name("delete")
	g.HandleFunc("/addOption/{id:[0-9]+}", s.handleAddOption).Methods(http.MethodPut).Name("addOption")
	g.HandleFunc("/deleteOption/{id:[0-9]+}", s.handleDeleteOption).Methods(http.MethodPut).Name("deleteOption")
	g.HandleFunc("/purgeOption/{id:[0-9]+}", s.handlePurgeOption).Methods(http.MethodDelete).Name("purgeOption")
	g.HandleFunc("/addParticipant/{id:[0-9]+}", s.handleAddParticipant).Methods(http.MethodPut).Name("addParticipant")
	g.HandleFunc("/removeParticipant/{id:[0-9]+}", s.handleRemoveParticipant).Methods(http.MethodPut).Name("removeParticipant")
	g.HandleFunc("/leave/{id:[0-9]+}", s.handleLeave).Methods(http.MethodDelete).Name("leave")
	g.HandleFunc("/exclude/{id:[0-9]+}", s.handleExclude).Methods(http.MethodPut).Name("exclude")
	g.HandleFunc("/excludeCategory/{id:[0-9]+}", s.handleExcludeCategory).Methods(http.MethodPut).Name("excludeCategory")
	g.HandleFunc("/favorise/{id:[0-9]+}", s.handleFavorise).Methods(http.MethodPut).Name("favorise")
	g.HandleFunc("/favoriseCategory/{id:[0-9]+}", s.handleFavoriseCategory).Methods(http.MethodPut).Name("favoriseCategory")
	g.HandleFunc("/toggleNotifications/{id:[0-9]+}", s.handleToggleNotifications).Methods(http.MethodPut).Name("toggleNotifications")

	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// track counts the hit on the matched route and serves an injected failure
// if one is queued for it.
func (s *Server) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := ""
		if route := mux.CurrentRoute(r); route != nil {
			name = route.GetName()
		}

		s.mu.Lock()
		s.hits[name]++
		var status int
		if queue := s.failures[name]; len(queue) > 0 {
			status = queue[0]
			s.failures[name] = queue[1:]
		}
		s.mu.Unlock()

		if status != 0 {
			writeError(w, status, "", http.StatusText(status))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Hits returns how often the named route was called. Route names match the
// last path segment before the id, e.g. "myGenerators", "refresh", "exclude".
func (s *Server) Hits(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[route]
}

// FailNext makes the next calls to the named route answer with the given
// statuses, one per call.
func (s *Server) FailNext(route string, statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = append(s.failures[route], statuses...)
}

// ExpireAccessTokens invalidates every access token issued so far. Refresh
// tokens stay valid.
func (s *Server) ExpireAccessTokens() {
	s.tokens.ExpireAll()
}

// ValidateBearer implements middleware.TokenValidator.
func (s *Server) ValidateBearer(token string) (int64, string, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return 0, "", err
	}
	s.mu.Lock()
	_, ok := s.users[claims.UserID]
	s.mu.Unlock()
	if !ok {
		return 0, "", ErrInvalidToken
	}
	return claims.UserID, claims.Email, nil
}

var _ middleware.TokenValidator = (*Server)(nil)

// apiError is a handler failure rendered as {"field", "message"}.
type apiError struct {
	status  int
	field   string
	message string
}

func (e *apiError) Error() string {
	return e.field + ": " + e.message
}

func badRequest(field, message string) *apiError {
	return &apiError{status: http.StatusBadRequest, field: field, message: message}
}

func forbidden(field, message string) *apiError {
	return &apiError{status: http.StatusForbidden, field: field, message: message}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, field, message string) {
	writeJSON(w, status, map[string]string{"field": field, "message": message})
}

// respond writes v as JSON, nothing on a nil v, or the error.
func respond(w http.ResponseWriter, v any, err error) {
	if err != nil {
		var ae *apiError
		if errors.As(err, &ae) {
			writeError(w, ae.status, ae.field, ae.message)
			return
		}
		writeError(w, http.StatusInternalServerError, "", err.Error())
		return
	}
	if v == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest("body", "Invalid request body")
	}
	return nil
}
