// Package cache keeps the signed-in user's generators and results fresh by
// polling the backend, falling back to the last persisted snapshot when a
// fetch fails.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mmynk/rngenius/internal/api"
	"github.com/mmynk/rngenius/internal/metrics"
	"github.com/mmynk/rngenius/internal/models"
	"github.com/mmynk/rngenius/internal/schedule"
	"github.com/mmynk/rngenius/internal/storage"
)

// DefaultInterval is the poll period.
const DefaultInterval = 3 * time.Second

// User-facing errors shown when a fetch fails and nothing is persisted.
const (
	ServerErrorMessage  = "Something went wrong, please try again later."
	NetworkErrorMessage = "Could not connect to the server. Please check your internet connection."
)

// Resource labels used in metrics and logs.
const (
	resourceGenerators = "generators"
	resourceResults    = "results"
)

// Source fetches fresh data from the backend.
type Source interface {
	FetchGenerators(ctx context.Context) ([]models.Generator, error)
	FetchResults(ctx context.Context) ([]models.Result, error)
}

// State is a snapshot of the cache.
type State struct {
	Generators     []models.Generator
	Results        []models.Result
	GeneratorError string
	ResultError    string

	// LatestRetrieved is the newest result time seen, truncated to seconds.
	LatestRetrieved time.Time
	// LatestChecked is the newest result time the user has looked at.
	LatestChecked time.Time

	Loading bool
}

// HasUnread reports whether a result newer than the last checked one exists.
func (s State) HasUnread() bool {
	return s.LatestRetrieved.After(s.LatestChecked)
}

// Generator returns the cached generator with the given id.
func (s State) Generator(id int64) (models.Generator, bool) {
	for _, g := range s.Generators {
		if g.ID == id {
			return g, true
		}
	}
	return models.Generator{}, false
}

func (s State) clone() State {
	s.Generators = slices.Clone(s.Generators)
	s.Results = slices.Clone(s.Results)
	return s
}

// Cache is the generator data cache. It is safe for concurrent use.
type Cache struct {
	source   Source
	store    storage.Store
	clock    clockwork.Clock
	interval time.Duration
	metrics  *metrics.Metrics

	mu        sync.Mutex
	state     State
	checking  bool
	refreshes int
	observers []func(State)
	task      *schedule.Task
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock sets the clock the poller ticks on.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Cache) { c.clock = clock }
}

// WithInterval sets the poll period.
func WithInterval(interval time.Duration) Option {
	return func(c *Cache) {
		if interval > 0 {
			c.interval = interval
		}
	}
}

// WithMetrics records refresh outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// New creates a cache. Call Load or Start before reading it.
func New(source Source, store storage.Store, opts ...Option) *Cache {
	c := &Cache{
		source:   source,
		store:    store,
		clock:    clockwork.NewRealClock(),
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load reads the last checked result time from storage.
func (c *Cache) Load(ctx context.Context) error {
	raw, err := c.store.Get(ctx, storage.KeyLatestCheckedResult)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load latest checked result: %w", err)
	}
	checked, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		slog.Warn("Ignoring unreadable latest checked result", "value", raw, "error", err)
		return nil
	}

	c.mu.Lock()
	c.state.LatestChecked = checked
	c.mu.Unlock()
	return nil
}

// Start loads persisted state, refreshes once and then polls every interval
// until ctx is done or Stop is called.
func (c *Cache) Start(ctx context.Context) error {
	if err := c.Load(ctx); err != nil {
		return err
	}
	c.Refresh(ctx)

	task := schedule.Every(ctx, c.clock, c.interval, c.Refresh)
	c.mu.Lock()
	c.task = task
	c.mu.Unlock()
	return nil
}

// Stop ends the polling started by Start.
func (c *Cache) Stop() {
	c.mu.Lock()
	task := c.task
	c.task = nil
	c.mu.Unlock()
	if task != nil {
		task.Stop()
	}
}

// OnChange registers fn to receive a copy of the state after every refresh
// or patch.
func (c *Cache) OnChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// State returns a copy of the current state.
func (c *Cache) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Generators returns the cached generators.
func (c *Cache) Generators() []models.Generator {
	return c.State().Generators
}

// Generator returns the cached generator with the given id.
func (c *Cache) Generator(id int64) (models.Generator, bool) {
	return c.State().Generator(id)
}

// Results returns the cached results, newest first.
func (c *Cache) Results() []models.Result {
	return c.State().Results
}

// HasUnread reports whether there are results the user has not checked.
func (c *Cache) HasUnread() bool {
	return c.State().HasUnread()
}

// Loading reports whether a refresh is in flight.
func (c *Cache) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshes > 0
}

// Refresh fetches generators, then results. Failures fall back to the
// persisted snapshots and never stop the poller.
func (c *Cache) Refresh(ctx context.Context) {
	c.mu.Lock()
	c.refreshes++
	c.state.Loading = true
	c.mu.Unlock()

	c.refreshGenerators(ctx)
	c.refreshResults(ctx)

	c.mu.Lock()
	c.refreshes--
	c.state.Loading = c.refreshes > 0
	c.mu.Unlock()

	c.notify()
}

func (c *Cache) refreshGenerators(ctx context.Context) {
	gens, err := c.source.FetchGenerators(ctx)
	if err == nil {
		if gens == nil {
			gens = []models.Generator{}
		}
		c.mu.Lock()
		c.state.Generators = gens
		c.state.GeneratorError = ""
		c.mu.Unlock()

		if err := storage.SetJSON(ctx, c.store, storage.KeyGenerators, gens); err != nil {
			slog.Error("Failed to persist generators", "error", err)
		}
		c.metrics.ObserveCacheRefresh(resourceGenerators, metrics.CacheFresh)
		return
	}

	var cached []models.Generator
	if c.fallback(ctx, resourceGenerators, storage.KeyGenerators, &cached, err) {
		c.mu.Lock()
		c.state.Generators = cached
		c.state.GeneratorError = ""
		c.mu.Unlock()
		return
	}
	c.mu.Lock()
	c.state.GeneratorError = errorMessage(err)
	c.mu.Unlock()
}

func (c *Cache) refreshResults(ctx context.Context) {
	results, err := c.source.FetchResults(ctx)
	if err == nil {
		if results == nil {
			results = []models.Result{}
		}
		models.SortResultsNewestFirst(results)

		c.mu.Lock()
		c.state.Results = results
		c.state.ResultError = ""
		var checked time.Time
		if len(results) > 0 {
			c.state.LatestRetrieved = models.LatestResultTime(results)
			if c.checking && !c.state.LatestChecked.Equal(c.state.LatestRetrieved) {
				c.state.LatestChecked = c.state.LatestRetrieved
				checked = c.state.LatestChecked
			}
		}
		c.mu.Unlock()

		if err := storage.SetJSON(ctx, c.store, storage.KeyResults, results); err != nil {
			slog.Error("Failed to persist results", "error", err)
		}
		if !checked.IsZero() {
			c.persistChecked(ctx, checked)
		}
		c.metrics.ObserveCacheRefresh(resourceResults, metrics.CacheFresh)
		return
	}

	var cached []models.Result
	if c.fallback(ctx, resourceResults, storage.KeyResults, &cached, err) {
		c.mu.Lock()
		c.state.Results = cached
		c.state.ResultError = ""
		c.mu.Unlock()
		return
	}
	c.mu.Lock()
	c.state.ResultError = errorMessage(err)
	c.mu.Unlock()
}

// fallback loads the persisted snapshot under key into v. It reports false
// when there is none.
func (c *Cache) fallback(ctx context.Context, resource, key string, v any, cause error) bool {
	err := storage.GetJSON(ctx, c.store, key, v)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			slog.Error("Failed to read persisted snapshot", "resource", resource, "error", err)
		}
		slog.Warn("Fetch failed with nothing persisted", "resource", resource, "error", cause)
		c.metrics.ObserveCacheRefresh(resource, metrics.CacheError)
		return false
	}
	slog.Debug("Fetch failed, serving persisted snapshot", "resource", resource, "error", cause)
	c.metrics.ObserveCacheRefresh(resource, metrics.CacheFallback)
	return true
}

func errorMessage(err error) string {
	if api.IsNetwork(err) {
		return NetworkErrorMessage
	}
	return ServerErrorMessage
}

// SetChecking marks whether the user is looking at the results. While
// checking, every retrieved result counts as checked.
func (c *Cache) SetChecking(ctx context.Context, checking bool) error {
	c.mu.Lock()
	c.checking = checking
	c.mu.Unlock()
	if !checking {
		return nil
	}
	return c.MarkChecked(ctx)
}

// MarkChecked marks every retrieved result as checked.
func (c *Cache) MarkChecked(ctx context.Context) error {
	c.mu.Lock()
	changed := !c.state.LatestChecked.Equal(c.state.LatestRetrieved)
	c.state.LatestChecked = c.state.LatestRetrieved
	checked := c.state.LatestChecked
	c.mu.Unlock()

	if !changed {
		return nil
	}
	if err := c.persistChecked(ctx, checked); err != nil {
		return err
	}
	c.notify()
	return nil
}

func (c *Cache) persistChecked(ctx context.Context, checked time.Time) error {
	if err := c.store.Set(ctx, storage.KeyLatestCheckedResult, checked.UTC().Format(time.RFC3339)); err != nil {
		slog.Error("Failed to persist latest checked result", "error", err)
		return fmt.Errorf("failed to persist latest checked result: %w", err)
	}
	return nil
}

// Patch applies fn to the persisted snapshot and to the in-memory copy.
func (c *Cache) Patch(ctx context.Context, fn func([]models.Generator) []models.Generator) error {
	var persisted []models.Generator
	err := storage.GetJSON(ctx, c.store, storage.KeyGenerators, &persisted)
	switch {
	case err == nil:
		if err := storage.SetJSON(ctx, c.store, storage.KeyGenerators, fn(persisted)); err != nil {
			return fmt.Errorf("failed to persist patched generators: %w", err)
		}
	case errors.Is(err, storage.ErrNotFound):
	default:
		return fmt.Errorf("failed to read generators for patch: %w", err)
	}

	c.mu.Lock()
	c.state.Generators = fn(c.state.Generators)
	c.mu.Unlock()

	c.notify()
	return nil
}

// Reset forgets all in-memory data. Persisted snapshots are kept.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.state = State{}
	c.checking = false
	c.mu.Unlock()
	c.notify()
}

func (c *Cache) notify() {
	c.mu.Lock()
	state := c.state.clone()
	observers := slices.Clone(c.observers)
	c.mu.Unlock()

	for _, fn := range observers {
		fn(state)
	}
}
