package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/jonboulle/clockwork"

	"github.com/mmynk/rngenius/internal/api"
	"github.com/mmynk/rngenius/internal/auth"
	"github.com/mmynk/rngenius/internal/cache"
	"github.com/mmynk/rngenius/internal/config"
	"github.com/mmynk/rngenius/internal/metrics"
	"github.com/mmynk/rngenius/internal/service"
	"github.com/mmynk/rngenius/internal/storage"
	"github.com/mmynk/rngenius/internal/storage/secure"
	"github.com/mmynk/rngenius/internal/storage/sqlite"
)

// app is the wired client for one command.
type app struct {
	cfg     config.Config
	out     io.Writer
	clock   clockwork.Clock
	metrics *metrics.Metrics
	client  *api.Client
	session *auth.Session
	cache   *cache.Cache
	svc     *service.Service

	stores []storage.Store
}

func newApp(cfg config.Config, out io.Writer) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	a := &app{cfg: cfg, out: out, clock: clockwork.NewRealClock(), metrics: metrics.New()}

	plain, err := sqlite.New(cfg.PlainStorePath())
	if err != nil {
		return nil, err
	}
	a.stores = append(a.stores, plain)

	key, err := secure.LoadOrCreateKey(cfg.DeviceKeyPath())
	if err != nil {
		a.Close()
		return nil, err
	}
	inner, err := sqlite.New(cfg.SecureStorePath())
	if err != nil {
		a.Close()
		return nil, err
	}
	sealed, err := secure.New(inner, key)
	if err != nil {
		inner.Close()
		a.Close()
		return nil, err
	}
	a.stores = append(a.stores, sealed)

	a.client = api.New(cfg.APIURL, api.WithTimeout(cfg.HTTPTimeout), api.WithMetrics(a.metrics))
	a.session = auth.NewSession(sealed, plain)
	caller := auth.NewCaller(a.session, a.client, a.metrics)
	a.cache = cache.New(cache.NewAPISource(caller, a.client), plain,
		cache.WithClock(a.clock),
		cache.WithInterval(cfg.PollInterval),
		cache.WithMetrics(a.metrics),
	)
	a.svc = service.New(a.client, caller, a.cache, plain)
	return a, nil
}

// Close releases the device stores.
func (a *app) Close() error {
	var errs []error
	for _, s := range a.stores {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

var errUsage = errors.New("invalid usage")

// exec parses the command's flags and runs it. Commands that need the
// signed-in user's data get a loaded and refreshed cache.
func (a *app) exec(ctx context.Context, cmd command, args []string) error {
	fs := flag.NewFlagSet(cmd.name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: rngenius %s %s\n\n%s\n", cmd.name, cmd.args, cmd.summary)
		fs.PrintDefaults()
	}
	action := cmd.setup(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return errUsage
	}

	if cmd.signedIn {
		if !a.session.SignedIn(ctx) {
			return auth.ErrNotSignedIn
		}
		if err := a.cache.Load(ctx); err != nil {
			return err
		}
		a.cache.Refresh(ctx)
	}
	return action(ctx, a)
}

// describe renders an error for the terminal.
func describe(err error) string {
	var fe *service.FieldError
	switch {
	case errors.As(err, &fe):
		return fe.Message
	case errors.Is(err, auth.ErrSessionExpired):
		return "Your session expired, please sign in again."
	case errors.Is(err, auth.ErrNotSignedIn):
		return "Not signed in. Run: rngenius login -email <email> -password <password>"
	case api.IsNetwork(err):
		return cache.NetworkErrorMessage
	case api.StatusOf(err) >= 500:
		return cache.ServerErrorMessage
	case api.MessageOf(err) != "":
		return api.MessageOf(err)
	}
	return err.Error()
}
