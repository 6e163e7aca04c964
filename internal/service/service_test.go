package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mmynk/rngenius/internal/api"
	"github.com/mmynk/rngenius/internal/auth"
	"github.com/mmynk/rngenius/internal/cache"
	"github.com/mmynk/rngenius/internal/fakeapi"
	"github.com/mmynk/rngenius/internal/models"
	"github.com/mmynk/rngenius/internal/storage/secure"
	"github.com/mmynk/rngenius/internal/storage/sqlite"
)

const friendEmail = "friend@rngenius.dev"

func newTestBackend(t *testing.T) (*fakeapi.Server, string) {
	t.Helper()
	backend := fakeapi.New(fakeapi.WithSeed(1))
	if _, err := backend.SeedDemo(); err != nil {
		t.Fatalf("SeedDemo failed: %v", err)
	}
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)
	return backend, srv.URL
}

// newTestService wires a service over fresh device stores, the way the CLI
// does.
func newTestService(t *testing.T, baseURL string) *Service {
	t.Helper()
	dir := t.TempDir()

	plain, err := sqlite.New(filepath.Join(dir, "plain.db"))
	if err != nil {
		t.Fatalf("Failed to create plain store: %v", err)
	}
	t.Cleanup(func() { plain.Close() })

	inner, err := sqlite.New(filepath.Join(dir, "secure.db"))
	if err != nil {
		t.Fatalf("Failed to create secure store: %v", err)
	}
	key, err := secure.LoadOrCreateKey(filepath.Join(dir, "device.key"))
	if err != nil {
		t.Fatalf("Failed to create device key: %v", err)
	}
	sec, err := secure.New(inner, key)
	if err != nil {
		t.Fatalf("Failed to create secure store: %v", err)
	}
	t.Cleanup(func() { sec.Close() })

	client := api.New(baseURL)
	session := auth.NewSession(sec, plain)
	caller := auth.NewCaller(session, client, nil)
	c := cache.New(cache.NewAPISource(caller, client), plain)
	return New(client, caller, c, plain)
}

func login(t *testing.T, svc *Service, email string) models.User {
	t.Helper()
	user, err := svc.Login(context.Background(), email, fakeapi.DemoPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	svc.Cache().Refresh(context.Background())
	return user
}

func cachedGenerator(t *testing.T, svc *Service, title string) models.Generator {
	t.Helper()
	for _, g := range svc.Cache().Generators() {
		if g.Title == title {
			return g
		}
	}
	t.Fatalf("generator %q not cached: %+v", title, svc.Cache().Generators())
	return models.Generator{}
}

func optionNamed(t *testing.T, g models.Generator, name string) models.Option {
	t.Helper()
	for _, o := range g.Options {
		if o.Name == name {
			return o
		}
	}
	t.Fatalf("option %q not in generator %q", name, g.Title)
	return models.Option{}
}

func selectionOf(t *testing.T, g models.Generator, userID, optionID int64) models.Selection {
	t.Helper()
	p, ok := g.ParticipantFor(userID)
	if !ok {
		t.Fatalf("user %d does not participate in %q", userID, g.Title)
	}
	s, ok := p.SelectionFor(optionID)
	if !ok {
		t.Fatalf("user %d has no selection for option %d", userID, optionID)
	}
	return s
}

func TestLogin(t *testing.T) {
	backend, url := newTestBackend(t)
	svc := newTestService(t, url)
	ctx := context.Background()

	user := login(t, svc, fakeapi.DemoEmail)
	if user.FirstName != "Demo" || user.ID == 0 {
		t.Fatalf("unexpected user %+v", user)
	}

	access, _ := svc.Session().AccessToken(ctx)
	refresh, _ := svc.Session().RefreshToken(ctx)
	if access == "" || refresh == "" {
		t.Fatal("login should store both tokens")
	}
	if profile, err := svc.Session().Profile(ctx); err != nil || profile.Email != fakeapi.DemoEmail {
		t.Fatalf("profile not stored: %+v, %v", profile, err)
	}

	t.Run("expired access token refreshes once", func(t *testing.T) {
		backend.ExpireAccessTokens()
		refreshes := backend.Hits("refresh")
		fetches := backend.Hits("myGenerators")

		svc.Cache().Refresh(ctx)

		if n := backend.Hits("refresh") - refreshes; n != 1 {
			t.Errorf("expected exactly one refresh, got %d", n)
		}
		if n := backend.Hits("myGenerators") - fetches; n != 2 {
			t.Errorf("expected the call and one retry, got %d", n)
		}
		if st := svc.Cache().State(); st.GeneratorError != "" || len(st.Generators) != 1 {
			t.Errorf("refresh should be transparent: %+v", st)
		}
		if rotated, _ := svc.Session().AccessToken(ctx); rotated == access {
			t.Error("access token was not replaced")
		}
	})

	t.Run("wrong password surfaces the server message", func(t *testing.T) {
		other := newTestService(t, url)
		_, err := other.Login(ctx, fakeapi.DemoEmail, "wrong")
		want := "Incorrect password for user with the e-mail " + fakeapi.DemoEmail + "!"
		if api.MessageOf(err) != want {
			t.Fatalf("got %v, want message %q", err, want)
		}
		if other.Session().SignedIn(ctx) {
			t.Error("failed login must not sign in")
		}
	})
}

func TestValidation(t *testing.T) {
	backend, url := newTestBackend(t)
	svc := newTestService(t, url)
	login(t, svc, fakeapi.DemoEmail)
	ctx := context.Background()
	gid := cachedGenerator(t, svc, "Dinner").ID

	tests := []struct {
		name  string
		route string
		field string
		call  func() error
	}{
		{"empty title", "add", "title", func() error { return svc.AddGenerator(ctx, "  ", 1) }},
		{"long title", "update", "title", func() error {
			return svc.UpdateGenerator(ctx, gid, "A title that is far too long", 1)
		}},
		{"empty option name", "addOption", "name", func() error {
			return svc.AddOption(ctx, gid, OptionInput{Categories: []string{"x"}})
		}},
		{"long option name", "addOption", "name", func() error {
			return svc.AddOption(ctx, gid, OptionInput{Name: "abcdefghijklmnopqrstu", Categories: []string{"x"}})
		}},
		{"no category", "addOption", "categories", func() error {
			return svc.AddOption(ctx, gid, OptionInput{Name: "Tacos", Categories: []string{" "}})
		}},
		{"empty email", "addParticipant", "email", func() error { return svc.AddParticipant(ctx, gid, "") }},
		{"missing login password", "login", "password", func() error {
			_, err := svc.Login(ctx, fakeapi.DemoEmail, "")
			return err
		}},
		{"register mismatch", "register", "confirmPassword", func() error {
			return svc.Register(ctx, RegisterInput{FirstName: "A", LastName: "B", Email: "a@b.c", Password: "x", ConfirmPassword: "y"})
		}},
		{"change password missing", "changePassword", "password", func() error {
			return svc.ChangePassword(ctx, ChangePasswordInput{OldPassword: "x"})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := backend.Hits(tt.route)
			err := tt.call()
			var fe *FieldError
			if !errors.As(err, &fe) {
				t.Fatalf("expected a FieldError, got %v", err)
			}
			if fe.Field != tt.field {
				t.Errorf("got field %q, want %q", fe.Field, tt.field)
			}
			if backend.Hits(tt.route) != before {
				t.Error("validation failure must not reach the backend")
			}
		})
	}
}

func TestExclude(t *testing.T) {
	backend, url := newTestBackend(t)
	svc := newTestService(t, url)
	demo := login(t, svc, fakeapi.DemoEmail)
	ctx := context.Background()
	pizza := optionNamed(t, cachedGenerator(t, svc, "Dinner"), "Pizza")

	if err := svc.Exclude(ctx, pizza.ID); err != nil {
		t.Fatalf("Exclude failed: %v", err)
	}
	if !selectionOf(t, cachedGenerator(t, svc, "Dinner"), demo.ID, pizza.ID).Excluded {
		t.Fatal("pizza should be excluded after the first toggle")
	}
	if !selectionOf(t, backend.Generators(demo.ID)[0], demo.ID, pizza.ID).Excluded {
		t.Fatal("backend did not record the exclusion")
	}

	if err := svc.Exclude(ctx, pizza.ID); err != nil {
		t.Fatalf("Exclude failed: %v", err)
	}
	if selectionOf(t, cachedGenerator(t, svc, "Dinner"), demo.ID, pizza.ID).Excluded {
		t.Fatal("toggling twice should restore the flag")
	}

	t.Run("patch survives a failed refetch", func(t *testing.T) {
		backend.FailNext("myGenerators", http.StatusInternalServerError)
		if err := svc.Favorise(ctx, pizza.ID); err != nil {
			t.Fatalf("Favorise failed: %v", err)
		}
		if !selectionOf(t, cachedGenerator(t, svc, "Dinner"), demo.ID, pizza.ID).Favorised {
			t.Error("persisted snapshot should carry the optimistic patch")
		}
	})

	t.Run("failed call skips the patch", func(t *testing.T) {
		backend.FailNext("exclude", http.StatusInternalServerError)
		err := svc.Exclude(ctx, pizza.ID)
		if api.StatusOf(err) != http.StatusInternalServerError {
			t.Fatalf("expected the 500, got %v", err)
		}
		if selectionOf(t, cachedGenerator(t, svc, "Dinner"), demo.ID, pizza.ID).Excluded {
			t.Error("a failed call must not patch")
		}
		if svc.Pending(ActionExclude, pizza.ID) {
			t.Error("pending flag not cleared after failure")
		}
	})

	t.Run("second press while pending is refused", func(t *testing.T) {
		done, ok := svc.pending.begin(pendingKey(ActionExclude, pizza.ID))
		if !ok {
			t.Fatal("begin failed")
		}
		before := backend.Hits("exclude")
		if err := svc.Exclude(ctx, pizza.ID); !errors.Is(err, ErrActionPending) {
			t.Errorf("expected ErrActionPending, got %v", err)
		}
		done()
		if backend.Hits("exclude") != before {
			t.Error("refused press reached the backend")
		}
		if svc.Pending(ActionExclude, pizza.ID) {
			t.Error("pending flag still set")
		}
	})
}

func TestCategoryToggle(t *testing.T) {
	_, url := newTestBackend(t)
	svc := newTestService(t, url)
	demo := login(t, svc, fakeapi.DemoEmail)
	ctx := context.Background()

	dinner := cachedGenerator(t, svc, "Dinner")
	var friendID int64
	for _, p := range dinner.Participants {
		if p.User.ID != demo.ID {
			friendID = p.User.ID
		}
	}

	target, err := svc.ExcludeCategory(ctx, dinner.ID, "italian")
	if err != nil {
		t.Fatalf("ExcludeCategory failed: %v", err)
	}
	if !target {
		t.Fatal("first category toggle should exclude")
	}

	dinner = cachedGenerator(t, svc, "Dinner")
	for _, name := range []string{"Pizza", "Pasta"} {
		opt := optionNamed(t, dinner, name)
		if !selectionOf(t, dinner, demo.ID, opt.ID).Excluded {
			t.Errorf("%s should be excluded for the acting user", name)
		}
		if selectionOf(t, dinner, friendID, opt.ID).Excluded {
			t.Errorf("%s must stay included for the other participant", name)
		}
	}
	if selectionOf(t, dinner, demo.ID, optionNamed(t, dinner, "Sushi").ID).Excluded {
		t.Error("sushi is not italian")
	}

	target, err = svc.ExcludeCategory(ctx, dinner.ID, "italian")
	if err != nil {
		t.Fatalf("ExcludeCategory failed: %v", err)
	}
	if target {
		t.Error("second category toggle should include again")
	}

	fav, err := svc.FavoriseCategory(ctx, dinner.ID, "takeaway")
	if err != nil || !fav {
		t.Fatalf("FavoriseCategory: %v, %v", fav, err)
	}
	dinner = cachedGenerator(t, svc, "Dinner")
	if !selectionOf(t, dinner, demo.ID, optionNamed(t, dinner, "Burger").ID).Favorised {
		t.Error("burger should be favorised")
	}

	if _, err := svc.ExcludeCategory(ctx, 9999, "italian"); !errors.Is(err, ErrGeneratorNotFound) {
		t.Errorf("expected ErrGeneratorNotFound, got %v", err)
	}
}

func TestGenerate(t *testing.T) {
	backend, url := newTestBackend(t)
	svc := newTestService(t, url)
	login(t, svc, fakeapi.DemoEmail)
	ctx := context.Background()
	dinner := cachedGenerator(t, svc, "Dinner")

	spin, err := svc.Generate(ctx, dinner.ID)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if spin.Generator.Options[spin.Target].ID != spin.Option.ID {
		t.Errorf("target %d does not point at %q", spin.Target, spin.Option.Name)
	}
	if !spin.Notifications {
		t.Error("the demo user follows the dinner results")
	}
	if got := len(svc.Cache().Results()); got != 1 {
		t.Fatalf("expected the new result to be fetched, got %d", got)
	}
	if svc.Cache().HasUnread() {
		t.Error("a result the user just generated should count as checked")
	}

	t.Run("every option excluded", func(t *testing.T) {
		for _, category := range []string{"italian", "japanese", "takeaway"} {
			if _, err := svc.ExcludeCategory(ctx, dinner.ID, category); err != nil {
				t.Fatalf("ExcludeCategory %s failed: %v", category, err)
			}
		}
		before := backend.Hits("generate")
		if _, err := svc.Generate(ctx, dinner.ID); !errors.Is(err, ErrNoEligibleOptions) {
			t.Fatalf("expected ErrNoEligibleOptions, got %v", err)
		}
		if backend.Hits("generate") != before {
			t.Error("generate should not be called")
		}
	})
}

func TestFinishSpin(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Now())
	backend := fakeapi.New(fakeapi.WithSeed(1), fakeapi.WithClock(clock))
	if _, err := backend.SeedDemo(); err != nil {
		t.Fatalf("SeedDemo failed: %v", err)
	}
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	demo := newTestService(t, srv.URL)
	login(t, demo, fakeapi.DemoEmail)
	friend := newTestService(t, srv.URL)
	login(t, friend, friendEmail)
	ctx := context.Background()
	dinner := cachedGenerator(t, demo, "Dinner")

	if _, err := demo.Generate(ctx, dinner.ID); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	clock.Advance(2 * time.Second)
	if _, err := friend.Generate(ctx, dinner.ID); err != nil {
		t.Fatalf("friend Generate failed: %v", err)
	}
	demo.Cache().Refresh(ctx)
	if demo.Cache().HasUnread() {
		t.Error("results fetched during a spin should count as checked")
	}

	if err := demo.FinishSpin(ctx); err != nil {
		t.Fatalf("FinishSpin failed: %v", err)
	}
	clock.Advance(2 * time.Second)
	if _, err := friend.Generate(ctx, dinner.ID); err != nil {
		t.Fatalf("friend Generate failed: %v", err)
	}
	demo.Cache().Refresh(ctx)
	if !demo.Cache().HasUnread() {
		t.Error("a result after the spin ended should be unread")
	}
}

func TestGeneratorLifecycle(t *testing.T) {
	_, url := newTestBackend(t)
	owner := newTestService(t, url)
	login(t, owner, fakeapi.DemoEmail)
	friend := newTestService(t, url)
	friendUser := login(t, friend, friendEmail)
	ctx := context.Background()

	if err := owner.AddGenerator(ctx, "Movies", 2); err != nil {
		t.Fatalf("AddGenerator failed: %v", err)
	}
	movies := cachedGenerator(t, owner, "Movies")

	if err := owner.UpdateGenerator(ctx, movies.ID, "Films", 4); err != nil {
		t.Fatalf("UpdateGenerator failed: %v", err)
	}
	if g := cachedGenerator(t, owner, "Films"); g.IconNumber != 4 {
		t.Errorf("icon not updated: %d", g.IconNumber)
	}

	if err := owner.AddOption(ctx, movies.ID, OptionInput{Name: "Alien", Categories: []string{"scifi", "horror"}}); err != nil {
		t.Fatalf("AddOption failed: %v", err)
	}
	alien := optionNamed(t, cachedGenerator(t, owner, "Films"), "Alien")

	if err := owner.DeleteOption(ctx, alien.ID, "horror"); err != nil {
		t.Fatalf("DeleteOption failed: %v", err)
	}
	alien = optionNamed(t, cachedGenerator(t, owner, "Films"), "Alien")
	if len(alien.Categories) != 1 || alien.Categories[0] != "scifi" {
		t.Errorf("unexpected categories %v", alien.Categories)
	}

	if err := owner.PurgeOption(ctx, alien.ID); err != nil {
		t.Fatalf("PurgeOption failed: %v", err)
	}
	if g := cachedGenerator(t, owner, "Films"); len(g.Options) != 0 {
		t.Errorf("option not purged: %+v", g.Options)
	}

	err := owner.AddParticipant(ctx, movies.ID, "nobody@example.com")
	if api.MessageOf(err) != "No user with this email" {
		t.Errorf("server message not surfaced: %v", err)
	}

	if err := owner.AddParticipant(ctx, movies.ID, friendEmail); err != nil {
		t.Fatalf("AddParticipant failed: %v", err)
	}
	friend.Cache().Refresh(ctx)
	cachedGenerator(t, friend, "Films")

	if err := friend.DeleteGenerator(ctx, movies.ID); api.StatusOf(err) != http.StatusForbidden {
		t.Errorf("non-owner delete should be forbidden, got %v", err)
	}

	if err := owner.RemoveParticipant(ctx, movies.ID, friendUser.ID); err != nil {
		t.Fatalf("RemoveParticipant failed: %v", err)
	}
	if _, ok := cachedGenerator(t, owner, "Films").ParticipantFor(friendUser.ID); ok {
		t.Error("friend still participates")
	}

	dinner := cachedGenerator(t, friend, "Dinner")
	if err := friend.LeaveGenerator(ctx, dinner.ID); err != nil {
		t.Fatalf("LeaveGenerator failed: %v", err)
	}
	if n := len(friend.Cache().Generators()); n != 0 {
		t.Errorf("friend should have no generators left, has %d", n)
	}

	if err := owner.ToggleNotifications(ctx, movies.ID); err != nil {
		t.Fatalf("ToggleNotifications failed: %v", err)
	}
	if err := owner.DeleteGenerator(ctx, movies.ID); err != nil {
		t.Fatalf("DeleteGenerator failed: %v", err)
	}
	if len(owner.Cache().Generators()) != 1 {
		t.Errorf("expected only dinner left: %+v", owner.Cache().Generators())
	}
}

func TestSessionExpiry(t *testing.T) {
	backend, url := newTestBackend(t)
	svc := newTestService(t, url)
	login(t, svc, fakeapi.DemoEmail)
	ctx := context.Background()
	pizza := optionNamed(t, cachedGenerator(t, svc, "Dinner"), "Pizza")

	backend.ExpireAccessTokens()
	backend.FailNext("refresh", http.StatusUnauthorized)

	err := svc.Exclude(ctx, pizza.ID)
	if !errors.Is(err, auth.ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if svc.Session().SignedIn(ctx) {
		t.Error("rejected refresh should sign out")
	}
	if n := len(svc.Cache().Generators()); n != 0 {
		t.Errorf("cache should be reset on sign-out, has %d generators", n)
	}
}

func TestAccount(t *testing.T) {
	backend, url := newTestBackend(t)
	ctx := context.Background()

	t.Run("register then login", func(t *testing.T) {
		svc := newTestService(t, url)
		err := svc.Register(ctx, RegisterInput{FirstName: "Alice", LastName: "Smith", Email: "alice@example.com", Password: "pw", ConfirmPassword: "pw"})
		if err != nil {
			t.Fatalf("Register failed: %v", err)
		}
		if svc.Session().SignedIn(ctx) {
			t.Error("register must not sign in")
		}
		if _, err := svc.Login(ctx, "alice@example.com", "pw"); err != nil {
			t.Fatalf("Login failed: %v", err)
		}
	})

	t.Run("change password", func(t *testing.T) {
		svc := newTestService(t, url)
		login(t, svc, friendEmail)

		err := svc.ChangePassword(ctx, ChangePasswordInput{OldPassword: "bad", NewPassword: "new", ConfirmPassword: "new"})
		if api.MessageOf(err) != "Invalid password" {
			t.Fatalf("unexpected error %v", err)
		}
		err = svc.ChangePassword(ctx, ChangePasswordInput{OldPassword: fakeapi.DemoPassword, NewPassword: "new", ConfirmPassword: "new"})
		if err != nil {
			t.Fatalf("ChangePassword failed: %v", err)
		}
		if _, err := newTestService(t, url).Login(ctx, friendEmail, "new"); err != nil {
			t.Fatalf("Login with the new password failed: %v", err)
		}
	})

	t.Run("logout all devices", func(t *testing.T) {
		svc := newTestService(t, url)
		login(t, svc, fakeapi.DemoEmail)
		oldAccess, _ := svc.Session().AccessToken(ctx)
		oldRefresh, _ := svc.Session().RefreshToken(ctx)

		if err := svc.LogoutAllDevices(ctx); err != nil {
			t.Fatalf("LogoutAllDevices failed: %v", err)
		}
		if svc.Session().SignedIn(ctx) {
			t.Error("should be signed out")
		}
		if profile, _ := svc.Session().Profile(ctx); profile.Email != "" {
			t.Errorf("profile should be cleared: %+v", profile)
		}
		if _, err := api.New(url).Refresh(ctx, oldRefresh, oldAccess); !api.IsUnauthorized(err) {
			t.Errorf("old refresh token should be invalid, got %v", err)
		}
	})

	t.Run("greeting falls back to the stored one", func(t *testing.T) {
		svc := newTestService(t, url)

		backend.FailNext("hello", http.StatusInternalServerError)
		if _, err := svc.Greeting(ctx); err == nil {
			t.Fatal("expected an error with nothing stored")
		}

		msg, err := svc.Greeting(ctx)
		if err != nil || msg != "Hello from rngenius!" {
			t.Fatalf("Greeting: %q, %v", msg, err)
		}

		backend.FailNext("hello", http.StatusInternalServerError)
		msg, err = svc.Greeting(ctx)
		if err != nil || msg != "Hello from rngenius!" {
			t.Errorf("stored greeting not served: %q, %v", msg, err)
		}
	})
}
