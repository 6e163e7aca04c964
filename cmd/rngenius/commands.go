package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmynk/rngenius/internal/auth"
	"github.com/mmynk/rngenius/internal/models"
	"github.com/mmynk/rngenius/internal/roulette"
	"github.com/mmynk/rngenius/internal/service"
)

type action func(ctx context.Context, a *app) error

// command is one CLI verb. setup declares the flags and returns the action
// reading them.
type command struct {
	name     string
	args     string
	summary  string
	signedIn bool
	setup    func(fs *flag.FlagSet) action
}

var commands = []command{
	{name: "login", args: "-email <email> -password <password>", summary: "Sign in", setup: loginCmd},
	{name: "register", args: "-first <name> -last <name> -email <email> -password <pw> -confirm <pw>", summary: "Create an account", setup: registerCmd},
	{name: "logout", args: "[-all]", summary: "Sign out, or log out of all devices", setup: logoutCmd},
	{name: "change-password", args: "-old <pw> -new <pw> -confirm <pw>", summary: "Change the password", setup: changePasswordCmd},
	{name: "status", summary: "Show the session, profile and token expiry", setup: statusCmd},
	{name: "greeting", summary: "Show the backend greeting", setup: greetingCmd},
	{name: "generators", summary: "List generators", signedIn: true, setup: generatorsCmd},
	{name: "show", args: "-id <generator>", summary: "Show categories, options and marks", signedIn: true, setup: showCmd},
	{name: "results", summary: "List results and mark them checked", signedIn: true, setup: resultsCmd},
	{name: "watch", args: "[-metrics-addr :9100]", summary: "Poll and print changes until interrupted", signedIn: true, setup: watchCmd},
	{name: "add-generator", args: "-title <title> -icon <n>", summary: "Create a generator", signedIn: true, setup: addGeneratorCmd},
	{name: "update-generator", args: "-id <generator> -title <title> -icon <n>", summary: "Edit a generator", signedIn: true, setup: updateGeneratorCmd},
	{name: "delete-generator", args: "-id <generator>", summary: "Delete a generator", signedIn: true, setup: generatorAction(service.ActionDeleteGenerator)},
	{name: "leave", args: "-id <generator>", summary: "Leave a generator", signedIn: true, setup: generatorAction(service.ActionLeaveGenerator)},
	{name: "add-option", args: "-id <generator> -name <name> -categories a,b [-description text]", summary: "Add an option", signedIn: true, setup: addOptionCmd},
	{name: "delete-option", args: "-option <option> -category <category>", summary: "Remove an option from a category", signedIn: true, setup: deleteOptionCmd},
	{name: "purge-option", args: "-option <option>", summary: "Delete an option entirely", signedIn: true, setup: optionAction(service.ActionPurgeOption)},
	{name: "add-participant", args: "-id <generator> -email <email>", summary: "Add a participant", signedIn: true, setup: addParticipantCmd},
	{name: "remove-participant", args: "-id <generator> -user <user>", summary: "Remove a participant", signedIn: true, setup: removeParticipantCmd},
	{name: "exclude", args: "-option <option>", summary: "Toggle exclude on an option", signedIn: true, setup: optionAction(service.ActionExclude)},
	{name: "favorise", args: "-option <option>", summary: "Toggle favorite on an option", signedIn: true, setup: optionAction(service.ActionFavorise)},
	{name: "exclude-category", args: "-id <generator> -category <category>", summary: "Toggle exclude on a category", signedIn: true, setup: categoryAction(service.ActionExcludeCategory)},
	{name: "favorise-category", args: "-id <generator> -category <category>", summary: "Toggle favorite on a category", signedIn: true, setup: categoryAction(service.ActionFavoriseCategory)},
	{name: "notifications", args: "-id <generator>", summary: "Toggle result notifications", signedIn: true, setup: generatorAction(service.ActionToggleNotifications)},
	{name: "spin", args: "-id <generator> [-exclude]", summary: "Generate an option and play the roulette", signedIn: true, setup: spinCmd},
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func requireID(name string, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: -%s is required", errUsage, name)
	}
	return nil
}

func loginCmd(fs *flag.FlagSet) action {
	email := fs.String("email", "", "Account email")
	password := fs.String("password", "", "Account password")
	return func(ctx context.Context, a *app) error {
		user, err := a.svc.Login(ctx, *email, *password)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Signed in as %s (%s)\n", user.FullName(), user.Email)
		return nil
	}
}

func registerCmd(fs *flag.FlagSet) action {
	var in service.RegisterInput
	fs.StringVar(&in.FirstName, "first", "", "First name")
	fs.StringVar(&in.LastName, "last", "", "Last name")
	fs.StringVar(&in.Email, "email", "", "Account email")
	fs.StringVar(&in.Password, "password", "", "Password")
	fs.StringVar(&in.ConfirmPassword, "confirm", "", "Password again")
	return func(ctx context.Context, a *app) error {
		if err := a.svc.Register(ctx, in); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Account created for %s. Sign in with: rngenius login -email %s\n", in.Email, in.Email)
		return nil
	}
}

func logoutCmd(fs *flag.FlagSet) action {
	all := fs.Bool("all", false, "Log out of every device")
	return func(ctx context.Context, a *app) error {
		if *all {
			if err := a.svc.LogoutAllDevices(ctx); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Logged out of all devices")
			return nil
		}
		if err := a.svc.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Signed out")
		return nil
	}
}

func changePasswordCmd(fs *flag.FlagSet) action {
	var in service.ChangePasswordInput
	fs.StringVar(&in.OldPassword, "old", "", "Current password")
	fs.StringVar(&in.NewPassword, "new", "", "New password")
	fs.StringVar(&in.ConfirmPassword, "confirm", "", "New password again")
	return func(ctx context.Context, a *app) error {
		if err := a.svc.ChangePassword(ctx, in); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Password changed")
		return nil
	}
}

func statusCmd(*flag.FlagSet) action {
	return func(ctx context.Context, a *app) error {
		fmt.Fprintf(a.out, "Backend:  %s\n", a.client.BaseURL())
		if !a.session.SignedIn(ctx) {
			fmt.Fprintln(a.out, "Session:  signed out")
			return nil
		}
		profile, err := a.session.Profile(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Session:  signed in as %s (%s), user %d\n", profile.FullName(), profile.Email, profile.ID)

		token, err := a.session.AccessToken(ctx)
		if err != nil {
			return err
		}
		expiry, err := auth.TokenExpiry(token)
		switch {
		case err != nil:
			fmt.Fprintf(a.out, "Token:    unreadable (%v)\n", err)
		case expiry.IsZero():
			fmt.Fprintln(a.out, "Token:    no expiry")
		case expiry.Before(a.clock.Now()):
			fmt.Fprintf(a.out, "Token:    expired at %s, it is refreshed on the next call\n", expiry.Local().Format(time.DateTime))
		default:
			fmt.Fprintf(a.out, "Token:    valid until %s\n", expiry.Local().Format(time.DateTime))
		}
		return nil
	}
}

func greetingCmd(*flag.FlagSet) action {
	return func(ctx context.Context, a *app) error {
		msg, err := a.svc.Greeting(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, msg)
		return nil
	}
}

func generatorsCmd(*flag.FlagSet) action {
	return func(ctx context.Context, a *app) error {
		printGenerators(a.out, a.cache.State())
		return nil
	}
}

func showCmd(fs *flag.FlagSet) action {
	id := fs.Int64("id", 0, "Generator id")
	return func(ctx context.Context, a *app) error {
		if err := requireID("id", *id); err != nil {
			return err
		}
		g, ok := a.cache.Generator(*id)
		if !ok {
			return service.ErrGeneratorNotFound
		}
		userID, err := a.session.UserID(ctx)
		if err != nil {
			return err
		}
		printGenerator(a.out, g, userID)
		return nil
	}
}

func resultsCmd(*flag.FlagSet) action {
	return func(ctx context.Context, a *app) error {
		st := a.cache.State()
		printResults(a.out, st)
		return a.cache.MarkChecked(ctx)
	}
}

func watchCmd(fs *flag.FlagSet) action {
	addr := fs.String("metrics-addr", "", "Serve Prometheus metrics on this address (default $RNGENIUS_METRICS_ADDR)")
	return func(ctx context.Context, a *app) error {
		if *addr == "" {
			*addr = a.cfg.MetricsAddr
		}
		if *addr != "" {
			srv := &http.Server{Addr: *addr, Handler: metricsMux(a), ReadHeaderTimeout: 5 * time.Second}
			go func() {
				slog.Info("Serving metrics", "address", *addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					slog.Error("Metrics server failed", "error", err)
				}
			}()
			defer srv.Close()
		}

		w := newWatcher(a.out)
		a.cache.OnChange(w.update)
		if err := a.cache.Start(ctx); err != nil {
			return err
		}
		defer a.cache.Stop()

		fmt.Fprintf(a.out, "Watching every %s, press Ctrl+C to stop\n", a.cfg.PollInterval)
		<-ctx.Done()
		return nil
	}
}

func metricsMux(a *app) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	return mux
}

func addGeneratorCmd(fs *flag.FlagSet) action {
	title := fs.String("title", "", "Generator title")
	icon := fs.Int("icon", 0, "Icon number")
	return func(ctx context.Context, a *app) error {
		if err := a.svc.AddGenerator(ctx, *title, *icon); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Generator %q created\n", *title)
		return nil
	}
}

func updateGeneratorCmd(fs *flag.FlagSet) action {
	id := fs.Int64("id", 0, "Generator id")
	title := fs.String("title", "", "New title")
	icon := fs.Int("icon", -1, "New icon number (default keeps the current one)")
	return func(ctx context.Context, a *app) error {
		if err := requireID("id", *id); err != nil {
			return err
		}
		if *icon < 0 {
			g, ok := a.cache.Generator(*id)
			if !ok {
				return service.ErrGeneratorNotFound
			}
			*icon = g.IconNumber
		}
		if err := a.svc.UpdateGenerator(ctx, *id, *title, *icon); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Generator updated")
		return nil
	}
}

// generatorAction is a command that only takes a generator id.
func generatorAction(name string) func(fs *flag.FlagSet) action {
	return func(fs *flag.FlagSet) action {
		id := fs.Int64("id", 0, "Generator id")
		return func(ctx context.Context, a *app) error {
			if err := requireID("id", *id); err != nil {
				return err
			}
			switch name {
			case service.ActionDeleteGenerator:
				if err := a.svc.DeleteGenerator(ctx, *id); err != nil {
					return err
				}
				fmt.Fprintln(a.out, "Generator deleted")
			case service.ActionLeaveGenerator:
				if err := a.svc.LeaveGenerator(ctx, *id); err != nil {
					return err
				}
				fmt.Fprintln(a.out, "Left the generator")
			case service.ActionToggleNotifications:
				if err := a.svc.ToggleNotifications(ctx, *id); err != nil {
					return err
				}
				fmt.Fprintln(a.out, notificationsState(ctx, a, *id))
			}
			return nil
		}
	}
}

func notificationsState(ctx context.Context, a *app, generatorID int64) string {
	userID, err := a.session.UserID(ctx)
	if err != nil {
		return "Notifications toggled"
	}
	g, ok := a.cache.Generator(generatorID)
	if !ok {
		return "Notifications toggled"
	}
	if p, ok := g.ParticipantFor(userID); ok && p.Notifications {
		return "Notifications on"
	}
	return "Notifications off"
}

// optionAction is a command that only takes an option id.
func optionAction(name string) func(fs *flag.FlagSet) action {
	return func(fs *flag.FlagSet) action {
		id := fs.Int64("option", 0, "Option id")
		return func(ctx context.Context, a *app) error {
			if err := requireID("option", *id); err != nil {
				return err
			}
			var err error
			switch name {
			case service.ActionPurgeOption:
				err = a.svc.PurgeOption(ctx, *id)
			case service.ActionExclude:
				err = a.svc.Exclude(ctx, *id)
			case service.ActionFavorise:
				err = a.svc.Favorise(ctx, *id)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Done")
			return nil
		}
	}
}

// categoryAction toggles exclude or favorite on a whole category.
func categoryAction(name string) func(fs *flag.FlagSet) action {
	return func(fs *flag.FlagSet) action {
		id := fs.Int64("id", 0, "Generator id")
		category := fs.String("category", "", "Category name")
		return func(ctx context.Context, a *app) error {
			if err := requireID("id", *id); err != nil {
				return err
			}
			if *category == "" {
				return fmt.Errorf("%w: -category is required", errUsage)
			}
			var on bool
			var err error
			verb := "excluded"
			if name == service.ActionFavoriseCategory {
				verb = "favorised"
				on, err = a.svc.FavoriseCategory(ctx, *id, *category)
			} else {
				on, err = a.svc.ExcludeCategory(ctx, *id, *category)
			}
			if err != nil {
				return err
			}
			if on {
				fmt.Fprintf(a.out, "Category %q %s\n", *category, verb)
			} else {
				fmt.Fprintf(a.out, "Category %q no longer %s\n", *category, verb)
			}
			return nil
		}
	}
}

func addOptionCmd(fs *flag.FlagSet) action {
	id := fs.Int64("id", 0, "Generator id")
	var in service.OptionInput
	fs.StringVar(&in.Name, "name", "", "Option name")
	fs.StringVar(&in.Description, "description", "", "Option description")
	categories := fs.String("categories", "", "Comma separated categories")
	return func(ctx context.Context, a *app) error {
		if err := requireID("id", *id); err != nil {
			return err
		}
		in.Categories = strings.Split(*categories, ",")
		if err := a.svc.AddOption(ctx, *id, in); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Option %q added\n", in.Name)
		return nil
	}
}

func deleteOptionCmd(fs *flag.FlagSet) action {
	id := fs.Int64("option", 0, "Option id")
	category := fs.String("category", "", "Category to remove the option from")
	return func(ctx context.Context, a *app) error {
		if err := requireID("option", *id); err != nil {
			return err
		}
		if *category == "" {
			return fmt.Errorf("%w: -category is required", errUsage)
		}
		if err := a.svc.DeleteOption(ctx, *id, *category); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Option removed from %q\n", *category)
		return nil
	}
}

func addParticipantCmd(fs *flag.FlagSet) action {
	id := fs.Int64("id", 0, "Generator id")
	email := fs.String("email", "", "Email of the user to add")
	return func(ctx context.Context, a *app) error {
		if err := requireID("id", *id); err != nil {
			return err
		}
		if err := a.svc.AddParticipant(ctx, *id, *email); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s added\n", *email)
		return nil
	}
}

func removeParticipantCmd(fs *flag.FlagSet) action {
	id := fs.Int64("id", 0, "Generator id")
	user := fs.Int64("user", 0, "User id of the participant")
	return func(ctx context.Context, a *app) error {
		if err := requireID("id", *id); err != nil {
			return err
		}
		if err := requireID("user", *user); err != nil {
			return err
		}
		if err := a.svc.RemoveParticipant(ctx, *id, *user); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Participant removed")
		return nil
	}
}

func spinCmd(fs *flag.FlagSet) action {
	id := fs.Int64("id", 0, "Generator id")
	exclude := fs.Bool("exclude", false, "Exclude the landed option afterwards")
	return func(ctx context.Context, a *app) error {
		if err := requireID("id", *id); err != nil {
			return err
		}
		spin, err := a.svc.Generate(ctx, *id)
		if err != nil {
			return err
		}
		defer func() {
			if err := a.svc.FinishSpin(context.WithoutCancel(ctx)); err != nil {
				slog.Warn("Failed to finish spin", "error", err)
			}
		}()

		runner := roulette.NewRunner(
			roulette.WithClock(a.clock),
			roulette.WithFeedback(newTerminalFeedback(a.out)),
			roulette.WithMetrics(a.metrics),
		)
		var landed models.Option
		err = runner.Run(ctx, spin.Generator.Options, spin.Target, func(o models.Option) { landed = o })
		if err != nil {
			return err
		}

		fmt.Fprintf(a.out, "\n%s: %s\n", spin.Generator.Title, landed.Name)
		if landed.Description != "" {
			fmt.Fprintln(a.out, landed.Description)
		}
		if *exclude {
			if err := a.svc.Exclude(ctx, landed.ID); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s excluded\n", landed.Name)
		}
		if spin.Notifications {
			fmt.Fprintln(a.out, "Everyone following this generator sees the result under: rngenius results")
		}
		return nil
	}
}
