// Command rngenius is the terminal client for the rngenius decision service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mmynk/rngenius/internal/config"
	"github.com/mmynk/rngenius/pkg/logging"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	logging.Setup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("rngenius", flag.ContinueOnError)
	global.SetOutput(stderr)
	configPath := global.String("config", "", "Config file (default $RNGENIUS_CONFIG or $XDG_CONFIG_HOME/rngenius/config.yaml)")
	apiURL := global.String("api-url", "", "Override the backend base URL")
	global.Usage = func() { usage(global) }
	if err := global.Parse(args); err != nil {
		return 2
	}
	if global.NArg() == 0 {
		global.Usage()
		return 2
	}

	name, rest := global.Arg(0), global.Args()[1:]
	cmd, ok := lookup(name)
	if !ok {
		fmt.Fprintf(stderr, "Unknown command %q\n\n", name)
		global.Usage()
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	if *apiURL != "" {
		cfg.APIURL = *apiURL
	}

	a, err := newApp(cfg, stdout)
	if err != nil {
		slog.Error("Failed to initialize client", "error", err)
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	defer a.Close()

	if err := a.exec(ctx, cmd, rest); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		if errors.Is(err, errUsage) {
			if err != errUsage {
				fmt.Fprintln(stderr, "Error:", err)
			}
			return 2
		}
		fmt.Fprintln(stderr, "Error:", describe(err))
		return 1
	}
	return 0
}

func usage(fs *flag.FlagSet) {
	w := fs.Output()
	fmt.Fprintln(w, "Usage: rngenius [-config file] [-api-url url] <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-20s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Global flags:")
	fs.PrintDefaults()
}
