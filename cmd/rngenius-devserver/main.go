// Command rngenius-devserver serves the in-memory backend for local
// development, seeded with a demo account.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/rngenius/internal/config"
	"github.com/mmynk/rngenius/internal/fakeapi"
	"github.com/mmynk/rngenius/internal/middleware"
	"github.com/mmynk/rngenius/pkg/logging"
)

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	logging.Setup()

	addr := flag.String("addr", getEnv("RNGENIUS_DEV_ADDR", ":8080"), "Listen address")
	tokenDuration := flag.Duration("token-duration", 15*time.Minute, "Access token lifetime")
	greeting := flag.String("greeting", getEnv("RNGENIUS_GREETING", "Hello from rngenius!"), "GET /hello message")
	flag.Parse()

	backend := fakeapi.New(
		fakeapi.WithTokenDuration(*tokenDuration),
		fakeapi.WithGreeting(*greeting),
	)
	demo, err := backend.SeedDemo()
	if err != nil {
		slog.Error("Failed to seed demo data", "error", err)
		os.Exit(1)
	}
	slog.Info("Demo account ready", "email", demo.Email, "password", fakeapi.DemoPassword)

	// h2c lets HTTP/2 clients connect without TLS.
	handler := h2c.NewHandler(middleware.Logging(middleware.CORS(backend)), &http2.Server{})

	srv := &http.Server{
		Addr:              *addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("Development backend starting", "address", *addr, "token_duration", *tokenDuration)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
