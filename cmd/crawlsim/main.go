package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/five82/crawldeck/internal/devserver"
)

const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	addr := flag.String("addr", ":8080", "listen address")
	dbPath := flag.String("db", "crawlsim.db", "SQLite database path")
	secret := flag.String("secret", envOr("CRAWLSIM_SECRET", "dev-secret"), "HS256 signing secret")
	username := flag.String("user", "demo", "seed username (empty to skip)")
	password := flag.String("password", "demo", "seed password")
	email := flag.String("email", "demo@example.com", "seed email")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := devserver.OpenStore(*dbPath)
	if err != nil {
		log.Printf("open store: %v", err)
		return 1
	}
	defer func() { _ = store.Close() }()

	if *username != "" {
		seedUser(ctx, store, *username, *email, *password)
	}

	srv, err := devserver.NewServer(store, devserver.Options{Secret: *secret})
	if err != nil {
		log.Printf("init server: %v", err)
		return 1
	}
	defer srv.Close()

	gin.SetMode(gin.ReleaseMode)
	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           srv.Handler(gin.Logger()),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("crawlsim listening on %s (api at /api)", *addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			log.Printf("serve: %v", err)
			return 1
		}
		return 0
	case <-ctx.Done():
	}

	log.Println("shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
		return 1
	}
	return 0
}

// seedUser creates the account unless it already accepts the password.
func seedUser(ctx context.Context, store *devserver.Store, username, email, password string) {
	if _, err := store.Authenticate(ctx, username, password); err == nil {
		return
	}
	if _, err := store.CreateUser(ctx, username, email, password); err != nil {
		log.Printf("seed user %s: %v", username, err)
		return
	}
	log.Printf("seeded user %s", username)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
