package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/crawldeck/internal/collection"
	"github.com/five82/crawldeck/internal/config"
	"github.com/five82/crawldeck/internal/crawlapi"
	"github.com/five82/crawldeck/internal/prefs"
	"github.com/five82/crawldeck/internal/session"
	"github.com/five82/crawldeck/internal/state"
	"github.com/five82/crawldeck/internal/ui"
)

// ErrNotLoggedIn is returned by Run when no usable session exists.
var ErrNotLoggedIn = errors.New("not logged in, run `crawldeck login`")

// ErrBadCredentials is returned by Login when the server rejects the
// username or password.
var ErrBadCredentials = errors.New("invalid username or password")

// Options configure the crawldeck application. Non-zero fields override the
// config file.
type Options struct {
	ConfigPath string
	PrefsPath  string // empty uses default ~/.config/crawldeck/prefs.toml
	PollEvery  int    // seconds; zero uses the configured interval
	PageSize   int
	APIURL     string
}

// Credentials are the inputs of Login and Register.
type Credentials struct {
	Username string
	Email    string
	Password string
}

// Run boots the crawldeck TUI until the context is cancelled.
func Run(ctx context.Context, opts Options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	sess, err := session.Load(cfg.SessionPath)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if !sess.Authenticated() {
		return ErrNotLoggedIn
	}

	logFile, err := openLog(cfg.LogPath)
	if err != nil {
		return err
	}
	defer func() { _ = logFile.Close() }()
	logger := log.Default()

	prefsPath := opts.PrefsPath
	if strings.TrimSpace(prefsPath) == "" {
		prefsPath = prefs.DefaultPath()
	}
	userPrefs := prefs.Load(prefsPath)

	client, err := crawlapi.NewClient(cfg.APIURL, sess,
		crawlapi.WithTimeout(cfg.RequestTimeout),
		crawlapi.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("init api client: %w", err)
	}

	store := &state.Store{}
	ctrl := collection.New(client, store, collection.Options{
		PageSize: cfg.PageSize,
		Sort:     userPrefs.Sort(),
		Logger:   logger,
	})
	defer ctrl.Close()

	// The poller only ticks while a visible item is queued or running.
	poller := NewPoller(ctx, ctrl.Refresh, cfg.PollInterval, logger)
	defer poller.Stop()
	unsubscribe := store.Subscribe(poller.Observe)
	defer unsubscribe()

	logger.Printf("crawldeck starting: api=%s user=%s page_size=%d poll=%s",
		cfg.APIURL, sess.User().Username, cfg.PageSize, cfg.PollInterval)

	// Initial load runs alongside UI startup; the table shows a loading state.
	go ctrl.Refresh(ctx)

	return ui.Run(ui.Options{
		Context:    ctx,
		Controller: ctrl,
		Store:      store,
		User:       sess.User().Username,
		Prefs:      userPrefs,
		PrefsPath:  prefsPath,
		LogPath:    cfg.LogPath,
	})
}

// Login exchanges credentials for a token and persists the session.
func Login(ctx context.Context, opts Options, creds Credentials) (session.User, error) {
	return authenticate(ctx, opts, func(client *crawlapi.Client) (crawlapi.AuthResponse, error) {
		return client.Login(ctx, crawlapi.LoginRequest{Username: creds.Username, Password: creds.Password})
	})
}

// Register creates an account and persists its session.
func Register(ctx context.Context, opts Options, creds Credentials) (session.User, error) {
	return authenticate(ctx, opts, func(client *crawlapi.Client) (crawlapi.AuthResponse, error) {
		return client.Register(ctx, crawlapi.RegisterRequest{
			Username: creds.Username,
			Email:    creds.Email,
			Password: creds.Password,
		})
	})
}

// Logout removes the stored session.
func Logout(opts Options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	return session.New(cfg.SessionPath).Invalidate()
}

func authenticate(ctx context.Context, opts Options, call func(*crawlapi.Client) (crawlapi.AuthResponse, error)) (session.User, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return session.User{}, err
	}
	sess := session.New(cfg.SessionPath)
	client, err := crawlapi.NewClient(cfg.APIURL, sess, crawlapi.WithTimeout(cfg.RequestTimeout))
	if err != nil {
		return session.User{}, fmt.Errorf("init api client: %w", err)
	}

	resp, err := call(client)
	if errors.Is(err, crawlapi.ErrUnauthorized) {
		return session.User{}, ErrBadCredentials
	}
	if err != nil {
		return session.User{}, err
	}
	user := session.User{ID: resp.User.ID, Username: resp.User.Username, Email: resp.User.Email}
	if err := sess.Set(resp.Token, user); err != nil {
		return session.User{}, fmt.Errorf("save session: %w", err)
	}
	return user, nil
}

func loadConfig(opts Options) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if v := strings.TrimSpace(opts.APIURL); v != "" {
		cfg.APIURL = v
	}
	if opts.PageSize > 0 {
		cfg.PageSize = opts.PageSize
	}
	if opts.PollEvery > 0 {
		cfg.PollInterval = time.Duration(opts.PollEvery) * time.Second
	}
	return cfg, nil
}

// openLog routes the standard logger to path so log output never draws over
// the TUI.
func openLog(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := tea.LogToFile(path, "crawldeck")
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}
