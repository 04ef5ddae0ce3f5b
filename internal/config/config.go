package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds the client settings read from config.toml.
type Config struct {
	APIURL         string
	PageSize       int
	PollInterval   time.Duration
	RequestTimeout time.Duration
	SessionPath    string
	LogPath        string
}

const (
	defaultConfigPath     = "~/.config/crawldeck/config.toml"
	defaultAPIURL         = "http://localhost:8080/api"
	defaultPageSize       = 10
	defaultPollInterval   = 5 * time.Second
	defaultRequestTimeout = 30 * time.Second
	defaultSessionPath    = "~/.config/crawldeck/session.toml"
	defaultLogPath        = "~/.local/state/crawldeck/crawldeck.log"
	maxPageSize           = 100
)

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		APIURL:         defaultAPIURL,
		PageSize:       defaultPageSize,
		PollInterval:   defaultPollInterval,
		RequestTimeout: defaultRequestTimeout,
		SessionPath:    mustExpand(defaultSessionPath),
		LogPath:        mustExpand(defaultLogPath),
	}
}

// Load locates and parses the config file, falling back to defaults when missing.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw struct {
		APIURL         string `toml:"api_url"`
		PageSize       int    `toml:"page_size"`
		PollInterval   string `toml:"poll_interval"`
		RequestTimeout string `toml:"request_timeout"`
		SessionPath    string `toml:"session_path"`
		LogPath        string `toml:"log_path"`
	}
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if v := strings.TrimSpace(raw.APIURL); v != "" {
		cfg.APIURL = v
	}
	if raw.PageSize != 0 {
		if raw.PageSize < 0 || raw.PageSize > maxPageSize {
			return Config{}, fmt.Errorf("parse config: page_size %d out of range 1-%d", raw.PageSize, maxPageSize)
		}
		cfg.PageSize = raw.PageSize
	}
	if cfg.PollInterval, err = parseDuration("poll_interval", raw.PollInterval, cfg.PollInterval); err != nil {
		return Config{}, err
	}
	if cfg.RequestTimeout, err = parseDuration("request_timeout", raw.RequestTimeout, cfg.RequestTimeout); err != nil {
		return Config{}, err
	}
	if v := strings.TrimSpace(raw.SessionPath); v != "" {
		cfg.SessionPath = mustExpand(v)
	}
	if v := strings.TrimSpace(raw.LogPath); v != "" {
		cfg.LogPath = mustExpand(v)
	}

	return cfg, nil
}

func parseDuration(key, value string, fallback time.Duration) (time.Duration, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(trimmed)
	if err != nil {
		return 0, fmt.Errorf("parse config: %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("parse config: %s must be positive", key)
	}
	return d, nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

// ExpandPath resolves a leading ~ and returns an absolute path.
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
