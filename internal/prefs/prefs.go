// Package prefs handles crawldeck user preferences persistence.
// Preferences are stored in ~/.config/crawldeck/prefs.toml.
package prefs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/five82/crawldeck/internal/query"
)

// Prefs holds user preferences for crawldeck.
type Prefs struct {
	Theme         string `toml:"theme"`
	SortColumn    string `toml:"sort_column"`
	SortDirection string `toml:"sort_direction"`
}

const (
	defaultPrefsPath = "~/.config/crawldeck/prefs.toml"
	defaultTheme     = "Nightfox"
)

// DefaultPath returns the default preferences file path.
func DefaultPath() string {
	return defaultPrefsPath
}

func defaults() Prefs {
	return Prefs{
		Theme:         defaultTheme,
		SortColumn:    string(query.DefaultSort.Column),
		SortDirection: string(query.DefaultSort.Direction),
	}
}

// Load reads preferences from the given path, falling back to defaults if
// missing or unreadable.
func Load(path string) Prefs {
	prefs := defaults()

	resolved, err := resolvePath(path)
	if err != nil {
		return prefs
	}

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return prefs
		}
		return prefs // Graceful degradation
	}
	defer func() { _ = file.Close() }()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return prefs // Graceful degradation
	}

	if err := toml.Unmarshal(bytes, &prefs); err != nil {
		return defaults() // Graceful degradation
	}

	if strings.TrimSpace(prefs.Theme) == "" {
		prefs.Theme = defaultTheme
	}
	if _, ok := query.ParseColumn(prefs.SortColumn); !ok {
		prefs.SortColumn = string(query.DefaultSort.Column)
	}
	if _, ok := query.ParseDirection(prefs.SortDirection); !ok {
		prefs.SortDirection = string(query.DefaultSort.Direction)
	}

	return prefs
}

// Sort returns the saved sort order, or the default when unset or invalid.
func (p Prefs) Sort() query.Sort {
	col, ok := query.ParseColumn(p.SortColumn)
	if !ok {
		return query.DefaultSort
	}
	dir, ok := query.ParseDirection(p.SortDirection)
	if !ok {
		dir = query.Asc
	}
	return query.Sort{Column: col, Direction: dir}
}

// WithSort records s as the saved sort order.
func (p Prefs) WithSort(s query.Sort) Prefs {
	p.SortColumn = string(s.Column)
	p.SortDirection = string(s.Direction)
	return p
}

// Save writes preferences to the given path, creating directories as needed.
func Save(path string, p Prefs) error {
	resolved, err := resolvePath(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	dir := filepath.Dir(resolved)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}

	bytes, err := toml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal prefs: %w", err)
	}

	if err := os.WriteFile(resolved, bytes, 0o644); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}

	return nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultPrefsPath)
	}
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
