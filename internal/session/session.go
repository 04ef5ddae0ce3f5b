// Package session holds the bearer token and current user shared by every
// request. A Session is created once and passed explicitly to the API client;
// nothing in crawldeck reads credentials from global state.
package session

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	toml "github.com/pelletier/go-toml/v2"
)

// User identifies the account that owns the session.
type User struct {
	ID       int64  `toml:"id"`
	Username string `toml:"username"`
	Email    string `toml:"email"`
}

// Claims is the subset of token claims crawldeck reads.
type Claims struct {
	UserID    int64
	Username  string
	ExpiresAt time.Time
}

// Session is safe for concurrent use. A nil *Session behaves as an empty,
// unauthenticated session.
type Session struct {
	mu    sync.RWMutex
	path  string
	token string
	user  User
	now   func() time.Time
}

type sessionFile struct {
	Token string `toml:"token"`
	User  User   `toml:"user"`
}

// New returns an empty session persisted at path. An empty path keeps the
// session in memory only.
func New(path string) *Session {
	return &Session{path: strings.TrimSpace(path), now: time.Now}
}

// Load reads the session file at path. A missing file yields an empty session.
func Load(path string) (*Session, error) {
	s := New(path)
	if s.path == "" {
		return s, nil
	}

	file, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("open session: %w", err)
	}
	defer func() { _ = file.Close() }()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}

	var raw sessionFile
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return nil, fmt.Errorf("parse session: %w", err)
	}
	s.token = strings.TrimSpace(raw.Token)
	s.user = raw.User
	return s, nil
}

// Token returns the bearer token, or "" when logged out.
func (s *Session) Token() string {
	if s == nil {
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// User returns the current user.
func (s *Session) User() User {
	if s == nil {
		return User{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// Authenticated reports whether a token is present and not expired.
// Tokens without an exp claim are treated as valid.
func (s *Session) Authenticated() bool {
	token := s.Token()
	if token == "" {
		return false
	}
	claims, err := ParseClaims(token)
	if err != nil {
		return false
	}
	if claims.ExpiresAt.IsZero() {
		return true
	}
	return s.clock().Before(claims.ExpiresAt)
}

// Set stores a new token and user and persists them.
func (s *Session) Set(token string, user User) error {
	s.mu.Lock()
	s.token = strings.TrimSpace(token)
	s.user = user
	path := s.path
	data := sessionFile{Token: s.token, User: s.user}
	s.mu.Unlock()

	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	bytes, err := toml.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := os.WriteFile(path, bytes, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// Invalidate clears the credentials and removes the session file.
func (s *Session) Invalidate() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	s.token = ""
	s.user = User{}
	path := s.path
	s.mu.Unlock()

	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}

// Path returns the file backing the session.
func (s *Session) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

func (s *Session) clock() time.Time {
	if s == nil || s.now == nil {
		return time.Now()
	}
	return s.now()
}

// ParseClaims decodes token claims without verifying the signature.
func ParseClaims(token string) (Claims, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return Claims{}, fmt.Errorf("parse token: %w", err)
	}
	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, fmt.Errorf("parse token: unexpected claims type %T", parsed.Claims)
	}

	var claims Claims
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	switch v := mapClaims["user_id"].(type) {
	case float64:
		claims.UserID = int64(v)
	case int64:
		claims.UserID = v
	}
	if name, ok := mapClaims["username"].(string); ok {
		claims.Username = name
	}
	return claims, nil
}
