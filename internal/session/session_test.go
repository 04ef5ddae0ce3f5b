package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return token
}

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "session.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if s.Token() != "" || s.Authenticated() {
		t.Fatalf("missing session file should be logged out")
	}
}

func TestSetPersistsAndLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.toml")
	token := signToken(t, jwt.MapClaims{
		"user_id":  float64(7),
		"username": "demo",
		"exp":      time.Now().Add(time.Hour).Unix(),
	})

	s := New(path)
	if err := s.Set(token, User{ID: 7, Username: "demo", Email: "demo@example.com"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("session file mode = %v, want 0600", perm)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Token() != token || loaded.User().Email != "demo@example.com" {
		t.Fatalf("loaded session = %q/%#v", loaded.Token(), loaded.User())
	}
	if !loaded.Authenticated() {
		t.Fatalf("fresh token should authenticate")
	}
}

func TestAuthenticated_Expiry(t *testing.T) {
	expired := signToken(t, jwt.MapClaims{"user_id": float64(1), "exp": time.Now().Add(-time.Minute).Unix()})
	noExp := signToken(t, jwt.MapClaims{"user_id": float64(1)})

	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{"empty", "", false},
		{"garbage", "not-a-jwt", false},
		{"expired", expired, false},
		{"no exp", noExp, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New("")
			if err := s.Set(tt.token, User{}); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if got := s.Authenticated(); got != tt.want {
				t.Fatalf("Authenticated() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInvalidateRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.toml")
	s := New(path)
	if err := s.Set("tok", User{ID: 1}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Invalidate(); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if s.Token() != "" || s.User().ID != 0 {
		t.Fatalf("Invalidate left credentials in memory")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("session file still exists: %v", err)
	}
	if err := s.Invalidate(); err != nil {
		t.Fatalf("second Invalidate: %v", err)
	}
}

func TestNilSessionIsEmpty(t *testing.T) {
	var s *Session
	if s.Token() != "" || s.Authenticated() || s.Path() != "" {
		t.Fatalf("nil session should be empty")
	}
	if err := s.Invalidate(); err != nil {
		t.Fatalf("nil Invalidate: %v", err)
	}
}

func TestParseClaims(t *testing.T) {
	exp := time.Now().Add(72 * time.Hour).Truncate(time.Second)
	token := signToken(t, jwt.MapClaims{"user_id": float64(42), "username": "alice", "exp": exp.Unix()})

	claims, err := ParseClaims(token)
	if err != nil {
		t.Fatalf("ParseClaims: %v", err)
	}
	if claims.UserID != 42 || claims.Username != "alice" || !claims.ExpiresAt.Equal(exp) {
		t.Fatalf("claims = %#v", claims)
	}
}
