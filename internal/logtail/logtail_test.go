package logtail

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestTail(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "crawldeck.log")

	var content strings.Builder
	var all []string
	for i := 1; i <= 10; i++ {
		line := fmt.Sprintf("line %d", i)
		content.WriteString(line + "\n")
		all = append(all, line)
	}
	if err := os.WriteFile(logPath, []byte(content.String()), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	tests := []struct {
		name     string
		maxLines int
		expected []string
	}{
		{"zero", 0, nil},
		{"negative", -1, nil},
		{"partial", 5, all[5:]},
		{"exact", 10, all},
		{"more than exists", 20, all},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Tail(logPath, tt.maxLines)
			if err != nil {
				t.Fatalf("Tail() error = %v", err)
			}
			if len(got) != len(tt.expected) {
				t.Fatalf("Tail() returned %d lines, want %d", len(got), len(tt.expected))
			}
			for i, line := range got {
				if line.Text != tt.expected[i] {
					t.Errorf("line %d = %q, want %q", i, line.Text, tt.expected[i])
				}
			}
		})
	}
}

func TestTail_MissingFile(t *testing.T) {
	got, err := Tail(filepath.Join(t.TempDir(), "nope.log"), 10)
	if err != nil {
		t.Fatalf("Tail() error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Tail() = %v, want none", got)
	}
}

func TestTail_ClassifiesLines(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "crawldeck.log")
	body := "crawldeck 2026/01/02 starting\ncrawldeck fetch failed: boom\n"
	if err := os.WriteFile(logPath, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := Tail(logPath, 10)
	if err != nil {
		t.Fatalf("Tail() error = %v", err)
	}
	if got[0].Level != LevelInfo || got[1].Level != LevelError {
		t.Fatalf("levels = %v, %v", got[0].Level, got[1].Level)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		text string
		want Level
	}{
		{"crawldeck starting: api=http://localhost:8080/api", LevelInfo},
		{"refresh failed: server unreachable", LevelError},
		{"session invalidated after 401 Unauthorized", LevelError},
		{"load results for 4 failed, using summary: boom", LevelError},
		{"poll tick skipping, refresh still running", LevelWarn},
		{"discarding stale response seq=3", LevelWarn},
	}
	for _, tt := range tests {
		if got := Classify(tt.text); got != tt.want {
			t.Errorf("Classify(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}
