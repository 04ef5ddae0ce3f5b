package logtail

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Level is the severity a log line is shown with.
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

// Line is one log line with its inferred severity.
type Line struct {
	Text  string
	Level Level
}

// Tail returns at most maxLines from the end of the file at path. A missing
// file yields no lines and no error.
func Tail(path string, maxLines int) ([]Line, error) {
	if maxLines <= 0 {
		return nil, nil
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer file.Close()

	ring := make([]string, maxLines)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	count, idx := 0, 0
	for scanner.Scan() {
		ring[idx] = scanner.Text()
		idx = (idx + 1) % maxLines
		if count < maxLines {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}

	start := 0
	if count == maxLines {
		start = idx
	}
	lines := make([]Line, count)
	for i := range lines {
		text := ring[(start+i)%maxLines]
		lines[i] = Line{Text: text, Level: Classify(text)}
	}
	return lines, nil
}

var (
	errorMarkers = []string{"failed", "error", "panic", "unauthorized"}
	warnMarkers  = []string{"retry", "skipping", "timeout", "discard", "using summary"}
)

// Classify infers a severity from the wording of a standard log line.
func Classify(text string) Level {
	lower := strings.ToLower(text)
	for _, m := range errorMarkers {
		if strings.Contains(lower, m) {
			return LevelError
		}
	}
	for _, m := range warnMarkers {
		if strings.Contains(lower, m) {
			return LevelWarn
		}
	}
	return LevelInfo
}
