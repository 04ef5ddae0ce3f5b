package ui

import (
	"strings"

	"github.com/five82/crawldeck/internal/logtail"
)

// renderLogs shows the newest log lines that fit, colored by severity.
func (m Model) renderLogs(width, height int) string {
	styles := m.theme.Styles().WithBackground(m.theme.FocusBg)
	if m.logs.err != nil {
		return styles.DangerText.Render(truncate(m.logs.err.Error(), width))
	}
	lines := m.logs.lines
	if len(lines) == 0 {
		return styles.MutedText.Render("Log is empty: " + truncate(m.logPath, max(width-14, 10)))
	}
	if height > 0 && len(lines) > height {
		lines = lines[len(lines)-height:]
	}

	out := make([]string, len(lines))
	for i, line := range lines {
		style := styles.Text
		switch line.Level {
		case logtail.LevelError:
			style = styles.DangerText
		case logtail.LevelWarn:
			style = styles.WarningText
		}
		out[i] = style.Render(truncate(line.Text, width))
	}
	return strings.Join(out, "\n")
}
