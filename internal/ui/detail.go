package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/crawldeck/internal/crawlapi"
)

// maxBrokenLinks caps how many broken links the pane lists.
const maxBrokenLinks = 20

// renderDetails renders the details pane for the open item.
func (m Model) renderDetails(width int) string {
	styles := m.theme.Styles().WithBackground(m.theme.FocusBg)
	d := m.details

	switch {
	case d.loading:
		return styles.InfoText.Render(m.spinner.View() + "Loading details...")
	case d.err != nil:
		return styles.DangerText.Render(truncate(crawlapi.Message(d.err), width))
	}

	item := d.detail.Item
	var b strings.Builder
	row := func(label, value string, style lipgloss.Style) {
		b.WriteString(styles.MutedText.Render(fit(label, 14)))
		b.WriteString(style.Render(truncate(value, max(width-14, 4))))
		b.WriteString("\n")
	}
	section := func(title string) {
		b.WriteString("\n")
		b.WriteString(styles.AccentText.Bold(true).Render(title))
		b.WriteString("\n")
	}

	row("URL", item.URL, styles.Text)
	b.WriteString(styles.MutedText.Render(fit("Status", 14)))
	b.WriteString(m.theme.Styles().StatusStyle(item.Status).Render(titleCase(string(item.Status))))
	b.WriteString("\n")
	if t := item.ParsedCreatedAt(); !t.IsZero() {
		row("Created", formatTimestamp(t, m.now()), styles.Text)
	}
	if t := item.ParsedUpdatedAt(); !t.IsZero() {
		row("Updated", formatTimestamp(t, m.now()), styles.Text)
	}

	result := d.detail.Result
	if result == nil {
		b.WriteString("\n")
		msg := "Not crawled yet."
		switch item.Status {
		case crawlapi.StatusRunning:
			msg = "Crawl in progress..."
		case crawlapi.StatusFailed:
			msg = "The last crawl failed. Press e to rerun."
		}
		b.WriteString(styles.MutedText.Render(msg))
		return b.String()
	}

	section("Page")
	row("Title", ternary(result.Title == "", "(none)", result.Title), styles.Text)
	row("HTML version", ternary(result.HTMLVersion == "", "unknown", result.HTMLVersion), styles.Text)
	row("Login form", ternary(result.HasLoginForm, "yes", "no"), ternaryStyle(result.HasLoginForm, styles.WarningText, styles.Text))

	section("Headings")
	counts := result.HeadingCounts()
	cells := make([]string, len(counts))
	for i, n := range counts {
		cells[i] = styles.MutedText.Render(fmt.Sprintf("h%d ", i+1)) + styles.Text.Render(fmt.Sprintf("%-4d", n))
	}
	b.WriteString(strings.Join(cells, styles.Text.Render(" ")))
	b.WriteString("\n")

	section("Links")
	row("Internal", fmt.Sprintf("%d", result.InternalLinks), styles.Text)
	row("External", fmt.Sprintf("%d", result.ExternalLinks), styles.Text)
	row("Inaccessible", fmt.Sprintf("%d", result.InaccessibleLinks),
		ternaryStyle(result.InaccessibleLinks > 0, styles.DangerText, styles.Text))

	if d.detail.ResultErr != nil {
		b.WriteString("\n")
		b.WriteString(styles.WarningText.Render(truncate("Broken links unavailable: "+crawlapi.Message(d.detail.ResultErr), width)))
		b.WriteString("\n")
		return strings.TrimRight(b.String(), "\n")
	}

	if len(result.BrokenLinks) > 0 {
		section(fmt.Sprintf("Broken links (%d)", len(result.BrokenLinks)))
		for i, link := range result.BrokenLinks {
			if i == maxBrokenLinks {
				b.WriteString(styles.FaintText.Render(fmt.Sprintf("... %d more", len(result.BrokenLinks)-maxBrokenLinks)))
				b.WriteString("\n")
				break
			}
			code := "ERR"
			if link.StatusCode > 0 {
				code = fmt.Sprintf("%d", link.StatusCode)
			}
			b.WriteString(styles.DangerText.Render(fit(code, 5)))
			b.WriteString(styles.Text.Render(truncate(link.URL, max(width-5, 4))))
			b.WriteString("\n")
			if msg := strings.TrimSpace(link.ErrorMessage); msg != "" && link.StatusCode == 0 {
				b.WriteString(styles.FaintText.Render("     " + truncate(msg, max(width-5, 4))))
				b.WriteString("\n")
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatTimestamp shows the time of day for today and the date otherwise.
func formatTimestamp(t time.Time, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	local := t.In(time.Local)
	if local.Year() == now.Year() && local.YearDay() == now.YearDay() {
		return local.Format("15:04:05")
	}
	return local.Format("Jan 02 15:04")
}
