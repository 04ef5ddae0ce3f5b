package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/crawldeck/internal/crawlapi"
	"github.com/five82/crawldeck/internal/query"
)

const sessionExpiredBanner = "session expired, run `crawldeck login`"

// renderMain renders the full UI: header, command bar, status line, content
// and footer.
func (m Model) renderMain() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderCommandBar())
	b.WriteString("\n")
	b.WriteString(m.renderStatusLine())
	b.WriteString("\n")
	b.WriteString(m.renderContent(max(m.height-4, 3)))
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

// renderHeader renders the status bar.
func (m Model) renderHeader() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	bg := NewBgStyle(m.theme.Surface)
	compact := m.width < LayoutCompactWidth
	snap := m.snapshot

	parts := []string{bg.Render("crawldeck", styles.Logo)}

	user := m.user
	if user == "" {
		user = "anonymous"
	}
	parts = append(parts, bg.Render("●", ternaryStyle(m.sessionExpired, styles.DangerText, styles.SuccessText))+
		bg.Space()+bg.Render(user, styles.Text))

	parts = append(parts,
		bg.Render("URLs:", styles.MutedText)+bg.Space()+bg.Render(fmt.Sprintf("%d", snap.View.Total), styles.Text))
	if n := len(snap.Selected); n > 0 {
		parts = append(parts,
			bg.Render("Selected:", styles.MutedText)+bg.Space()+bg.Render(fmt.Sprintf("%d", n), styles.AccentText))
	}

	switch {
	case snap.Loading:
		parts = append(parts, bg.Render(m.spinner.View(), styles.InfoText)+bg.Render("Loading", styles.InfoText))
	case snap.Polling():
		parts = append(parts, bg.Render("Live", styles.InfoText))
	}

	if !snap.LastUpdated.IsZero() {
		label := snap.LastUpdated.Format("15:04:05")
		if !compact {
			label = "Updated " + label
		}
		parts = append(parts, bg.Render(label, styles.MutedText))
	}

	if snap.IsOffline() {
		parts = append(parts, bg.Render("OFFLINE", styles.DangerText))
	}
	if snap.LastError != nil && !errors.Is(snap.LastError, crawlapi.ErrUnauthorized) {
		limit := ternaryInt(compact, 30, 60)
		parts = append(parts,
			bg.Render("ERROR", styles.DangerText)+bg.Space()+
				bg.Render(truncate(crawlapi.Message(snap.LastError), limit), styles.DangerText))
	}

	return styles.Header.Width(m.width).Render(bg.Join(parts, "  "))
}

// renderCommandBar renders the query state and the most used key hints.
func (m Model) renderCommandBar() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	bg := NewBgStyle(m.theme.Surface)
	q := m.snapshot.Query

	type cmd struct{ key, desc string }
	commands := []cmd{
		{"/", ternary(q.Search == "", "Search", "“"+truncate(q.Search, 20)+"”")},
		{"f", "Status " + statusLabel(q.Status)},
		{"1-5", "Sort " + sortLabel(q.Sort)},
		{"n", "Add"},
		{"s/x/e", "Start/Stop/Rerun"},
		{"space", "Select"},
		{"enter", "Details"},
		{"?", "More"},
	}
	if m.width < LayoutCompactWidth {
		commands = commands[:3]
		commands = append(commands, cmd{"?", "More"})
	}

	colon := bg.Sep(":")
	segments := make([]string, 0, len(commands)+1)
	for _, c := range commands {
		segments = append(segments,
			bg.Render(c.key, styles.AccentText)+colon+bg.Render(c.desc, styles.MutedText))
	}
	segments = append(segments,
		bg.Render("T", styles.AccentText)+colon+bg.Render(m.theme.Name, styles.FaintText))

	return styles.Header.Width(m.width).Render(strings.Join(segments, bg.Spaces(2)))
}

// renderStatusLine shows, in priority order, the active prompt, the expired
// session banner or the latest flash message.
func (m Model) renderStatusLine() string {
	styles := m.theme.Styles().WithBackground(m.theme.Background)
	bg := NewBgStyle(m.theme.Background)

	var content string
	switch {
	case m.mode == modeSearch || m.mode == modeAdd:
		content = m.input.View()
	case m.mode == modeConfirm && m.confirm != nil:
		content = bg.Render(m.confirm.prompt, styles.WarningText.Bold(true)) + bg.Space() +
			bg.Render("[y/n]", styles.MutedText)
	case m.sessionExpired:
		content = bg.Render(sessionExpiredBanner, styles.DangerText)
	case m.flash.text != "":
		style := ternaryStyle(m.flash.isError, styles.DangerText, styles.SuccessText)
		content = bg.Render(truncate(m.flash.text, max(m.width-2, 10)), style)
	}
	return lipgloss.NewStyle().
		Background(lipgloss.Color(m.theme.Background)).
		Padding(0, 1).
		Width(m.width).
		MaxHeight(1).
		Render(content)
}

// renderFooter shows pagination when there is more than one page, and the
// visible range otherwise.
func (m Model) renderFooter() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	bg := NewBgStyle(m.theme.Surface)
	view := m.snapshot.View

	var parts []string
	if from, to := view.Range(); to > 0 {
		parts = append(parts, bg.Render(fmt.Sprintf("%d-%d of %d", from, to, view.Total), styles.MutedText))
	}
	if view.ShowPagination() {
		parts = append(parts,
			bg.Render(fmt.Sprintf("Page %d of %d", view.Page, view.TotalPages), styles.Text),
			bg.Render("[", styles.AccentText)+bg.Sep(":")+bg.Render("Prev", styles.MutedText)+bg.Spaces(2)+
				bg.Render("]", styles.AccentText)+bg.Sep(":")+bg.Render("Next", styles.MutedText),
		)
	}
	return styles.Header.Width(m.width).Render(bg.Join(parts, "  ·  "))
}

func statusLabel(s crawlapi.Status) string {
	if s == "" {
		return "All"
	}
	return titleCase(string(s))
}

func sortLabel(s query.Sort) string {
	arrow := ternary(s.Direction == query.Asc, "▲", "▼")
	return titleCase(string(s.Column)) + " " + arrow
}

func ternaryStyle(cond bool, a, b lipgloss.Style) lipgloss.Style {
	if cond {
		return a
	}
	return b
}

func ternaryInt(cond bool, a, b int) int {
	if cond {
		return a
	}
	return b
}
