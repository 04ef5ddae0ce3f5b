package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/crawldeck/internal/crawlapi"
	"github.com/five82/crawldeck/internal/query"
)

// Fixed column widths in cells.
const (
	colCheck  = 3
	colID     = 6
	colStatus = 11
	colLinks  = 9
)

// renderContent lays out the table and, when open, the details pane. Wide
// terminals place them side by side; narrow ones stack them.
func (m Model) renderContent(height int) string {
	if m.logs.open {
		return m.renderTitledBox("Log", m.renderLogs(m.width-4, height-2), m.width, height, true)
	}
	if !m.details.open {
		return m.renderTitledBox(m.tableTitle(), m.renderTable(m.width-2, height-2), m.width, height, true)
	}

	if m.width >= LayoutSplitWidth {
		tableWidth := m.width * 55 / 100
		detailWidth := m.width - tableWidth
		table := m.renderTitledBox(m.tableTitle(), m.renderTable(tableWidth-2, height-2), tableWidth, height, false)
		detail := m.renderTitledBox(m.detailTitle(), m.renderDetails(detailWidth-4), detailWidth, height, true)
		return lipgloss.JoinHorizontal(lipgloss.Top, table, detail)
	}

	tableHeight := max(height/2, 3)
	detailHeight := height - tableHeight
	table := m.renderTitledBox(m.tableTitle(), m.renderTable(m.width-2, tableHeight-2), m.width, tableHeight, false)
	detail := m.renderTitledBox(m.detailTitle(), m.renderDetails(m.width-4), m.width, detailHeight, true)
	return table + "\n" + detail
}

func (m Model) tableTitle() string {
	q := m.snapshot.Query
	title := "URLs"
	var filters []string
	if q.Status != "" {
		filters = append(filters, string(q.Status))
	}
	if q.Search != "" {
		filters = append(filters, fmt.Sprintf("%q", truncate(q.Search, 20)))
	}
	if len(filters) > 0 {
		title += " (" + strings.Join(filters, ", ") + ")"
	}
	return title
}

func (m Model) detailTitle() string {
	if m.details.id == 0 {
		return "Details"
	}
	return "Details #" + itoa(m.details.id)
}

// renderTable renders a header row followed by one row per visible item.
// Rows beyond the available height scroll with the cursor.
func (m Model) renderTable(width, height int) string {
	bgColor := ternary(m.details.open, m.theme.SurfaceAlt, m.theme.FocusBg)
	styles := m.theme.Styles()
	items := m.snapshot.View.Items

	if len(items) == 0 {
		msg := "No URLs yet. Press n to add one."
		if q := m.snapshot.Query; q.Search != "" || q.Status != "" {
			msg = "No URLs match the current filters."
		}
		if m.snapshot.Loading && m.snapshot.LastUpdated.IsZero() {
			msg = "Loading..."
		}
		return lipgloss.NewStyle().
			Background(lipgloss.Color(bgColor)).
			Width(width).
			Height(max(height, 1)).
			Align(lipgloss.Center, lipgloss.Center).
			Render(styles.MutedText.Background(lipgloss.Color(bgColor)).Render(msg))
	}

	showTitle := m.width >= LayoutTitleWidth
	urlWidth, titleWidth := columnWidths(width, showTitle)

	lines := []string{m.renderTableHeader(width, bgColor, urlWidth, titleWidth)}

	rows := max(height-1, 1)
	start := 0
	if m.cursor >= rows {
		start = m.cursor - rows + 1
	}
	end := min(start+rows, len(items))
	for i := start; i < end; i++ {
		lines = append(lines, m.renderRow(items[i], width, bgColor, urlWidth, titleWidth, i == m.cursor))
	}
	return strings.Join(lines, "\n")
}

// columnWidths splits the flexible space between the URL and title columns.
func columnWidths(width int, showTitle bool) (urlWidth, titleWidth int) {
	flex := max(width-colCheck-colID-colStatus-colLinks-5, 10)
	if !showTitle {
		return flex, 0
	}
	urlWidth = flex * 55 / 100
	return urlWidth, flex - urlWidth - 1
}

func (m Model) renderTableHeader(width int, bgColor string, urlWidth, titleWidth int) string {
	bg := NewBgStyle(bgColor)
	styles := m.theme.Styles()
	label := styles.MutedText.Bold(true)
	sort := m.snapshot.Query.Sort

	heading := func(text string, col query.Column, w int) string {
		if sort.Column == col {
			text += ternary(sort.Direction == query.Asc, " ▲", " ▼")
			return bg.Render(fit(text, w), styles.AccentText.Bold(true))
		}
		return bg.Render(fit(text, w), label)
	}

	parts := []string{
		bg.Render(m.headerCheckbox(), styles.AccentText),
		bg.Render(fit("ID", colID), label),
		heading("Status", query.ColumnStatus, colStatus),
		heading("URL", query.ColumnURL, urlWidth),
	}
	if titleWidth > 0 {
		parts = append(parts, heading("Title", query.ColumnTitle, titleWidth))
	}
	parts = append(parts, heading("Links", query.ColumnInternalLinks, colLinks))

	return bg.FillLine(bg.Join(parts, " "), width)
}

// headerCheckbox reflects whether all, some or none of the visible rows are
// selected.
func (m Model) headerCheckbox() string {
	switch {
	case m.snapshot.AllSelected:
		return "[x]"
	case m.snapshot.Indeterminate:
		return "[-]"
	default:
		return "[ ]"
	}
}

func (m Model) renderRow(item crawlapi.Item, width int, bgColor string, urlWidth, titleWidth int, cursor bool) string {
	if cursor {
		bgColor = m.theme.SelectionBg
	}
	bg := NewBgStyle(bgColor)
	styles := m.theme.Styles()

	text, muted, faint := styles.Text, styles.MutedText, styles.FaintText
	if cursor {
		selText := lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.SelectionText))
		text, muted, faint = selText, selText, selText
	}

	check := ternary(m.snapshot.IsSelected(item.ID), "[x]", "[ ]")
	links := "-"
	if item.Result != nil {
		links = fmt.Sprintf("%d/%d", item.Result.InternalLinks, item.Result.ExternalLinks)
	}

	badge := styles.StatusStyle(item.Status).Render(titleCase(string(item.Status)))
	badgePad := bg.Spaces(max(colStatus-lipgloss.Width(badge), 0))

	parts := []string{
		bg.Render(check, ternaryStyle(m.snapshot.IsSelected(item.ID), styles.AccentText, faint)),
		bg.Render(fit("#"+itoa(item.ID), colID), muted),
		badge + badgePad,
		bg.Render(fit(item.URL, urlWidth), text),
	}
	if titleWidth > 0 {
		parts = append(parts, bg.Render(fit(ternary(item.Title() == "", "-", item.Title()), titleWidth), muted))
	}
	parts = append(parts, bg.Render(fit(links, colLinks), muted))

	return bg.FillLine(bg.Join(parts, " "), width)
}

// renderTitledBox renders content in a box with the title embedded in the
// top border: ┌─── Title ───┐
func (m Model) renderTitledBox(title, content string, width, height int, focused bool) string {
	borderColor, bgColor := m.theme.Border, m.theme.SurfaceAlt
	if focused {
		borderColor, bgColor = m.theme.BorderFocus, m.theme.FocusBg
	}
	bg := NewBgStyle(bgColor)
	borderStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(borderColor))
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(m.theme.Text))

	innerWidth := max(width-2, 1)
	title = truncate(title, max(innerWidth-4, 1))
	titleLen := lipgloss.Width(title)
	leftPad := max((innerWidth-titleLen-2)/2, 0)
	rightPad := max(innerWidth-titleLen-2-leftPad, 0)

	top := bg.Render("┌", borderStyle) +
		bg.Render(strings.Repeat("─", leftPad), borderStyle) +
		bg.Render(" "+title+" ", titleStyle) +
		bg.Render(strings.Repeat("─", rightPad), borderStyle) +
		bg.Render("┐", borderStyle)
	bottom := bg.Render("└", borderStyle) +
		bg.Render(strings.Repeat("─", innerWidth), borderStyle) +
		bg.Render("┘", borderStyle)

	contentStyle := lipgloss.NewStyle().Width(innerWidth).MaxWidth(innerWidth).Background(lipgloss.Color(bgColor))
	lines := strings.Split(content, "\n")
	body := make([]string, 0, max(height-2, 0))
	for i := 0; i < height-2; i++ {
		var line string
		if i < len(lines) {
			line = lines[i]
		}
		body = append(body, bg.Render("│", borderStyle)+contentStyle.Render(line)+bg.Render("│", borderStyle))
	}
	if len(body) == 0 {
		return top + "\n" + bottom
	}
	return top + "\n" + strings.Join(body, "\n") + "\n" + bottom
}
