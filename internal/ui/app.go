package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/crawldeck/internal/collection"
	"github.com/five82/crawldeck/internal/crawlapi"
	"github.com/five82/crawldeck/internal/logtail"
	"github.com/five82/crawldeck/internal/prefs"
	"github.com/five82/crawldeck/internal/query"
	"github.com/five82/crawldeck/internal/state"
)

// Controller is the part of the sync controller the UI drives.
// *collection.Controller implements it.
type Controller interface {
	Refresh(ctx context.Context)
	SetSearch(ctx context.Context, search string)
	SetStatusFilter(ctx context.Context, status crawlapi.Status)
	ToggleSort(ctx context.Context, col query.Column)
	SetPage(ctx context.Context, page int)

	Add(ctx context.Context, rawURL string) error
	Start(ctx context.Context, id int64) error
	Stop(ctx context.Context, id int64) error
	Rerun(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
	BulkDelete(ctx context.Context, ids []int64) error
	BulkRerun(ctx context.Context, ids []int64) error

	SelectAll(checked bool)
	Toggle(id int64, checked bool)
	Details(ctx context.Context, id int64) (collection.Detail, error)
}

var _ Controller = (*collection.Controller)(nil)

// inputMode is what the keyboard currently drives.
type inputMode int

const (
	modeNormal inputMode = iota
	modeSearch
	modeAdd
	modeConfirm
)

// statusCycle is the order the status filter steps through; "" means all.
var statusCycle = []crawlapi.Status{
	"",
	crawlapi.StatusQueued,
	crawlapi.StatusRunning,
	crawlapi.StatusCompleted,
	crawlapi.StatusFailed,
}

// Options configures the UI.
type Options struct {
	Context    context.Context
	Controller Controller
	Store      *state.Store
	User       string
	Prefs      prefs.Prefs
	PrefsPath  string // empty disables saving preferences
	LogPath    string // empty disables the log view
	Tick       time.Duration
}

// confirmation is a pending destructive action.
type confirmation struct {
	prompt string
	run    tea.Cmd
}

type flashMessage struct {
	text    string
	isError bool
	until   time.Time
}

// detailState is the details pane.
type detailState struct {
	open    bool
	id      int64
	loading bool
	detail  collection.Detail
	err     error
}

// Model is the root application state for Bubble Tea.
type Model struct {
	// Configuration
	ctx       context.Context
	ctrl      Controller
	store     *state.Store
	user      string
	prefs     prefs.Prefs
	prefsPath string
	logPath   string
	tick      time.Duration
	keys      keyMap
	now       func() time.Time

	// UI state
	theme    Theme
	width    int
	height   int
	ready    bool
	mode     inputMode
	input    textinput.Model
	spinner  spinner.Model
	showHelp bool
	confirm  *confirmation
	flash    flashMessage

	// Data state
	snapshot       state.Snapshot
	cursor         int
	details        detailState
	sessionExpired bool
	logs           logState
}

// logState is the log view.
type logState struct {
	open  bool
	lines []logtail.Line
	err   error
}

// New creates a new Bubble Tea model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	tick := opts.Tick
	if tick <= 0 {
		tick = DefaultUIInterval
	}
	themeName := opts.Prefs.Theme
	if themeName == "" {
		themeName = defaultThemeName
	}

	input := textinput.New()
	input.CharLimit = 2048

	m := Model{
		ctx:       ctx,
		ctrl:      opts.Controller,
		store:     opts.Store,
		user:      opts.User,
		prefs:     opts.Prefs,
		prefsPath: opts.PrefsPath,
		logPath:   opts.LogPath,
		tick:      tick,
		keys:      DefaultKeyMap(),
		now:       time.Now,
		theme:     GetTheme(themeName),
		input:     input,
		spinner:   spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
	if m.store != nil {
		m.snapshot = m.store.Snapshot()
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		tickCmd(m.tick),
		m.spinner.Tick,
	}
	if m.store != nil {
		cmds = append(cmds, fetchSnapshotCmd(m.store))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		return m, nil

	case tickMsg:
		if !m.flash.until.IsZero() && m.now().After(m.flash.until) {
			m.flash = flashMessage{}
		}
		cmds := []tea.Cmd{tickCmd(m.tick)}
		if m.store != nil {
			cmds = append(cmds, fetchSnapshotCmd(m.store))
		}
		if m.logs.open {
			cmds = append(cmds, loadLogsCmd(m.logPath))
		}
		return m, tea.Batch(cmds...)

	case snapshotMsg:
		m.applySnapshot(state.Snapshot(msg))
		return m, nil

	case actionDoneMsg:
		m.handleActionDone(msg)
		if m.store != nil {
			return m, fetchSnapshotCmd(m.store)
		}
		return m, nil

	case detailsMsg:
		if msg.id != m.details.id || !m.details.open {
			return m, nil
		}
		m.details.loading = false
		m.details.detail = msg.detail
		m.details.err = msg.err
		if errors.Is(msg.err, crawlapi.ErrUnauthorized) {
			m.sessionExpired = true
		}
		return m, nil

	case logsMsg:
		if m.logs.open {
			m.logs.lines = msg.lines
			m.logs.err = msg.err
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if m.mode == modeSearch || m.mode == modeAdd {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}
	return m.renderMain()
}

func (m *Model) applySnapshot(snap state.Snapshot) {
	if snap.Version < m.snapshot.Version {
		return
	}
	m.snapshot = snap
	if errors.Is(snap.LastError, crawlapi.ErrUnauthorized) {
		m.sessionExpired = true
	}
	if n := len(snap.View.Items); m.cursor >= n {
		m.cursor = max(n-1, 0)
	}
}

func (m *Model) handleActionDone(msg actionDoneMsg) {
	if msg.err == nil {
		if msg.success != "" {
			m.setFlash(msg.success, false)
		}
		return
	}
	if errors.Is(msg.err, crawlapi.ErrUnauthorized) {
		m.sessionExpired = true
	}
	m.setFlash(fmt.Sprintf("%s failed: %s", msg.op, crawlapi.Message(msg.err)), true)
}

func (m *Model) setFlash(text string, isError bool) {
	m.flash = flashMessage{text: text, isError: isError, until: m.now().Add(FlashDuration)}
}

// handleKey routes a key press to the active overlay, prompt or table.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	if m.showHelp {
		// Any key closes help
		m.showHelp = false
		return m, nil
	}
	switch m.mode {
	case modeSearch, modeAdd:
		return m.handleInputKey(msg)
	case modeConfirm:
		return m.handleConfirmKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		m.prefs.Theme = m.theme.Name
		m.savePrefs()
		return m, nil

	case key.Matches(msg, m.keys.Escape):
		if m.logs.open {
			m.logs = logState{}
			return m, nil
		}
		m.details = detailState{}
		return m, nil

	case key.Matches(msg, m.keys.Logs):
		if m.logPath == "" {
			m.setFlash("no log file configured", true)
			return m, nil
		}
		if m.logs.open {
			m.logs = logState{}
			return m, nil
		}
		m.logs.open = true
		return m, loadLogsCmd(m.logPath)

	case key.Matches(msg, m.keys.Search):
		return m, m.startInput(modeSearch, "/ ", "search url or title", m.snapshot.Query.Search)

	case key.Matches(msg, m.keys.Add):
		return m, m.startInput(modeAdd, "+ ", "https://example.com", "")

	case key.Matches(msg, m.keys.CycleStatus):
		next := nextStatus(m.snapshot.Query.Status)
		return m, m.queryCmd(func(ctx context.Context) { m.ctrl.SetStatusFilter(ctx, next) })

	case key.Matches(msg, m.keys.SortURL):
		return m, m.sortBy(query.ColumnURL)
	case key.Matches(msg, m.keys.SortStatus):
		return m, m.sortBy(query.ColumnStatus)
	case key.Matches(msg, m.keys.SortTitle):
		return m, m.sortBy(query.ColumnTitle)
	case key.Matches(msg, m.keys.SortLinks):
		return m, m.sortBy(query.ColumnInternalLinks)
	case key.Matches(msg, m.keys.SortCreated):
		return m, m.sortBy(query.ColumnCreatedAt)

	case key.Matches(msg, m.keys.Refresh):
		return m, m.queryCmd(m.ctrl.Refresh)

	case key.Matches(msg, m.keys.PrevPage):
		view := m.snapshot.View
		if view.Page <= 1 {
			return m, nil
		}
		page := view.Page - 1
		return m, m.queryCmd(func(ctx context.Context) { m.ctrl.SetPage(ctx, page) })

	case key.Matches(msg, m.keys.NextPage):
		view := m.snapshot.View
		if view.Page >= view.TotalPages {
			return m, nil
		}
		page := view.Page + 1
		return m, m.queryCmd(func(ctx context.Context) { m.ctrl.SetPage(ctx, page) })

	case key.Matches(msg, m.keys.SelectAll):
		checked := !m.snapshot.AllSelected
		return m, m.syncCmd(func() { m.ctrl.SelectAll(checked) })

	case key.Matches(msg, m.keys.BulkRerun):
		ids := m.snapshot.Selected
		if len(ids) == 0 {
			m.setFlash("nothing selected", true)
			return m, nil
		}
		return m, m.actionCmd("bulk rerun", fmt.Sprintf("rerunning %d URLs", len(ids)), func(ctx context.Context) error {
			return m.ctrl.BulkRerun(ctx, ids)
		})

	case key.Matches(msg, m.keys.BulkDelete):
		ids := m.snapshot.Selected
		if len(ids) == 0 {
			m.setFlash("nothing selected", true)
			return m, nil
		}
		m.askConfirm(fmt.Sprintf("Delete %d selected URLs?", len(ids)),
			m.actionCmd("bulk delete", fmt.Sprintf("deleted %d URLs", len(ids)), func(ctx context.Context) error {
				return m.ctrl.BulkDelete(ctx, ids)
			}))
		return m, nil
	}

	return m.handleTableKey(msg)
}

// handleTableKey handles keys that act on the cursor row.
func (m Model) handleTableKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	items := m.snapshot.View.Items
	if len(items) == 0 {
		return m, nil
	}
	item := items[min(m.cursor, len(items)-1)]

	switch {
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(items)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Top):
		m.cursor = 0
	case key.Matches(msg, m.keys.Bottom):
		m.cursor = len(items) - 1

	case key.Matches(msg, m.keys.Toggle):
		checked := !m.snapshot.IsSelected(item.ID)
		return m, m.syncCmd(func() { m.ctrl.Toggle(item.ID, checked) })

	case key.Matches(msg, m.keys.Details):
		m.details = detailState{open: true, id: item.ID, loading: true}
		return m, m.detailsCmd(item.ID)

	case key.Matches(msg, m.keys.Start):
		return m, m.actionCmd("start", "started #"+itoa(item.ID), func(ctx context.Context) error {
			return m.ctrl.Start(ctx, item.ID)
		})
	case key.Matches(msg, m.keys.Stop):
		return m, m.actionCmd("stop", "stopped #"+itoa(item.ID), func(ctx context.Context) error {
			return m.ctrl.Stop(ctx, item.ID)
		})
	case key.Matches(msg, m.keys.Rerun):
		return m, m.actionCmd("rerun", "rerunning #"+itoa(item.ID), func(ctx context.Context) error {
			return m.ctrl.Rerun(ctx, item.ID)
		})
	case key.Matches(msg, m.keys.Delete):
		m.askConfirm(fmt.Sprintf("Delete %s?", truncate(item.URL, 60)),
			m.actionCmd("delete", "deleted #"+itoa(item.ID), func(ctx context.Context) error {
				return m.ctrl.Delete(ctx, item.ID)
			}))
	}
	return m, nil
}

func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.stopInput()
		return m, nil
	case "enter":
		value := strings.TrimSpace(m.input.Value())
		mode := m.mode
		m.stopInput()
		if mode == modeSearch {
			return m, m.queryCmd(func(ctx context.Context) { m.ctrl.SetSearch(ctx, value) })
		}
		return m, m.actionCmd("add", "added "+truncate(value, 60), func(ctx context.Context) error {
			return m.ctrl.Add(ctx, value)
		})
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleConfirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Yes):
		run := m.confirm.run
		m.confirm = nil
		m.mode = modeNormal
		return m, run
	case key.Matches(msg, m.keys.No):
		m.confirm = nil
		m.mode = modeNormal
	}
	return m, nil
}

func (m *Model) startInput(mode inputMode, prompt, placeholder, value string) tea.Cmd {
	m.mode = mode
	m.input.Prompt = prompt
	m.input.Placeholder = placeholder
	m.input.SetValue(value)
	m.input.CursorEnd()
	return m.input.Focus()
}

func (m *Model) stopInput() {
	m.mode = modeNormal
	m.input.Blur()
	m.input.SetValue("")
}

func (m *Model) askConfirm(prompt string, run tea.Cmd) {
	m.mode = modeConfirm
	m.confirm = &confirmation{prompt: prompt, run: run}
}

func (m *Model) sortBy(col query.Column) tea.Cmd {
	m.prefs = m.prefs.WithSort(m.snapshot.Query.Sort.Toggle(col))
	m.savePrefs()
	return m.queryCmd(func(ctx context.Context) { m.ctrl.ToggleSort(ctx, col) })
}

func (m *Model) savePrefs() {
	if m.prefsPath == "" {
		return
	}
	_ = prefs.Save(m.prefsPath, m.prefs)
}

func nextStatus(current crawlapi.Status) crawlapi.Status {
	for i, s := range statusCycle {
		if s == current {
			return statusCycle[(i+1)%len(statusCycle)]
		}
	}
	return statusCycle[0]
}

// Messages

type tickMsg time.Time

type snapshotMsg state.Snapshot

type actionDoneMsg struct {
	op      string
	success string
	err     error
}

type detailsMsg struct {
	id     int64
	detail collection.Detail
	err    error
}

type logsMsg struct {
	lines []logtail.Line
	err   error
}

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchSnapshotCmd(store *state.Store) tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(store.Snapshot())
	}
}

func loadLogsCmd(path string) tea.Cmd {
	return func() tea.Msg {
		lines, err := logtail.Tail(path, maxLogLines)
		return logsMsg{lines: lines, err: err}
	}
}

// queryCmd runs a query change and reports the resulting snapshot.
func (m Model) queryCmd(fn func(context.Context)) tea.Cmd {
	ctx, store := m.ctx, m.store
	return func() tea.Msg {
		fn(ctx)
		return snapshotMsg(store.Snapshot())
	}
}

// syncCmd runs a selection change and reports the resulting snapshot.
func (m Model) syncCmd(fn func()) tea.Cmd {
	store := m.store
	return func() tea.Msg {
		fn()
		return snapshotMsg(store.Snapshot())
	}
}

func (m Model) actionCmd(op, success string, fn func(context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return actionDoneMsg{op: op, success: success, err: fn(ctx)}
	}
}

func (m Model) detailsCmd(id int64) tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		detail, err := ctrl.Details(ctx, id)
		return detailsMsg{id: id, detail: detail, err: err}
	}
}

// Run starts the Bubble Tea program and blocks until the user quits or ctx
// is cancelled.
func Run(opts Options) error {
	if opts.Controller == nil || opts.Store == nil {
		return fmt.Errorf("ui requires a controller and a store")
	}
	var programOpts []tea.ProgramOption
	programOpts = append(programOpts, tea.WithAltScreen())
	if opts.Context != nil {
		programOpts = append(programOpts, tea.WithContext(opts.Context))
	}
	p := tea.NewProgram(New(opts), programOpts...)
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && opts.Context != nil && opts.Context.Err() != nil {
		return nil
	}
	return err
}
