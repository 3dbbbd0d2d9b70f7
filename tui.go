// bubbletea model, update loop, and commands.
//
// follows the elm architecture: model holds all dashboard state, Update
// is the state transition, View renders to string. anything that can
// block (spawning, stopping, reaping) runs inside a tea.Cmd so input
// handling never waits on a worker.

package main

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// -- messages --

type tickMsg time.Time

// actionResultMsg reports a supervisor call made from a command.
type actionResultMsg struct {
	verb string
	id   workspaceID
	err  error
}

// diagnosticMsg carries one event from a diagnostic run plus the
// stream to keep reading from.
type diagnosticMsg struct {
	event  diagnosticEvent
	events <-chan diagnosticEvent
}

// runDiagnosticMsg asks the model to start a diagnostic, e.g. at
// startup when autoLintOnStart is set.
type runDiagnosticMsg struct {
	kind diagnosticKind
}

type shutdownDoneMsg struct{}

// -- model --

type model struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *Config
	sup    *supervisor
	diag   *diagnosticRunner
	store  *stateStore // nil when the state db is unavailable
	log    *slog.Logger
	keys   keyMap
	styles styles

	// discovery output, fixed for the session
	ids  []workspaceID
	dirs map[workspaceID]string
	tree *workspaceTree // nil in flat mode

	// terminal dimensions
	width  int
	height int

	// sidebar state, rows recomputed every tick
	rows    []sidebarRow
	cursor  int
	current workspaceID

	// log pane
	logView    viewport.Model
	follow     bool
	logVersion uint64
	logFor     workspaceID

	overlay overlayState

	// flash message (e.g. after a rejected diagnostic)
	flashMsg  string
	flashTime time.Time

	quitting bool
	ready    bool
}

type modelDeps struct {
	cfg        *Config
	sup        *supervisor
	diag       *diagnosticRunner
	store      *stateStore
	log        *slog.Logger
	workspaces []workspace
	treeMode   bool
}

func newModel(ctx context.Context, deps modelDeps) model {
	logger := deps.log
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(ctx)
	m := model{
		ctx:     ctx,
		cancel:  cancel,
		cfg:     deps.cfg,
		sup:     deps.sup,
		diag:    deps.diag,
		store:   deps.store,
		log:     logger,
		keys:    defaultKeys,
		styles:  newStyles(deps.cfg.UI.Theme),
		ids:     workspaceIDs(deps.workspaces),
		dirs:    make(map[workspaceID]string, len(deps.workspaces)),
		follow:  true,
		logView: viewport.New(0, 0),
		overlay: newOverlayState(),
	}
	for _, ws := range deps.workspaces {
		m.dirs[ws.id] = ws.dir
	}
	if deps.treeMode {
		m.tree = buildTree(m.ids)
	}
	m.rows = m.computeRows()

	if m.store != nil && m.cfg.Behavior.RememberLastWorkspace {
		if last, err := m.store.lastWorkspace(); err != nil {
			m.log.Warn("reading last workspace failed", "err", err)
		} else if slices.Contains(m.ids, last) {
			m.current = last
			if i := m.rowIndex(last); i >= 0 {
				m.cursor = i
			}
		}
	}
	return m
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.tickCmd()}
	if m.cfg.Syncpack.AutoLintOnStart {
		cmds = append(cmds, func() tea.Msg { return runDiagnosticMsg{kind: diagLint} })
	}
	return tea.Batch(cmds...)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.quitting {
			return m, nil
		}
		if msg.String() == "ctrl+c" {
			return m.quit()
		}
		if m.overlay.visible {
			return m.handleOverlayKey(msg)
		}
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.resize()
		return m, nil
	case tickMsg:
		m.refresh()
		return m, m.tickCmd()
	case actionResultMsg:
		if msg.err != nil {
			m.flash(msg.verb + " failed: " + msg.err.Error())
		}
		m.refresh()
		return m, nil
	case runDiagnosticMsg:
		cmd := m.runDiagnostic(msg.kind)
		return m, cmd
	case diagnosticMsg:
		m.overlay.apply(msg.event)
		if msg.event.done {
			return m, nil
		}
		return m, waitDiagnostic(msg.events)
	case shutdownDoneMsg:
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	if !m.ready {
		return "\n  loading...\n"
	}
	return m.renderDashboard()
}

// -- key handlers --

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()
	case key.Matches(msg, m.keys.Up):
		m.cursor = max(m.cursor-1, 0)
	case key.Matches(msg, m.keys.Down):
		m.cursor = min(m.cursor+1, max(0, len(m.rows)-1))
	case key.Matches(msg, m.keys.Top):
		m.cursor = 0
	case key.Matches(msg, m.keys.Bottom):
		m.cursor = max(0, len(m.rows)-1)
	case key.Matches(msg, m.keys.Select):
		cmd = m.activate(m.cursor)
	case key.Matches(msg, m.keys.Restart):
		cmd = m.supervisorCmd("restart")
	case key.Matches(msg, m.keys.Stop):
		cmd = m.supervisorCmd("stop")
	case key.Matches(msg, m.keys.Lint):
		cmd = m.runDiagnostic(diagLint)
	case key.Matches(msg, m.keys.Fix):
		cmd = m.runDiagnostic(diagFix)
	case key.Matches(msg, m.keys.LogUp):
		m.follow = false
		m.logView.ScrollUp(1)
	case key.Matches(msg, m.keys.LogDown):
		m.logView.ScrollDown(1)
		m.follow = m.logView.AtBottom()
	case key.Matches(msg, m.keys.PageUp):
		m.follow = false
		m.logView.HalfPageUp()
	case key.Matches(msg, m.keys.PageDown):
		m.logView.HalfPageDown()
		m.follow = m.logView.AtBottom()
	case key.Matches(msg, m.keys.Follow):
		m.follow = true
		m.logView.GotoBottom()
	}
	return m, cmd
}

func (m model) handleOverlayKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Close):
		m.overlay.visible = false
	case key.Matches(msg, m.keys.Up):
		m.overlay.view.ScrollUp(1)
	case key.Matches(msg, m.keys.Down):
		m.overlay.view.ScrollDown(1)
	case key.Matches(msg, m.keys.PageUp):
		m.overlay.view.HalfPageUp()
	case key.Matches(msg, m.keys.PageDown):
		m.overlay.view.HalfPageDown()
	case key.Matches(msg, m.keys.Top):
		m.overlay.view.GotoTop()
	case key.Matches(msg, m.keys.Bottom):
		m.overlay.view.GotoBottom()
	}
	return m, nil
}

// -- actions --

// activate acts on the row at index i. leaves become the current
// workspace and get started; directories toggle. out-of-range indexes
// do nothing.
func (m *model) activate(i int) tea.Cmd {
	if i < 0 || i >= len(m.rows) {
		return nil
	}
	row := m.rows[i]
	if row.dir {
		if m.tree != nil && m.tree.toggle(row.path) {
			m.rows = m.computeRows()
			if j := m.pathIndex(row.path); j >= 0 {
				m.cursor = j
			}
		}
		return nil
	}

	m.current = row.id
	m.cursor = i
	m.follow = true
	m.syncLog(true)
	return tea.Batch(m.startCmd(row.id), m.rememberCmd(row.id))
}

func (m model) startCmd(id workspaceID) tea.Cmd {
	sup, dir := m.sup, m.dirs[id]
	return func() tea.Msg {
		return actionResultMsg{verb: "start", id: id, err: sup.start(id, dir)}
	}
}

// supervisorCmd runs restart or stop for the current workspace. a
// no-op when nothing is selected.
func (m model) supervisorCmd(verb string) tea.Cmd {
	if m.current == "" {
		return nil
	}
	sup, id := m.sup, m.current
	return func() tea.Msg {
		var err error
		switch verb {
		case "restart":
			err = sup.restart(id)
		case "stop":
			sup.stop(id)
		}
		return actionResultMsg{verb: verb, id: id, err: err}
	}
}

func (m model) rememberCmd(id workspaceID) tea.Cmd {
	if m.store == nil || !m.cfg.Behavior.RememberLastWorkspace {
		return nil
	}
	store, logger := m.store, m.log
	return func() tea.Msg {
		if err := store.setLastWorkspace(id); err != nil {
			logger.Warn("saving last workspace failed", "workspace", id, "err", err)
		}
		return nil
	}
}

// runDiagnostic opens the overlay and starts kind. while another run is
// in flight the request is rejected and the running one is shown.
func (m *model) runDiagnostic(kind diagnosticKind) tea.Cmd {
	events, err := m.diag.run(m.ctx, kind)
	if errors.Is(err, errDiagnosticBusy) {
		m.overlay.visible = true
		m.flash(err.Error())
		return nil
	}
	if err != nil {
		m.flash(err.Error())
		return nil
	}
	argv, _ := m.diag.argv(kind)
	m.overlay.begin(kind, strings.Join(argv, " "))
	return waitDiagnostic(events)
}

// quit cancels any diagnostic run and stops every worker off the
// update loop, then exits.
func (m model) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	if m.cancel != nil {
		m.cancel()
	}
	sup := m.sup
	return m, func() tea.Msg {
		sup.stopAll()
		return shutdownDoneMsg{}
	}
}

func (m *model) flash(text string) {
	m.flashMsg = text
	m.flashTime = time.Now()
}

// -- refresh --

// refresh recomputes the row list and pulls new output into the log
// pane. runs on every tick; never blocks.
func (m *model) refresh() {
	m.rows = m.computeRows()
	m.cursor = min(m.cursor, max(0, len(m.rows)-1))
	m.syncLog(false)
}

func (m model) computeRows() []sidebarRow {
	if m.tree != nil {
		return m.tree.rows()
	}
	return flatRows(m.ids)
}

// syncLog rebuilds the log pane content when the current workspace's
// buffer changed (or force is set).
func (m *model) syncLog(force bool) {
	if m.current == "" {
		return
	}
	snap, _ := m.sup.get(m.current)
	if !force && m.logFor == m.current && snap.version == m.logVersion {
		return
	}
	m.logFor = m.current
	m.logVersion = snap.version
	m.logView.SetContent(renderChunks(m.sup.bufferChunks(m.current), m.cfg.UI.ShowTimestamps, m.logView.Width))
	if m.follow {
		m.logView.GotoBottom()
	}
}

func (m *model) resize() {
	lay := computeLayout(m.width, m.height, m.cfg)
	m.logView.Width = max(1, lay.logWidth-paneChrome)
	m.logView.Height = max(1, lay.logHeight-paneChrome-logHeaderRows)
	m.overlay.resize(m.width, m.height)
	m.syncLog(true)
}

func (m model) rowIndex(id workspaceID) int {
	return slices.IndexFunc(m.rows, func(r sidebarRow) bool { return !r.dir && r.id == id })
}

func (m model) pathIndex(path string) int {
	return slices.IndexFunc(m.rows, func(r sidebarRow) bool { return r.path == path })
}

// -- commands --

func (m model) tickCmd() tea.Cmd {
	return tea.Tick(m.cfg.refreshInterval(), func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitDiagnostic(events <-chan diagnosticEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return diagnosticMsg{event: ev, events: events}
	}
}
