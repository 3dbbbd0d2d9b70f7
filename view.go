// rendering: layout policy, sidebar, log pane, footer, overlay.
//
// styles keep the status-driven color encoding: green = running,
// dim = stopped, red = error, cyan for structure. the light theme swaps
// the bright foregrounds for dark ones.

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/dustin/go-humanize"
)

// -- styles --

type styles struct {
	// structural
	header lipgloss.Style
	dim    lipgloss.Style
	key    lipgloss.Style
	help   lipgloss.Style
	border lipgloss.Style
	active lipgloss.Style // border of the focused pane

	// status colors
	running   lipgloss.Style
	stopped   lipgloss.Style
	errorText lipgloss.Style
	flash     lipgloss.Style

	// rows
	selected lipgloss.Style
	current  lipgloss.Style
	dir      lipgloss.Style

	overlayBox lipgloss.Style
}

func newStyles(theme string) styles {
	fg, accent, selFg := lipgloss.Color("15"), lipgloss.Color("6"), lipgloss.Color("0")
	if theme == "light" {
		fg, accent, selFg = lipgloss.Color("0"), lipgloss.Color("4"), lipgloss.Color("15")
	}
	return styles{
		header: lipgloss.NewStyle().Foreground(accent).Bold(true),
		dim:    lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		key:    lipgloss.NewStyle().Foreground(fg),
		help:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")),
		active: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent),

		running:   lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		stopped:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		errorText: lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		flash:     lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true),

		selected: lipgloss.NewStyle().Background(accent).Foreground(selFg),
		current:  lipgloss.NewStyle().Foreground(fg).Bold(true),
		dir:      lipgloss.NewStyle().Foreground(accent),

		overlayBox: lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(accent).
			Padding(0, 1),
	}
}

// -- layout --

// logHeaderRows is the status line above the log viewport.
const logHeaderRows = 1

// layout is the outer size of each pane, borders included.
type layout struct {
	stacked bool

	sidebarWidth  int
	sidebarHeight int
	logWidth      int
	logHeight     int
}

// computeLayout splits the terminal between sidebar and log pane, one
// row reserved for the footer. narrow terminals stack the sidebar on
// top at a fixed share of the height.
func computeLayout(width, height int, cfg *Config) layout {
	body := max(0, height-1)
	if width < cfg.UI.MinWidthForLandscape {
		side := max(paneChrome+1, body*stackedSidebar/100)
		return layout{
			stacked:       true,
			sidebarWidth:  width,
			sidebarHeight: side,
			logWidth:      width,
			logHeight:     max(0, body-side),
		}
	}
	side := min(max(width*cfg.UI.SidebarWidth/100, sidebarMinWidth), width)
	return layout{
		sidebarWidth:  side,
		sidebarHeight: body,
		logWidth:      max(0, width-side),
		logHeight:     body,
	}
}

// -- dashboard --

func (m model) renderDashboard() string {
	lay := computeLayout(m.width, m.height, m.cfg)

	sidebar := m.renderSidebar(lay.sidebarWidth, lay.sidebarHeight)
	logPane := m.renderLogPane(lay.logWidth, lay.logHeight)

	var body string
	if lay.stacked {
		body = lipgloss.JoinVertical(lipgloss.Left, sidebar, logPane)
	} else {
		body = lipgloss.JoinHorizontal(lipgloss.Top, sidebar, logPane)
	}
	view := body + "\n" + m.renderFooter()

	if m.overlay.visible {
		box := m.renderOverlay()
		x := max(0, (m.width-lipgloss.Width(box))/2)
		y := max(0, (m.height-lipgloss.Height(box))/2)
		view = spliceOverlay(view, box, x, y)
	}
	return view
}

// -- sidebar --

func (m model) renderSidebar(width, height int) string {
	innerW := max(1, width-paneChrome)
	innerH := max(1, height-paneChrome)

	lines := []string{m.styles.header.Render(ansi.Truncate(" Workspaces ", innerW, ""))}
	listH := max(0, innerH-1)

	// keep the cursor in view
	offset := 0
	if m.cursor >= listH && listH > 0 {
		offset = m.cursor - listH + 1
	}
	end := min(offset+listH, len(m.rows))
	for i := offset; i < end; i++ {
		lines = append(lines, m.renderRow(m.rows[i], i == m.cursor, innerW))
	}
	if len(m.rows) == 0 {
		lines = append(lines, m.styles.dim.Render(" (no workspaces)"))
	}

	return m.styles.border.
		Width(innerW).
		Height(innerH).
		Render(strings.Join(lines, "\n"))
}

func (m model) renderRow(row sidebarRow, selected bool, width int) string {
	indent := strings.Repeat("  ", row.depth)

	if row.dir {
		arrow := "▾"
		if row.collapsed {
			arrow = "▸"
		}
		text := ansi.Truncate(" "+indent+arrow+" "+row.label+"/", width, "…")
		if selected {
			return m.styles.selected.Render(truncOrPad(text, width))
		}
		return m.styles.dir.Render(text)
	}

	marker := " "
	if row.id == m.current {
		marker = "▌"
	}
	glyph, glyphStyle := "—", m.styles.stopped
	if m.sup.isRunning(row.id) {
		glyph, glyphStyle = "●", m.styles.running
	}
	prefix := marker + indent
	label := ansi.Truncate(" "+row.label, max(0, width-ansi.StringWidth(prefix+glyph)), "…")

	if selected {
		return m.styles.selected.Render(truncOrPad(prefix+glyph+label, width))
	}
	labelStyle := lipgloss.NewStyle()
	if row.id == m.current {
		labelStyle = m.styles.current
	}
	return labelStyle.Render(prefix) + glyphStyle.Render(glyph) + labelStyle.Render(label)
}

// -- log pane --

func (m model) renderLogPane(width, height int) string {
	innerW := max(1, width-paneChrome)
	innerH := max(1, height-paneChrome)

	var content string
	if m.current == "" {
		hint := fmt.Sprintf("%s\n\n%d workspaces. select one and press enter to start it.",
			shortPath(m.cfg.root, innerW), len(m.ids))
		content = m.styles.dim.Render(ansi.Hardwrap(hint, innerW, true))
	} else {
		content = m.renderStatusLine(innerW) + "\n" + m.logView.View()
	}

	return m.styles.active.
		Width(innerW).
		Height(innerH).
		Render(content)
}

// renderStatusLine summarizes the current worker: state, pid, uptime,
// restarts, buffered bytes, last exit.
func (m model) renderStatusLine(width int) string {
	snap, ok := m.sup.get(m.current)
	name := m.styles.header.Render(m.current)
	if !ok {
		return ansi.Truncate(name+"  "+m.styles.dim.Render("not started"), width, "…")
	}

	var parts []string
	if snap.running {
		parts = append(parts,
			m.styles.running.Render("● running"),
			fmt.Sprintf("pid %d", snap.pid),
			"up since "+humanize.Time(snap.startedAt),
		)
	} else {
		state := m.styles.stopped.Render("— stopped")
		if snap.lastExit != "" && snap.lastExit != "stopped" {
			state = m.styles.errorText.Render("— " + snap.lastExit)
		}
		parts = append(parts, state)
	}
	if snap.restarts > 0 {
		parts = append(parts, fmt.Sprintf("%d restarts", snap.restarts))
	}
	parts = append(parts, humanize.Bytes(uint64(snap.bufferBytes)))
	if !m.follow {
		parts = append(parts, m.styles.flash.Render("paused"))
	}

	line := name + "  " + parts[0] + "  " + m.styles.dim.Render(strings.Join(parts[1:], " · "))
	return ansi.Truncate(line, width, "…")
}

// -- footer --

func (m model) renderFooter() string {
	if m.quitting {
		return m.styles.flash.Render(" stopping workers...")
	}

	binds := m.keys.sidebarHelp()
	if m.overlay.visible {
		binds = m.keys.overlayHelp()
	}
	bar := " " + m.helpBar(binds)

	if m.flashMsg != "" && time.Since(m.flashTime) < 1500*time.Millisecond {
		flash := m.styles.flash.Render(" " + m.flashMsg + " ")
		barWidth := lipgloss.Width(bar)
		flashWidth := lipgloss.Width(flash)
		if barWidth+flashWidth < m.width {
			return bar + strings.Repeat(" ", m.width-barWidth-flashWidth) + flash
		}
		return ansi.Truncate(flash, m.width, "…")
	}
	return ansi.Truncate(bar, m.width, "…")
}

func (m model) helpBar(binds []key.Binding) string {
	parts := make([]string, 0, len(binds))
	for _, b := range binds {
		h := b.Help()
		parts = append(parts, m.styles.key.Render(h.Key)+" "+m.styles.help.Render(h.Desc))
	}
	return strings.Join(parts, "  ")
}
