// diagnostic overlay: a modal box streaming syncpack output.
//
// the overlay stays up after the run finishes; only the user closes
// it. while visible it captures scroll and close keys. rendering
// splices the box over the dashboard so the panes stay visible around
// it.

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

type overlayState struct {
	visible bool
	kind    diagnosticKind
	running bool
	failed  bool

	content string
	carry   string // trailing \r held for the next event
	view    viewport.Model

	boxWidth  int
	boxHeight int
}

func newOverlayState() overlayState {
	return overlayState{view: viewport.New(0, 0)}
}

// begin resets the overlay for a new run and shows it.
func (o *overlayState) begin(kind diagnosticKind, command string) {
	o.visible = true
	o.kind = kind
	o.running = true
	o.failed = false
	o.carry = ""
	o.content = fmt.Sprintf("%s...\n$ %s\n\n", kind.title(), command)
	o.sync()
}

// apply folds one runner event into the overlay and keeps it scrolled
// to the bottom.
func (o *overlayState) apply(ev diagnosticEvent) {
	text := o.carry + ev.text
	o.carry = ""
	if !ev.done && strings.HasSuffix(text, "\r") {
		text, o.carry = text[:len(text)-1], "\r"
	}
	o.content += cleanOutput(text)
	if ev.done {
		o.running = false
		if !strings.HasSuffix(o.content, "\n") {
			o.content += "\n"
		}
		if ev.err != nil {
			o.failed = true
			o.content += fmt.Sprintf("\n✖ error: %v\n", ev.err)
		} else {
			o.content += fmt.Sprintf("\n✔ done: %s (%s)\n", ev.exit, ev.took.Round(10*time.Millisecond))
		}
	}
	o.sync()
}

func (o *overlayState) sync() {
	width := max(1, o.view.Width)
	o.view.SetContent(ansi.Hardwrap(o.content, width, true))
	o.view.GotoBottom()
}

// resize sizes the box at 80% x 70% of the terminal.
func (o *overlayState) resize(width, height int) {
	o.boxWidth = min(width, max(24, width*4/5))
	o.boxHeight = min(height, max(8, height*7/10))
	// border 2 + padding 2 horizontally; border 2 + title + hint vertically
	o.view.Width = max(1, o.boxWidth-4)
	o.view.Height = max(1, o.boxHeight-4)
	o.sync()
}

func (m model) renderOverlay() string {
	o := m.overlay
	st := m.styles

	state := st.running.Render("running")
	switch {
	case o.running:
	case o.failed:
		state = st.errorText.Render("failed")
	default:
		state = st.stopped.Render("finished")
	}
	title := st.header.Render("syncpack "+string(o.kind)) + "  " + state

	hint := fmt.Sprintf("%3.f%%  ", o.view.ScrollPercent()*100) +
		st.key.Render("↑/↓") + " " + st.help.Render("scroll") + "  " +
		st.key.Render("esc") + " " + st.help.Render("close")

	body := lipgloss.JoinVertical(lipgloss.Left,
		ansi.Truncate(title, o.view.Width, "…"),
		o.view.View(),
		ansi.Truncate(hint, o.view.Width, "…"),
	)
	return st.overlayBox.
		Width(o.boxWidth - 2).
		Height(o.boxHeight - 2).
		Render(body)
}

// spliceOverlay replaces a rectangle of a rendered view with overlay,
// anchored at (x, y). ANSI-aware so styling on either side survives.
func spliceOverlay(view, overlay string, x, y int) string {
	viewLines := strings.Split(view, "\n")
	overlayLines := strings.Split(overlay, "\n")
	if len(overlayLines) == 0 {
		return view
	}
	overlayWidth := ansi.StringWidth(overlayLines[0])

	for i, line := range overlayLines {
		row := y + i
		if row < 0 || row >= len(viewLines) {
			continue
		}
		base := viewLines[row]
		baseWidth := ansi.StringWidth(base)

		var b strings.Builder
		if x > 0 {
			prefix := ansi.Truncate(base, x, "")
			b.WriteString(prefix)
			if pad := x - ansi.StringWidth(prefix); pad > 0 {
				b.WriteString(strings.Repeat(" ", pad))
			}
		}
		b.WriteString("\x1b[0m")
		b.WriteString(line)
		b.WriteString("\x1b[0m")
		if end := x + overlayWidth; end < baseWidth {
			b.WriteString(ansi.TruncateLeft(base, end, ""))
		}
		viewLines[row] = b.String()
	}
	return strings.Join(viewLines, "\n")
}
