// formatting helpers: output cleanup, log rendering, padding.
// no lipgloss dependency; pure string transformations.

package main

import (
	"os"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// cleanOutput normalizes line endings in worker output. carriage
// returns from progress bars would otherwise rewind the terminal
// cursor mid-pane, so a lone \r becomes a line break.
func cleanOutput(s string) string {
	if !strings.ContainsRune(s, '\r') {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// renderChunks joins buffered chunks into log pane content, hard
// wrapped to width. with timestamps on, every line that starts inside
// a chunk gets the chunk's arrival time. a \r ending one chunk is held
// back so a \r\n split across two reads still folds to one break.
func renderChunks(chunks []chunk, timestamps bool, width int) string {
	var b strings.Builder
	atLineStart := true
	carry := ""
	for i, c := range chunks {
		raw := carry + c.text
		carry = ""
		if i < len(chunks)-1 && strings.HasSuffix(raw, "\r") {
			raw, carry = raw[:len(raw)-1], "\r"
		}
		text := cleanOutput(raw)
		if !timestamps {
			b.WriteString(text)
			continue
		}
		stamp := c.at.Format("15:04:05") + " "
		for line := range strings.SplitAfterSeq(text, "\n") {
			if line == "" {
				continue
			}
			if atLineStart {
				b.WriteString(stamp)
			}
			b.WriteString(line)
			atLineStart = strings.HasSuffix(line, "\n")
		}
	}
	out := strings.TrimSuffix(b.String(), "\n")
	if width <= 0 {
		return out
	}
	return ansi.Hardwrap(out, width, true)
}

func shortPath(path string, maxLen int) string {
	home, _ := os.UserHomeDir()
	if home != "" && home != "/" && strings.HasPrefix(path, home) {
		path = "~" + path[len(home):]
	}
	if len(path) <= maxLen || maxLen <= 3 {
		return path
	}
	return "..." + path[len(path)-(maxLen-3):]
}

// truncOrPad truncates or right-pads a string to exactly width cells.
func truncOrPad(s string, width int) string {
	w := ansi.StringWidth(s)
	if w > width {
		return ansi.Truncate(s, width, "")
	}
	if w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}
