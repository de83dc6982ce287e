package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/iop-apl-uw/commlog/internal/store"
)

// linesPerItem is the number of terminal lines each call occupies.
const linesPerItem = 2

// renderList renders the left panel: the call list with scrolling.
func (m model) renderList(width, height int) string {
	if len(m.rows) == 0 {
		msg := "No calls"
		if m.loadErr != nil {
			msg = "Load failed"
		}
		empty := lipgloss.NewStyle().
			Foreground(colorDim).
			Width(width).
			Height(height).
			Align(lipgloss.Center, lipgloss.Center).
			Render(msg)
		return empty
	}

	var lines []string
	for i, r := range m.rows {
		if i < m.listOffset {
			continue
		}
		if len(lines)+linesPerItem > height {
			break
		}
		rows := formatCallLine(r, width, i == m.cursor)
		lines = append(lines, rows...)
	}

	// Pad remaining lines
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}

	return strings.Join(lines, "\n")
}

// formatCallLine formats a single call as two lines:
//
//	line 1: [>] sg095  MM-DD HH:MM  dive 123 call 2
//	line 2:     lat, lon (dimmed)
func formatCallLine(r store.CallRow, width int, selected bool) []string {
	glider := styleListGlider.Render(fmt.Sprintf("sg%03d", r.Glider))

	ts := time.Unix(int64(r.Connected), 0).UTC().Format("01-02 15:04")

	detail := fmt.Sprintf("dive %d call %d", r.Dive, r.Call)
	detailMax := width - 2 - 7 - 12 - 2 // prefix + glider + timestamp + padding
	if detailMax < 0 {
		detailMax = 0
	}
	if runewidth.StringWidth(detail) > detailMax {
		detail = runewidth.Truncate(detail, detailMax, "")
	}

	// Line 1: glider timestamp dive/call
	line1 := fmt.Sprintf("%s %s %s", glider, ts, detail)
	if selected {
		line1 = styleListSelected.Render("> ") + line1
	} else {
		line1 = "  " + line1
	}

	// Line 2: position (dimmed, indented)
	pos := fmt.Sprintf("%.4f, %.4f", r.Lat, r.Lon)
	posMax := width - 4 // indent
	if posMax < 0 {
		posMax = 0
	}
	if runewidth.StringWidth(pos) > posMax {
		pos = runewidth.Truncate(pos, posMax, "")
	}
	line2 := "    " + lipgloss.NewStyle().Foreground(colorDim).Render(pos)

	return []string{line1, line2}
}

// adjustListScroll keeps the cursor visible within the list viewport.
func (m *model) adjustListScroll(listHeight int) {
	visibleItems := listHeight / linesPerItem
	if visibleItems < 1 {
		visibleItems = 1
	}
	if m.cursor < m.listOffset {
		m.listOffset = m.cursor
	}
	if m.cursor >= m.listOffset+visibleItems {
		m.listOffset = m.cursor - visibleItems + 1
	}
}
