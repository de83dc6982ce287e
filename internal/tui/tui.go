package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/iop-apl-uw/commlog/internal/open"
	"github.com/iop-apl-uw/commlog/internal/store"
)

const debounceDelay = 200 * time.Millisecond

// message types

type callsLoadedMsg struct {
	rows []store.CallRow
	err  error
}

type debounceTickMsg struct {
	filter string
}

// model

type model struct {
	db          *store.DB
	glider      int // 0 = all gliders
	filter      string
	all         []store.CallRow
	rows        []store.CallRow
	cursor      int
	listOffset  int
	filterInput textinput.Model
	preview     viewport.Model
	previewKey  string // "logPath:connected" to avoid duplicate renders
	width       int
	height      int
	ready       bool
	quitting    bool
	loadErr     error
	openRow     *store.CallRow
}

func initialModel(db *store.DB, glider int) model {
	ti := textinput.New()
	ti.Placeholder = "Filter (glider or dive)..."
	ti.Focus()
	ti.Prompt = "> "
	ti.PromptStyle = styleInputPrompt
	ti.TextStyle = styleInput
	ti.CharLimit = 64

	return model{
		db:          db,
		glider:      glider,
		filterInput: ti,
		preview:     viewport.New(0, 0),
	}
}

// Run starts the call browser and blocks until it exits. If the user
// selects a call with Enter, the underlying comm.log is opened in $EDITOR
// after the program shuts down.
func Run(db *store.DB, glider int) error {
	m := initialModel(db, glider)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("tui: %w", err)
	}

	fm := finalModel.(model)
	if fm.openRow != nil {
		return open.CommLog(fm.openRow.LogPath, 1)
	}
	return nil
}

// Init triggers the initial call load.
func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.loadCalls())
}

// Update handles messages.
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.preview = newViewport(m.previewWidth(), m.panelHeight())
		if len(m.rows) > 0 && m.cursor < len(m.rows) {
			cmds = append(cmds, loadPreviewCmd(m.rows[m.cursor], m.previewWidth()))
		}
		return m, tea.Batch(cmds...)

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, keys.Enter):
			if len(m.rows) > 0 && m.cursor < len(m.rows) {
				r := m.rows[m.cursor]
				m.openRow = &r
				m.quitting = true
				return m, tea.Quit
			}

		case key.Matches(msg, keys.Refresh):
			return m, m.loadCalls()

		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
				m.adjustListScroll(m.panelHeight())
				cmds = append(cmds, m.loadCurrentPreview())
			}
			return m, tea.Batch(cmds...)

		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.rows)-1 {
				m.cursor++
				m.adjustListScroll(m.panelHeight())
				cmds = append(cmds, m.loadCurrentPreview())
			}
			return m, tea.Batch(cmds...)

		case key.Matches(msg, keys.PreviewUp):
			m.preview.LineUp(m.panelHeight() / 2)
			return m, nil

		case key.Matches(msg, keys.PreviewDn):
			m.preview.LineDown(m.panelHeight() / 2)
			return m, nil

		case key.Matches(msg, keys.PageUp):
			m.preview.LineUp(m.panelHeight())
			return m, nil

		case key.Matches(msg, keys.PageDown):
			m.preview.LineDown(m.panelHeight())
			return m, nil
		}

		// Pass remaining keys to text input
		var tiCmd tea.Cmd
		m.filterInput, tiCmd = m.filterInput.Update(msg)
		cmds = append(cmds, tiCmd)

		newFilter := m.filterInput.Value()
		if newFilter != m.filter {
			m.filter = newFilter
			cmds = append(cmds, m.scheduleDebouncedFilter(newFilter))
		}
		return m, tea.Batch(cmds...)

	case tea.MouseMsg:
		if !m.ready || len(m.rows) == 0 {
			return m, nil
		}

		region, itemIdx := m.hitTest(msg.X, msg.Y)

		switch {
		case region == regionList && msg.Button == tea.MouseButtonWheelUp:
			if m.listOffset > 0 {
				m.listOffset--
			}
			return m, nil

		case region == regionList && msg.Button == tea.MouseButtonWheelDown:
			pH := m.panelHeight()
			visibleItems := pH / linesPerItem
			maxOffset := len(m.rows) - visibleItems
			if maxOffset < 0 {
				maxOffset = 0
			}
			if m.listOffset < maxOffset {
				m.listOffset++
			}
			return m, nil

		case region == regionList && msg.Button == tea.MouseButtonLeft && msg.Action == tea.MouseActionPress:
			if itemIdx >= 0 && itemIdx < len(m.rows) && m.cursor != itemIdx {
				m.cursor = itemIdx
				m.adjustListScroll(m.panelHeight())
				cmds = append(cmds, m.loadCurrentPreview())
			}
			return m, tea.Batch(cmds...)

		case region == regionPreview && (msg.Button == tea.MouseButtonWheelUp || msg.Button == tea.MouseButtonWheelDown):
			var vpCmd tea.Cmd
			m.preview, vpCmd = m.preview.Update(msg)
			if vpCmd != nil {
				cmds = append(cmds, vpCmd)
			}
			return m, tea.Batch(cmds...)
		}

		return m, nil

	case debounceTickMsg:
		// Only re-filter if the input hasn't changed since the tick was scheduled
		if msg.filter == m.filter {
			m.applyFilter()
			if len(m.rows) > 0 {
				cmds = append(cmds, m.loadCurrentPreview())
			} else {
				m.preview.SetContent("")
				m.previewKey = ""
			}
		}
		return m, tea.Batch(cmds...)

	case callsLoadedMsg:
		if msg.err != nil {
			m.loadErr = msg.err
			m.all = nil
			m.rows = nil
			m.cursor = 0
			m.listOffset = 0
			m.preview.SetContent("Error: " + msg.err.Error())
			m.previewKey = ""
			return m, nil
		}
		m.loadErr = nil
		m.all = msg.rows
		m.applyFilter()
		if len(m.rows) > 0 {
			cmds = append(cmds, m.loadCurrentPreview())
		} else {
			m.preview.SetContent("")
			m.previewKey = ""
		}
		return m, tea.Batch(cmds...)

	case previewRenderedMsg:
		key := previewCacheKey(msg.logPath, msg.connected)
		if key == m.previewKey {
			return m, nil
		}
		// Check if this preview is still the one we want
		if len(m.rows) > 0 && m.cursor < len(m.rows) {
			r := m.rows[m.cursor]
			if key != previewCacheKey(r.LogPath, r.Connected) {
				return m, nil // stale preview
			}
		}
		if msg.err != nil {
			m.preview.SetContent("Preview error: " + msg.err.Error())
		} else {
			m.preview.SetContent(msg.content)
			m.preview.GotoTop()
		}
		m.previewKey = key
		return m, nil
	}

	return m, tea.Batch(cmds...)
}

// applyFilter recomputes the visible rows from the full call set. The
// filter matches glider ("sg095" or "95"), dive number, or any substring
// of the log path.
func (m *model) applyFilter() {
	f := strings.ToLower(strings.TrimSpace(m.filter))
	if f == "" {
		m.rows = m.all
	} else {
		var rows []store.CallRow
		for _, r := range m.all {
			if callMatches(r, f) {
				rows = append(rows, r)
			}
		}
		m.rows = rows
	}
	m.cursor = 0
	m.listOffset = 0
}

func callMatches(r store.CallRow, filter string) bool {
	if strings.Contains(fmt.Sprintf("sg%03d", r.Glider), filter) {
		return true
	}
	if n, err := strconv.Atoi(filter); err == nil && (n == r.Glider || n == r.Dive) {
		return true
	}
	return strings.Contains(strings.ToLower(r.LogPath), filter)
}

// View renders the full TUI.
func (m model) View() string {
	if m.quitting || !m.ready {
		return ""
	}

	// Layout dimensions
	listW := m.listWidth()
	previewW := m.previewWidth()
	panelH := m.panelHeight()

	// Input row
	inputRow := m.filterInput.View()

	// List panel
	listContent := m.renderList(listW, panelH)
	listPanel := stylePanelBorder.
		Width(listW).
		Height(panelH).
		Render(listContent)

	// Preview panel
	m.preview.Width = previewW
	m.preview.Height = panelH
	previewPanel := styleActiveBorder.
		Width(previewW).
		Height(panelH).
		Render(m.preview.View())

	// Join panels side by side
	panels := lipgloss.JoinHorizontal(lipgloss.Top, listPanel, previewPanel)

	// Status bar
	status := m.statusBar()

	return lipgloss.JoinVertical(lipgloss.Left, inputRow, panels, status)
}

// helper methods

func (m model) listWidth() int {
	if m.width <= 0 {
		return 40
	}
	// 40% for list, minus border padding
	w := m.width*40/100 - 4
	if w < 20 {
		w = 20
	}
	return w
}

func (m model) previewWidth() int {
	if m.width <= 0 {
		return 60
	}
	// 60% for preview, minus border padding
	w := m.width*60/100 - 4
	if w < 20 {
		w = 20
	}
	return w
}

func (m model) panelHeight() int {
	if m.height <= 0 {
		return 20
	}
	// Subtract input row (1) + status bar (1) + borders (4)
	h := m.height - 6
	if h < 5 {
		h = 5
	}
	return h
}

type mouseRegion int

const (
	regionNone mouseRegion = iota
	regionList
	regionPreview
)

// hitTest maps terminal coordinates to a panel region and list item index.
func (m model) hitTest(x, y int) (mouseRegion, int) {
	pH := m.panelHeight()
	contentYStart := 2 // input row (1) + top border (1)
	contentYEnd := contentYStart + pH - 1

	if y < contentYStart || y > contentYEnd {
		return regionNone, -1
	}
	relY := y - contentYStart

	lw := m.listWidth()
	listBoxRight := lw + 1 // col 0=border, 1..lw=content, lw+1=border

	if x >= 1 && x <= lw {
		itemIndex := m.listOffset + (relY / linesPerItem)
		return regionList, itemIndex
	}

	if x > listBoxRight+1 {
		return regionPreview, -1
	}

	return regionNone, -1
}

func (m model) statusBar() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("%d calls", len(m.rows)))
	parts = append(parts, "click/up/dn navigate")
	parts = append(parts, "scroll/C-u/C-d preview")
	parts = append(parts, "Enter open log")
	parts = append(parts, "C-r reload")
	parts = append(parts, "Esc quit")
	return styleStatusBar.Render(strings.Join(parts, " | "))
}

func (m model) loadCalls() tea.Cmd {
	db := m.db
	glider := m.glider
	return func() tea.Msg {
		rows, err := db.ListCalls(glider, 0)
		return callsLoadedMsg{rows: rows, err: err}
	}
}

func (m model) scheduleDebouncedFilter(filter string) tea.Cmd {
	return tea.Tick(debounceDelay, func(time.Time) tea.Msg {
		return debounceTickMsg{filter: filter}
	})
}

func (m model) loadCurrentPreview() tea.Cmd {
	if len(m.rows) == 0 || m.cursor >= len(m.rows) {
		return nil
	}
	r := m.rows[m.cursor]
	if previewCacheKey(r.LogPath, r.Connected) == m.previewKey {
		return nil // already showing this preview
	}
	return loadPreviewCmd(r, m.previewWidth())
}

func previewCacheKey(logPath string, connected float64) string {
	return fmt.Sprintf("%s:%.0f", logPath, connected)
}
