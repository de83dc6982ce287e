package tui

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/iop-apl-uw/commlog/internal/commlog"
	"github.com/iop-apl-uw/commlog/internal/render"
	"github.com/iop-apl-uw/commlog/internal/store"
)

// previewRenderedMsg is sent when an async preview render completes.
type previewRenderedMsg struct {
	logPath   string
	connected float64
	content   string
	err       error
}

// loadPreviewCmd returns a tea.Cmd that re-parses the call's comm.log and
// renders the matching session asynchronously.
func loadPreviewCmd(r store.CallRow, width int) tea.Cmd {
	return func() tea.Msg {
		content, err := renderCall(r, width)
		return previewRenderedMsg{
			logPath:   r.LogPath,
			connected: r.Connected,
			content:   content,
			err:       err,
		}
	}
}

// renderCall parses the comm.log backing a call row and renders the session
// whose connect time matches the stored epoch.
func renderCall(r store.CallRow, width int) (string, error) {
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	coll, _, err := commlog.Process(r.LogPath, commlog.Options{Logger: quiet}, commlog.Resume{})
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", r.LogPath, err)
	}

	want := int64(r.Connected)
	for _, s := range coll.Sessions {
		d := s.ConnectTS.Unix() - want
		if d >= -1 && d <= 1 {
			return render.Session(s, width), nil
		}
	}
	return "", fmt.Errorf("no session at epoch %d in %s", want, r.LogPath)
}

// newViewport creates a new viewport model with the given dimensions.
func newViewport(width, height int) viewport.Model {
	vp := viewport.New(width, height)
	vp.Style = stylePanelBorder
	return vp
}
