package render

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iop-apl-uw/commlog/internal/commlog"
	"github.com/iop-apl-uw/commlog/internal/gps"
)

func TestWrapLines(t *testing.T) {
	t.Run("plain text", func(t *testing.T) {
		out := WrapLines("abcdefgh", 3)
		assert.Equal(t, "abc\ndef\ngh", out)
	})

	t.Run("width zero disables wrapping", func(t *testing.T) {
		assert.Equal(t, "abcdefgh", WrapLines("abcdefgh", 0))
	})

	t.Run("ansi sequences are zero width", func(t *testing.T) {
		in := colorGlider + "abcdef" + colorReset
		out := WrapLines(in, 3)
		lines := strings.Split(out, "\n")
		require.Len(t, lines, 2)
		assert.Equal(t, colorGlider+"abc", lines[0])
		assert.Equal(t, "def"+colorReset, lines[1])
	})

	t.Run("empty line survives", func(t *testing.T) {
		assert.Equal(t, "a\n\nb", WrapLines("a\n\nb", 10))
	})
}

func sessionAt(ts time.Time) *commlog.Session {
	var s commlog.Session
	s.ConnectTS = ts
	s.FileStats = map[string]commlog.FileStats{}
	s.TransferMethod = map[string]string{}
	s.TransferDirection = map[string]string{}
	s.TransferedSize = map[string]int64{}
	s.CRCErrors = map[string][]int{}
	s.FileRetries = map[string]int{}
	return &s
}

func TestSession(t *testing.T) {
	ts := time.Date(2016, 8, 6, 0, 17, 41, 0, time.UTC)
	s := sessionAt(ts)
	s.SgID = 95

	out := Session(s, 0)
	assert.Contains(t, out, "sg095")
	assert.Contains(t, out, "2016-08-06 00:17:41Z")
	assert.Contains(t, out, "open")

	s.DisconnectTS = ts.Add(time.Minute)
	s.RecovCode = "QUIT_COMMAND"
	out = Session(s, 0)
	assert.Contains(t, out, "complete")
	assert.Contains(t, out, "RECOVERY QUIT_COMMAND")
}

func TestLastFix(t *testing.T) {
	assert.Equal(t, "No GPS fix available for this call", LastFix(nil, "ddmin"))

	ts := time.Date(2016, 8, 6, 0, 17, 30, 0, time.UTC)
	s := sessionAt(ts)
	assert.Equal(t, "No GPS fix available for this call", LastFix(s, "ddmin"))

	s.GPSFix = &gps.Fix{Lat: 4807.211, Lon: -12223.12, Datetime: ts,
		DriftSpeed: 0.31, DriftHeading: 145}

	assert.Equal(t, "N48 7.2110 W122 23.1200 08/06/16 00:17:30 UTC", LastFix(s, "ddmin"))

	nmea := LastFix(s, "nmea")
	assert.Equal(t, "$GPRMC,001730,A,4807.2110,N,12223.1200,W,0.31,145,060816,0.0,E", nmea)

	s.RecovCode = "QUIT_COMMAND"
	assert.Equal(t, "N48 7.2110 W122 23.1200 08/06/16 00:17:30 UTC QUIT_COMMAND",
		LastFix(s, "ddmin"))

	s.RecovCode = ""
	s.EscapeReason = "TIMEOUT"
	assert.True(t, strings.HasSuffix(LastFix(s, "ddmin"), " TIMEOUT"))
}

func TestDrift(t *testing.T) {
	est := &commlog.DriftEstimate{
		Lat:        48.1,
		Lon:        -122.0,
		FixTime:    time.Date(2016, 8, 6, 2, 0, 0, 0, time.UTC),
		BearingDeg: 0,
		SpeedKnots: 3.01,
		Fixes:      2,
		Predictions: []commlog.DriftPosition{
			{Lat: 48.15, Lon: -122.0, Hours: 1},
		},
	}
	out := Drift(est, "ddmin")
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "N48 6.0000 W122 0.0000 @ 02:00:00Z", lines[0])
	assert.Equal(t, "0 deg true, 3.01 knots", lines[1])
	assert.Equal(t, "N48 9.0000 W122 0.0000 +1hr", lines[2])
}

func TestCallLine(t *testing.T) {
	line := CallLine(95, 12, 3, 7, float64(time.Date(2016, 8, 6, 0, 17, 41, 0, time.UTC).Unix()),
		48.12012, -122.38521)
	assert.Contains(t, line, "sg095")
	assert.Contains(t, line, "dive   12")
	assert.Contains(t, line, "2016-08-06 00:17:41Z")
	assert.Contains(t, line, "48.12012")
}
