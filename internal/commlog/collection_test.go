package commlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iop-apl-uw/commlog/internal/gps"
)

func intP(v int) *int         { return &v }
func i64P(v int64) *int64     { return &v }
func f64P(v float64) *float64 { return &v }

func closedSession(connect time.Time) *Session {
	s := newSession(connect, "UTC")
	s.DisconnectTS = connect.Add(time.Minute)
	return s
}

func fixSession(dive int, lat, lon float64, at time.Time) *Session {
	s := closedSession(at)
	s.DiveNum = intP(dive)
	s.GPSFix = &gps.Fix{Lat: lat, Lon: lon, Datetime: at}
	return s
}

func TestLastSurfacings(t *testing.T) {
	empty := &Collection{}
	assert.Nil(t, empty.LastCompleteSurfacing())
	assert.Nil(t, empty.LastSurfacing())

	t0 := time.Date(2016, 8, 6, 0, 0, 0, 0, time.UTC)
	complete := closedSession(t0)
	open := newSession(t0.Add(time.Hour), "UTC")
	c := &Collection{Sessions: []*Session{complete, open}}

	assert.Same(t, complete, c.LastCompleteSurfacing())
	assert.Same(t, open, c.LastSurfacing())
}

func TestLastSoftwareVersion(t *testing.T) {
	t0 := time.Date(2016, 8, 6, 0, 0, 0, 0, time.UTC)
	older := closedSession(t0)
	older.SoftwareVersion = f64P(66.06)
	older.SoftwareRevision = "1893M"

	// An open session's version does not count until the call closes.
	open := newSession(t0.Add(time.Hour), "UTC")
	open.SoftwareVersion = f64P(66.12)

	c := &Collection{Sessions: []*Session{older, open}}
	ver, rev, ok := c.LastSoftwareVersion()
	require.True(t, ok)
	assert.Equal(t, 66.06, ver)
	assert.Equal(t, "1893M", rev)

	_, _, ok = (&Collection{}).LastSoftwareVersion()
	assert.False(t, ok)
}

func TestLastFragmentSize(t *testing.T) {
	t0 := time.Date(2016, 8, 6, 0, 0, 0, 0, time.UTC)
	s1 := closedSession(t0)
	s1.FragmentSize = i64P(4096)
	s2 := closedSession(t0.Add(time.Hour))

	c := &Collection{Sessions: []*Session{s1, s2}}
	size, ok := c.LastFragmentSize()
	require.True(t, ok)
	assert.Equal(t, int64(4096), size)

	_, ok = (&Collection{Sessions: []*Session{s2}}).LastFragmentSize()
	assert.False(t, ok)
}

func TestLastDiveNumAndCallCounter(t *testing.T) {
	t0 := time.Date(2016, 8, 6, 0, 0, 0, 0, time.UTC)

	t.Run("call cycle preferred", func(t *testing.T) {
		s := closedSession(t0)
		s.DiveNum = intP(42)
		s.CallCycle = intP(3)
		s.CallsMade = intP(7)
		dive, cycle, ok := (&Collection{Sessions: []*Session{s}}).LastDiveNumAndCallCounter()
		require.True(t, ok)
		assert.Equal(t, 42, dive)
		assert.Equal(t, 3, cycle)
	})

	t.Run("legacy counter falls back to calls made", func(t *testing.T) {
		s := closedSession(t0)
		s.DiveNum = intP(42)
		s.CallsMade = intP(7)
		dive, cycle, ok := (&Collection{Sessions: []*Session{s}}).LastDiveNumAndCallCounter()
		require.True(t, ok)
		assert.Equal(t, 42, dive)
		assert.Equal(t, 7, cycle)
	})

	t.Run("dive number alone", func(t *testing.T) {
		s := closedSession(t0)
		s.DiveNum = intP(42)
		_, cycle, ok := (&Collection{Sessions: []*Session{s}}).LastDiveNumAndCallCounter()
		require.True(t, ok)
		assert.Equal(t, 0, cycle)
	})

	t.Run("no counters at all", func(t *testing.T) {
		_, _, ok := (&Collection{Sessions: []*Session{closedSession(t0)}}).LastDiveNumAndCallCounter()
		assert.False(t, ok)
	})
}

func TestFragmentTransferMethod(t *testing.T) {
	c := &Collection{FileTransferMethod: map[string]string{"sg0012dz.x01": "ymodem"}}
	assert.Equal(t, "ymodem", c.FragmentTransferMethod("sg0012dz.x01"))
	assert.Equal(t, "unknown", c.FragmentTransferMethod("sg0099dz.x00"))
}

func TestFragmentSizeByDive(t *testing.T) {
	t0 := time.Date(2016, 8, 6, 0, 0, 0, 0, time.UTC)
	s1 := closedSession(t0)
	s1.DiveNum = intP(12)
	s1.FragmentSize = i64P(4096)
	s2 := closedSession(t0.Add(time.Hour))
	s2.DiveNum = intP(13)
	s2.FragmentSize = i64P(8192)
	noSize := closedSession(t0.Add(2 * time.Hour))
	noSize.DiveNum = intP(14)

	c := &Collection{Sessions: []*Session{s1, s2, noSize}}
	assert.Equal(t, map[int]int64{12: 4096, 13: 8192}, c.FragmentSizeByDive())
}

func TestFragmentCounter(t *testing.T) {
	assert.Equal(t, 2, fragmentCounter("sg0012dz.x02"))
	assert.Equal(t, 10, fragmentCounter("sg0012dz.x0a"))
	// K stands in for C in the onboard hex alphabet.
	assert.Equal(t, 28, fragmentCounter("sg0012dz.x1k"))
	assert.Equal(t, -1, fragmentCounter("cmdfile"))
	assert.Equal(t, -1, fragmentCounter("sg0012dz.log"))
	assert.Equal(t, -1, fragmentCounter("sg0012dz.x0z"))
}

func TestFragmentSizes(t *testing.T) {
	t0 := time.Date(2016, 8, 6, 0, 0, 0, 0, time.UTC)

	withFrag := closedSession(t0)
	withFrag.FragmentSize = i64P(4096)
	withFrag.FileStats["sg0012dz.x00"] = FileStats{ExpectedSize: -1, TransferSize: 4096, ReceivedSize: -1, BPS: 75}
	withFrag.FileStats["cmdfile"] = FileStats{ExpectedSize: 322, TransferSize: 322, ReceivedSize: 322, BPS: 160}

	bare := closedSession(t0.Add(time.Hour))
	bare.FileStats["sg0012dz.x01"] = FileStats{ExpectedSize: -1, TransferSize: 1024, ReceivedSize: -1, BPS: 75}
	bare.FileStats["sg0012lz.x00"] = FileStats{ExpectedSize: 2048, TransferSize: 2048, ReceivedSize: 2048, BPS: 160}

	c := &Collection{Sessions: []*Session{withFrag, bare}}
	sizes := c.FragmentSizes()

	// Advertised size missing: the session fragment size fills in, then
	// the fleet default.
	assert.Equal(t, ExpectedActual{Expected: 4096, Received: -1}, sizes["sg0012dz.x00"])
	assert.Equal(t, ExpectedActual{Expected: DefaultFragmentSize, Received: -1}, sizes["sg0012dz.x01"])
	assert.Equal(t, ExpectedActual{Expected: 2048, Received: 2048}, sizes["sg0012lz.x00"])

	// Non-fragment names stay out.
	_, ok := sizes["cmdfile"]
	assert.False(t, ok)

	assert.Equal(t, ExpectedActual{Expected: DefaultFragmentSize, Received: -1},
		FragmentSizeFor(sizes, "sg0099dz.x00"))
	assert.Equal(t, ExpectedActual{Expected: 4096, Received: -1},
		FragmentSizeFor(sizes, "sg0012dz.x00"))
}

func TestRebooted(t *testing.T) {
	t0 := time.Date(2016, 8, 6, 0, 0, 0, 0, time.UTC)

	mk := func(dive, reboots int, at time.Time) *Session {
		s := fixSession(dive, 4807.211, -12223.095, at)
		s.RebootCount = intP(reboots)
		return s
	}

	t.Run("reboot detected", func(t *testing.T) {
		prev := mk(12, 3, t0)
		last := mk(13, 4, t0.Add(6*time.Hour))
		// Sessions without a fix never participate.
		noFix := closedSession(t0.Add(7 * time.Hour))
		c := &Collection{Sessions: []*Session{prev, last, noFix}}
		msg, ok := c.Rebooted()
		require.True(t, ok)
		assert.Equal(t,
			"Reboot occurred between 12:Unknown:Unknown:Unknown:Unknown:3 and 13:Unknown:Unknown:Unknown:Unknown:4",
			msg)
	})

	t.Run("stable count", func(t *testing.T) {
		c := &Collection{Sessions: []*Session{mk(12, 3, t0), mk(13, 3, t0.Add(6 * time.Hour))}}
		_, ok := c.Rebooted()
		assert.False(t, ok)
	})

	t.Run("missing counts", func(t *testing.T) {
		prev := fixSession(12, 4807.211, -12223.095, t0)
		last := mk(13, 4, t0.Add(6*time.Hour))
		c := &Collection{Sessions: []*Session{prev, last}}
		_, ok := c.Rebooted()
		assert.False(t, ok)
	})

	t.Run("single fix", func(t *testing.T) {
		c := &Collection{Sessions: []*Session{mk(12, 3, t0)}}
		_, ok := c.Rebooted()
		assert.False(t, ok)
	})
}

func TestPredictDrift(t *testing.T) {
	t0 := time.Date(2016, 8, 6, 0, 0, 0, 0, time.UTC)

	t.Run("northward drift", func(t *testing.T) {
		// Three same-dive fixes drifting 0.05 degrees of latitude per
		// hour, plus an earlier dive the estimate must ignore.
		c := &Collection{Sessions: []*Session{
			fixSession(4, 4000.0, -12200.0, t0.Add(-6*time.Hour)),
			fixSession(5, 4800.0, -12200.0, t0),
			fixSession(5, 4803.0, -12200.0, t0.Add(time.Hour)),
			fixSession(5, 4806.0, -12200.0, t0.Add(2*time.Hour)),
		}}
		est, err := c.PredictDrift(2, 4, t0.Add(2*time.Hour+30*time.Minute))
		require.NoError(t, err)

		assert.InDelta(t, 48.1, est.Lat, 1e-9)
		assert.InDelta(t, -122.0, est.Lon, 1e-9)
		assert.Equal(t, t0.Add(2*time.Hour), est.FixTime)
		assert.Equal(t, 2, est.Fixes)
		assert.InDelta(t, 0.0, est.BearingDeg, 1e-9)
		assert.InDelta(t, 0.05*metersPerDegree*nauticalMilesPerM, est.SpeedKnots, 1e-6)

		require.Len(t, est.Predictions, 2)
		assert.Equal(t, 1, est.Predictions[0].Hours)
		assert.InDelta(t, 48.15, est.Predictions[0].Lat, 1e-9)
		assert.Equal(t, 2, est.Predictions[1].Hours)
		assert.InDelta(t, 48.2, est.Predictions[1].Lat, 1e-9)
	})

	t.Run("repeated fix skipped", func(t *testing.T) {
		dup := fixSession(5, 4803.0, -12200.0, t0.Add(time.Hour))
		c := &Collection{Sessions: []*Session{
			fixSession(5, 4800.0, -12200.0, t0),
			fixSession(5, 4803.0, -12200.0, t0.Add(time.Hour)),
			dup,
			fixSession(5, 4806.0, -12200.0, t0.Add(2*time.Hour)),
		}}
		est, err := c.PredictDrift(1, 4, t0.Add(3*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 2, est.Fixes)
	})

	t.Run("too few fixes", func(t *testing.T) {
		c := &Collection{Sessions: []*Session{
			fixSession(5, 4800.0, -12200.0, t0),
			fixSession(5, 4803.0, -12200.0, t0.Add(time.Hour)),
		}}
		_, err := c.PredictDrift(3, 4, t0.Add(2*time.Hour))
		assert.Error(t, err)
	})

	t.Run("dive change cuts the window", func(t *testing.T) {
		c := &Collection{Sessions: []*Session{
			fixSession(4, 4800.0, -12200.0, t0),
			fixSession(5, 4803.0, -12200.0, t0.Add(time.Hour)),
			fixSession(5, 4806.0, -12200.0, t0.Add(2*time.Hour)),
		}}
		_, err := c.PredictDrift(3, 4, t0.Add(3*time.Hour))
		assert.Error(t, err)
	})
}

func TestMergeRawLines(t *testing.T) {
	t0 := time.Date(2016, 8, 6, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)
	t2 := t0.Add(2 * time.Hour)

	comm := []RawLine{
		{TS: t1, Text: "Connected at ..."},
		{Text: "74:0:1:0 logout"}, // no stamp of its own
	}
	history := []RawLine{
		{TS: t0, Text: "+++ (cmdfile)"},
		{TS: t2, Text: "$QUIT (cmdfile)"},
	}

	merged := MergeRawLines(comm, history)
	require.Len(t, merged, 4)
	assert.Equal(t, "+++ (cmdfile)", merged[0].Text)
	assert.Equal(t, "Connected at ...", merged[1].Text)
	// The unstamped line inherits the previous stamp and keeps its place.
	assert.Equal(t, "74:0:1:0 logout", merged[2].Text)
	assert.Equal(t, t1, merged[2].TS)
	assert.Equal(t, "$QUIT (cmdfile)", merged[3].Text)
}
