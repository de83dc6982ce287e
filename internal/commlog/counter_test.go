package commlog

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func crackLine(t *testing.T, line string) (*Session, bool) {
	t.Helper()
	p := newTestParser()
	s := newSession(time.Date(2016, 8, 5, 17, 17, 41, 0, time.UTC), "UTC")
	ok := p.crackCounterLine(s, strings.Fields(line), line)
	return s, ok
}

func TestCrackCounterLineShapes(t *testing.T) {
	t.Run("four fields", func(t *testing.T) {
		s, ok := crackLine(t, "12:3:7:0 logout")
		require.True(t, ok)
		assert.Equal(t, 12, *s.DiveNum)
		assert.Equal(t, 3, *s.CallCycle)
		assert.Equal(t, 7, *s.CallsMade)
		assert.Equal(t, 0, *s.NoComm)
		assert.True(t, s.LogoutSeen)
		assert.Nil(t, s.MissionNum)
	})

	t.Run("five fields adds mission", func(t *testing.T) {
		s, ok := crackLine(t, "12:3:7:0:99 logout")
		require.True(t, ok)
		assert.Equal(t, 99, *s.MissionNum)
		assert.Nil(t, s.RebootCount)
	})

	t.Run("six fields adds reboots", func(t *testing.T) {
		s, ok := crackLine(t, "12:3:7:0:99:5 logout")
		require.True(t, ok)
		assert.Equal(t, 5, *s.RebootCount)
	})

	t.Run("seven fields final counter", func(t *testing.T) {
		s, ok := crackLine(t, "12:3:7:0:99:5:2 logout")
		require.True(t, ok)
		assert.Equal(t, 2, *s.ThisCallError)
		assert.Nil(t, s.LastCallError)
	})

	t.Run("ten fields first counter", func(t *testing.T) {
		s, ok := crackLine(t, "12:3:7:0:99:5:2:1652:2000:3000 logout")
		require.True(t, ok)
		assert.Equal(t, 2, *s.LastCallError)
		assert.Equal(t, 1652, *s.PitchAD)
		assert.Equal(t, 2000, *s.RollAD)
		assert.Equal(t, 3000, *s.VBDAD)
	})

	t.Run("sixteen fields", func(t *testing.T) {
		s, ok := crackLine(t, "12:3:7:0:99:5:2:1652:2000:3000:-12.5:995.2:13.9:23.8:0.12:41.5 logout")
		require.True(t, ok)
		assert.InDelta(t, -12.5, *s.ObsPitch, 1e-9)
		assert.InDelta(t, 995.2, *s.Depth, 1e-9)
		assert.InDelta(t, 13.9, *s.Volt10V, 1e-9)
		assert.InDelta(t, 23.8, *s.Volt24V, 1e-9)
		assert.InDelta(t, 0.12, *s.IntPressure, 1e-9)
		assert.InDelta(t, 41.5, *s.RH, 1e-9)
		assert.Nil(t, s.Temperature)
	})

	t.Run("seventeen fields adds temperature", func(t *testing.T) {
		s, ok := crackLine(t, "12:3:7:0:99:5:2:1652:2000:3000:-12.5:995.2:18.2:13.9:23.8:0.12:41.5 logout")
		require.True(t, ok)
		assert.InDelta(t, 18.2, *s.Temperature, 1e-9)
		assert.InDelta(t, 41.5, *s.RH, 1e-9)
	})

	t.Run("twenty fields adds sea observations", func(t *testing.T) {
		s, ok := crackLine(t, "12:3:7:0:99:5:2:1652:2000:3000:-12.5:995.2:18.2:13.9:23.8:0.12:41.5:12.1:33.2:1024.8 logout")
		require.True(t, ok)
		assert.InDelta(t, 12.1, *s.SeaTemperature, 1e-9)
		assert.InDelta(t, 33.2, *s.SeaSalinity, 1e-9)
		assert.InDelta(t, 1024.8, *s.SeaDensity, 1e-9)
	})

	t.Run("three field legacy counter", func(t *testing.T) {
		s, ok := crackLine(t, "143:12:0 logout")
		require.True(t, ok)
		assert.Equal(t, 143, *s.DiveNum)
		assert.Equal(t, 12, *s.CallsMade)
		assert.Equal(t, 0, *s.NoComm)
		assert.Nil(t, s.CallCycle)
	})

	t.Run("letter prefixes are stripped", func(t *testing.T) {
		s, ok := crackLine(t, "D12:C3:M7:N0 logout")
		require.True(t, ok)
		assert.Equal(t, 12, *s.DiveNum)
		assert.Equal(t, 3, *s.CallCycle)
	})

	t.Run("not a counter", func(t *testing.T) {
		_, ok := crackLine(t, "Iridium bars: 3")
		assert.False(t, ok)

		_, ok = crackLine(t, "cmdfile/XMODEM: 384 Bytes, 75 BPS")
		assert.False(t, ok)
	})
}

func TestCrackCounterLineGPSTail(t *testing.T) {
	s, ok := crackLine(t, "12:3:7:0 GPS,050816,171730,4807.211,-12223.095,10.2,1.1,42.1,17.3")
	require.True(t, ok)
	require.NotNil(t, s.GPSFix)
	assert.True(t, s.GPSFix.Valid)
	assert.InDelta(t, 4807.211, s.GPSFix.Lat, 1e-9)
	assert.InDelta(t, -12223.095, s.GPSFix.Lon, 1e-9)
	assert.Equal(t, time.Date(2016, 8, 5, 17, 17, 30, 0, time.UTC), s.GPSFix.Datetime)
}

func TestCrackCounterLineBareCounter(t *testing.T) {
	s, ok := crackLine(t, "12:3:7:0")
	require.True(t, ok)
	assert.Equal(t, 12, *s.DiveNum)
	assert.Nil(t, s.GPSFix)
	assert.False(t, s.LogoutSeen)
}

func TestCrackVerTail(t *testing.T) {
	t.Run("full tail", func(t *testing.T) {
		s, ok := crackLine(t, "12:3:7:0 ver=66.12,rev=1893M,frag=4,launch=050816:171500")
		require.True(t, ok)
		require.NotNil(t, s.SoftwareVersion)
		assert.InDelta(t, 66.12, *s.SoftwareVersion, 1e-9)
		assert.Equal(t, "1893M", s.SoftwareRevision)
		require.NotNil(t, s.FragmentSize)
		assert.Equal(t, int64(4096), *s.FragmentSize)
		assert.Equal(t, time.Date(2016, 8, 5, 17, 15, 0, 0, time.UTC), s.LaunchTime)
	})

	t.Run("dotted version truncates", func(t *testing.T) {
		s, ok := crackLine(t, "12:3:7:0 ver=67.00.21.10,rev=44M,frag=8")
		require.True(t, ok)
		require.NotNil(t, s.SoftwareVersion)
		assert.InDelta(t, 67.00, *s.SoftwareVersion, 1e-9)
		assert.Equal(t, int64(8192), *s.FragmentSize)
	})

	t.Run("unversioned continuation", func(t *testing.T) {
		s, ok := crackLine(t, "12:3:7:0 ver=66.12,rev=Unversioned directory,frag=4")
		require.True(t, ok)
		require.NotNil(t, s.SoftwareVersion)
		assert.InDelta(t, 66.12, *s.SoftwareVersion, 1e-9)
		assert.Equal(t, "Unversioned", s.SoftwareRevision)
		require.NotNil(t, s.FragmentSize)
		assert.Equal(t, int64(4096), *s.FragmentSize)
	})

	t.Run("tail without fragment size", func(t *testing.T) {
		s, ok := crackLine(t, "12:3:7:0 ver=66.12,rev=5M")
		require.True(t, ok)
		require.NotNil(t, s.SoftwareVersion)
		assert.Equal(t, "5M", s.SoftwareRevision)
		assert.Nil(t, s.FragmentSize)
	})

	t.Run("malformed tail leaves session alone", func(t *testing.T) {
		s, ok := crackLine(t, "12:3:7:0 ver=66.12")
		require.True(t, ok)
		assert.Nil(t, s.SoftwareVersion)
		assert.Nil(t, s.FragmentSize)
	})
}
