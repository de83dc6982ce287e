package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iop-apl-uw/commlog/internal/commlog"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "state", "commlog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func callRec(glider, dive, cycle, call int, connected float64) commlog.CallRecord {
	return commlog.CallRecord{
		Glider:    glider,
		Dive:      dive,
		Cycle:     cycle,
		Call:      call,
		Connected: connected,
		Lat:       48.12,
		Lon:       -122.38,
	}
}

func TestParseStateRoundTrip(t *testing.T) {
	db := openTestDB(t)

	st, err := db.GetParseState("/missions/sg095/comm.log")
	require.NoError(t, err)
	assert.Nil(t, st)

	want := ParseState{Offset: 4096, LineCount: 120, OpenSession: true}
	require.NoError(t, db.SetParseState("/missions/sg095/comm.log", want))

	st, err = db.GetParseState("/missions/sg095/comm.log")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, want, *st)

	// Replacing the row keeps one state per log.
	want.Offset = 8192
	want.OpenSession = false
	require.NoError(t, db.SetParseState("/missions/sg095/comm.log", want))
	st, err = db.GetParseState("/missions/sg095/comm.log")
	require.NoError(t, err)
	assert.Equal(t, int64(8192), st.Offset)
	assert.False(t, st.OpenSession)
}

func TestAddCallsIdempotent(t *testing.T) {
	db := openTestDB(t)

	recs := []commlog.CallRecord{
		callRec(95, 12, 3, 7, 1000),
		callRec(95, 12, 3, 8, 2000),
	}
	require.NoError(t, db.AddCalls("/missions/sg095/comm.log", recs))

	n, err := db.CallCount()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// A re-parse of the same sessions replaces rather than duplicates.
	recs[1].Depth = 990.5
	require.NoError(t, db.AddCalls("/missions/sg095/comm.log", recs))
	n, err = db.CallCount()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	calls, err := db.ListCalls(95, 0)
	require.NoError(t, err)
	require.Len(t, calls, 2)
	assert.Equal(t, 990.5, calls[0].Depth)
}

func TestListCalls(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.AddCalls("/missions/sg095/comm.log", []commlog.CallRecord{
		callRec(95, 12, 3, 7, 1000),
		callRec(95, 13, 0, 1, 3000),
	}))
	require.NoError(t, db.AddCalls("/missions/sg171/comm.log", []commlog.CallRecord{
		callRec(171, 4, 0, 1, 2000),
	}))

	all, err := db.ListCalls(0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Newest first.
	assert.Equal(t, 13, all[0].Dive)
	assert.Equal(t, 171, all[1].Glider)
	assert.Equal(t, "/missions/sg171/comm.log", all[1].LogPath)

	only95, err := db.ListCalls(95, 0)
	require.NoError(t, err)
	assert.Len(t, only95, 2)

	limited, err := db.ListCalls(0, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, 13, limited[0].Dive)

	latest, err := db.LatestCall(171)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 4, latest.Dive)

	none, err := db.LatestCall(999)
	require.NoError(t, err)
	assert.Nil(t, none)

	gliders, err := db.Gliders()
	require.NoError(t, err)
	assert.Equal(t, []int{95, 171}, gliders)
}
