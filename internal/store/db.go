package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/iop-apl-uw/commlog/internal/commlog"
)

const schema = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA cache_size = -64000;
PRAGMA busy_timeout = 5000;

CREATE TABLE IF NOT EXISTS calls (
    glider    INTEGER NOT NULL,
    dive      INTEGER NOT NULL,
    cycle     INTEGER NOT NULL,
    call      INTEGER NOT NULL,
    connected FLOAT,
    lat       FLOAT,
    lon       FLOAT,
    epoch     FLOAT,
    RH        FLOAT,
    intP      FLOAT,
    temp      FLOAT,
    volts10   FLOAT,
    volts24   FLOAT,
    pitch     FLOAT,
    depth     FLOAT,
    pitchAD   FLOAT,
    rollAD    FLOAT,
    vbdAD     FLOAT,
    sst       FLOAT,
    sss       FLOAT,
    density   FLOAT,
    iridLat   FLOAT,
    iridLon   FLOAT,
    irid_t    FLOAT,
    log_path  TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (glider, dive, cycle, call)
);

CREATE TABLE IF NOT EXISTS parse_state (
    log_path     TEXT PRIMARY KEY,
    byte_offset  INTEGER NOT NULL DEFAULT 0,
    line_count   INTEGER NOT NULL DEFAULT 0,
    open_session INTEGER NOT NULL DEFAULT 0
);
`

type DB struct {
	db *sql.DB
}

func OpenDB(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	// schema version tracking for forced re-ingest
	db.Exec("CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT)")
	d := &DB{db: db}
	d.migrateSchemaVersion()

	return d, nil
}

// schemaVersion should be bumped whenever parsing logic changes
// to force a full re-ingest.
const schemaVersion = "2"

func (d *DB) migrateSchemaVersion() {
	var ver string
	err := d.db.QueryRow("SELECT value FROM meta WHERE key = 'schema_version'").Scan(&ver)
	if err != nil || ver != schemaVersion {
		// force re-ingest by resetting all parse offsets
		d.db.Exec("UPDATE parse_state SET byte_offset = 0, line_count = 0, open_session = 0")
		d.db.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES ('schema_version', ?)", schemaVersion)
	}
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Raw() *sql.DB {
	return d.db
}

// ParseState is the resume point persisted per log file. When the previous
// ingest ended inside a connection, Offset and LineCount point at that
// session's Connected line rather than end-of-file, and OpenSession records
// why the cursor was parked there.
type ParseState struct {
	Offset      int64
	LineCount   int
	OpenSession bool
}

func (d *DB) GetParseState(logPath string) (*ParseState, error) {
	var st ParseState
	err := d.db.QueryRow(
		"SELECT byte_offset, line_count, open_session FROM parse_state WHERE log_path = ?",
		logPath,
	).Scan(&st.Offset, &st.LineCount, &st.OpenSession)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (d *DB) SetParseState(logPath string, st ParseState) error {
	_, err := d.db.Exec(
		`INSERT OR REPLACE INTO parse_state (log_path, byte_offset, line_count, open_session)
		 VALUES (?, ?, ?, ?)`,
		logPath, st.Offset, st.LineCount, st.OpenSession,
	)
	return err
}

// AddCalls inserts one row per projected call. Re-parsed sessions replace
// their earlier rows, keyed on (glider, dive, cycle, call), so overlapping
// ingests stay idempotent.
func (d *DB) AddCalls(logPath string, recs []commlog.CallRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT OR REPLACE INTO calls (glider, dive, cycle, call, connected, lat, lon, epoch,
		    RH, intP, temp, volts10, volts24, pitch, depth, pitchAD, rollAD, vbdAD,
		    sst, sss, density, iridLat, iridLon, irid_t, log_path)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range recs {
		_, err := stmt.Exec(
			r.Glider, r.Dive, r.Cycle, r.Call, r.Connected, r.Lat, r.Lon, r.Epoch,
			r.RH, r.IntP, r.Temp, r.Volts10, r.Volts24, r.Pitch, r.Depth,
			r.PitchAD, r.RollAD, r.VBDAD, r.SST, r.SSS, r.Density,
			r.IridLat, r.IridLon, r.IridT, logPath,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CallRow is one persisted call projection.
type CallRow struct {
	commlog.CallRecord
	LogPath string
}

// ListCalls returns calls newest-first, optionally filtered to one glider.
// limit <= 0 means no limit.
func (d *DB) ListCalls(glider, limit int) ([]CallRow, error) {
	q := `SELECT glider, dive, cycle, call, connected, lat, lon, epoch,
	        RH, intP, temp, volts10, volts24, pitch, depth, pitchAD, rollAD, vbdAD,
	        sst, sss, density, iridLat, iridLon, irid_t, log_path
	      FROM calls`
	var args []any
	if glider > 0 {
		q += " WHERE glider = ?"
		args = append(args, glider)
	}
	q += " ORDER BY connected DESC"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var calls []CallRow
	for rows.Next() {
		var c CallRow
		err := rows.Scan(
			&c.Glider, &c.Dive, &c.Cycle, &c.Call, &c.Connected, &c.Lat, &c.Lon, &c.Epoch,
			&c.RH, &c.IntP, &c.Temp, &c.Volts10, &c.Volts24, &c.Pitch, &c.Depth,
			&c.PitchAD, &c.RollAD, &c.VBDAD, &c.SST, &c.SSS, &c.Density,
			&c.IridLat, &c.IridLon, &c.IridT, &c.LogPath,
		)
		if err != nil {
			return nil, err
		}
		calls = append(calls, c)
	}
	return calls, rows.Err()
}

// LatestCall returns the most recent call for a glider, or nil.
func (d *DB) LatestCall(glider int) (*CallRow, error) {
	calls, err := d.ListCalls(glider, 1)
	if err != nil {
		return nil, err
	}
	if len(calls) == 0 {
		return nil, nil
	}
	return &calls[0], nil
}

func (d *DB) CallCount() (int, error) {
	var n int
	err := d.db.QueryRow("SELECT COUNT(*) FROM calls").Scan(&n)
	return n, err
}

// Gliders returns the distinct glider ids present in the calls table.
func (d *DB) Gliders() ([]int, error) {
	rows, err := d.db.Query("SELECT DISTINCT glider FROM calls ORDER BY glider")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
