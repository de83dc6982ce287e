package store

import (
	"fmt"
	"log/slog"

	"github.com/iop-apl-uw/commlog/internal/commlog"
	"github.com/iop-apl-uw/commlog/internal/scan"
)

type Stats struct {
	Scanned  int
	Updated  int
	Skipped  int
	Sessions int
	Errors   int
}

func (s Stats) String() string {
	return fmt.Sprintf("scanned=%d updated=%d skipped=%d sessions=%d errors=%d",
		s.Scanned, s.Updated, s.Skipped, s.Sessions, s.Errors)
}

// IngestOptions carry the per-run parse knobs down to the engine.
type IngestOptions struct {
	KnownFiles  []string
	LegacyNames bool
	Logger      *slog.Logger
}

// IngestAll parses every comm.log under the mission root and persists the
// per-session call projections. Each log resumes from its stored byte
// offset; a log whose previous ingest ended inside an open session stores
// the offset of that session's Connected line, so the next run replays the
// session whole, and the replaced rows keep the result idempotent.
func IngestAll(db *DB, missionRoot string, opts IngestOptions) (Stats, error) {
	var stats Stats
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	files, err := scan.ScanRoot(missionRoot)
	if err != nil {
		return stats, fmt.Errorf("scan: %w", err)
	}
	stats.Scanned = len(files)

	for _, fi := range files {
		n, err := ingestOne(db, fi, opts, log)
		if err != nil {
			stats.Errors++
			log.Warn("ingest failed", "log", fi.Path, "error", err)
			continue
		}
		if n < 0 {
			stats.Skipped++
			continue
		}
		stats.Updated++
		stats.Sessions += n
	}
	return stats, nil
}

// ingestOne parses a single comm.log from its stored resume point and
// returns the number of sessions persisted, or -1 when the file had not
// grown.
func ingestOne(db *DB, fi scan.FileInfo, opts IngestOptions, log *slog.Logger) (int, error) {
	st, err := db.GetParseState(fi.Path)
	if err != nil {
		return 0, fmt.Errorf("parse state: %w", err)
	}

	resume := commlog.Resume{}
	parseOpts := commlog.Options{
		KnownFiles:  opts.KnownFiles,
		LegacyNames: opts.LegacyNames,
		MissionDir:  fi.MissionDir,
		Logger:      log.With("glider", fi.GliderID),
	}
	if st != nil {
		resume.Offset = st.Offset
		resume.LineCount = st.LineCount
	}

	coll, next, err := commlog.Process(fi.Path, parseOpts, resume)
	if err != nil {
		return 0, err
	}
	if coll == nil {
		return -1, nil
	}

	var recs []commlog.CallRecord
	for _, s := range coll.Sessions {
		rec, ok := s.Projection()
		if !ok {
			continue
		}
		if rec.Glider == 0 {
			rec.Glider = fi.GliderID
		}
		recs = append(recs, rec)
	}
	if err := db.AddCalls(fi.Path, recs); err != nil {
		return 0, fmt.Errorf("add calls: %w", err)
	}

	state := ParseState{
		Offset:    next.Offset,
		LineCount: next.LineCount,
	}
	if next.Session != nil {
		// The open session itself is not persisted; park the resume point
		// on its Connected line so the next run rebuilds it whole without
		// losing sessions that close in between.
		state.Offset = next.SessionStart
		state.LineCount = next.SessionLine
		state.OpenSession = true
	}
	if err := db.SetParseState(fi.Path, state); err != nil {
		return 0, fmt.Errorf("set parse state: %w", err)
	}
	return len(coll.Sessions), nil
}
