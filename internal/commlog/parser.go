package commlog

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultKnownFiles are the auxiliary filenames whose completed transfers
// are reported to the received callback instead of the transfered one.
var DefaultKnownFiles = []string{"cmdfile", "science", "targets", "pdoscmds.bat"}

// Options control a single parse pass.
type Options struct {
	// KnownFiles overrides DefaultKnownFiles when non-empty.
	KnownFiles []string

	// ScanBack seeks backward from end-of-file to the most recent line
	// starting with "Connected" and parses from there, ignoring any
	// resume offset. Falls back to the start of the file when no such
	// line exists.
	ScanBack bool

	// LegacyNames passes transferred filenames through the version 65
	// naming remapper before classification.
	LegacyNames bool

	// MissionDir is where already-landed command files live; used to
	// synthesize transfer stats for lines that carry no size.
	MissionDir string

	Callbacks Callbacks
	Logger    *slog.Logger
}

// Resume is the state threaded across invocations when parsing a log file
// that grows over time. The zero value means a full parse from the start.
// Session, when non-nil, is a connection left open at the previous chunk
// boundary; it is handed back in to preserve continuity.
//
// SessionStart and SessionLine locate the open session's Connected line:
// its byte offset and the line count just before it. A caller that cannot
// hold the Session pointer across invocations re-enters the log at
// SessionStart/SessionLine instead, replaying the Connected line so the
// session rebuilds whole. Both are zero when Session is nil.
type Resume struct {
	Offset       int64
	Session      *Session
	LineCount    int
	SessionStart int64
	SessionLine  int
}

type parser struct {
	opts      Options
	log       *slog.Logger
	path      string
	lineCount int
	lineStart int64

	session      *Session
	sessionStart int64
	sessionLine  int
	sessions     []*Session
	rawLines     []RawLine

	// transient transfer bookkeeping, consumed by the next summary line
	sectors   []Sector
	crcErrors []int

	filesTransfered map[string][]Sector
	transferMethod  map[string]string
}

func (p *parser) setLineTS(ts time.Time) {
	if n := len(p.rawLines); n > 0 {
		p.rawLines[n-1].TS = ts
	}
}

func (p *parser) collection() *Collection {
	return &Collection{
		Sessions:           p.sessions,
		RawLines:           p.rawLines,
		FilesTransfered:    p.filesTransfered,
		FileTransferMethod: p.transferMethod,
	}
}

// Process parses the comm log at path, starting from the resume point, and
// returns the reconstructed collection plus the resume state for the next
// invocation. When the file has not grown since resume.Offset the
// collection is nil and the resume state is returned unchanged. A session
// still open at end of input is carried in the returned Resume rather than
// appended to the collection.
//
// A panic anywhere in the scan is caught here: the sessions closed before
// the fault are still returned, along with an error.
func Process(path string, opts Options, resume Resume) (coll *Collection, next Resume, err error) {
	if len(opts.KnownFiles) == 0 {
		opts.KnownFiles = DefaultKnownFiles
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	p := &parser{
		opts:            opts,
		log:             opts.Logger,
		path:            path,
		lineCount:       resume.LineCount,
		session:         resume.Session,
		sessionStart:    resume.SessionStart,
		sessionLine:     resume.SessionLine,
		filesTransfered: make(map[string][]Sector),
		transferMethod:  make(map[string]string),
	}

	defer func() {
		if r := recover(); r != nil {
			p.log.Error("comm log processing failed unexpectedly",
				"file", path, "line_num", p.lineCount, "panic", r)
			coll = p.collection()
			next = p.resumeState(resume.Offset)
			err = fmt.Errorf("process %s: panic at line %d: %v", path, p.lineCount, r)
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		return nil, resume, fmt.Errorf("open comm log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, resume, fmt.Errorf("stat comm log: %w", err)
	}
	size := info.Size()

	startPos := resume.Offset
	if opts.ScanBack {
		startPos = scanBackConnected(f, size)
		p.discardResume()
		p.lineCount = countLines(io.NewSectionReader(f, 0, startPos))
		p.log.Info("scan back", "file", path, "pos", startPos, "line_num", p.lineCount)
	}
	if startPos > size {
		// File got smaller, reparse from the top.
		p.log.Info("file shrank - resetting start position", "size", size, "offset", startPos)
		startPos = 0
		p.discardResume()
	}
	if startPos > 0 {
		if startPos == size {
			// Nothing new to read.
			return nil, p.resumeState(startPos), nil
		}
		if _, err := f.Seek(startPos, io.SeekStart); err != nil {
			return nil, resume, fmt.Errorf("seek comm log: %w", err)
		}
	} else {
		startPos = 0
	}

	r := bufio.NewReader(f)
	pos := startPos
	for {
		chunk, readErr := r.ReadBytes('\n')
		if len(chunk) > 0 {
			p.lineStart = pos
			pos += int64(len(chunk))
			p.lineCount++
			p.processLine(chunk)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, resume, fmt.Errorf("read comm log: %w", readErr)
		}
	}

	return p.collection(), p.resumeState(pos), nil
}

// resumeState builds the Resume for the next invocation with the parse
// cursor at offset.
func (p *parser) resumeState(offset int64) Resume {
	next := Resume{Offset: offset, Session: p.session, LineCount: p.lineCount}
	if p.session != nil {
		next.SessionStart = p.sessionStart
		next.SessionLine = p.sessionLine
	}
	return next
}

// discardResume drops the carried parse position when the start offset is
// being recomputed, so a session or line count from a stale resume point
// cannot leak into the new pass.
func (p *parser) discardResume() {
	p.session = nil
	p.sessionStart = 0
	p.sessionLine = 0
	p.lineCount = 0
}

// countLines counts newline-terminated lines in r.
func countLines(r io.Reader) int {
	buf := make([]byte, 32*1024)
	n := 0
	for {
		c, err := r.Read(buf)
		n += bytes.Count(buf[:c], []byte{'\n'})
		if err != nil {
			return n
		}
	}
}

// scanBackConnected walks backward from end-of-file for the most recent
// line beginning with "Connected" and returns its byte offset, or 0 to
// parse from the start when no such line is found.
func scanBackConnected(f *os.File, size int64) int64 {
	buf := make([]byte, 1)
	prefix := make([]byte, len("Connected"))
	for pos := size - 2; pos > 0; pos-- {
		if _, err := f.ReadAt(buf, pos); err != nil {
			return 0
		}
		if buf[0] != '\n' {
			continue
		}
		n, err := f.ReadAt(prefix, pos+1)
		if err != nil && err != io.EOF {
			return 0
		}
		if string(prefix[:n]) == "Connected" {
			return pos + 1
		}
	}
	return 0
}

func (p *parser) processLine(chunk []byte) {
	if !utf8.Valid(chunk) {
		p.log.Warn("could not decode line - skipping", "file", p.path, "line_num", p.lineCount)
		return
	}
	raw := strings.TrimRight(string(chunk), " \t\r\n")
	if raw == "" {
		return
	}
	p.rawLines = append(p.rawLines, RawLine{Text: raw})

	// Partially transmitted files are renamed out of the patched lrzsz
	// executables; those lines may land before or after Disconnected and
	// carry nothing we use.
	if strings.HasPrefix(raw, "Renamed partial file") ||
		strings.Contains(raw, "processed partial file") ||
		strings.HasPrefix(raw, "Missing expected basestation prompt") {
		return
	}

	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return
	}

	if p.handleParsedFrom(fields) {
		return
	}

	// XMODEM to glider
	if fields[0] == "Sent" {
		if p.session != nil && len(fields) > 1 {
			p.session.TransferDirection[fields[1]] = "sent"
		}
		return
	}

	switch fields[0] {
	case "Connected":
		p.handleConnected(raw)
		return
	case "Reconnected":
		p.handleReconnected(raw)
		return
	case "Disconnected":
		p.handleDisconnected(raw)
		return
	case "shutdown":
		if p.session != nil {
			p.session.ShutdownSeen = true
		}
		return
	}

	if p.session == nil {
		p.log.Debug("line outside session", "file", p.path, "line_num", p.lineCount, "line", raw)
		return
	}
	s := p.session

	if p.crackCounterLine(s, fields, raw) {
		if cb := p.opts.Callbacks.CounterLine; cb != nil {
			fire(p.log, "counter_line", func() { cb(s) })
		}
		return
	}

	if p.handleRecovery(s, fields) {
		return
	}

	if p.handleIridium(s, raw) {
		return
	}

	if p.handleUntaggedReceived(fields) {
		return
	}

	if p.handleTagged(raw) {
		return
	}

	// Newer basestations log the modem bookkeeping without the tag.
	if strings.Contains(raw, "Bytes") || strings.Contains(raw, "got error") ||
		strings.Contains(raw, "sector number = ") {
		p.handleProtocolSummary(raw)
		return
	}

	if p.handleBareVer(fields) {
		return
	}

	if fields[0] == "logged" && len(fields) > 1 && fields[1] == "in" {
		return
	}
	if slices.Contains(p.opts.KnownFiles, fields[0]) {
		return
	}

	p.log.Debug("unknown line", "file", p.path, "line_num", p.lineCount, "line", raw)
}

func (p *parser) handleConnected(raw string) {
	if p.session != nil {
		p.log.Warn("found Connected with no previous Disconnect",
			"file", p.path, "line_num", p.lineCount)
	}
	ts, timeZone, username, ok := crackConnectLine(raw)
	if !ok {
		p.log.Warn("Connected line did not have a timestamp", "line", raw)
		return
	}
	p.session = newSession(ts, timeZone)
	p.sessionStart = p.lineStart
	p.sessionLine = p.lineCount - 1
	if id, ok := sgIDFromUsername(username); ok {
		p.session.SgID = id
	} else if id, ok := sgIDFromPath(p.path); ok {
		// Deduce the glider id from the housing directory; any file
		// transferred during the call refreshes it.
		p.session.SgID = id
	}
	p.setLineTS(ts)
	if cb := p.opts.Callbacks.Connected; cb != nil {
		fire(p.log, "connected", func() { cb(ts) })
	}
}

func (p *parser) handleReconnected(raw string) {
	ts, _, username, ok := crackConnectLine(raw)
	if !ok {
		return
	}
	p.setLineTS(ts)
	if p.session != nil {
		p.session.ReconnectTS = ts
		if id, ok := sgIDFromUsername(username); ok {
			p.session.SgID = id
		}
	} else {
		p.log.Warn("found Reconnected outside Connected",
			"file", p.path, "line_num", p.lineCount)
	}
	if cb := p.opts.Callbacks.Reconnected; cb != nil {
		fire(p.log, "reconnected", func() { cb(ts) })
	}
}

func (p *parser) handleDisconnected(raw string) {
	ts, _, logoutStatus, ok := crackConnectLine(raw)
	if !ok {
		return
	}
	p.setLineTS(ts)
	s := p.session
	if s != nil {
		s.DisconnectTS = ts
		s.LogoutStatus = logoutStatus
		p.sessions = append(p.sessions, s)
	} else {
		p.log.Warn("found Disconnect with no previous Connected",
			"file", p.path, "line_num", p.lineCount)
	}
	if cb := p.opts.Callbacks.Disconnected; cb != nil {
		fire(p.log, "disconnected", func() { cb(s) })
	}
	p.session = nil
	p.sessionStart = 0
	p.sessionLine = 0
}

// handleRecovery picks off the recovery key=value lines. Every other
// in-session line clears the recovery state via a nil-message callback,
// so observers can track when the vehicle leaves recovery.
func (p *parser) handleRecovery(s *Session, fields []string) bool {
	key, val, _ := strings.Cut(fields[0], "=")
	switch key {
	case "EOP_CODE":
		s.EOPCode = val
		return true
	case "RECOV_CODE":
		s.RecovCode = val
		if cb := p.opts.Callbacks.Recovery; cb != nil {
			msg := val
			if s.EOPCode != "" {
				msg = val + ":" + s.EOPCode
			}
			fire(p.log, "recovery", func() { cb(msg) })
		}
		return true
	default:
		if cb := p.opts.Callbacks.Recovery; cb != nil {
			fire(p.log, "recovery", func() { cb("") })
		}
	}
	switch key {
	case "ESCAPE_REASON":
		s.EscapeReason = val
		return true
	case "STARTED":
		if n, err := strconv.Atoi(val); err == nil {
			s.EscapeStarted = &n
		} else {
			p.log.Warn("malformed escape line - skipping", "line_num", p.lineCount)
		}
		return true
	}
	return false
}

// handleIridium decodes the phone-reported position lines:
//
//	Iridium bars: 3: 4807.211,-12223.095,260506,151750
//	Iridium geolocation: 4807.211 -12223.095
//
// A malformed line falls through to transfer classification.
func (p *parser) handleIridium(s *Session, raw string) bool {
	parts := strings.Split(raw, ":")
	switch parts[0] {
	case "Iridium bars":
		if len(parts) < 3 {
			return true
		}
		ll := strings.Split(strings.TrimLeft(parts[2], " "), ",")
		if len(ll) < 4 {
			return false
		}
		lat, err1 := strconv.ParseFloat(ll[0], 64)
		lon, err2 := strconv.ParseFloat(ll[1], 64)
		ts, err3 := time.Parse("020106150405", ll[2]+ll[3])
		if err1 != nil || err2 != nil || err3 != nil {
			return false
		}
		s.PhoneFixLat = &lat
		s.PhoneFixLon = &lon
		s.PhoneFixTime = ts
		if cb := p.opts.Callbacks.Iridium; cb != nil {
			fire(p.log, "iridium", func() { cb(s) })
		}
		return true
	case "Iridium geolocation":
		if len(parts) < 2 {
			return false
		}
		ll := strings.Fields(parts[1])
		if len(ll) != 2 {
			ll = strings.Split(strings.TrimLeft(parts[1], " "), ",")
		}
		if len(ll) < 2 {
			return false
		}
		lat, err1 := strconv.ParseFloat(ll[0], 64)
		lon, err2 := strconv.ParseFloat(ll[1], 64)
		if err1 != nil || err2 != nil {
			return false
		}
		s.PhoneFixLat = &lat
		s.PhoneFixLon = &lon
		return true
	}
	return false
}

// sgIDFromUsername extracts the vehicle id from an operator identity such
// as "sg095" carried in a connect line payload.
func sgIDFromUsername(username string) (int, bool) {
	if len(username) < 5 || !strings.EqualFold(username[:2], "sg") {
		return 0, false
	}
	id, err := strconv.Atoi(username[2:5])
	if err != nil {
		return 0, false
	}
	return id, true
}

// sgIDFromPath infers the vehicle id from the mission directory holding
// the log, conventionally named sgNNN.
func sgIDFromPath(path string) (int, bool) {
	dir := filepath.Base(filepath.Dir(path))
	if len(dir) <= 2 {
		return 0, false
	}
	id, err := strconv.Atoi(dir[2:])
	if err != nil {
		return 0, false
	}
	return id, true
}
