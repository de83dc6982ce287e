package commlog

import (
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/iop-apl-uw/commlog/internal/ver65"
)

var sgTagRE = regexp.MustCompile(`\[sg(\d+)\]`)

// remapName applies the version 65 filename convention when the caller
// asked for it. Names the remapper does not recognize pass through.
func (p *parser) remapName(name string) string {
	if p.opts.LegacyNames {
		if mapped := ver65.ToVer66Filename(name); mapped != "" {
			return mapped
		}
	}
	return name
}

// handleParsedFrom processes "Parsed <directive> from {./callend|cmdfile}"
// lines. The wire protocol carries no size for these uploads, so a raw
// transfer stat is synthesized from the local file that already landed.
func (p *parser) handleParsedFrom(fields []string) bool {
	if len(fields) < 3 || fields[0] != "Parsed" || fields[2] != "from" {
		return false
	}
	s := p.session
	if s != nil {
		s.CmdDirective = fields[1]
	}
	var cmdRun string
	if len(fields) >= 4 && fields[3] == "./callend" {
		cmdRun = "callend"
	} else if len(fields) >= 5 && fields[3] == "cmdfile" {
		cmdRun = "cmdfile"
	}
	if cmdRun == "" || s == nil {
		return true
	}
	info, err := os.Stat(filepath.Join(p.opts.MissionDir, cmdRun))
	if err != nil {
		p.log.Error("could not stat command file", "file", cmdRun, "line_num", p.lineCount, "error", err)
		return true
	}
	size := info.Size()
	p.transferMethod[cmdRun] = "raw"
	s.TransferMethod[cmdRun] = "raw"
	s.TransferedSize[cmdRun] = size
	s.TransferDirection[cmdRun] = "sent"
	s.FileStats[cmdRun] = FileStats{ExpectedSize: -1, TransferSize: size, ReceivedSize: size, BPS: 0.0}
	if cb := p.opts.Callbacks.Received; cb != nil {
		fire(p.log, "received", func() { cb(cmdRun, size) })
	}
	return true
}

// handleUntaggedReceived processes "Received cmdfile 322 bytes" lines, the
// confirmation of an XMODEM/YMODEM upload. The size summary for the same
// file normally precedes this line; when it doesn't, sizes stay -1.
func (p *parser) handleUntaggedReceived(fields []string) bool {
	if fields[0] != "Received" {
		return false
	}
	if len(fields) <= 3 {
		return true
	}
	s := p.session
	filename := fields[1]
	receivedSize, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		p.log.Error("could not process received line", "line_num", p.lineCount, "error", err)
		return true
	}
	s.TransferDirection[filename] = "received"
	expected, transfer, bps := int64(-1), int64(-1), -1.0
	if prior, ok := s.FileStats[filename]; ok {
		expected, transfer, bps = prior.ExpectedSize, prior.TransferSize, prior.BPS
	} else {
		p.log.Warn("found Received with no matching X/Y MODEM line", "file", filename)
	}
	s.FileStats[filename] = FileStats{ExpectedSize: expected, TransferSize: transfer, ReceivedSize: receivedSize, BPS: bps}
	if cb := p.opts.Callbacks.Received; cb != nil {
		fire(p.log, "received", func() { cb(filename, receivedSize) })
	}
	return true
}

// handleTagged processes lines carrying a "[sgNNN]" tag: per-line timestamps,
// vehicle id refresh, and the RAW protocol start/completion records.
// Returns false when the line has no tag.
func (p *parser) handleTagged(raw string) bool {
	loc := sgTagRE.FindStringSubmatchIndex(raw)
	if loc == nil {
		return false
	}
	s := p.session

	tsString := strings.TrimSpace(raw[:loc[0]])
	if ts, err := time.Parse("2006-01-02T15:04:05Z", tsString); err == nil {
		p.setLineTS(ts)
	} else if ts, err := parseLocalTime(tsString, s.TimeZone); err == nil {
		p.setLineTS(ts)
	} else {
		p.log.Warn("could not parse transfer timestamp", "line_num", p.lineCount, "ts", tsString)
	}

	if id, err := strconv.Atoi(raw[loc[2]:loc[3]]); err == nil {
		s.SgID = id
	}

	// Thu Aug  4 19:48:52 2016 [sg203] Sent 192 bytes of cmdfile
	actions := strings.Fields(raw[loc[1]:])

	if len(actions) > 4 {
		switch {
		case actions[0] == "Sending":
			filename := actions[4]
			if n, err := strconv.ParseInt(actions[1], 10, 64); err == nil {
				s.FileStats[filename] = FileStats{ExpectedSize: n, TransferSize: -1, ReceivedSize: -1, BPS: -1}
			} else {
				p.log.Error("could not process sending line", "line_num", p.lineCount, "error", err)
			}
			return true
		case actions[0] == "Sent" && !strings.Contains(raw, "/YMODEM") && !strings.Contains(raw, "/XMODEM"):
			// Raw upload completion
			filename := actions[4]
			n, err := strconv.ParseInt(actions[1], 10, 64)
			if err != nil {
				p.log.Error("could not process sent line", "line_num", p.lineCount, "error", err)
				return true
			}
			p.transferMethod[filename] = "raw"
			s.TransferMethod[filename] = "raw"
			s.TransferedSize[filename] = n
			s.TransferDirection[filename] = "received"
			s.FileStats[filename] = FileStats{ExpectedSize: -1, TransferSize: n, ReceivedSize: n, BPS: -1}
			if cb := p.opts.Callbacks.Received; cb != nil {
				fire(p.log, "received", func() { cb(filename, n) })
			}
			return true
		}
	}

	if len(actions) >= 5 {
		switch {
		// Tue Oct  6 07:37:38 2020 [sg236] Receiving 8192 bytes of sc0041bg.x02
		case actions[0] == "Receiving":
			filename := actions[4]
			if _, ok := s.FileStats[filename]; ok {
				s.FileRetries[filename]++
			}
			if n, err := strconv.ParseInt(actions[1], 10, 64); err == nil {
				s.FileStats[filename] = FileStats{ExpectedSize: n, TransferSize: -1, ReceivedSize: -1, BPS: -1}
			} else {
				p.log.Error("could not process receiving line", "line_num", p.lineCount, "error", err)
			}
			return true
		// Thu Aug  4 19:49:42 2016 [sg203] Received 386 bytes of br0003lp.x03 (366.2 Bps)
		case actions[0] == "Received" && !strings.Contains(raw, "/YMODEM"):
			p.handleRawDownload(actions)
			return true
		}
	}

	p.handleProtocolSummary(raw)
	return true
}

// handleRawDownload finishes a RAW protocol download started by a Receiving
// line. A five-token form has no rate; a seven-token form carries "(N Bps)".
func (p *parser) handleRawDownload(actions []string) {
	s := p.session
	filename := actions[4]
	expected := int64(-1)
	if prior, ok := s.FileStats[filename]; ok {
		expected = prior.ExpectedSize
	} else {
		p.log.Warn("found Received with no matching Receiving line", "file", filename)
	}
	n, err := strconv.ParseInt(actions[1], 10, 64)
	if err != nil {
		p.log.Error("could not process received line", "line_num", p.lineCount, "error", err)
		return
	}
	p.transferMethod[filename] = "raw"
	s.TransferMethod[filename] = "raw"
	s.TransferDirection[filename] = "sent"
	s.TransferedSize[filename] = n

	switch len(actions) {
	case 5:
		s.FileStats[filename] = FileStats{ExpectedSize: expected, TransferSize: n, ReceivedSize: n, BPS: 0.0}
	case 7:
		bps, err := strconv.ParseFloat(strings.TrimLeft(actions[5], "("), 64)
		if err != nil {
			p.log.Error("could not parse transfer rate", "line_num", p.lineCount, "field", actions[5])
			bps = -1
		}
		s.FileStats[filename] = FileStats{ExpectedSize: expected, TransferSize: n, ReceivedSize: n, BPS: bps}
	default:
		p.log.Warn("could not process received line - skipping", "line_num", p.lineCount)
		return
	}
	if cb := p.opts.Callbacks.Transfered; cb != nil {
		fire(p.log, "transfered", func() { cb(filename, n) })
	}
}

// handleProtocolSummary covers the XMODEM/YMODEM bookkeeping lines: the
// final size summary, failed attempts, and per-sector progress reports.
// Logs written by newer basestations omit the [sgNNN] tag on these, so the
// state machine also routes untagged in-session lines here.
func (p *parser) handleProtocolSummary(raw string) bool {
	switch {
	case strings.Contains(raw, "Bytes"):
		p.handleBytesSummary(raw)
	case strings.Contains(raw, "got error"):
		p.handleGotError(raw)
	case strings.Contains(raw, "sector number = "):
		p.handleSector(raw)
	}
	// Anything else near a modem transfer is chatter the got-error
	// handling already accounts for.
	return true
}

func splitProtocol(raw string) (front, end string, ymodem bool) {
	ymodem = strings.Contains(raw, "/YMODEM:") && !strings.Contains(raw, "/XMODEM:")
	sep := "/XMODEM:"
	if ymodem {
		sep = "/YMODEM:"
	}
	front, end, _ = strings.Cut(raw, sep)
	return front, end, ymodem
}

// handleBytesSummary finalizes one XMODEM/YMODEM transfer:
// Fri Aug  5 17:17:48 2016 [sg075] cmdfile/XMODEM: 384 Bytes, 75 BPS
// With XMODEM the payload is padded so only the transfer size is known;
// YMODEM does not pad, so the transfer size doubles as the received size.
func (p *parser) handleBytesSummary(raw string) {
	s := p.session
	front, end, ymodem := splitProtocol(raw)
	frontFields := strings.Fields(front)
	if len(frontFields) == 0 {
		p.log.Error("malformed transfer summary", "line_num", p.lineCount, "line", raw)
		return
	}
	filename := p.remapName(frontFields[len(frontFields)-1])

	endFields := strings.Fields(end)
	transferSize, bps := int64(-1), int64(-1)
	if len(endFields) >= 3 {
		var err1, err2 error
		transferSize, err1 = strconv.ParseInt(endFields[0], 10, 64)
		bps, err2 = strconv.ParseInt(strings.TrimRight(endFields[2], ","), 10, 64)
		if err1 != nil || err2 != nil {
			p.log.Error("error processing transfer summary", "file", p.path, "line_num", p.lineCount, "line", raw)
			transferSize, bps = -1, -1
		}
	} else {
		p.log.Error("error processing transfer summary", "file", p.path, "line_num", p.lineCount, "line", raw)
	}

	expected, received := int64(-1), int64(-1)
	if ymodem {
		if prior, ok := s.FileStats[filename]; ok {
			expected = prior.ExpectedSize
		} else {
			// Follows Receiving on a download but precedes Received on
			// an upload, so missing stats are routine here.
			p.log.Debug("no matching Receiving line for summary", "file", filename)
		}
		received = transferSize
	}
	s.FileStats[filename] = FileStats{ExpectedSize: expected, TransferSize: transferSize, ReceivedSize: received, BPS: float64(bps)}
	s.TransferedSize[filename] = transferSize

	method := "xmodem"
	if ymodem {
		method = "ymodem"
	}
	s.TransferMethod[filename] = method
	p.transferMethod[filename] = method

	p.filesTransfered[filename] = append(p.filesTransfered[filename], p.sectors...)
	p.sectors = nil
	if len(p.crcErrors) > 0 {
		s.CRCErrors[filename] = p.crcErrors
		p.crcErrors = nil
	}

	if p.opts.KnownFiles != nil {
		cb, name := p.opts.Callbacks.Transfered, "transfered"
		if slices.Contains(p.opts.KnownFiles, filename) {
			cb, name = p.opts.Callbacks.Received, "received"
		}
		if cb != nil {
			fire(p.log, name, func() { cb(filename, transferSize) })
		}
	}
}

// handleGotError records a failed XMODEM/YMODEM attempt as a (0,0) sector.
func (p *parser) handleGotError(raw string) {
	s := p.session
	front, _, ymodem := splitProtocol(raw)
	frontFields := strings.Fields(front)
	if len(frontFields) == 0 {
		p.log.Error("malformed transfer error line", "line_num", p.lineCount, "line", raw)
		return
	}
	filename := p.remapName(frontFields[len(frontFields)-1])

	method := "xmodem"
	if ymodem {
		method = "ymodem"
	}
	s.TransferMethod[filename] = method
	p.transferMethod[filename] = method

	p.sectors = append(p.sectors, Sector{0, 0})
	p.filesTransfered[filename] = append(p.filesTransfered[filename], p.sectors...)
	p.sectors = nil
	if len(p.crcErrors) > 0 {
		s.CRCErrors[filename] = p.crcErrors
		p.crcErrors = nil
	}
}

// handleSector accumulates per-sector progress and CRC error reports into
// the transient lists the next summary line consumes.
func (p *parser) handleSector(raw string) {
	switch {
	case strings.Contains(raw, "block length"):
		front, end, _ := strings.Cut(raw, ", block length = ")
		_, numStr, _ := strings.Cut(front, "=")
		sectorNum, err1 := strconv.Atoi(strings.TrimSpace(numStr))
		blockLen, err2 := strconv.Atoi(strings.TrimSpace(end))
		if err1 != nil || err2 != nil {
			p.log.Warn("malformed sector line - skipping", "line_num", p.lineCount, "line", raw)
			return
		}
		p.sectors = append(p.sectors, Sector{sectorNum, blockLen})
	case strings.Contains(raw, "CRC error"):
		idx := strings.LastIndex(raw, "=")
		sectorNum, err := strconv.Atoi(strings.TrimSpace(raw[idx+1:]))
		if err != nil {
			p.log.Warn("malformed CRC error line - skipping", "line_num", p.lineCount, "line", raw)
			return
		}
		p.crcErrors = append(p.crcErrors, sectorNum)
	}
}

// handleBareVer decodes the standalone "ver=66.00,rev=753M,frag=4" line that
// older firmware emitted outside a counter line. Unparseable pieces get the
// historical defaults rather than aborting.
func (p *parser) handleBareVer(fields []string) bool {
	before, _, found := strings.Cut(fields[0], "=")
	if !found || before != "ver" {
		return false
	}
	s := p.session
	tmp := strings.Split(fields[0], ",")

	verStr := afterEq(tmp[0])
	if v, err := strconv.ParseFloat(verStr, 64); err == nil {
		s.SoftwareVersion = &v
	} else if v := parseDottedVersion(verStr); v != nil {
		s.SoftwareVersion = v
	} else {
		p.log.Error("unknown software version - assuming 66.00", "version", verStr)
		fallback := 66.00
		s.SoftwareVersion = &fallback
	}

	if len(tmp) > 1 {
		s.SoftwareRevision = afterEq(tmp[1])
		if s.SoftwareRevision == "Unversioned" && len(fields) > 1 {
			// "rev=Unversioned directory,frag=4": the real elements
			// continue in the next whitespace token.
			cont := strings.Split(fields[1], ",")
			if len(cont) > 1 {
				tmp = append(tmp[:2], cont[1:]...)
			}
		}
	} else {
		p.log.Error("could not parse software revision - assuming 0", "line_num", p.lineCount)
		s.SoftwareRevision = "0"
	}

	frag := int64(4)
	if len(tmp) > 2 {
		if n, err := strconv.ParseInt(afterEq(tmp[2]), 10, 64); err == nil {
			frag = n * 1024 // advertised in KiB
		} else {
			p.log.Error("could not parse fragment size - assuming 4", "field", tmp[2])
		}
	} else {
		p.log.Error("could not parse fragment size - assuming 4", "line_num", p.lineCount)
	}
	s.FragmentSize = &frag

	if len(tmp) > 3 {
		lt, err := time.Parse("020106:150405", afterEq(tmp[3]))
		if err != nil {
			p.log.Error("could not parse launch time", "line_num", p.lineCount)
			return true
		}
		s.LaunchTime = lt
	}

	if cb := p.opts.Callbacks.Ver; cb != nil {
		fire(p.log, "ver", func() { cb(s) })
	}
	return true
}

// parseDottedVersion truncates the alternate major.minor.rev.rev numbering
// to its first two components.
func parseDottedVersion(ver string) *float64 {
	parts := strings.Split(ver, ".")
	if len(parts) <= 2 {
		return nil
	}
	v, err := strconv.ParseFloat(parts[0]+"."+parts[1], 64)
	if err != nil {
		return nil
	}
	return &v
}
