package commlog

import (
	"strconv"
	"strings"
	"time"

	"github.com/iop-apl-uw/commlog/internal/gps"
)

func isInt(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}

func isFloat(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// fieldConv converts positional counter fields, logging failures and
// leaving the target nil so one bad field never drops the whole line.
type fieldConv struct {
	p    *parser
	vals []string
}

func (c fieldConv) intAt(pos int) *int {
	v, err := strconv.Atoi(c.vals[pos])
	if err != nil {
		c.p.log.Error("failed to convert counter field",
			"value", c.vals[pos], "type", "int", "line_num", c.p.lineCount, "position", pos)
		return nil
	}
	return &v
}

func (c fieldConv) floatAt(pos int) *float64 {
	v, err := strconv.ParseFloat(c.vals[pos], 64)
	if err != nil {
		c.p.log.Error("failed to convert counter field",
			"value", c.vals[pos], "type", "float", "line_num", c.p.lineCount, "position", pos)
		return nil
	}
	return &v
}

// counterFormats holds the known counter-line shapes, one per firmware era,
// ordered richest first. The first signature whose predicate matches wins.
// The 17- and 16-field shapes are told apart only by which field parses as
// a float; real logs depend on that tie-break.
var counterFormats = []struct {
	match  func(v []string) bool
	decode func(s *Session, c fieldConv)
}{
	{
		// r7312 first counter, adds sea surface T, S and density
		match: func(v []string) bool { return len(v) == 20 && isFloat(v[16]) },
		decode: func(s *Session, c fieldConv) {
			decodeCommon66(s, c)
			s.LastCallError = c.intAt(6)
			decodeAttitude(s, c)
			s.ObsPitch = c.floatAt(10)
			s.Depth = c.floatAt(11)
			s.Temperature = c.floatAt(12)
			s.Volt10V = c.floatAt(13)
			s.Volt24V = c.floatAt(14)
			s.IntPressure = c.floatAt(15)
			s.RH = c.floatAt(16)
			s.SeaTemperature = c.floatAt(17)
			s.SeaSalinity = c.floatAt(18)
			s.SeaDensity = c.floatAt(19)
		},
	},
	{
		// 66.09 - 67.00 first counter, with onboard temperature
		match: func(v []string) bool { return len(v) == 17 && isFloat(v[16]) },
		decode: func(s *Session, c fieldConv) {
			decodeCommon66(s, c)
			s.LastCallError = c.intAt(6)
			decodeAttitude(s, c)
			s.ObsPitch = c.floatAt(10)
			s.Depth = c.floatAt(11)
			s.Temperature = c.floatAt(12)
			s.Volt10V = c.floatAt(13)
			s.Volt24V = c.floatAt(14)
			s.IntPressure = c.floatAt(15)
			s.RH = c.floatAt(16)
		},
	},
	{
		// 66.09 - 66.10 first counter
		match: func(v []string) bool { return len(v) == 16 && isFloat(v[15]) },
		decode: func(s *Session, c fieldConv) {
			decodeCommon66(s, c)
			s.LastCallError = c.intAt(6)
			decodeAttitude(s, c)
			s.ObsPitch = c.floatAt(10)
			s.Depth = c.floatAt(11)
			s.Volt10V = c.floatAt(12)
			s.Volt24V = c.floatAt(13)
			s.IntPressure = c.floatAt(14)
			s.RH = c.floatAt(15)
		},
	},
	{
		// 66.08 first counter
		match: func(v []string) bool { return len(v) == 10 && isInt(v[9]) },
		decode: func(s *Session, c fieldConv) {
			decodeCommon66(s, c)
			s.LastCallError = c.intAt(6)
			decodeAttitude(s, c)
		},
	},
	{
		// 66.08 - 66.10 final counter
		match: func(v []string) bool { return len(v) == 7 && isInt(v[6]) },
		decode: func(s *Session, c fieldConv) {
			decodeCommon66(s, c)
			s.ThisCallError = c.intAt(6)
		},
	},
	{
		// 66.06 - 66.07 counter
		match: func(v []string) bool { return len(v) == 6 && isInt(v[5]) },
		decode: func(s *Session, c fieldConv) {
			decodeCommon66(s, c)
		},
	},
	{
		// 66.05 counter
		match: func(v []string) bool { return len(v) == 5 && isInt(v[4]) },
		decode: func(s *Session, c fieldConv) {
			s.DiveNum = c.intAt(0)
			s.CallCycle = c.intAt(1)
			s.CallsMade = c.intAt(2)
			s.NoComm = c.intAt(3)
			s.MissionNum = c.intAt(4)
		},
	},
	{
		// 66.00 - 66.04 counter
		match: func(v []string) bool { return len(v) == 4 && isInt(v[3]) },
		decode: func(s *Session, c fieldConv) {
			s.DiveNum = c.intAt(0)
			s.CallCycle = c.intAt(1)
			s.CallsMade = c.intAt(2)
			s.NoComm = c.intAt(3)
		},
	},
}

func decodeCommon66(s *Session, c fieldConv) {
	s.DiveNum = c.intAt(0)
	s.CallCycle = c.intAt(1)
	s.CallsMade = c.intAt(2)
	s.NoComm = c.intAt(3)
	s.MissionNum = c.intAt(4)
	s.RebootCount = c.intAt(5)
}

func decodeAttitude(s *Session, c fieldConv) {
	s.PitchAD = c.intAt(7)
	s.RollAD = c.intAt(8)
	s.VBDAD = c.intAt(9)
}

// crackCounterLine determines if a line is a counter line and, if so, fills
// out the session's telemetry fields and interprets the trailing token.
// fields is the whitespace-split form of raw.
func (p *parser) crackCounterLine(s *Session, fields []string, raw string) bool {
	cntVals := strings.Split(fields[0], ":")
	if len(cntVals) < 3 || len(cntVals) > 20 {
		return false
	}
	for i := range cntVals {
		cntVals[i] = strings.TrimLeft(cntVals[i], "ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	}
	if !isInt(cntVals[0]) || !isInt(cntVals[1]) || !isInt(cntVals[2]) {
		return false
	}

	conv := fieldConv{p: p, vals: cntVals}
	decoded := false
	for _, f := range counterFormats {
		if f.match(cntVals) {
			f.decode(s, conv)
			decoded = true
			break
		}
	}
	if !decoded {
		// Version 65 legacy counter: no call cycle field.
		p.log.Info("version 65 counter", "counter", fields[0])
		s.DiveNum = conv.intAt(0)
		s.CallsMade = conv.intAt(1)
		s.NoComm = conv.intAt(2)
	}

	// Interpret whatever follows the counter.
	if len(fields) < 2 {
		p.log.Warn("counter line appears with no trailing data",
			"file", p.path, "line_num", p.lineCount, "line", raw)
		return true
	}
	switch {
	case fields[1] == "logout":
		s.LogoutSeen = true
	case strings.HasPrefix(fields[1], "ver="):
		p.crackVerTail(s, fields)
	case gps.IsValidLine(fields[1]):
		anchor := s.ConnectTS
		if !s.ReconnectTS.IsZero() {
			anchor = s.ReconnectTS
		}
		s.GPSFix = gps.ParseFix(fields[1], anchor)
	default:
		p.log.Warn("unknown line after counter",
			"file", p.path, "line_num", p.lineCount, "line", raw)
	}
	return true
}

// crackVerTail decodes the "ver=66.06,rev=1893:1900M,frag=4[,launch=...]"
// tail of a counter line. A "rev=Unversioned" element means the build came
// from an unversioned working copy and the real revision follows in the
// next whitespace token.
func (p *parser) crackVerTail(s *Session, fields []string) {
	tmp := strings.Split(fields[1], ",")
	if len(tmp) < 2 {
		p.log.Error("malformed ver tail", "line_num", p.lineCount, "tail", fields[1])
		return
	}
	if tmp[1] == "rev=Unversioned" && len(fields) > 2 {
		// The elements after the revision continue in the next whitespace
		// token: "ver=66.06,rev=Unversioned directory,frag=4".
		cont := strings.Split(fields[2], ",")
		if len(cont) > 1 {
			tmp = append(tmp, cont[1:]...)
		}
	}

	s.SoftwareVersion = parseVersion(p, afterEq(tmp[0]))
	s.SoftwareRevision = afterEq(tmp[1])
	if len(tmp) < 3 {
		p.log.Error("ver tail carries no fragment size", "line_num", p.lineCount, "tail", fields[1])
		return
	}
	if frag, err := strconv.ParseInt(afterEq(tmp[2]), 10, 64); err == nil {
		frag *= 1024 // the protocol advertises fragment size in KiB
		s.FragmentSize = &frag
	} else {
		p.log.Error("could not parse fragment size", "line_num", p.lineCount, "field", tmp[2])
	}
	if len(tmp) > 3 && strings.HasPrefix(tmp[3], "launch=") {
		if lt, err := time.Parse("020106:150405", afterEq(tmp[3])); err == nil {
			s.LaunchTime = lt
		} else {
			p.log.Error("could not parse launch time", "line_num", p.lineCount)
		}
	}
}

// parseVersion handles both the standard major.minor numbering and the
// alternate major.minor.rev.rev form, which is truncated to two components.
func parseVersion(p *parser, ver string) *float64 {
	if v, err := strconv.ParseFloat(ver, 64); err == nil {
		return &v
	}
	if v := parseDottedVersion(ver); v != nil {
		return v
	}
	p.log.Error("unknown software version", "version", ver)
	return nil
}

func afterEq(s string) string {
	_, v, _ := strings.Cut(s, "=")
	return v
}
