package render

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"

	"github.com/iop-apl-uw/commlog/internal/commlog"
	"github.com/iop-apl-uw/commlog/internal/gps"
)

const (
	colorReset   = "\033[0m"
	colorGlider  = "\033[1;34m" // bold blue
	colorOK      = "\033[1;32m" // bold green
	colorRecov   = "\033[1;31m" // bold red
	colorDim     = "\033[2m"
	colorPartial = "\033[33m" // yellow for incomplete sessions
)

// indentLines prepends each line of text with the given prefix.
func indentLines(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

// wrapLine breaks a single line into multiple lines that fit within maxWidth
// visible columns, correctly skipping ANSI escape sequences when measuring width.
func wrapLine(line string, maxWidth int) []string {
	if maxWidth <= 0 {
		return []string{line}
	}

	var result []string
	var cur strings.Builder
	visW := 0

	i := 0
	for i < len(line) {
		// check for ANSI escape sequence: ESC[ ... m
		if i+1 < len(line) && line[i] == '\033' && line[i+1] == '[' {
			j := i + 2
			for j < len(line) && line[j] != 'm' {
				j++
			}
			if j < len(line) {
				j++ // include 'm'
			}
			cur.WriteString(line[i:j])
			i = j
			continue
		}

		r, size := utf8.DecodeRuneInString(line[i:])
		rw := runewidth.RuneWidth(r)

		if visW+rw > maxWidth {
			result = append(result, cur.String())
			cur.Reset()
			visW = 0
		}

		cur.WriteRune(r)
		visW += rw
		i += size
	}

	if cur.Len() > 0 {
		result = append(result, cur.String())
	}

	if len(result) == 0 {
		return []string{""}
	}
	return result
}

// WrapLines wraps every line of text to width visible columns.
func WrapLines(text string, width int) string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		out = append(out, wrapLine(line, width)...)
	}
	return strings.Join(out, "\n")
}

// Session renders one session dump with a colored header line. Width 0
// disables wrapping.
func Session(s *commlog.Session, width int) string {
	var b strings.Builder

	status := colorOK + "complete" + colorReset
	if !s.Complete() {
		status = colorPartial + "open" + colorReset
	}
	header := fmt.Sprintf("%s--- sg%03d %s [%s] ---%s",
		colorGlider, s.SgID, s.ConnectTS.UTC().Format("2006-01-02 15:04:05Z"), status, colorReset)
	for _, l := range wrapLine(header, width) {
		b.WriteString(l)
		b.WriteString("\n")
	}

	var body strings.Builder
	s.Dump(&body)
	text := indentLines(strings.TrimRight(body.String(), "\n"), "  ")
	for _, line := range strings.Split(text, "\n") {
		for _, l := range wrapLine(line, width) {
			b.WriteString(l)
			b.WriteString("\n")
		}
	}

	if s.RecovCode != "" {
		for _, l := range wrapLine(fmt.Sprintf("  %sRECOVERY %s%s", colorRecov, s.RecovCode, colorReset), width) {
			b.WriteString(l)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// Sessions renders a whole collection, most recent last, separated by
// dim rules.
func Sessions(c *commlog.Collection, width int) string {
	var b strings.Builder
	sep := colorDim + "--------------------------------------------------" + colorReset
	for i, s := range c.Sessions {
		if i > 0 {
			b.WriteString(sep)
			b.WriteString("\n")
		}
		b.WriteString(Session(s, width))
	}
	return b.String()
}

// LastFix formats the most recent session's position the way the pager
// messages do: "lat lon MM/DD/YY HH:MM:SS UTC [code]", or an NMEA RMC
// sentence when fmtName is "nmea". Recovery and escape codes ride along.
func LastFix(s *commlog.Session, fmtName string) string {
	if s == nil || s.GPSFix == nil {
		return "No GPS fix available for this call"
	}
	fix := s.GPSFix

	var latlon string
	if strings.EqualFold(fmtName, "nmea") {
		latlon = fmt.Sprintf("$GPRMC,%s,A,%s,%s,%v,%v,%s,0.0,E",
			fix.Datetime.UTC().Format("150405"),
			gps.FormatLatLon(fix.Lat, fmtName, true),
			gps.FormatLatLon(fix.Lon, fmtName, false),
			fix.DriftSpeed, fix.DriftHeading,
			fix.Datetime.UTC().Format("020106"))
	} else {
		latlon = fmt.Sprintf("%s %s %s UTC",
			gps.FormatLatLon(fix.Lat, fmtName, true),
			gps.FormatLatLon(fix.Lon, fmtName, false),
			fix.Datetime.UTC().Format("01/02/06 15:04:05"))
	}

	switch {
	case s.RecovCode != "":
		return latlon + " " + s.RecovCode
	case s.EscapeReason != "":
		return latlon + " " + s.EscapeReason
	}
	return latlon
}

// Drift formats a drift estimate for small displays: the most recent fix,
// the set and drift, then one extrapolated position per prediction hour.
func Drift(est *commlog.DriftEstimate, fmtName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s @ %s",
		gps.FormatLatLon(gps.DecToDegMin(est.Lat), fmtName, true),
		gps.FormatLatLon(gps.DecToDegMin(est.Lon), fmtName, false),
		est.FixTime.UTC().Format("15:04:05Z"))
	fmt.Fprintf(&b, "\n%.0f deg true, %.2f knots", est.BearingDeg, est.SpeedKnots)
	for _, p := range est.Predictions {
		fmt.Fprintf(&b, "\n%s %s +%dhr",
			gps.FormatLatLon(gps.DecToDegMin(p.Lat), fmtName, true),
			gps.FormatLatLon(gps.DecToDegMin(p.Lon), fmtName, false),
			p.Hours)
	}
	return b.String()
}

// CallLine renders one persisted call projection as a fixed-width line.
func CallLine(glider, dive, cycle, call int, connected, lat, lon float64) string {
	return fmt.Sprintf("sg%03d  dive %4d  cycle %3d  call %3d  %s  %9.5f %10.5f",
		glider, dive, cycle, call,
		time.Unix(int64(connected), 0).UTC().Format("2006-01-02 15:04:05Z"),
		lat, lon)
}
