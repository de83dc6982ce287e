package gps

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
)

// Fix is one decoded position/time observation from a comm.log GPS line.
// Lat and Lon are in the glider's native ddmm.mmmm encoding; use DegMinToDec
// for decimal degrees. Fields absent from older firmware formats hold -1.
type Fix struct {
	Raw          string
	Lat          float64
	Lon          float64
	Datetime     time.Time
	HDOP         float64
	FirstFixTime float64 // seconds to first fix, -1 when not reported
	FinalFixTime float64
	MagVar       float64
	DriftSpeed   float64 // m/s, firmware >= Aug 2014
	DriftHeading float64 // degrees true
	NSatellites  int
	HPE          float64 // horizontal position error, meters
	Valid        bool
}

var validTags = map[string]bool{
	"GPS": true, "$GPS": true, "$GPS1": true, "$GPS2": true,
}

// IsValidLine reports whether a line carries one of the GPS sentence tags
// that appear in the comm log.
func IsValidLine(line string) bool {
	tag, _, _ := strings.Cut(line, ",")
	return validTags[tag]
}

// FixRollover corrects timestamps from GPS units with the week-number
// rollover bug, which report dates 1024 weeks in the past.
func FixRollover(t time.Time) time.Time {
	if y := t.Year(); y >= 1999 && y <= 2001 {
		slog.Warn("GPS rollover found", "datetime", t)
		return t.Add(1024 * 7 * 24 * time.Hour)
	}
	return t
}

// DegMinToDec converts a position from ddmm.mmmm to decimal degrees.
func DegMinToDec(x float64) float64 {
	return float64(int(x/100)) + math.Mod(x, 100)/60
}

// DecToDegMin converts a position from decimal degrees to ddmm.mmmm.
func DecToDegMin(x float64) float64 {
	dd := float64(int(x))
	return dd*100 + (x-dd)*60
}

// ParseFix decodes a GPS sentence. startDate anchors sentences that carry a
// time but no date (and the placeholder times synthesized when both are
// missing, as happens on tank dives before the first fix).
func ParseFix(line string, startDate time.Time) *Fix {
	f := &Fix{
		Raw:          line,
		FirstFixTime: -1,
		FinalFixTime: -1,
		HDOP:         -1,
		MagVar:       -1,
		DriftSpeed:   -1,
		DriftHeading: -1,
		NSatellites:  -1,
		HPE:          -1,
	}
	if !IsValidLine(line) {
		slog.Error("invalid GPS line", "line", line)
		return f
	}
	fields := strings.Split(line, ",")
	tag := fields[0]
	f.Valid = true

	switch {
	case (tag == "GPS" || tag == "$GPS") && len(fields) >= 6,
		(tag == "$GPS1" || tag == "$GPS2") && len(fields) >= 9:
		if fields[1] != "" && fields[2] != "" {
			ts := fields[2]
			if len(ts) > 6 {
				ts = ts[:6]
			}
			dt, err := time.Parse("020106150405", fields[1]+ts)
			if err != nil {
				slog.Error("could not decode GPS datetime", "line", line, "err", err)
			} else {
				f.Datetime = FixRollover(dt)
			}
		} else {
			// No date or time in the sentence. Synthesize a plausible time
			// anchored to the session start so fixes still order.
			var offset time.Duration
			switch tag {
			case "$GPS1": // dive starts at midnight
			case "$GPS2":
				offset = 15 * time.Minute
			default:
				offset = time.Hour
			}
			day := time.Date(startDate.Year(), startDate.Month(), startDate.Day(), 0, 0, 0, 0, time.UTC)
			f.Datetime = day.Add(offset)
			slog.Info("no datetime in GPS sentence, assuming", "tag", tag, "datetime", f.Datetime)
		}

		var err error
		if len(fields) == 7 {
			// SMS-relayed short form
			err = firstErr(
				parseF(fields[3], &f.Lat),
				parseF(fields[4], &f.Lon),
				parseF(fields[5], &f.HDOP),
				parseF(fields[6], &f.FinalFixTime),
			)
		} else {
			err = firstErr(
				parseF(fields[3], &f.Lat),
				parseF(fields[4], &f.Lon),
				parseF(fields[5], &f.FirstFixTime),
				parseF(fields[6], &f.HDOP),
				parseF(fields[7], &f.FinalFixTime),
				parseF(fields[8], &f.MagVar),
			)
			if err == nil && len(fields) >= 13 {
				// Drift and accuracy fields, reported from August 2014 on.
				if e := firstErr(
					parseF(fields[9], &f.DriftSpeed),
					parseF(fields[10], &f.DriftHeading),
					parseI(fields[11], &f.NSatellites),
					parseF(fields[12], &f.HPE),
				); e != nil {
					// Old GPS string; leave the sentinels in place.
					f.DriftSpeed, f.DriftHeading, f.NSatellites, f.HPE = -1, -1, -1, -1
				}
			}
		}
		if err != nil {
			slog.Error("invalid GPS line", "line", line, "err", err)
			f.Valid = false
		}

	case (tag == "$GPS1" || tag == "$GPS2") && len(fields) >= 6:
		// Antenna-qualified variant with time only; date comes from the session.
		dt, err := time.Parse("150405 01 02 06", fields[1]+startDate.Format(" 01 02 06"))
		if err == nil {
			f.Datetime = FixRollover(dt)
			err = firstErr(
				parseF(fields[2], &f.Lat),
				parseF(fields[3], &f.Lon),
				parseF(fields[4], &f.FirstFixTime),
				parseF(fields[5], &f.HDOP),
			)
			if err == nil && len(fields) >= 7 {
				err = parseF(fields[6], &f.FinalFixTime)
			}
			if err == nil && tag == "$GPS2" && len(fields) >= 8 {
				err = parseF(fields[7], &f.MagVar)
			}
		}
		if err != nil {
			slog.Error("invalid GPS line", "line", line, "err", err)
			f.Valid = false
		}

	default:
		slog.Error("invalid GPS line", "line", line)
		f.Valid = false
	}
	return f
}

func parseF(s string, dst *float64) error {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func parseI(s string, dst *int) error {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// FormatLatLon renders a ddmm.mmmm position in the requested style:
// "ddmm" ("N48 7.2110") or "nmea" ("4807.2110,N").
func FormatLatLon(latLon float64, fmtName string, isLat bool) string {
	var prefix string
	if isLat {
		prefix = "N"
		if latLon <= 0 {
			prefix = "S"
		}
	} else {
		prefix = "E"
		if latLon <= 0 {
			prefix = "W"
		}
	}
	degrees := int(math.Abs(latLon / 100))
	minutes := math.Mod(math.Abs(latLon), 100)

	switch strings.ToLower(fmtName) {
	case "nmea":
		if isLat {
			return fmt.Sprintf("%02d%07.4f,%s", degrees, minutes, prefix)
		}
		return fmt.Sprintf("%03d%07.4f,%s", degrees, minutes, prefix)
	default: // ddmm
		return fmt.Sprintf("%s%d %.4f", prefix, degrees, minutes)
	}
}
