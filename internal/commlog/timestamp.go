package commlog

import (
	"log/slog"
	"strings"
	"time"
)

// Time zones the glider login shell has historically stamped into the log.
// Each abbreviation maps to its fixed UTC offset.
var tzLookup = map[string]*time.Location{
	"EST":  time.FixedZone("EST", -5*3600),
	"EDT":  time.FixedZone("EDT", -4*3600),
	"CST":  time.FixedZone("CST", -6*3600),
	"CDT":  time.FixedZone("CDT", -5*3600),
	"MST":  time.FixedZone("MST", -7*3600),
	"MDT":  time.FixedZone("MDT", -6*3600),
	"PST":  time.FixedZone("PST", -8*3600),
	"PDT":  time.FixedZone("PDT", -7*3600),
	"HST":  time.FixedZone("HST", -10*3600),
	"NZST": time.FixedZone("NZST", 12*3600),
	"NZDT": time.FixedZone("NZDT", 13*3600),
	"UTC":  time.UTC,
	"GMT":  time.UTC,
}

func tzLocation(timeZone string) *time.Location {
	if loc, ok := tzLookup[strings.ToUpper(timeZone)]; ok {
		return loc
	}
	slog.Error("unknown timezone, assuming UTC", "tz", timeZone)
	return time.UTC
}

const legacyTimeLayout = "Mon Jan 2 15:04:05 2006"

// parseLocalTime decodes a "%a %b %d %H:%M:%S %Y" stamp in the given
// legacy time zone and returns it in UTC.
func parseLocalTime(ts, timeZone string) (time.Time, error) {
	// Collapse the day-of-month padding the login shell emits.
	ts = strings.Join(strings.Fields(ts), " ")
	t, err := time.ParseInLocation(legacyTimeLayout, ts, tzLocation(timeZone))
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// crackConnectLine parses the timestamp out of a line of the form
//
//	XXX at Sat Jul 2 01:54:49 PDT 2005 (optional payload)
//
// where XXX is Connected, Reconnected or Disconnected. Newer firmware
// writes the stamp as UTC ISO8601 instead. The payload, when present, is a
// parenthesized string (an operator identity or logout status).
func crackConnectLine(line string) (ts time.Time, timeZone, payload string, ok bool) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 3 {
		return time.Time{}, "", "", false
	}
	ctsParts := strings.Fields(parts[2])
	switch {
	case len(ctsParts) <= 2:
		if len(ctsParts) == 0 {
			return time.Time{}, "", "", false
		}
		t, err := time.Parse("2006-01-02T15:04:05Z", ctsParts[0])
		if err == nil {
			ts = t
			timeZone = "UTC"
			ok = true
		}
	case len(ctsParts) >= 6:
		timeZone = ctsParts[4]
		stamp := strings.Join([]string{ctsParts[0], ctsParts[1], ctsParts[2], ctsParts[3], ctsParts[5]}, " ")
		t, err := parseLocalTime(stamp, timeZone)
		if err == nil {
			ts = t
			ok = true
		}
	default:
		return time.Time{}, "", "", false
	}

	if n := len(ctsParts); n == 2 || n == 7 {
		tmp := ctsParts[n-1]
		if len(tmp) > 3 && tmp[0] == '(' && tmp[len(tmp)-1] == ')' {
			payload = tmp[1 : len(tmp)-1]
		}
	}
	return ts, timeZone, payload, ok
}
