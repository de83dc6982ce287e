package commlog

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/iop-apl-uw/commlog/internal/gps"
)

// RawLine is one archived log line. TS is zero until a later line pins the
// epoch down, at which point it is back-filled.
type RawLine struct {
	TS   time.Time
	Text string
}

// Collection is the finished, chronological aggregate of one parse pass.
// Sessions are append-only and totally ordered by connect time; all query
// methods are read-only.
type Collection struct {
	Sessions []*Session
	RawLines []RawLine

	// FilesTransfered aggregates the sector reports per fragment across
	// the whole log.
	FilesTransfered map[string][]Sector

	// FileTransferMethod maps each fragment to the protocol last used
	// for it.
	FileTransferMethod map[string]string
}

// LastCompleteSurfacing returns the most recent session that saw its
// Disconnected line, or nil.
func (c *Collection) LastCompleteSurfacing() *Session {
	for i := len(c.Sessions) - 1; i >= 0; i-- {
		if c.Sessions[i].Complete() {
			return c.Sessions[i]
		}
	}
	return nil
}

// LastSurfacing returns the most recent session regardless of completeness,
// or nil.
func (c *Collection) LastSurfacing() *Session {
	if len(c.Sessions) == 0 {
		return nil
	}
	return c.Sessions[len(c.Sessions)-1]
}

// InstrumentID searches backward for the most recent session that knows the
// vehicle id.
func (c *Collection) InstrumentID() (int, bool) {
	for i := len(c.Sessions) - 1; i >= 0; i-- {
		if c.Sessions[i].SgID != 0 {
			return c.Sessions[i].SgID, true
		}
	}
	return 0, false
}

// LastSoftwareVersion returns the version and revision from the most recent
// complete session that reported them.
func (c *Collection) LastSoftwareVersion() (float64, string, bool) {
	for i := len(c.Sessions) - 1; i >= 0; i-- {
		s := c.Sessions[i]
		if s.Complete() && s.SoftwareVersion != nil {
			return *s.SoftwareVersion, s.SoftwareRevision, true
		}
	}
	return 0, "", false
}

// LastFragmentSize returns the fragment size in bytes from the most recent
// complete session that advertised one.
func (c *Collection) LastFragmentSize() (int64, bool) {
	for i := len(c.Sessions) - 1; i >= 0; i-- {
		s := c.Sessions[i]
		if s.Complete() && s.FragmentSize != nil {
			return *s.FragmentSize, true
		}
	}
	return 0, false
}

// LastDiveNumAndCallCounter returns the most recent dive number along with
// its call cycle, falling back to the calls-made count for version 65 logs
// that had no call cycle field.
func (c *Collection) LastDiveNumAndCallCounter() (dive, cycle int, ok bool) {
	for i := len(c.Sessions) - 1; i >= 0; i-- {
		s := c.Sessions[i]
		if s.DiveNum == nil {
			continue
		}
		if s.CallCycle != nil {
			return *s.DiveNum, *s.CallCycle, true
		}
		if s.CallsMade != nil {
			return *s.DiveNum, *s.CallsMade, true
		}
		return *s.DiveNum, 0, true
	}
	return 0, 0, false
}

// FragmentTransferMethod returns "xmodem", "ymodem", "raw" or "unknown".
func (c *Collection) FragmentTransferMethod(fragment string) string {
	if m, ok := c.FileTransferMethod[fragment]; ok {
		return m
	}
	return "unknown"
}

// FragmentSizeByDive maps each dive number to the fragment size its
// complete sessions advertised.
func (c *Collection) FragmentSizeByDive() map[int]int64 {
	sizes := make(map[int]int64)
	for _, s := range c.Sessions {
		if s.Complete() && s.FragmentSize != nil && s.DiveNum != nil {
			sizes[*s.DiveNum] = *s.FragmentSize
		}
	}
	return sizes
}

// DefaultFragmentSize is assumed for fragments that landed in the mission
// directory without any comm.log record of their transfer.
const DefaultFragmentSize = 8192

// FragmentSizes maps each fragment filename to its advertised and confirmed
// sizes. YMODEM and RAW report the received size for both directions;
// XMODEM reports it for uploads only, so a -1 here is not a transfer error.
// When the protocol never advertised a size, the enclosing session's
// fragment size fills in, then DefaultFragmentSize.
func (c *Collection) FragmentSizes() map[string]ExpectedActual {
	sizes := make(map[string]ExpectedActual)
	for _, s := range c.Sessions {
		for name, stats := range s.FileStats {
			if len(name) < 8 || fragmentCounter(name) < 0 {
				continue
			}
			expected := stats.ExpectedSize
			if expected < 0 {
				if s.FragmentSize != nil {
					expected = *s.FragmentSize
				} else {
					expected = DefaultFragmentSize
				}
			}
			sizes[name] = ExpectedActual{Expected: expected, Received: stats.ReceivedSize}
		}
	}
	return sizes
}

// FragmentSizeFor looks a fragment up in sizes, substituting the default
// for files present on disk but absent from the log.
func FragmentSizeFor(sizes map[string]ExpectedActual, fragment string) ExpectedActual {
	if ea, ok := sizes[fragment]; ok {
		return ea
	}
	return ExpectedActual{Expected: DefaultFragmentSize, Received: -1}
}

// fragmentCounter decodes the hexadecimal ordinal from a fragment
// extension such as ".x0a". The onboard generator substitutes K for C to
// dodge a filesystem quirk. Returns -1 for non-fragment names.
func fragmentCounter(name string) int {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return -1
	}
	ext := strings.ToUpper(name[idx:])
	if len(ext) != 4 || ext[:2] != ".X" {
		return -1
	}
	cnt, err := strconv.ParseInt(strings.ReplaceAll(ext[2:4], "K", "C"), 16, 32)
	if err != nil {
		return -1
	}
	return int(cnt)
}

// Rebooted compares the reboot counts of the two most recent sessions
// carrying a GPS fix, regardless of completeness. A strict increase means
// the vehicle rebooted between them; the returned message describes both
// counter lines. Only works on version 66 and later logs where the reboot
// count is present.
func (c *Collection) Rebooted() (string, bool) {
	var last, previous *Session
	for i := len(c.Sessions) - 1; i >= 0; i-- {
		if c.Sessions[i].GPSFix == nil {
			continue
		}
		if last == nil {
			last = c.Sessions[i]
		} else if previous == nil {
			previous = c.Sessions[i]
		} else {
			break
		}
	}
	if last == nil || previous == nil || last.RebootCount == nil || previous.RebootCount == nil {
		return "", false
	}
	if *last.RebootCount <= *previous.RebootCount {
		return "", false
	}
	msg := fmt.Sprintf("Reboot occurred between %s and %s",
		counterSummary(previous), counterSummary(last))
	return msg, true
}

func counterSummary(s *Session) string {
	parts := make([]string, 0, 6)
	for _, v := range []*int{s.DiveNum, s.CallCycle, s.CallsMade, s.NoComm, s.MissionNum, s.RebootCount} {
		if v == nil {
			parts = append(parts, "Unknown")
		} else {
			parts = append(parts, strconv.Itoa(*v))
		}
	}
	return strings.Join(parts, ":")
}

const (
	metersPerDegree   = 111319.9
	nauticalMilesPerM = 0.000539957
)

// DriftEstimate is a surface-current estimate extrapolated from the most
// recent same-dive GPS fixes.
type DriftEstimate struct {
	Lat, Lon    float64 // most recent fix, decimal degrees
	FixTime     time.Time
	BearingDeg  float64 // degrees true
	SpeedKnots  float64
	Fixes       int // fix pairs the rates are averaged over
	Predictions []DriftPosition
}

// DriftPosition is one extrapolated surface position.
type DriftPosition struct {
	Lat, Lon float64 // decimal degrees
	Hours    int     // hours ahead of the most recent fix
}

// PredictDrift estimates surface drift from up to nFixes most-recent fixes
// of the same dive and extrapolates nPredictions hourly positions forward
// of now. Longitude deltas carry a local-flattening correction so the
// speed comes out in true distance.
func (c *Collection) PredictDrift(nPredictions, nFixes int, now time.Time) (*DriftEstimate, error) {
	var lastFix, mostRecent *gps.Fix
	var diveNum *int
	fixes := 0
	deltaLat, deltaLon := 0.0, 0.0

	for i := len(c.Sessions) - 1; i >= 0; i-- {
		s := c.Sessions[i]
		thisFix := s.GPSFix
		if thisFix == nil {
			continue
		}
		if lastFix != nil {
			if !eqIntPtr(s.DiveNum, diveNum) {
				break
			}
			deltaTimeH := lastFix.Datetime.Sub(thisFix.Datetime).Hours()
			if deltaTimeH == 0 {
				// Repeated GPS fix.
				continue
			}
			lastLat, lastLon := gps.DegMinToDec(lastFix.Lat), gps.DegMinToDec(lastFix.Lon)
			thisLat, thisLon := gps.DegMinToDec(thisFix.Lat), gps.DegMinToDec(thisFix.Lon)
			lonFac := math.Cos(toRadians((lastLat + thisLat) / 2))
			deltaLat += (lastLat - thisLat) / deltaTimeH
			deltaLon += (lastLon - thisLon) * lonFac / deltaTimeH
			fixes++
			if fixes >= nFixes {
				break
			}
		}
		lastFix = thisFix
		if mostRecent == nil {
			mostRecent = thisFix
			diveNum = s.DiveNum
		}
	}
	if fixes <= 1 {
		return nil, fmt.Errorf("unable to determine drift rate: %d usable fix pairs", fixes)
	}

	latRate := deltaLat / float64(fixes)
	lonRate := deltaLon / float64(fixes)

	mrfLat, mrfLon := gps.DegMinToDec(mostRecent.Lat), gps.DegMinToDec(mostRecent.Lon)

	bearing := 90.0 - toDegrees(math.Atan2(latRate, lonRate))
	if bearing < 0 {
		bearing += 360
	}
	lonFac := math.Cos(toRadians(mrfLat))
	speedMPerH := math.Sqrt(math.Pow(latRate*metersPerDegree, 2) +
		math.Pow(lonRate*lonFac*metersPerDegree, 2))

	est := &DriftEstimate{
		Lat:        mrfLat,
		Lon:        mrfLon,
		FixTime:    mostRecent.Datetime,
		BearingDeg: bearing,
		SpeedKnots: speedMPerH * nauticalMilesPerM,
		Fixes:      fixes,
	}

	elapsedHours := int(now.Sub(mostRecent.Datetime).Hours())
	for h := 1; h <= nPredictions; h++ {
		offset := elapsedHours + h
		est.Predictions = append(est.Predictions, DriftPosition{
			Lat:   mrfLat + float64(offset)*latRate,
			Lon:   mrfLon + float64(offset)*lonRate,
			Hours: offset,
		})
	}
	return est, nil
}

func eqIntPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }
func toDegrees(rad float64) float64 { return rad * 180 / math.Pi }

// MergeRawLines interleaves two timestamped line archives chronologically,
// back-filling each zero timestamp with the nearest earlier one from its
// own list. Used to fold the history.log command record into the comm.log
// archive.
func MergeRawLines(a, b []RawLine) []RawLine {
	merged := make([]RawLine, 0, len(a)+len(b))
	merged = append(merged, backfill(a)...)
	merged = append(merged, backfill(b)...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].TS.Before(merged[j].TS)
	})
	return merged
}

func backfill(lines []RawLine) []RawLine {
	out := make([]RawLine, len(lines))
	var last time.Time
	for i, l := range lines {
		if !l.TS.IsZero() {
			last = l.TS
		} else {
			l.TS = last
		}
		out[i] = l
	}
	return out
}
