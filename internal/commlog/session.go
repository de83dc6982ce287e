// Package commlog reconstructs glider connection sessions from a comm.log
// file: connection bracketing, embedded engineering telemetry, GPS fixes,
// and the outcome of every file transferred over the modem link.
package commlog

import (
	"fmt"
	"io"
	"time"

	"github.com/iop-apl-uw/commlog/internal/gps"
)

// Sector is one sector report from an XMODEM/YMODEM transfer. A (0,0)
// sector marks a failed attempt.
type Sector struct {
	Num      int
	BlockLen int
}

// FileStats carries per-file transfer bookkeeping. Sizes are -1 when the
// protocol did not report them.
type FileStats struct {
	ExpectedSize int64   // size advertised by the protocol
	TransferSize int64   // payload size the protocol reported
	ReceivedSize int64   // bytes confirmed received
	BPS          float64 // XMODEM/YMODEM rate, -1 otherwise
}

// ExpectedActual pairs the advertised and confirmed sizes of a fragment.
type ExpectedActual struct {
	Expected int64
	Received int64
}

// Session is the record of one connection between the vehicle and the shore
// station, bounded by Connected/Disconnected log lines. Optional scalar
// telemetry decoded from counter lines is held behind pointers; nil means
// the field never appeared during the call.
type Session struct {
	SgID int // vehicle id, 0 = unknown

	ConnectTS    time.Time
	TimeZone     string
	ReconnectTS  time.Time
	DisconnectTS time.Time // zero until the session closes

	GPSFix *gps.Fix

	PhoneFixLat  *float64 // iridium geolocation, ddmm.mmmm
	PhoneFixLon  *float64
	PhoneFixTime time.Time

	DiveNum       *int
	CallCycle     *int
	CallsMade     *int
	NoComm        *int
	MissionNum    *int
	RebootCount   *int
	LastCallError *int
	ThisCallError *int

	PitchAD *int
	RollAD  *int
	VBDAD   *int

	ObsPitch       *float64
	Depth          *float64
	Volt10V        *float64
	Volt24V        *float64
	IntPressure    *float64
	RH             *float64
	Temperature    *float64
	SeaTemperature *float64
	SeaSalinity    *float64
	SeaDensity     *float64

	SoftwareVersion  *float64
	SoftwareRevision string
	FragmentSize     *int64 // bytes
	LaunchTime       time.Time

	EOPCode       string
	RecovCode     string
	EscapeReason  string
	EscapeStarted *int

	LogoutSeen   bool
	ShutdownSeen bool
	LogoutStatus string
	CmdDirective string

	FileStats         map[string]FileStats
	TransferMethod    map[string]string // raw, xmodem or ymodem
	TransferDirection map[string]string // sent or received
	TransferedSize    map[string]int64
	CRCErrors         map[string][]int
	FileRetries       map[string]int // re-send attempts within the session
}

func newSession(connectTS time.Time, timeZone string) *Session {
	return &Session{
		ConnectTS:         connectTS,
		TimeZone:          timeZone,
		FileStats:         make(map[string]FileStats),
		TransferMethod:    make(map[string]string),
		TransferDirection: make(map[string]string),
		TransferedSize:    make(map[string]int64),
		CRCErrors:         make(map[string][]int),
		FileRetries:       make(map[string]int),
	}
}

// Complete reports whether the session saw its Disconnected line.
func (s *Session) Complete() bool {
	return !s.DisconnectTS.IsZero()
}

const dumpTimeFormat = "Mon Jan 02 15:04:05 MST 2006"

// Dump writes every populated session field in readable form.
func (s *Session) Dump(w io.Writer) {
	fmt.Fprintf(w, "sg_id %d\n", s.SgID)
	fmt.Fprintf(w, "connect_ts %s\n", s.ConnectTS.UTC().Format(dumpTimeFormat))
	if !s.DisconnectTS.IsZero() {
		fmt.Fprintf(w, "disconnect_ts %s\n", s.DisconnectTS.UTC().Format(dumpTimeFormat))
	}
	if !s.ReconnectTS.IsZero() {
		fmt.Fprintf(w, "reconnect_ts %s\n", s.ReconnectTS.UTC().Format(dumpTimeFormat))
	}
	if s.GPSFix != nil {
		fmt.Fprintf(w, "gps_fix %v,%v,%s\n", s.GPSFix.Lat, s.GPSFix.Lon,
			s.GPSFix.Datetime.UTC().Format("01/02/06 15:04:05"))
	} else {
		fmt.Fprintln(w, "No GPS fix")
	}
	if s.PhoneFixLat != nil && s.PhoneFixLon != nil {
		fmt.Fprintf(w, "phone_fix %v,%v\n", *s.PhoneFixLat, *s.PhoneFixLon)
	} else {
		fmt.Fprintln(w, "No Phone Fix")
	}
	dumpInt := func(name string, v *int) {
		if v != nil {
			fmt.Fprintf(w, "%s %d\n", name, *v)
		}
	}
	dumpFloat := func(name string, v *float64) {
		if v != nil {
			fmt.Fprintf(w, "%s %f\n", name, *v)
		}
	}
	dumpInt("dive_num", s.DiveNum)
	dumpInt("call_cycle", s.CallCycle)
	dumpInt("calls_made", s.CallsMade)
	dumpInt("no_comm", s.NoComm)
	fmt.Fprintf(w, "logout_seen %v\n", s.LogoutSeen)
	fmt.Fprintf(w, "shutdown_seen %v\n", s.ShutdownSeen)
	dumpInt("mission_num", s.MissionNum)
	dumpInt("reboot_count", s.RebootCount)
	dumpInt("last_call_error", s.LastCallError)
	dumpInt("this_call_error", s.ThisCallError)
	dumpInt("pitch_ad", s.PitchAD)
	dumpInt("roll_ad", s.RollAD)
	dumpInt("vbd_ad", s.VBDAD)
	dumpFloat("obs_pitch", s.ObsPitch)
	dumpFloat("depth", s.Depth)
	dumpFloat("volt_10V", s.Volt10V)
	dumpFloat("volt_24V", s.Volt24V)
	dumpFloat("int_press", s.IntPressure)
	dumpFloat("rh", s.RH)
	dumpFloat("temperature", s.Temperature)
	dumpFloat("sea temperature", s.SeaTemperature)
	dumpFloat("sea salinity", s.SeaSalinity)
	dumpFloat("sea density", s.SeaDensity)
	if s.LogoutStatus != "" {
		fmt.Fprintf(w, "logout_status (%s)\n", s.LogoutStatus)
	}
	if !s.LaunchTime.IsZero() {
		fmt.Fprintf(w, "launch_time %s\n", s.LaunchTime.UTC().Format("020106:150405"))
	}
	if s.EOPCode != "" {
		fmt.Fprintf(w, "eop_code %s\n", s.EOPCode)
	}
	if s.RecovCode != "" {
		fmt.Fprintf(w, "recov_code %s\n", s.RecovCode)
	}
	names := make([]string, 0, len(s.TransferedSize))
	for name := range s.TransferedSize {
		names = append(names, name)
	}
	fmt.Fprintf(w, "%d files transfered %v\n", len(names), names)
	crcNames := make([]string, 0, len(s.CRCErrors))
	for name := range s.CRCErrors {
		crcNames = append(crcNames, name)
	}
	fmt.Fprintf(w, "%d files with CRC errors %v\n", len(crcNames), crcNames)
	if s.CmdDirective != "" {
		fmt.Fprintf(w, "cmdfile directive %s\n", s.CmdDirective)
	} else {
		fmt.Fprintln(w, "No cmdfile directive found")
	}
}

// CallRecord is the scalar projection of a session handed to long-term
// storage, one row per call.
type CallRecord struct {
	Glider    int
	Dive      int
	Cycle     int
	Call      int
	Connected float64 // unix seconds
	Lat       float64 // decimal degrees
	Lon       float64
	Epoch     float64 // GPS fix unix seconds
	RH        float64
	IntP      float64
	Temp      float64
	Volts10   float64
	Volts24   float64
	Pitch     float64
	Depth     float64
	PitchAD   float64
	RollAD    float64
	VBDAD     float64
	SST       float64
	SSS       float64
	Density   float64
	IridLat   float64 // decimal degrees, 0 when no phone fix
	IridLon   float64
	IridT     float64
}

// Projection builds the storage row for a session. It reports false when
// the session carries no GPS fix or dive numbering, in which case there is
// nothing useful to persist.
func (s *Session) Projection() (CallRecord, bool) {
	if s.GPSFix == nil || s.DiveNum == nil {
		return CallRecord{}, false
	}
	rec := CallRecord{
		Glider:    s.SgID,
		Dive:      *s.DiveNum,
		Connected: float64(s.ConnectTS.Unix()),
		Lat:       gps.DegMinToDec(s.GPSFix.Lat),
		Lon:       gps.DegMinToDec(s.GPSFix.Lon),
		Epoch:     float64(s.GPSFix.Datetime.Unix()),
	}
	if s.CallCycle != nil {
		rec.Cycle = *s.CallCycle
	}
	if s.CallsMade != nil {
		rec.Call = *s.CallsMade
	}
	setF := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	setF(&rec.RH, s.RH)
	setF(&rec.IntP, s.IntPressure)
	setF(&rec.Temp, s.Temperature)
	setF(&rec.Volts10, s.Volt10V)
	setF(&rec.Volts24, s.Volt24V)
	setF(&rec.Pitch, s.ObsPitch)
	setF(&rec.Depth, s.Depth)
	setF(&rec.SST, s.SeaTemperature)
	setF(&rec.SSS, s.SeaSalinity)
	setF(&rec.Density, s.SeaDensity)
	if s.PitchAD != nil {
		rec.PitchAD = float64(*s.PitchAD)
	}
	if s.RollAD != nil {
		rec.RollAD = float64(*s.RollAD)
	}
	if s.VBDAD != nil {
		rec.VBDAD = float64(*s.VBDAD)
	}
	if s.PhoneFixLat != nil {
		rec.IridLat = gps.DegMinToDec(*s.PhoneFixLat)
	}
	if s.PhoneFixLon != nil {
		rec.IridLon = gps.DegMinToDec(*s.PhoneFixLon)
	}
	if !s.PhoneFixTime.IsZero() {
		rec.IridT = float64(s.PhoneFixTime.Unix())
	}
	return rec, true
}
