package protocol

import "time"

// CommandKind classifies a decoded message.
type CommandKind string

const (
	KindHeartbeat CommandKind = "heartbeat"
	KindEvent     CommandKind = "event"
	KindTicket    CommandKind = "ticket"
	KindLoad      CommandKind = "load"
	KindTelemetry CommandKind = "telemetry"
	KindUnknown   CommandKind = "unknown"
)

// SwitchState is the reported state of a limit switch.
type SwitchState string

const (
	SwitchOK      SwitchState = "OK"
	SwitchFail    SwitchState = "FAIL"
	SwitchUnknown SwitchState = "UNKNOWN"
	SwitchHit     SwitchState = "HIT"
)

// Location is an optional geolocation fix carried by some legacy formats.
type Location struct {
	Longitude float64
	Latitude  float64
	Source    string
	Accuracy  *float64
}

// Event is one decoded telemetry message. It is built once per inbound
// payload and consumed by the aggregation engine; only the persisted record
// and the merged snapshot outlive it.
//
// Pointer fields distinguish absent from known-false; switch states default
// to SwitchUnknown when a format does not report them.
type Event struct {
	DeviceID   string
	DeviceType string
	TenantID   string
	Timestamp  time.Time
	Kind       CommandKind

	Load           *float64
	RatedCapacity  *float64
	Switches       [4]SwitchState
	Overload       *bool
	Working        *bool
	TestMode       *bool
	UtilizationPct *float64
	OperatingMode  string
	SecondaryBlock *bool

	TicketNumber *int
	TicketType   *int
	TicketOpen   *bool

	Location *Location

	// CommandByte holds the raw command for unknown framed commands.
	CommandByte byte
	DataBytes   []byte

	Raw string

	// ChecksumValid is nil when the format carries no checksum.
	ChecksumValid *bool
}

// UnknownSwitches is the zero value for formats that report no switch data.
func UnknownSwitches() [4]SwitchState {
	return [4]SwitchState{SwitchUnknown, SwitchUnknown, SwitchUnknown, SwitchUnknown}
}

func boolPtr(v bool) *bool        { return &v }
func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func hitState(hit bool) SwitchState {
	if hit {
		return SwitchHit
	}
	return SwitchOK
}
