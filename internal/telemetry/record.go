package telemetry

import (
	"context"
	"time"

	"cranecloud/internal/protocol"
)

// Record is one persisted telemetry document. Records are append-only and
// never mutated; retention is handled outside this service.
type Record struct {
	DeviceID      string
	TenantID      string
	Timestamp     time.Time
	Kind          protocol.CommandKind
	Load          *float64
	RatedCapacity *float64
	LS1           protocol.SwitchState
	LS2           protocol.SwitchState
	LS3           protocol.SwitchState
	LS4           protocol.SwitchState
	Working       *bool
	Overload      *bool
	TestMode      *bool
	OperatingMode string
	TicketNumber  *int
	TicketType    *int
	TicketOpen    *bool
	RawPayload    string
	ChecksumValid *bool
	CreatedAt     time.Time
}

// FromEvent builds the persisted record for a decoded event.
func FromEvent(evt *protocol.Event, tenantID string) Record {
	return Record{
		DeviceID:      evt.DeviceID,
		TenantID:      tenantID,
		Timestamp:     evt.Timestamp,
		Kind:          evt.Kind,
		Load:          evt.Load,
		RatedCapacity: evt.RatedCapacity,
		LS1:           evt.Switches[0],
		LS2:           evt.Switches[1],
		LS3:           evt.Switches[2],
		LS4:           evt.Switches[3],
		Working:       evt.Working,
		Overload:      evt.Overload,
		TestMode:      evt.TestMode,
		OperatingMode: evt.OperatingMode,
		TicketNumber:  evt.TicketNumber,
		TicketType:    evt.TicketType,
		TicketOpen:    evt.TicketOpen,
		RawPayload:    evt.Raw,
		ChecksumValid: evt.ChecksumValid,
	}
}

// Repository persists telemetry records.
type Repository interface {
	Insert(ctx context.Context, record Record) error
	LatestByDevice(ctx context.Context, deviceID string, limit int) ([]Record, error)
}
