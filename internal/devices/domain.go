package devices

import (
	"context"
	"errors"
	"time"

	"cranecloud/internal/protocol"
)

// ErrNotFound is returned when a device id matches no registry entry.
var ErrNotFound = errors.New("devices: not found")

// ErrNotPending is returned when an approval or rejection targets a device
// id with no pending entry.
var ErrNotPending = errors.New("devices: not pending")

// Device is a permanent registry entry for a crane controller.
type Device struct {
	ID            string
	TenantID      string
	Name          string
	DeviceType    string
	Location      string
	RatedCapacity float64
	Supervisors   []string
	Operators     []string
	Managers      []string
	Active        bool
	ApprovedBy    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PendingDevice is an auto-discovered device awaiting operator approval.
// The table is in-memory by design: entries not approved within the TTL are
// rediscovered on the next message after a restart.
type PendingDevice struct {
	DeviceID     string
	TenantHint   string
	LocationHint string
	FirstSeen    time.Time
	LastSeen     time.Time
	MessageCount int

	// LastEvent backs the snapshot back-fill on approval.
	LastEvent *protocol.Event
}

// Approval carries the operator-supplied data promoting a pending device.
type Approval struct {
	TenantID      string
	Name          string
	DeviceType    string
	Location      string
	RatedCapacity float64
	Supervisors   []string
	Operators     []string
	Managers      []string
	ApprovedBy    string
}

// DeviceRepository persists permanent device records.
type DeviceRepository interface {
	Get(ctx context.Context, id string) (*Device, error)
	Create(ctx context.Context, device *Device) error
}

// Observation is what one inbound message tells the registry about its
// sender.
type Observation struct {
	TenantHint   string
	LocationHint string
	SeenAt       time.Time
	Event        *protocol.Event
}

// Resolution is the outcome of resolving a device id: exactly one of Device
// or Pending is set. Discovered marks a pending entry created by this call.
type Resolution struct {
	Device     *Device
	Pending    *PendingDevice
	Discovered bool
}
