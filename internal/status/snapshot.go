package status

import (
	"context"
	"errors"
	"time"

	"cranecloud/internal/protocol"
)

// ErrSnapshotNotFound is returned when no snapshot exists for a device.
var ErrSnapshotNotFound = errors.New("status: snapshot not found")

// UtilizationState is the two-state utilization machine.
type UtilizationState string

const (
	StateWorking UtilizationState = "WORKING"
	StateIdle    UtilizationState = "IDLE"
)

// OverloadState is the two-state overload machine.
type OverloadState string

const (
	StateNormal   OverloadState = "NORMAL"
	StateOverload OverloadState = "OVERLOAD"
)

// RiskLevel classifies same-day overload pressure.
type RiskLevel string

const (
	RiskMinimal RiskLevel = "MINIMAL"
	RiskLow     RiskLevel = "LOW"
	RiskMedium  RiskLevel = "MEDIUM"
	RiskHigh    RiskLevel = "HIGH"
)

// Snapshot is the per-device merged status document. Exactly one exists per
// device; every inbound event merges into it. Pointer fields distinguish
// never-reported from known-false; switch states keep the UNKNOWN sentinel
// at the wire boundary.
type Snapshot struct {
	DeviceID string
	TenantID string

	// Current decoded flags.
	LS1            protocol.SwitchState
	LS2            protocol.SwitchState
	LS3            protocol.SwitchState
	LS4            protocol.SwitchState
	Overload       *bool
	Working        *bool
	TestMode       *bool
	SecondaryBlock *bool
	Load           *float64
	RatedCapacity  *float64
	OperatingMode  string
	Longitude      *float64
	Latitude       *float64
	LocationSource string
	LocationAcc    *float64

	// Limit-switch test tracking.
	TestedToday       [4]bool
	HitCount          [4]int
	TestStartedAt     *time.Time
	TestCompletedAt   *time.Time
	TestModeCompleted bool

	// Utilization session tracking.
	UtilizationState UtilizationState
	SessionStart     *time.Time
	WorkedSeconds    float64
	UtilizationPct   float64

	// Overload duration tracking.
	OverloadState   OverloadState
	OverloadStart   *time.Time
	OverloadSeconds float64
	OverloadEvents  int
	OverloadPct     float64
	Risk            RiskLevel

	// Sticky ticket fields: only a protocol ticket command touches these.
	TicketNumber *int
	TicketType   *int
	TicketOpen   *bool

	// Day is the local calendar day the accumulators belong to.
	Day string

	LastEventAt time.Time
	UpdatedAt   time.Time
}

// NewSnapshot returns the zero-state snapshot for a device.
func NewSnapshot(deviceID, tenantID string) *Snapshot {
	return &Snapshot{
		DeviceID:         deviceID,
		TenantID:         tenantID,
		LS1:              protocol.SwitchUnknown,
		LS2:              protocol.SwitchUnknown,
		LS3:              protocol.SwitchUnknown,
		LS4:              protocol.SwitchUnknown,
		UtilizationState: StateIdle,
		OverloadState:    StateNormal,
		Risk:             RiskMinimal,
	}
}

// Switch returns the current state of switch i (0-based).
func (s *Snapshot) Switch(i int) protocol.SwitchState {
	switch i {
	case 0:
		return s.LS1
	case 1:
		return s.LS2
	case 2:
		return s.LS3
	default:
		return s.LS4
	}
}

func (s *Snapshot) setSwitch(i int, state protocol.SwitchState) {
	switch i {
	case 0:
		s.LS1 = state
	case 1:
		s.LS2 = state
	case 2:
		s.LS3 = state
	default:
		s.LS4 = state
	}
}

// Repository persists snapshots.
type Repository interface {
	Get(ctx context.Context, deviceID string) (*Snapshot, error)
	Upsert(ctx context.Context, snapshot *Snapshot) error
	ListAll(ctx context.Context) ([]Snapshot, error)
}
