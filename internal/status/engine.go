package status

import (
	"errors"
	"math"
	"time"

	"cranecloud/internal/protocol"
)

// ErrNilEvent is returned when Apply receives no event.
var ErrNilEvent = errors.New("status: nil event")

// testResetAfter is how long a completed limit-switch test stays valid.
const testResetAfter = 24 * time.Hour

// AlertCategory names the threshold condition behind an alert.
type AlertCategory string

const (
	AlertOverload    AlertCategory = "overload"
	AlertLimitSwitch AlertCategory = "limit_switch"
	AlertUtilization AlertCategory = "utilization"
)

// Alert is a threshold condition the engine detected while merging an event.
// Alerts are advisory: ticket creation and dedup live in the tickets service.
type Alert struct {
	DeviceID    string
	Category    AlertCategory
	Description string
	At          time.Time
}

// Clock abstracts wall time for deterministic tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Engine merges decoded events into per-device snapshots and evaluates
// threshold conditions. It holds no state of its own: the snapshot is the
// state, and the caller owns locking and persistence.
type Engine struct {
	clock              Clock
	loc                *time.Location
	utilizationCeiling float64
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithClock overrides the wall clock.
func WithClock(c Clock) EngineOption {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithLocation sets the time zone used for calendar-day boundaries.
func WithLocation(loc *time.Location) EngineOption {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// NewEngine builds an engine. utilizationCeiling is the percentage above
// which a utilization alert fires; zero disables it.
func NewEngine(utilizationCeiling float64, opts ...EngineOption) *Engine {
	e := &Engine{
		clock:              systemClock{},
		loc:                time.Local,
		utilizationCeiling: utilizationCeiling,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply merges evt into snap in place and returns any threshold alerts the
// event triggered. Merge discipline: an absent or UNKNOWN field never erases
// a known value, and ticket fields move only on ticket commands.
func (e *Engine) Apply(snap *Snapshot, evt *protocol.Event) ([]Alert, error) {
	if e == nil || snap == nil || evt == nil {
		return nil, ErrNilEvent
	}

	ts := evt.Timestamp
	if ts.IsZero() {
		ts = e.clock.Now()
	}
	local := ts.In(e.loc)
	day := local.Format("2006-01-02")
	if snap.Day != "" && snap.Day != day {
		e.rolloverDay(snap, local)
	}
	snap.Day = day

	e.expireCompletedTest(snap, ts)

	var alerts []Alert

	// Limit-switch test tracking runs on the pre-merge states so a
	// not-HIT to HIT transition is observable.
	for i := 0; i < 4; i++ {
		next := evt.Switches[i]
		if next == protocol.SwitchUnknown {
			continue
		}
		prev := snap.Switch(i)
		if next == protocol.SwitchHit && prev != protocol.SwitchHit && !snap.TestModeCompleted && !snap.TestedToday[i] {
			snap.TestedToday[i] = true
			snap.HitCount[i]++
		}
		if next == protocol.SwitchFail && prev != protocol.SwitchFail {
			alerts = append(alerts, Alert{
				DeviceID:    snap.DeviceID,
				Category:    AlertLimitSwitch,
				Description: "limit switch " + switchName(i) + " reported failure",
				At:          ts,
			})
		}
		snap.setSwitch(i, next)
	}
	if !snap.TestModeCompleted && snap.TestedToday[0] && snap.TestedToday[1] && snap.TestedToday[2] && snap.TestedToday[3] {
		snap.TestModeCompleted = true
		completed := ts
		snap.TestCompletedAt = &completed
	}

	if evt.TestMode != nil {
		if *evt.TestMode && (snap.TestMode == nil || !*snap.TestMode) {
			started := ts
			snap.TestStartedAt = &started
		}
		snap.TestMode = evt.TestMode
	}

	// Utilization state machine.
	if evt.Working != nil {
		switch {
		case *evt.Working && snap.UtilizationState != StateWorking:
			snap.UtilizationState = StateWorking
			start := ts
			snap.SessionStart = &start
		case !*evt.Working && snap.UtilizationState == StateWorking:
			if snap.SessionStart != nil {
				snap.WorkedSeconds += ts.Sub(*snap.SessionStart).Seconds()
			}
			snap.SessionStart = nil
			snap.UtilizationState = StateIdle
		}
		snap.Working = evt.Working
	}
	snap.UtilizationPct = e.utilizationPct(snap, local)
	if e.utilizationCeiling > 0 && snap.UtilizationPct > e.utilizationCeiling {
		alerts = append(alerts, Alert{
			DeviceID:    snap.DeviceID,
			Category:    AlertUtilization,
			Description: "daily utilization above ceiling",
			At:          ts,
		})
	}

	// Overload state machine.
	if evt.Overload != nil {
		switch {
		case *evt.Overload && snap.OverloadState != StateOverload:
			snap.OverloadState = StateOverload
			start := ts
			snap.OverloadStart = &start
			snap.OverloadEvents++
			alerts = append(alerts, Alert{
				DeviceID:    snap.DeviceID,
				Category:    AlertOverload,
				Description: "overload condition entered",
				At:          ts,
			})
		case !*evt.Overload && snap.OverloadState == StateOverload:
			if snap.OverloadStart != nil {
				snap.OverloadSeconds += ts.Sub(*snap.OverloadStart).Seconds()
			}
			snap.OverloadStart = nil
			snap.OverloadState = StateNormal
		}
		snap.Overload = evt.Overload
	}
	snap.Risk = riskFor(snap.OverloadEvents)
	snap.OverloadPct = e.overloadPct(snap, ts)

	// Load is authoritative on kinds that actually carry a measurement.
	if evt.Load != nil {
		switch evt.Kind {
		case protocol.KindLoad, protocol.KindEvent, protocol.KindTelemetry:
			snap.Load = evt.Load
		}
	}
	if evt.RatedCapacity != nil {
		snap.RatedCapacity = evt.RatedCapacity
	}
	if evt.OperatingMode != "" {
		snap.OperatingMode = evt.OperatingMode
	}
	if evt.SecondaryBlock != nil {
		snap.SecondaryBlock = evt.SecondaryBlock
	}
	if evt.Location != nil {
		lon, lat := evt.Location.Longitude, evt.Location.Latitude
		snap.Longitude = &lon
		snap.Latitude = &lat
		snap.LocationSource = evt.Location.Source
		if evt.Location.Accuracy != nil {
			acc := *evt.Location.Accuracy
			snap.LocationAcc = &acc
		}
	}

	// Ticket fields are sticky: nothing but a ticket command moves them.
	if evt.Kind == protocol.KindTicket {
		if evt.TicketNumber != nil {
			snap.TicketNumber = evt.TicketNumber
		}
		if evt.TicketType != nil {
			snap.TicketType = evt.TicketType
		}
		if evt.TicketOpen != nil {
			snap.TicketOpen = evt.TicketOpen
		}
	}

	snap.LastEventAt = ts
	snap.UpdatedAt = e.clock.Now()
	return alerts, nil
}

// rolloverDay zeroes the same-day accumulators when an event lands on a new
// local calendar day. Open sessions restart at midnight so the new day is
// credited from its own start.
func (e *Engine) rolloverDay(snap *Snapshot, local time.Time) {
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, e.loc)

	snap.WorkedSeconds = 0
	snap.UtilizationPct = 0
	if snap.UtilizationState == StateWorking {
		snap.SessionStart = &midnight
	} else {
		snap.SessionStart = nil
	}

	snap.OverloadSeconds = 0
	snap.OverloadEvents = 0
	snap.OverloadPct = 0
	snap.Risk = RiskMinimal
	if snap.OverloadState == StateOverload {
		snap.OverloadStart = &midnight
	} else {
		snap.OverloadStart = nil
	}

	snap.TestedToday = [4]bool{}
	snap.HitCount = [4]int{}
}

// expireCompletedTest clears the completed-test latch once it has been held
// for a full day, re-arming the per-switch tracking.
func (e *Engine) expireCompletedTest(snap *Snapshot, ts time.Time) {
	if !snap.TestModeCompleted || snap.TestCompletedAt == nil {
		return
	}
	if ts.Sub(*snap.TestCompletedAt) >= testResetAfter {
		snap.TestModeCompleted = false
		snap.TestCompletedAt = nil
		snap.TestedToday = [4]bool{}
	}
}

func (e *Engine) utilizationPct(snap *Snapshot, local time.Time) float64 {
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, e.loc)
	elapsed := local.Sub(midnight).Seconds()
	if elapsed <= 0 {
		return 0
	}
	worked := snap.WorkedSeconds
	if snap.UtilizationState == StateWorking && snap.SessionStart != nil {
		worked += local.Sub(snap.SessionStart.In(e.loc)).Seconds()
	}
	return round2(worked / elapsed * 100)
}

func (e *Engine) overloadPct(snap *Snapshot, ts time.Time) float64 {
	worked := snap.WorkedSeconds
	if snap.UtilizationState == StateWorking && snap.SessionStart != nil {
		worked += ts.Sub(*snap.SessionStart).Seconds()
	}
	if worked <= 0 {
		return 0
	}
	over := snap.OverloadSeconds
	if snap.OverloadState == StateOverload && snap.OverloadStart != nil {
		over += ts.Sub(*snap.OverloadStart).Seconds()
	}
	return round2(over / worked * 100)
}

func riskFor(events int) RiskLevel {
	switch {
	case events > 5:
		return RiskHigh
	case events > 2:
		return RiskMedium
	case events > 0:
		return RiskLow
	default:
		return RiskMinimal
	}
}

func switchName(i int) string {
	return [4]string{"LS1", "LS2", "LS3", "LS4"}[i]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
