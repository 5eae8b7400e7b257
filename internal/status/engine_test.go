package status

import (
	"testing"
	"time"

	"cranecloud/internal/protocol"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func bptr(v bool) *bool       { return &v }
func fptr(v float64) *float64 { return &v }

func at(day, clock string) time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04:05", day+" "+clock, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func workingEvent(ts time.Time, working bool) *protocol.Event {
	return &protocol.Event{
		DeviceID:  "123",
		Timestamp: ts,
		Kind:      protocol.KindEvent,
		Switches:  protocol.UnknownSwitches(),
		Working:   bptr(working),
	}
}

func newTestEngine(ceiling float64) (*Engine, *fakeClock) {
	clock := &fakeClock{now: at("2026-03-02", "08:00:00")}
	return NewEngine(ceiling, WithClock(clock), WithLocation(time.UTC)), clock
}

func TestApplyAccumulatesWorkSessions(t *testing.T) {
	engine, _ := newTestEngine(0)
	snap := NewSnapshot("123", "acme")

	steps := []struct {
		ts      time.Time
		working bool
	}{
		{at("2026-03-02", "08:00:00"), true},
		{at("2026-03-02", "09:00:00"), false},
		{at("2026-03-02", "10:00:00"), true},
		{at("2026-03-02", "10:30:00"), false},
	}
	for _, step := range steps {
		if _, err := engine.Apply(snap, workingEvent(step.ts, step.working)); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}

	if got := snap.WorkedSeconds; got != 5400 {
		t.Fatalf("worked seconds = %v, want 5400", got)
	}
	// 1.5 worked hours out of 10.5 elapsed since midnight.
	if got := snap.UtilizationPct; got != 14.29 {
		t.Fatalf("utilization = %v, want 14.29", got)
	}
	if snap.UtilizationState != StateIdle {
		t.Fatalf("state = %s, want IDLE", snap.UtilizationState)
	}
}

func TestApplyCountsOpenSessionInUtilization(t *testing.T) {
	engine, _ := newTestEngine(0)
	snap := NewSnapshot("123", "acme")

	engine.Apply(snap, workingEvent(at("2026-03-02", "06:00:00"), true))
	engine.Apply(snap, workingEvent(at("2026-03-02", "12:00:00"), true))

	// Six open hours out of twelve elapsed.
	if got := snap.UtilizationPct; got != 50 {
		t.Fatalf("utilization = %v, want 50", got)
	}
	if snap.SessionStart == nil || !snap.SessionStart.Equal(at("2026-03-02", "06:00:00")) {
		t.Fatalf("session start moved on repeated WORKING report")
	}
}

func TestApplyResetsAccumulatorsOnDayRollover(t *testing.T) {
	engine, _ := newTestEngine(0)
	snap := NewSnapshot("123", "acme")

	engine.Apply(snap, workingEvent(at("2026-03-02", "20:00:00"), true))
	engine.Apply(snap, workingEvent(at("2026-03-02", "22:00:00"), false))

	evt := workingEvent(at("2026-03-03", "01:00:00"), true)
	evt.Overload = bptr(false)
	engine.Apply(snap, evt)

	if snap.WorkedSeconds != 0 {
		t.Fatalf("worked seconds = %v, want 0 after rollover", snap.WorkedSeconds)
	}
	if snap.Day != "2026-03-03" {
		t.Fatalf("day = %s, want 2026-03-03", snap.Day)
	}
	if snap.OverloadEvents != 0 || snap.Risk != RiskMinimal {
		t.Fatalf("overload accumulators survived rollover")
	}
}

func TestApplyCreditsOpenSessionFromMidnightAfterRollover(t *testing.T) {
	engine, _ := newTestEngine(0)
	snap := NewSnapshot("123", "acme")

	engine.Apply(snap, workingEvent(at("2026-03-02", "23:00:00"), true))
	engine.Apply(snap, workingEvent(at("2026-03-03", "02:00:00"), false))

	// The session that crossed midnight is credited from 00:00.
	if got := snap.WorkedSeconds; got != 7200 {
		t.Fatalf("worked seconds = %v, want 7200", got)
	}
}

func TestApplyTracksLimitSwitchTestCompletion(t *testing.T) {
	engine, _ := newTestEngine(0)
	snap := NewSnapshot("123", "acme")

	base := at("2026-03-02", "07:00:00")
	for i := 0; i < 4; i++ {
		evt := &protocol.Event{
			DeviceID:  "123",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Kind:      protocol.KindEvent,
			Switches:  protocol.UnknownSwitches(),
		}
		evt.Switches[i] = protocol.SwitchHit
		engine.Apply(snap, evt)

		// Release the switch before the next one trips.
		release := &protocol.Event{
			DeviceID:  "123",
			Timestamp: base.Add(time.Duration(i)*time.Minute + 30*time.Second),
			Kind:      protocol.KindEvent,
			Switches:  protocol.UnknownSwitches(),
		}
		release.Switches[i] = protocol.SwitchOK
		engine.Apply(snap, release)
	}

	if !snap.TestModeCompleted {
		t.Fatal("four distinct hits should complete the test")
	}
	if snap.TestCompletedAt == nil || !snap.TestCompletedAt.Equal(base.Add(3*time.Minute)) {
		t.Fatalf("completion stamp = %v", snap.TestCompletedAt)
	}
	for i := 0; i < 4; i++ {
		if snap.HitCount[i] != 1 {
			t.Fatalf("switch %d hit count = %d, want 1", i, snap.HitCount[i])
		}
	}
}

func TestApplyCountsRepeatHitsOnce(t *testing.T) {
	engine, _ := newTestEngine(0)
	snap := NewSnapshot("123", "acme")
	base := at("2026-03-02", "07:00:00")

	for cycle := 0; cycle < 3; cycle++ {
		hit := &protocol.Event{
			DeviceID:  "123",
			Timestamp: base.Add(time.Duration(cycle) * time.Minute),
			Kind:      protocol.KindEvent,
			Switches:  protocol.UnknownSwitches(),
		}
		hit.Switches[0] = protocol.SwitchHit
		engine.Apply(snap, hit)

		release := &protocol.Event{
			DeviceID:  "123",
			Timestamp: base.Add(time.Duration(cycle)*time.Minute + 30*time.Second),
			Kind:      protocol.KindEvent,
			Switches:  protocol.UnknownSwitches(),
		}
		release.Switches[0] = protocol.SwitchOK
		engine.Apply(snap, release)
	}

	if snap.HitCount[0] != 1 {
		t.Fatalf("hit count = %d, want 1 for a switch already tested today", snap.HitCount[0])
	}
	if !snap.TestedToday[0] {
		t.Fatal("first hit should mark the switch tested")
	}
}

func TestApplyIgnoresHitsWhileTestCompleted(t *testing.T) {
	engine, _ := newTestEngine(0)
	snap := NewSnapshot("123", "acme")
	completed := at("2026-03-02", "07:00:00")
	snap.TestModeCompleted = true
	snap.TestCompletedAt = &completed

	evt := &protocol.Event{
		DeviceID:  "123",
		Timestamp: at("2026-03-02", "09:00:00"),
		Kind:      protocol.KindEvent,
		Switches:  protocol.UnknownSwitches(),
	}
	evt.Switches[0] = protocol.SwitchHit
	engine.Apply(snap, evt)

	if snap.HitCount[0] != 0 || snap.TestedToday[0] {
		t.Fatal("hit counted while completed-test latch held")
	}
	if snap.LS1 != protocol.SwitchHit {
		t.Fatal("current switch state still merges")
	}
}

func TestApplyExpiresCompletedTestAfterADay(t *testing.T) {
	engine, _ := newTestEngine(0)
	snap := NewSnapshot("123", "acme")
	completed := at("2026-03-02", "07:00:00")
	snap.TestModeCompleted = true
	snap.TestCompletedAt = &completed
	snap.TestedToday = [4]bool{true, true, true, true}

	engine.Apply(snap, workingEvent(at("2026-03-03", "07:30:00"), true))

	if snap.TestModeCompleted {
		t.Fatal("latch should release 24h after completion")
	}
	if snap.TestedToday != ([4]bool{}) {
		t.Fatal("tested flags should re-arm with the latch")
	}
}

func TestApplyOverloadDurationAndRisk(t *testing.T) {
	engine, _ := newTestEngine(0)
	snap := NewSnapshot("123", "acme")
	engine.Apply(snap, workingEvent(at("2026-03-02", "08:00:00"), true))

	over := func(clock string, on bool) *protocol.Event {
		evt := workingEvent(at("2026-03-02", clock), true)
		evt.Overload = bptr(on)
		return evt
	}

	alerts, _ := engine.Apply(snap, over("09:00:00", true))
	if len(alerts) != 1 || alerts[0].Category != AlertOverload {
		t.Fatalf("overload entry should alert, got %v", alerts)
	}
	alerts, _ = engine.Apply(snap, over("09:10:00", false))
	if len(alerts) != 0 {
		t.Fatalf("overload exit should not alert, got %v", alerts)
	}
	engine.Apply(snap, over("10:00:00", true))
	engine.Apply(snap, over("10:05:00", false))
	engine.Apply(snap, over("11:00:00", true))
	engine.Apply(snap, over("11:01:00", false))

	if got := snap.OverloadSeconds; got != 960 {
		t.Fatalf("overload seconds = %v, want 960", got)
	}
	if snap.OverloadEvents != 3 || snap.Risk != RiskMedium {
		t.Fatalf("events = %d risk = %s, want 3 MEDIUM", snap.OverloadEvents, snap.Risk)
	}
	// 16 overload minutes across 181 working minutes.
	if got := snap.OverloadPct; got != 8.84 {
		t.Fatalf("overload pct = %v, want 8.84", got)
	}
}

func TestApplyRiskThresholds(t *testing.T) {
	cases := []struct {
		events int
		want   RiskLevel
	}{
		{0, RiskMinimal},
		{1, RiskLow},
		{2, RiskLow},
		{3, RiskMedium},
		{5, RiskMedium},
		{6, RiskHigh},
	}
	for _, tc := range cases {
		if got := riskFor(tc.events); got != tc.want {
			t.Errorf("riskFor(%d) = %s, want %s", tc.events, got, tc.want)
		}
	}
}

func TestApplyTicketFieldsAreSticky(t *testing.T) {
	engine, _ := newTestEngine(0)
	snap := NewSnapshot("123", "acme")

	num, typ := 7, 4
	ticket := &protocol.Event{
		DeviceID:     "123",
		Timestamp:    at("2026-03-02", "08:00:00"),
		Kind:         protocol.KindTicket,
		Switches:     protocol.UnknownSwitches(),
		TicketNumber: &num,
		TicketType:   &typ,
		TicketOpen:   bptr(true),
	}
	engine.Apply(snap, ticket)
	engine.Apply(snap, workingEvent(at("2026-03-02", "09:00:00"), true))

	if snap.TicketNumber == nil || *snap.TicketNumber != 7 {
		t.Fatal("ticket number erased by non-ticket event")
	}
	if snap.TicketOpen == nil || !*snap.TicketOpen {
		t.Fatal("ticket open flag erased by non-ticket event")
	}
}

func TestApplyUnknownNeverErasesKnown(t *testing.T) {
	engine, _ := newTestEngine(0)
	snap := NewSnapshot("123", "acme")

	first := workingEvent(at("2026-03-02", "08:00:00"), true)
	first.Switches[0] = protocol.SwitchOK
	first.Load = fptr(42.5)
	first.Kind = protocol.KindTelemetry
	engine.Apply(snap, first)

	heartbeat := &protocol.Event{
		DeviceID:  "123",
		Timestamp: at("2026-03-02", "08:05:00"),
		Kind:      protocol.KindHeartbeat,
		Switches:  protocol.UnknownSwitches(),
	}
	engine.Apply(snap, heartbeat)

	if snap.LS1 != protocol.SwitchOK {
		t.Fatal("heartbeat erased known switch state")
	}
	if snap.Load == nil || *snap.Load != 42.5 {
		t.Fatal("heartbeat erased known load")
	}
	if snap.Working == nil || !*snap.Working {
		t.Fatal("heartbeat erased working flag")
	}
	if !snap.LastEventAt.Equal(at("2026-03-02", "08:05:00")) {
		t.Fatal("heartbeat should still advance last-event stamp")
	}
}

func TestApplyLoadIgnoredOnHeartbeatKind(t *testing.T) {
	engine, _ := newTestEngine(0)
	snap := NewSnapshot("123", "acme")

	evt := &protocol.Event{
		DeviceID:  "123",
		Timestamp: at("2026-03-02", "08:00:00"),
		Kind:      protocol.KindHeartbeat,
		Switches:  protocol.UnknownSwitches(),
		Load:      fptr(9.9),
	}
	engine.Apply(snap, evt)

	if snap.Load != nil {
		t.Fatal("heartbeat must not carry an authoritative load")
	}
}

func TestApplySwitchFailureAlerts(t *testing.T) {
	engine, _ := newTestEngine(0)
	snap := NewSnapshot("123", "acme")

	evt := workingEvent(at("2026-03-02", "08:00:00"), true)
	evt.Switches[2] = protocol.SwitchFail
	alerts, _ := engine.Apply(snap, evt)

	if len(alerts) != 1 || alerts[0].Category != AlertLimitSwitch {
		t.Fatalf("alerts = %v, want one limit_switch alert", alerts)
	}

	// Re-reporting the same failure does not alert again.
	alerts, _ = engine.Apply(snap, evt)
	if len(alerts) != 0 {
		t.Fatalf("repeated failure re-alerted: %v", alerts)
	}
}

func TestApplyUtilizationCeilingAlert(t *testing.T) {
	engine, _ := newTestEngine(85)
	snap := NewSnapshot("123", "acme")

	engine.Apply(snap, workingEvent(at("2026-03-02", "00:30:00"), true))
	alerts, _ := engine.Apply(snap, workingEvent(at("2026-03-02", "12:00:00"), true))

	if snap.UtilizationPct <= 85 {
		t.Fatalf("utilization = %v, expected above ceiling", snap.UtilizationPct)
	}
	found := false
	for _, a := range alerts {
		if a.Category == AlertUtilization {
			found = true
		}
	}
	if !found {
		t.Fatalf("alerts = %v, want utilization alert", alerts)
	}
}

func TestApplyNilArguments(t *testing.T) {
	engine, _ := newTestEngine(0)
	if _, err := engine.Apply(nil, &protocol.Event{}); err == nil {
		t.Fatal("nil snapshot should error")
	}
	if _, err := engine.Apply(NewSnapshot("1", ""), nil); err == nil {
		t.Fatal("nil event should error")
	}
}
