package devices

import (
	"context"
	"errors"
	"testing"
	"time"

	"cranecloud/internal/eventing"
)

type stubDeviceRepo struct {
	devices map[string]*Device
	created []*Device
	failing bool
}

func (s *stubDeviceRepo) Get(_ context.Context, id string) (*Device, error) {
	if device, ok := s.devices[id]; ok {
		return device, nil
	}
	return nil, ErrNotFound
}

func (s *stubDeviceRepo) Create(_ context.Context, device *Device) error {
	if s.failing {
		return errors.New("boom")
	}
	if s.devices == nil {
		s.devices = make(map[string]*Device)
	}
	s.devices[device.ID] = device
	s.created = append(s.created, device)
	return nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestRegistry(t *testing.T, repo *stubDeviceRepo, clock *fakeClock) (*Registry, *eventing.InMemoryBus) {
	t.Helper()
	bus := eventing.NewInMemoryBus()
	registry, err := NewRegistry(repo, bus, WithClock(clock))
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return registry, bus
}

func TestResolveKnownDevice(t *testing.T) {
	repo := &stubDeviceRepo{devices: map[string]*Device{"CR-1": {ID: "CR-1", TenantID: "acme"}}}
	registry, _ := newTestRegistry(t, repo, &fakeClock{now: time.Now()})

	res, err := registry.Resolve(context.Background(), "CR-1", Observation{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Device == nil || res.Device.TenantID != "acme" {
		t.Fatalf("resolution = %+v", res)
	}
	if res.Pending != nil || res.Discovered {
		t.Fatalf("known device produced pending state: %+v", res)
	}
}

func TestResolveUnknownCreatesSinglePendingEntry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)}
	registry, bus := newTestRegistry(t, &stubDeviceRepo{}, clock)

	var discovered []eventing.DeviceDiscovered
	bus.Subscribe(eventing.EventTypeOf[eventing.DeviceDiscovered](), func(_ context.Context, event any) error {
		discovered = append(discovered, event.(eventing.DeviceDiscovered))
		return nil
	})

	first, err := registry.Resolve(context.Background(), "CR-9", Observation{TenantHint: "acme", SeenAt: clock.now})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !first.Discovered || first.Pending == nil || first.Pending.MessageCount != 1 {
		t.Fatalf("first resolution = %+v", first)
	}

	clock.now = clock.now.Add(time.Minute)
	second, err := registry.Resolve(context.Background(), "CR-9", Observation{SeenAt: clock.now})
	if err != nil {
		t.Fatalf("resolve again: %v", err)
	}
	if second.Discovered {
		t.Fatalf("second resolution re-discovered the device")
	}
	if second.Pending.MessageCount != 2 {
		t.Fatalf("message count = %d, want 2", second.Pending.MessageCount)
	}
	if !second.Pending.LastSeen.Equal(clock.now) {
		t.Fatalf("last seen = %v", second.Pending.LastSeen)
	}
	if len(discovered) != 1 {
		t.Fatalf("discovered events = %d, want 1", len(discovered))
	}
	if len(registry.ListPending()) != 1 {
		t.Fatalf("pending entries = %d, want 1", len(registry.ListPending()))
	}
}

func TestApprovePromotesAndAssignsPersonnel(t *testing.T) {
	repo := &stubDeviceRepo{}
	clock := &fakeClock{now: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)}
	registry, _ := newTestRegistry(t, repo, clock)

	if _, err := registry.Resolve(context.Background(), "CR-5", Observation{TenantHint: "acme"}); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	device, err := registry.Approve(context.Background(), "CR-5", Approval{
		Name:        "Tower 5",
		Supervisors: []string{"sup-1"},
		Operators:   []string{"op-1", "op-2"},
		ApprovedBy:  "admin",
	})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if device.TenantID != "acme" {
		t.Fatalf("tenant hint not applied: %q", device.TenantID)
	}
	if len(device.Operators) != 2 || device.Supervisors[0] != "sup-1" {
		t.Fatalf("personnel not assigned: %+v", device)
	}
	if len(repo.created) != 1 {
		t.Fatalf("repo creations = %d", len(repo.created))
	}
	if len(registry.ListPending()) != 0 {
		t.Fatalf("pending entry survived approval")
	}
	if _, err := registry.Approve(context.Background(), "CR-5", Approval{}); !errors.Is(err, ErrNotPending) {
		t.Fatalf("second approve err = %v, want ErrNotPending", err)
	}
}

func TestApproveRepoFailureRestoresPending(t *testing.T) {
	repo := &stubDeviceRepo{failing: true}
	registry, _ := newTestRegistry(t, repo, &fakeClock{now: time.Now()})

	if _, err := registry.Resolve(context.Background(), "CR-6", Observation{}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := registry.Approve(context.Background(), "CR-6", Approval{}); err == nil {
		t.Fatalf("approve succeeded against failing repo")
	}
	if len(registry.ListPending()) != 1 {
		t.Fatalf("pending entry lost after failed approval")
	}
}

func TestRejectDiscards(t *testing.T) {
	registry, _ := newTestRegistry(t, &stubDeviceRepo{}, &fakeClock{now: time.Now()})
	if _, err := registry.Resolve(context.Background(), "CR-7", Observation{}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := registry.Reject(context.Background(), "CR-7", "test rig"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if err := registry.Reject(context.Background(), "CR-7", ""); !errors.Is(err, ErrNotPending) {
		t.Fatalf("second reject err = %v, want ErrNotPending", err)
	}
}

func TestSweepExpired(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)}
	registry, _ := newTestRegistry(t, &stubDeviceRepo{}, clock)

	if _, err := registry.Resolve(context.Background(), "CR-old", Observation{SeenAt: clock.now}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	clock.now = clock.now.Add(23 * time.Hour)
	if _, err := registry.Resolve(context.Background(), "CR-new", Observation{SeenAt: clock.now}); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	clock.now = clock.now.Add(2 * time.Hour)
	if removed := registry.SweepExpired(24 * time.Hour); removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	pending := registry.ListPending()
	if len(pending) != 1 || pending[0].DeviceID != "CR-new" {
		t.Fatalf("pending after sweep = %+v", pending)
	}
}
