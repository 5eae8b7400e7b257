package devices

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"cranecloud/internal/eventing"
	"cranecloud/internal/observability/metrics"
	"cranecloud/internal/protocol"
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// SnapshotBackfiller seeds a freshly approved device's status snapshot from
// its last observed telemetry.
type SnapshotBackfiller interface {
	Backfill(ctx context.Context, deviceID string, evt *protocol.Event) error
}

// Registry resolves device ids against the permanent store and tracks
// unknown senders as pending entries until an operator decides.
type Registry struct {
	repo       DeviceRepository
	backfiller SnapshotBackfiller
	bus        eventing.Bus
	clock      Clock

	mu      sync.Mutex
	pending map[string]*PendingDevice
}

// RegistryOption customizes the registry.
type RegistryOption func(*Registry)

// WithClock assigns a clock.
func WithClock(clock Clock) RegistryOption {
	return func(r *Registry) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithBackfiller assigns a snapshot backfiller.
func WithBackfiller(backfiller SnapshotBackfiller) RegistryOption {
	return func(r *Registry) {
		r.backfiller = backfiller
	}
}

// NewRegistry constructs a registry. The bus may be nil in tests.
func NewRegistry(repo DeviceRepository, bus eventing.Bus, opts ...RegistryOption) (*Registry, error) {
	if repo == nil {
		return nil, errors.New("devices: nil repository")
	}
	registry := &Registry{
		repo:    repo,
		bus:     bus,
		clock:   systemClock{},
		pending: make(map[string]*PendingDevice),
	}
	for _, opt := range opts {
		opt(registry)
	}
	return registry, nil
}

// Resolve looks a device id up, creating or refreshing a pending entry when
// the id is unknown. A device id is pending for at most one entry at a time;
// repeated telemetry refreshes last-seen and the message counter.
func (r *Registry) Resolve(ctx context.Context, deviceID string, obs Observation) (Resolution, error) {
	if r == nil {
		return Resolution{}, errors.New("devices: nil registry")
	}
	if deviceID == "" {
		return Resolution{}, errors.New("devices: empty device id")
	}

	device, err := r.repo.Get(ctx, deviceID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Resolution{}, err
	}
	if device != nil {
		return Resolution{Device: device}, nil
	}

	seenAt := obs.SeenAt
	if seenAt.IsZero() {
		seenAt = r.clock.Now().UTC()
	}

	r.mu.Lock()
	entry, exists := r.pending[deviceID]
	if !exists {
		entry = &PendingDevice{
			DeviceID:     deviceID,
			TenantHint:   obs.TenantHint,
			LocationHint: obs.LocationHint,
			FirstSeen:    seenAt,
		}
		r.pending[deviceID] = entry
	}
	entry.LastSeen = seenAt
	entry.MessageCount++
	if obs.TenantHint != "" {
		entry.TenantHint = obs.TenantHint
	}
	if obs.LocationHint != "" {
		entry.LocationHint = obs.LocationHint
	}
	if obs.Event != nil {
		entry.LastEvent = obs.Event
	}
	snapshot := *entry
	size := len(r.pending)
	r.mu.Unlock()

	metrics.SetPendingDevices(size)
	if !exists {
		r.publish(ctx, eventing.DeviceDiscovered{
			DeviceID:     deviceID,
			TenantHint:   snapshot.TenantHint,
			LocationHint: snapshot.LocationHint,
			FirstSeen:    snapshot.FirstSeen,
		})
	}
	return Resolution{Pending: &snapshot, Discovered: !exists}, nil
}

// Approve promotes a pending entry to a permanent device record, back-fills
// its snapshot from the last observed telemetry, and assigns any supplied
// personnel.
func (r *Registry) Approve(ctx context.Context, deviceID string, approval Approval) (*Device, error) {
	if r == nil {
		return nil, errors.New("devices: nil registry")
	}

	r.mu.Lock()
	entry, ok := r.pending[deviceID]
	if ok {
		delete(r.pending, deviceID)
	}
	size := len(r.pending)
	r.mu.Unlock()
	if !ok {
		return nil, ErrNotPending
	}
	metrics.SetPendingDevices(size)

	now := r.clock.Now().UTC()
	tenantID := approval.TenantID
	if tenantID == "" {
		tenantID = entry.TenantHint
	}
	location := approval.Location
	if location == "" {
		location = entry.LocationHint
	}
	device := &Device{
		ID:            deviceID,
		TenantID:      tenantID,
		Name:          approval.Name,
		DeviceType:    approval.DeviceType,
		Location:      location,
		RatedCapacity: approval.RatedCapacity,
		Supervisors:   approval.Supervisors,
		Operators:     approval.Operators,
		Managers:      approval.Managers,
		Active:        true,
		ApprovedBy:    approval.ApprovedBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if device.Name == "" {
		device.Name = deviceID
	}
	if err := r.repo.Create(ctx, device); err != nil {
		// Put the entry back so the operator can retry.
		r.mu.Lock()
		r.pending[deviceID] = entry
		r.mu.Unlock()
		return nil, err
	}

	if r.backfiller != nil && entry.LastEvent != nil {
		if err := r.backfiller.Backfill(ctx, deviceID, entry.LastEvent); err != nil {
			return device, err
		}
	}

	r.publish(ctx, eventing.DeviceApproved{DeviceID: deviceID, TenantID: tenantID, Name: device.Name})
	return device, nil
}

// Reject discards a pending entry.
func (r *Registry) Reject(ctx context.Context, deviceID, reason string) error {
	if r == nil {
		return errors.New("devices: nil registry")
	}
	r.mu.Lock()
	_, ok := r.pending[deviceID]
	if ok {
		delete(r.pending, deviceID)
	}
	size := len(r.pending)
	r.mu.Unlock()
	if !ok {
		return ErrNotPending
	}
	metrics.SetPendingDevices(size)
	r.publish(ctx, eventing.DeviceRejected{DeviceID: deviceID, Reason: reason})
	return nil
}

// ListPending returns pending entries ordered by first-seen.
func (r *Registry) ListPending() []PendingDevice {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	out := make([]PendingDevice, 0, len(r.pending))
	for _, entry := range r.pending {
		out = append(out, *entry)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].FirstSeen.Before(out[j].FirstSeen) })
	return out
}

// SweepExpired drops pending entries not seen within maxAge and returns how
// many were removed. The caller drives the cadence; nothing here ticks on
// its own.
func (r *Registry) SweepExpired(maxAge time.Duration) int {
	if r == nil || maxAge <= 0 {
		return 0
	}
	cutoff := r.clock.Now().UTC().Add(-maxAge)
	r.mu.Lock()
	removed := 0
	for id, entry := range r.pending {
		if entry.LastSeen.Before(cutoff) {
			delete(r.pending, id)
			removed++
		}
	}
	size := len(r.pending)
	r.mu.Unlock()
	metrics.SetPendingDevices(size)
	return removed
}

func (r *Registry) publish(ctx context.Context, event any) {
	if r.bus == nil {
		return
	}
	_ = r.bus.Publish(ctx, event)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
