package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"cranecloud/internal/devices"
	"cranecloud/internal/eventing"
	"cranecloud/internal/observability/metrics"
	"cranecloud/internal/protocol"
	"cranecloud/internal/routing"
	"cranecloud/internal/status"
	"cranecloud/internal/telemetry"
	"cranecloud/internal/tickets"
)

// Pipeline runs one inbound message end to end: route the topic, decode the
// payload, resolve the sender, persist the record, merge the snapshot and
// fan out tickets and realtime events. Failures are isolated per message;
// Handle never panics the consumer and a bad payload never blocks the next.
type Pipeline struct {
	router    *routing.Router
	registry  *devices.Registry
	records   telemetry.Repository
	snapshots status.Repository
	engine    *status.Engine
	tickets   *tickets.Service
	bus       eventing.Bus
	logger    *zap.Logger

	persistTimeout time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// PipelineOption customizes a Pipeline.
type PipelineOption func(*Pipeline)

// WithPersistTimeout bounds each storage write.
func WithPersistTimeout(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		if d > 0 {
			p.persistTimeout = d
		}
	}
}

// WithTickets attaches the maintenance ticket service.
func WithTickets(svc *tickets.Service) PipelineOption {
	return func(p *Pipeline) {
		p.tickets = svc
	}
}

// WithBus attaches the realtime event bus.
func WithBus(bus eventing.Bus) PipelineOption {
	return func(p *Pipeline) {
		p.bus = bus
	}
}

// NewPipeline constructs the ingestion pipeline.
func NewPipeline(router *routing.Router, registry *devices.Registry, records telemetry.Repository, snapshots status.Repository, engine *status.Engine, logger *zap.Logger, opts ...PipelineOption) (*Pipeline, error) {
	if router == nil || registry == nil || records == nil || snapshots == nil || engine == nil {
		return nil, errors.New("ingest: nil dependency")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		router:         router,
		registry:       registry,
		records:        records,
		snapshots:      snapshots,
		engine:         engine,
		logger:         logger,
		persistTimeout: 5 * time.Second,
		locks:          make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Handle processes one raw message. The returned error is diagnostic: the
// caller logs it and moves on.
func (p *Pipeline) Handle(ctx context.Context, topic string, payload []byte) error {
	if p == nil {
		return errors.New("ingest: nil pipeline")
	}

	route, err := p.router.Parse(ctx, topic, payload)
	if err != nil {
		metrics.IncMessageDropped("unroutable")
		p.logger.Debug("message dropped: unroutable topic",
			zap.String("topic", topic), zap.Error(err))
		return err
	}

	evt, err := protocol.Decode(payload)
	if err != nil {
		metrics.IncMessageDropped("undecodable")
		p.logger.Debug("message dropped: undecodable payload",
			zap.String("topic", topic),
			zap.String("device", route.DeviceID),
			zap.Error(err))
		return err
	}
	if evt.DeviceID == "" {
		evt.DeviceID = route.DeviceID
	}
	if evt.DeviceID == "" {
		metrics.IncMessageDropped("no_device")
		return errors.New("ingest: message carries no device id")
	}
	if evt.TenantID == "" {
		evt.TenantID = route.TenantID
	}

	if evt.ChecksumValid != nil && !*evt.ChecksumValid {
		metrics.IncChecksumMismatch()
		p.logger.Warn("checksum mismatch, payload kept",
			zap.String("device", evt.DeviceID),
			zap.String("raw", evt.Raw))
	}

	resolution, err := p.registry.Resolve(ctx, evt.DeviceID, devices.Observation{
		TenantHint: route.TenantID,
		SeenAt:     evt.Timestamp,
		Event:      evt,
	})
	if err != nil {
		metrics.IncMessageError()
		return err
	}
	if resolution.Device == nil {
		// Unknown sender: the registry keeps the pending entry, nothing
		// is persisted until an operator approves the device.
		metrics.IncMessageDropped("unapproved_device")
		return nil
	}

	tenantID := resolution.Device.TenantID
	if tenantID == "" {
		tenantID = route.TenantID
	}

	unlock := p.lockDevice(evt.DeviceID)
	defer unlock()

	record := telemetry.FromEvent(evt, tenantID)
	if err := p.persist(ctx, func(ctx context.Context) error {
		return p.records.Insert(ctx, record)
	}); err != nil {
		metrics.IncMessageError()
		p.logger.Error("telemetry insert failed",
			zap.String("device", evt.DeviceID), zap.Error(err))
	}

	alerts, err := p.mergeSnapshot(ctx, tenantID, evt)
	if err != nil {
		metrics.IncMessageError()
		p.logger.Error("snapshot merge failed",
			zap.String("device", evt.DeviceID), zap.Error(err))
		return err
	}

	p.dispatchTickets(ctx, tenantID, evt, alerts)
	p.announce(ctx, evt, tenantID)
	metrics.IncMessageSuccess()
	return nil
}

// Backfill seeds a freshly approved device's snapshot from its last pending
// observation. It satisfies the registry's backfiller hook.
func (p *Pipeline) Backfill(ctx context.Context, deviceID string, evt *protocol.Event) error {
	if p == nil || evt == nil {
		return nil
	}
	unlock := p.lockDevice(deviceID)
	defer unlock()
	_, err := p.mergeSnapshot(ctx, evt.TenantID, evt)
	return err
}

func (p *Pipeline) mergeSnapshot(ctx context.Context, tenantID string, evt *protocol.Event) ([]status.Alert, error) {
	started := time.Now()

	snap, err := p.snapshots.Get(ctx, evt.DeviceID)
	if errors.Is(err, status.ErrSnapshotNotFound) {
		snap = status.NewSnapshot(evt.DeviceID, tenantID)
	} else if err != nil {
		return nil, err
	}
	if snap.TenantID == "" {
		snap.TenantID = tenantID
	}

	alerts, err := p.engine.Apply(snap, evt)
	if err != nil {
		return nil, err
	}

	if err := p.persist(ctx, func(ctx context.Context) error {
		return p.snapshots.Upsert(ctx, snap)
	}); err != nil {
		return nil, err
	}
	metrics.ObserveMergeLatency(time.Since(started))
	return alerts, nil
}

func (p *Pipeline) dispatchTickets(ctx context.Context, tenantID string, evt *protocol.Event, alerts []status.Alert) {
	if p.tickets == nil {
		return
	}
	if evt.Kind == protocol.KindTicket {
		if err := p.tickets.HandleWireTicket(ctx, tenantID, evt); err != nil {
			p.logger.Error("wire ticket failed",
				zap.String("device", evt.DeviceID), zap.Error(err))
		}
	}
	for _, alert := range alerts {
		if err := p.tickets.HandleAlert(ctx, tenantID, alert); err != nil {
			p.logger.Error("alert ticket failed",
				zap.String("device", alert.DeviceID),
				zap.String("category", string(alert.Category)),
				zap.Error(err))
		}
	}
}

func (p *Pipeline) announce(ctx context.Context, evt *protocol.Event, tenantID string) {
	if p.bus == nil {
		return
	}
	stored := eventing.TelemetryStored{
		DeviceID:      evt.DeviceID,
		TenantID:      tenantID,
		Kind:          string(evt.Kind),
		Timestamp:     evt.Timestamp,
		Load:          evt.Load,
		Overload:      evt.Overload,
		Working:       evt.Working,
		ChecksumValid: evt.ChecksumValid,
	}
	if err := p.bus.Publish(ctx, stored); err != nil {
		p.logger.Warn("telemetry event publish failed", zap.Error(err))
	}
	if evt.Location != nil {
		update := eventing.DeviceLocationUpdated{
			DeviceID:  evt.DeviceID,
			Longitude: evt.Location.Longitude,
			Latitude:  evt.Location.Latitude,
			Method:    evt.Location.Source,
			Accuracy:  evt.Location.Accuracy,
		}
		if err := p.bus.Publish(ctx, update); err != nil {
			p.logger.Warn("location event publish failed", zap.Error(err))
		}
	}
}

// persist runs op with a deadline and retries once on failure. Transient
// store hiccups are common enough on site links to warrant the second try.
func (p *Pipeline) persist(parent context.Context, op func(context.Context) error) error {
	run := func() error {
		ctx, cancel := context.WithTimeout(parent, p.persistTimeout)
		defer cancel()
		return op(ctx)
	}
	if err := run(); err != nil {
		if parent.Err() != nil {
			return err
		}
		return run()
	}
	return nil
}

func (p *Pipeline) lockDevice(deviceID string) func() {
	p.mu.Lock()
	lock, ok := p.locks[deviceID]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[deviceID] = lock
	}
	p.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}
