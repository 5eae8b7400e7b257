package tickets

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"cranecloud/internal/eventing"
	"cranecloud/internal/observability/metrics"
	"cranecloud/internal/protocol"
	"cranecloud/internal/status"
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Service manages the maintenance ticket lifecycle: wire-reported tickets
// opened and closed by the crane itself, and tickets raised from threshold
// alerts emitted by the status engine.
type Service struct {
	repo        Repository
	bus         eventing.Bus
	logger      *zap.Logger
	clock       Clock
	actor       string
	dedupWindow time.Duration
}

// ServiceOption customizes the ticket service.
type ServiceOption func(*Service)

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithDedupWindow sets how long a re-firing alert updates the open ticket
// silently instead of writing again.
func WithDedupWindow(window time.Duration) ServiceOption {
	return func(s *Service) {
		if window > 0 {
			s.dedupWindow = window
		}
	}
}

// NewService constructs a ticket service. actor names who alert-raised
// tickets are reported by; when empty, alerts are logged and skipped.
func NewService(repo Repository, bus eventing.Bus, logger *zap.Logger, actor string, opts ...ServiceOption) (*Service, error) {
	if repo == nil {
		return nil, errors.New("tickets: nil repository")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		repo:        repo,
		bus:         bus,
		logger:      logger,
		clock:       systemClock{},
		actor:       actor,
		dedupWindow: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// HandleWireTicket processes a decoded ticket command. An open command
// creates a ticket, or reopens the matching resolved one when the device
// retransmits; a close command resolves the open ticket with the same
// correlation tag. Unknown ticket numbers are ignored.
func (s *Service) HandleWireTicket(ctx context.Context, tenantID string, evt *protocol.Event) error {
	if s == nil {
		return errors.New("tickets: nil service")
	}
	if evt == nil || evt.Kind != protocol.KindTicket || evt.TicketNumber == nil {
		return nil
	}

	tag := "wire:" + evt.DeviceID + ":" + strconv.Itoa(*evt.TicketNumber)
	open, err := s.repo.FindOpenByCorrelation(ctx, evt.DeviceID, tag)
	if err != nil {
		return fmt.Errorf("find open ticket: %w", err)
	}

	opening := evt.TicketOpen != nil && *evt.TicketOpen
	now := s.clock.Now().UTC()

	if opening {
		if open != nil {
			open.Occurrences++
			open.UpdatedAt = now
			if err := s.repo.Update(ctx, open); err != nil {
				return fmt.Errorf("update ticket: %w", err)
			}
			s.announce(ctx, open, "updated")
			return nil
		}
		prior, err := s.repo.FindByCorrelation(ctx, evt.DeviceID, tag)
		if err != nil {
			return fmt.Errorf("find ticket: %w", err)
		}
		if prior != nil && prior.Status == StatusResolved {
			prior.Status = StatusOpen
			prior.ResolvedAt = nil
			prior.Occurrences++
			prior.UpdatedAt = now
			if err := s.repo.Update(ctx, prior); err != nil {
				return fmt.Errorf("reopen ticket: %w", err)
			}
			metrics.IncTicketEvent("wire_reopen")
			s.announce(ctx, prior, "reopened")
			return nil
		}
		category := "general"
		if evt.TicketType != nil {
			category = protocol.TicketTypeName(*evt.TicketType)
		}
		severity, priority := gradeCategory(category)
		ticket := &MaintenanceTicket{
			ID:             buildTicketID(tenantID, evt.DeviceID, tag, now),
			TenantID:       tenantID,
			DeviceID:       evt.DeviceID,
			Number:         evt.TicketNumber,
			Category:       category,
			Severity:       severity,
			Priority:       priority,
			Status:         StatusOpen,
			Title:          fmt.Sprintf("crane %s reported %s fault", evt.DeviceID, category),
			Description:    "opened from wire command " + strconv.Itoa(*evt.TicketNumber),
			CorrelationTag: tag,
			Occurrences:    1,
			ReportedBy:     "device:" + evt.DeviceID,
			OpenedAt:       now,
			UpdatedAt:      now,
		}
		if err := s.repo.Create(ctx, ticket); err != nil {
			return fmt.Errorf("create ticket: %w", err)
		}
		metrics.IncTicketEvent("wire_open")
		s.announce(ctx, ticket, "opened")
		return nil
	}

	// Close command: resolve the matching open ticket if any.
	if open == nil {
		s.logger.Debug("ticket close without open ticket",
			zap.String("device", evt.DeviceID),
			zap.Int("number", *evt.TicketNumber))
		return nil
	}
	open.Status = StatusResolved
	open.ResolvedAt = &now
	open.UpdatedAt = now
	if err := s.repo.Update(ctx, open); err != nil {
		return fmt.Errorf("resolve ticket: %w", err)
	}
	metrics.IncTicketEvent("wire_close")
	s.announce(ctx, open, "resolved")
	return nil
}

// HandleAlert turns a threshold alert into a ticket. Alerts for the same
// device and category within the dedup window fold into the open ticket.
func (s *Service) HandleAlert(ctx context.Context, tenantID string, alert status.Alert) error {
	if s == nil {
		return errors.New("tickets: nil service")
	}
	if alert.DeviceID == "" {
		return errors.New("tickets: alert missing device id")
	}
	if s.actor == "" {
		s.logger.Warn("alert dropped: no ticket actor configured",
			zap.String("device", alert.DeviceID),
			zap.String("category", string(alert.Category)))
		return nil
	}

	tag := "alert:" + alert.DeviceID + ":" + string(alert.Category)
	open, err := s.repo.FindOpenByCorrelation(ctx, alert.DeviceID, tag)
	if err != nil {
		return fmt.Errorf("find open ticket: %w", err)
	}
	now := s.clock.Now().UTC()

	if open != nil {
		inWindow := now.Sub(open.UpdatedAt) < s.dedupWindow
		open.Occurrences++
		open.Description = alert.Description
		open.UpdatedAt = now
		if err := s.repo.Update(ctx, open); err != nil {
			return fmt.Errorf("update ticket: %w", err)
		}
		// Inside the window the alert still folds into the ticket but the
		// repeat stays quiet: no metric, no bus event.
		if inWindow {
			return nil
		}
		metrics.IncTicketEvent("alert_repeat")
		s.announce(ctx, open, "updated")
		return nil
	}

	severity, priority := gradeCategory(string(alert.Category))
	ticket := &MaintenanceTicket{
		ID:             buildTicketID(tenantID, alert.DeviceID, tag, now),
		TenantID:       tenantID,
		DeviceID:       alert.DeviceID,
		Category:       string(alert.Category),
		Severity:       severity,
		Priority:       priority,
		Status:         StatusOpen,
		Title:          fmt.Sprintf("crane %s: %s", alert.DeviceID, alert.Description),
		Description:    alert.Description,
		CorrelationTag: tag,
		Occurrences:    1,
		ReportedBy:     s.actor,
		OpenedAt:       now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, ticket); err != nil {
		return fmt.Errorf("create ticket: %w", err)
	}
	metrics.IncTicketEvent("alert_open")
	s.announce(ctx, ticket, "opened")
	return nil
}

// Transition moves a ticket to the given status. Resolved and closed set
// their timestamps; reopening clears them.
func (s *Service) Transition(ctx context.Context, id string, next Status) (*MaintenanceTicket, error) {
	if s == nil {
		return nil, errors.New("tickets: nil service")
	}
	if id == "" {
		return nil, errors.New("tickets: ticket id required")
	}
	switch next {
	case StatusOpen, StatusInProgress, StatusResolved, StatusClosed:
	default:
		return nil, fmt.Errorf("tickets: unknown status %q", next)
	}
	ticket, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ticket == nil {
		return nil, ErrNotFound
	}
	if ticket.Status == next {
		return ticket, nil
	}
	now := s.clock.Now().UTC()
	ticket.Status = next
	ticket.UpdatedAt = now
	switch next {
	case StatusResolved:
		ticket.ResolvedAt = &now
	case StatusClosed:
		ticket.ClosedAt = &now
	case StatusOpen, StatusInProgress:
		ticket.ResolvedAt = nil
		ticket.ClosedAt = nil
	}
	if err := s.repo.Update(ctx, ticket); err != nil {
		return nil, err
	}
	metrics.IncTicketEvent("transition")
	s.announce(ctx, ticket, string(next))
	return ticket, nil
}

// ListByDevice returns recent tickets for a device.
func (s *Service) ListByDevice(ctx context.Context, deviceID string, limit int) ([]MaintenanceTicket, error) {
	if s == nil {
		return nil, errors.New("tickets: nil service")
	}
	if deviceID == "" {
		return nil, errors.New("tickets: device id required")
	}
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ListByDevice(ctx, deviceID, limit)
}

func (s *Service) announce(ctx context.Context, ticket *MaintenanceTicket, action string) {
	if s.bus == nil {
		return
	}
	err := s.bus.Publish(ctx, eventing.TicketChanged{
		DeviceID: ticket.DeviceID,
		TicketID: ticket.ID,
		Category: ticket.Category,
		Severity: string(ticket.Severity),
		Status:   string(ticket.Status),
		Action:   action,
	})
	if err != nil {
		s.logger.Warn("ticket event publish failed", zap.Error(err))
	}
}

// gradeCategory maps a fault category to severity and dispatch priority.
func gradeCategory(category string) (Severity, Priority) {
	switch category {
	case "overload":
		return SeverityCritical, PriorityUrgent
	case "limit_switch", "hoist_brake", "structural", "load_cell":
		return SeverityHigh, PriorityHigh
	case "utilization":
		return SeverityMedium, PriorityNormal
	default:
		return SeverityMedium, PriorityNormal
	}
}

func buildTicketID(tenantID, deviceID, tag string, openedAt time.Time) string {
	sum := sha1.Sum([]byte(tenantID + "|" + deviceID + "|" + tag + "|" + openedAt.Format(time.RFC3339Nano)))
	return "ticket-" + hex.EncodeToString(sum[:8])
}
