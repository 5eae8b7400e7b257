package tickets

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a ticket does not exist.
var ErrNotFound = errors.New("tickets: not found")

// Status is the ticket lifecycle state.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
)

// Severity grades the underlying fault.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Priority drives dispatch ordering.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
)

// MaintenanceTicket is a service ticket raised for a crane, either by the
// device itself over the wire protocol or by a threshold alert.
type MaintenanceTicket struct {
	ID          string
	TenantID    string
	DeviceID    string
	Number      *int
	Category    string
	Severity    Severity
	Priority    Priority
	Status      Status
	Title       string
	Description string

	// CorrelationTag ties repeated reports of the same condition to one
	// ticket, so a retransmitted wire command or a re-firing alert lands
	// on the existing record instead of opening a duplicate.
	CorrelationTag string

	Occurrences int
	ReportedBy  string
	OpenedAt    time.Time
	ResolvedAt  *time.Time
	ClosedAt    *time.Time
	UpdatedAt   time.Time
}

// IsOpen reports whether the ticket still needs attention.
func (t *MaintenanceTicket) IsOpen() bool {
	return t.Status == StatusOpen || t.Status == StatusInProgress
}

// Repository persists maintenance tickets.
type Repository interface {
	Create(ctx context.Context, ticket *MaintenanceTicket) error
	Update(ctx context.Context, ticket *MaintenanceTicket) error
	GetByID(ctx context.Context, id string) (*MaintenanceTicket, error)
	FindOpenByCorrelation(ctx context.Context, deviceID, tag string) (*MaintenanceTicket, error)
	FindByCorrelation(ctx context.Context, deviceID, tag string) (*MaintenanceTicket, error)
	ListByDevice(ctx context.Context, deviceID string, limit int) ([]MaintenanceTicket, error)
}
