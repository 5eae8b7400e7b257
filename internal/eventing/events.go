package eventing

import "time"

// Realtime event types published on the bus. The SSE boundary renames them
// to the wire convention consumers expect (telemetry:{deviceId},
// device:discovered, ticket:{deviceId}, ...).

// TelemetryStored carries the latest decoded event for a device.
type TelemetryStored struct {
	DeviceID      string    `json:"deviceId"`
	TenantID      string    `json:"tenantId,omitempty"`
	Kind          string    `json:"kind"`
	Timestamp     time.Time `json:"timestamp"`
	Load          *float64  `json:"load,omitempty"`
	Overload      *bool     `json:"overload,omitempty"`
	Working       *bool     `json:"working,omitempty"`
	ChecksumValid *bool     `json:"checksumValid,omitempty"`
}

// DeviceDiscovered announces a new pending device.
type DeviceDiscovered struct {
	DeviceID     string    `json:"deviceId"`
	TenantHint   string    `json:"tenantHint,omitempty"`
	LocationHint string    `json:"locationHint,omitempty"`
	FirstSeen    time.Time `json:"firstSeen"`
}

// DeviceApproved announces a pending device promoted to the registry.
type DeviceApproved struct {
	DeviceID string `json:"deviceId"`
	TenantID string `json:"tenantId,omitempty"`
	Name     string `json:"name,omitempty"`
}

// DeviceRejected announces a discarded pending device.
type DeviceRejected struct {
	DeviceID string `json:"deviceId"`
	Reason   string `json:"reason,omitempty"`
}

// DeviceLocationUpdated carries a fresh geolocation fix.
type DeviceLocationUpdated struct {
	DeviceID  string   `json:"deviceId"`
	Longitude float64  `json:"longitude"`
	Latitude  float64  `json:"latitude"`
	Method    string   `json:"method"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
}

// TicketChanged announces a maintenance ticket lifecycle transition.
type TicketChanged struct {
	DeviceID string `json:"deviceId"`
	TicketID string `json:"ticketId"`
	Category string `json:"category"`
	Severity string `json:"severity"`
	Status   string `json:"status"`
	Action   string `json:"action"`
}
