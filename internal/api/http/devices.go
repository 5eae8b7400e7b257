package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"cranecloud/internal/audit"
	"cranecloud/internal/devices"
)

// DevicesHandler exposes the device onboarding queue: listing pending
// senders and approving or rejecting them.
type DevicesHandler struct {
	registry    *devices.Registry
	auditLogger audit.Logger
}

// NewDevicesHandler constructs a handler. The audit logger may be nil.
func NewDevicesHandler(registry *devices.Registry, auditLogger audit.Logger) (*DevicesHandler, error) {
	if registry == nil {
		return nil, errors.New("devices handler: nil registry")
	}
	return &DevicesHandler{registry: registry, auditLogger: auditLogger}, nil
}

type pendingView struct {
	DeviceID     string    `json:"deviceId"`
	TenantHint   string    `json:"tenantHint,omitempty"`
	LocationHint string    `json:"locationHint,omitempty"`
	FirstSeen    time.Time `json:"firstSeen"`
	LastSeen     time.Time `json:"lastSeen"`
	MessageCount int       `json:"messageCount"`
}

type approveRequest struct {
	TenantID      string   `json:"tenantId"`
	Name          string   `json:"name"`
	DeviceType    string   `json:"deviceType"`
	Location      string   `json:"location"`
	RatedCapacity float64  `json:"ratedCapacity"`
	Supervisors   []string `json:"supervisors"`
	Operators     []string `json:"operators"`
	Managers      []string `json:"managers"`
	ApprovedBy    string   `json:"approvedBy"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// ServeHTTP handles /api/v1/devices/pending and subroutes.
func (h *DevicesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/devices/pending":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleList(w)
		return
	case strings.HasPrefix(r.URL.Path, "/api/v1/devices/pending/"):
		h.handleAction(w, r)
		return
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
}

func (h *DevicesHandler) handleList(w http.ResponseWriter) {
	pending := h.registry.ListPending()
	views := make([]pendingView, 0, len(pending))
	for _, p := range pending {
		views = append(views, pendingView{
			DeviceID:     p.DeviceID,
			TenantHint:   p.TenantHint,
			LocationHint: p.LocationHint,
			FirstSeen:    p.FirstSeen,
			LastSeen:     p.LastSeen,
			MessageCount: p.MessageCount,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(views)
}

func (h *DevicesHandler) handleAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/devices/pending/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	deviceID := parts[0]
	action := parts[1]

	switch action {
	case "approve":
		var req approveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		device, err := h.registry.Approve(r.Context(), deviceID, devices.Approval{
			TenantID:      req.TenantID,
			Name:          req.Name,
			DeviceType:    req.DeviceType,
			Location:      req.Location,
			RatedCapacity: req.RatedCapacity,
			Supervisors:   req.Supervisors,
			Operators:     req.Operators,
			Managers:      req.Managers,
			ApprovedBy:    req.ApprovedBy,
		})
		if err != nil {
			if errors.Is(err, devices.ErrNotPending) {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		h.audit(r, audit.Entry{
			TenantID:     req.TenantID,
			Actor:        req.ApprovedBy,
			Action:       "device.approve",
			ResourceType: "device",
			ResourceID:   deviceID,
			DeviceID:     deviceID,
		})
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(device)
	case "reject":
		var req rejectRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}
		if err := h.registry.Reject(r.Context(), deviceID, req.Reason); err != nil {
			if errors.Is(err, devices.ErrNotPending) {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		h.audit(r, audit.Entry{
			Action:       "device.reject",
			ResourceType: "device",
			ResourceID:   deviceID,
			DeviceID:     deviceID,
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *DevicesHandler) audit(r *http.Request, entry audit.Entry) {
	if h.auditLogger == nil {
		return
	}
	entry.IP = r.RemoteAddr
	_ = h.auditLogger.Log(r.Context(), entry)
}
