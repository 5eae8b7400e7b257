package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"cranecloud/internal/status"
	"cranecloud/internal/telemetry"
	"cranecloud/internal/tickets"
)

// CranesHandler serves per-crane reads: the merged status snapshot, recent
// telemetry records and the ticket history.
type CranesHandler struct {
	snapshots status.Repository
	records   telemetry.Repository
	tickets   *tickets.Service
}

// NewCranesHandler constructs a handler. The ticket service may be nil.
func NewCranesHandler(snapshots status.Repository, records telemetry.Repository, ticketSvc *tickets.Service) (*CranesHandler, error) {
	if snapshots == nil || records == nil {
		return nil, errors.New("cranes handler: nil repository")
	}
	return &CranesHandler{snapshots: snapshots, records: records, tickets: ticketSvc}, nil
}

// ServeHTTP handles /api/v1/cranes/{id}/(status|telemetry|tickets).
func (h *CranesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/cranes/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	deviceID := parts[0]

	switch parts[1] {
	case "status":
		h.handleStatus(w, r, deviceID)
	case "telemetry":
		h.handleTelemetry(w, r, deviceID)
	case "tickets":
		h.handleTickets(w, r, deviceID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *CranesHandler) handleStatus(w http.ResponseWriter, r *http.Request, deviceID string) {
	snap, err := h.snapshots.Get(r.Context(), deviceID)
	if err != nil {
		if errors.Is(err, status.ErrSnapshotNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snap)
}

func (h *CranesHandler) handleTelemetry(w http.ResponseWriter, r *http.Request, deviceID string) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 1000 {
			http.Error(w, "limit must be 1..1000", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	records, err := h.records.LatestByDevice(r.Context(), deviceID, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(records)
}

func (h *CranesHandler) handleTickets(w http.ResponseWriter, r *http.Request, deviceID string) {
	if h.tickets == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	list, err := h.tickets.ListByDevice(r.Context(), deviceID, 50)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}
