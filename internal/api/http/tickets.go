package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"cranecloud/internal/audit"
	"cranecloud/internal/tickets"
)

// TicketsHandler exposes manual ticket transitions.
type TicketsHandler struct {
	service     *tickets.Service
	auditLogger audit.Logger
}

// NewTicketsHandler constructs a handler. The audit logger may be nil.
func NewTicketsHandler(service *tickets.Service, auditLogger audit.Logger) (*TicketsHandler, error) {
	if service == nil {
		return nil, errors.New("tickets handler: nil service")
	}
	return &TicketsHandler{service: service, auditLogger: auditLogger}, nil
}

type transitionRequest struct {
	Status string `json:"status"`
}

// ServeHTTP handles POST /api/v1/tickets/{id}/transition.
func (h *TicketsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/tickets/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "transition" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	ticket, err := h.service.Transition(r.Context(), parts[0], tickets.Status(req.Status))
	if err != nil {
		if errors.Is(err, tickets.ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if h.auditLogger != nil {
		_ = h.auditLogger.Log(r.Context(), audit.Entry{
			TenantID:     ticket.TenantID,
			Action:       "ticket." + req.Status,
			ResourceType: "ticket",
			ResourceID:   ticket.ID,
			DeviceID:     ticket.DeviceID,
			IP:           r.RemoteAddr,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(ticket)
}
