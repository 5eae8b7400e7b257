package http

import (
	"errors"
	"net/http"
	"time"

	"cranecloud/internal/report"
	"cranecloud/internal/status"
)

// ReportsHandler serves fleet status exports.
type ReportsHandler struct {
	snapshots status.Repository
}

// NewReportsHandler constructs a handler.
func NewReportsHandler(snapshots status.Repository) (*ReportsHandler, error) {
	if snapshots == nil {
		return nil, errors.New("reports handler: nil repository")
	}
	return &ReportsHandler{snapshots: snapshots}, nil
}

// ServeHTTP handles GET /api/v1/reports/fleet?format=pdf|xlsx.
func (h *ReportsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	snapshots, err := h.snapshots.ListAll(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	now := time.Now().UTC()

	switch r.URL.Query().Get("format") {
	case "", "pdf":
		payload, err := report.BuildFleetStatusPDF(snapshots, now)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="fleet-status.pdf"`)
		_, _ = w.Write(payload)
	case "xlsx":
		payload, err := report.BuildFleetStatusXLSX(snapshots, now)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="fleet-status.xlsx"`)
		_, _ = w.Write(payload)
	default:
		http.Error(w, "format must be pdf or xlsx", http.StatusBadRequest)
	}
}
