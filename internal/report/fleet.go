package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"cranecloud/internal/status"
)

// BuildFleetStatusPDF renders a fleet status report over the given
// snapshots.
func BuildFleetStatusPDF(snapshots []status.Snapshot, generatedAt time.Time) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Fleet Status Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", generatedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Cranes: %d", len(snapshots)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(30, 6, "Crane", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Tenant", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Load (t)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Utilization %", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Overload min", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Risk", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Test done", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Open ticket", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, snap := range snapshots {
		pdf.CellFormat(30, 6, snap.DeviceID, "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, snap.TenantID, "1", 0, "C", false, 0, "")
		pdf.CellFormat(25, 6, formatLoad(snap.Load), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%.2f", snap.UtilizationPct), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%.1f", snap.OverloadSeconds/60), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, string(snap.Risk), "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, yesNo(snap.TestModeCompleted), "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, openTicket(&snap), "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildFleetStatusXLSX renders the same report as a spreadsheet.
func BuildFleetStatusXLSX(snapshots []status.Snapshot, generatedAt time.Time) ([]byte, error) {
	f := excelize.NewFile()
	sheet := "fleet"
	f.SetSheetName("Sheet1", sheet)

	_ = f.SetCellValue(sheet, "A1", "Fleet Status Report")
	_ = f.SetCellValue(sheet, "A2", "Generated")
	_ = f.SetCellValue(sheet, "B2", generatedAt.Format(time.RFC3339))

	headers := []string{"Crane", "Tenant", "Load (t)", "Utilization %", "Overload min", "Overload events", "Risk", "Test done", "Open ticket", "Last event"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 4)
		_ = f.SetCellValue(sheet, cell, header)
	}
	for row, snap := range snapshots {
		values := []any{
			snap.DeviceID,
			snap.TenantID,
			formatLoad(snap.Load),
			snap.UtilizationPct,
			snap.OverloadSeconds / 60,
			snap.OverloadEvents,
			string(snap.Risk),
			yesNo(snap.TestModeCompleted),
			openTicket(&snap),
			snap.LastEventAt.Format(time.RFC3339),
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+5)
			_ = f.SetCellValue(sheet, cell, value)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatLoad(load *float64) string {
	if load == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *load)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func openTicket(snap *status.Snapshot) string {
	if snap.TicketOpen == nil || !*snap.TicketOpen || snap.TicketNumber == nil {
		return "-"
	}
	return fmt.Sprintf("#%d", *snap.TicketNumber)
}
