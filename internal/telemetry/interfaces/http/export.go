package http

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	telemetry "pumpwatch/internal/telemetry/domain"
)

// BuildEventsPDF renders the run-event history as a PDF table.
func BuildEventsPDF(deviceID string, events []telemetry.Event) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Pump Run Events")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Device: %s", deviceID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", time.Now().UTC().Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Events: %d", len(events)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(24, 6, "Date", "1", 0, "C", false, 0, "")
	pdf.CellFormat(36, 6, "Start", "1", 0, "C", false, 0, "")
	pdf.CellFormat(36, 6, "End", "1", 0, "C", false, 0, "")
	pdf.CellFormat(28, 6, "Duration (s)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(32, 6, "Avg Current (A)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(34, 6, "Discharged (L)", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, event := range events {
		pdf.CellFormat(24, 6, event.Date, "1", 0, "C", false, 0, "")
		pdf.CellFormat(36, 6, event.StartTime, "1", 0, "C", false, 0, "")
		pdf.CellFormat(36, 6, event.EndTime, "1", 0, "C", false, 0, "")
		pdf.CellFormat(28, 6, fmt.Sprintf("%d", event.DurationSeconds), "1", 0, "R", false, 0, "")
		pdf.CellFormat(32, 6, fmt.Sprintf("%.2f", event.AverageValue), "1", 0, "R", false, 0, "")
		pdf.CellFormat(34, 6, fmt.Sprintf("%.2f", event.DischargeVolume), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildEventsXLSX renders the run-event history as a workbook.
func BuildEventsXLSX(deviceID string, events []telemetry.Event) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	eventsSheet := "events"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(eventsSheet)

	_ = f.SetCellValue(summarySheet, "A1", "Pump Run Events")
	_ = f.SetCellValue(summarySheet, "A3", "Device")
	_ = f.SetCellValue(summarySheet, "B3", deviceID)
	_ = f.SetCellValue(summarySheet, "A4", "Events")
	_ = f.SetCellValue(summarySheet, "B4", len(events))
	_ = f.SetCellValue(summarySheet, "A5", "Generated")
	_ = f.SetCellValue(summarySheet, "B5", time.Now().UTC().Format(time.RFC3339))

	_ = f.SetCellValue(eventsSheet, "A1", "Date")
	_ = f.SetCellValue(eventsSheet, "B1", "Start")
	_ = f.SetCellValue(eventsSheet, "C1", "End")
	_ = f.SetCellValue(eventsSheet, "D1", "Duration (s)")
	_ = f.SetCellValue(eventsSheet, "E1", "Avg Current (A)")
	_ = f.SetCellValue(eventsSheet, "F1", "Water Discharged (L)")
	for i, event := range events {
		row := i + 2
		_ = f.SetCellValue(eventsSheet, fmt.Sprintf("A%d", row), event.Date)
		_ = f.SetCellValue(eventsSheet, fmt.Sprintf("B%d", row), event.StartTime)
		_ = f.SetCellValue(eventsSheet, fmt.Sprintf("C%d", row), event.EndTime)
		_ = f.SetCellValue(eventsSheet, fmt.Sprintf("D%d", row), event.DurationSeconds)
		_ = f.SetCellValue(eventsSheet, fmt.Sprintf("E%d", row), event.AverageValue)
		_ = f.SetCellValue(eventsSheet, fmt.Sprintf("F%d", row), event.DischargeVolume)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
