package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	payout "qxlog/internal/payouts/domain"
)

// BuildVoucherPDF renders a payout voucher with its rule summary and item list.
func BuildVoucherPDF(voucher payout.Voucher, items []payout.Item) ([]byte, error) {
	return renderVoucherPDF(voucher, items, true)
}

func renderVoucherPDF(voucher payout.Voucher, items []payout.Item, compress bool) ([]byte, error) {
	batch := voucher.Batch
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(compress)
	// Core fonts are cp1252; names and reasons are UTF-8.
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Payout Voucher")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Batch: %s", batch.ID)))
	pdf.Ln(5)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Instrumentist: %s", batch.InstrumentistID)))
	pdf.Ln(5)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Paid by: %s", batch.PaidByID)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Paid at: %s", batch.PaidAt.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Status: %s", batch.Status))
	pdf.Ln(5)
	if batch.Status == payout.StatusVoid {
		pdf.Cell(0, 6, tr(fmt.Sprintf("Void reason: %s", batch.VoidReason)))
		pdf.Ln(5)
	}

	pdf.Ln(4)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(60, 6, "Rule", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Unit rate", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Count", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Subtotal", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, line := range voucher.Lines {
		pdf.CellFormat(60, 6, string(line.Rule), "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, line.UnitRate.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprintf("%d", line.Count), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, line.Subtotal.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(125, 6, fmt.Sprintf("Total (%d procedures)", voucher.ItemCount), "1", 0, "R", false, 0, "")
	pdf.CellFormat(40, 6, voucher.Total.StringFixed(2), "1", 0, "R", false, 0, "")
	pdf.Ln(10)

	pdf.CellFormat(25, 6, "Date", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Time", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "Patient", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Rule", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Amount", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, item := range items {
		snap := item.Snapshot
		pdf.CellFormat(25, 6, snap.ProcedureDate, "1", 0, "C", false, 0, "")
		pdf.CellFormat(25, 6, snap.StartTime+"-"+snap.EndTime, "1", 0, "C", false, 0, "")
		pdf.CellFormat(50, 6, tr(snap.PatientName), "1", 0, "L", false, 0, "")
		pdf.CellFormat(35, 6, string(snap.PricingSnapshot.Rule), "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, item.Amount.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildVoucherXLSX renders a payout voucher workbook.
func BuildVoucherXLSX(voucher payout.Voucher, items []payout.Item) ([]byte, error) {
	batch := voucher.Batch
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	itemsSheet := "items"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(itemsSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Payout Voucher")
	_ = f.SetCellValue(summarySheet, "A3", "Batch")
	_ = f.SetCellValue(summarySheet, "B3", batch.ID)
	_ = f.SetCellValue(summarySheet, "A4", "Instrumentist")
	_ = f.SetCellValue(summarySheet, "B4", batch.InstrumentistID)
	_ = f.SetCellValue(summarySheet, "A5", "Paid by")
	_ = f.SetCellValue(summarySheet, "B5", batch.PaidByID)
	_ = f.SetCellValue(summarySheet, "A6", "Paid at")
	_ = f.SetCellValue(summarySheet, "B6", batch.PaidAt.Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A7", "Status")
	_ = f.SetCellValue(summarySheet, "B7", string(batch.Status))

	_ = f.SetCellValue(summarySheet, "A9", "Rule")
	_ = f.SetCellValue(summarySheet, "B9", "Unit rate")
	_ = f.SetCellValue(summarySheet, "C9", "Count")
	_ = f.SetCellValue(summarySheet, "D9", "Subtotal")
	row := 10
	for _, line := range voucher.Lines {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), string(line.Rule))
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), line.UnitRate.StringFixed(2))
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("C%d", row), line.Count)
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("D%d", row), line.Subtotal.StringFixed(2))
		row++
	}
	_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), "Total")
	_ = f.SetCellValue(summarySheet, fmt.Sprintf("C%d", row), voucher.ItemCount)
	_ = f.SetCellValue(summarySheet, fmt.Sprintf("D%d", row), voucher.Total.StringFixed(2))

	headers := []string{"Procedure", "Date", "Start", "End", "Minutes", "Patient", "Type", "Video", "Rule", "Unit rate", "Amount"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(itemsSheet, cell, header)
	}
	for i, item := range items {
		snap := item.Snapshot
		values := []any{
			item.ProcedureID,
			snap.ProcedureDate,
			snap.StartTime,
			snap.EndTime,
			snap.DurationMinutes,
			snap.PatientName,
			snap.ProcedureType,
			snap.IsVideosurgery,
			string(snap.PricingSnapshot.Rule),
			snap.PricingSnapshot.Rate.StringFixed(2),
			item.Amount.StringFixed(2),
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			_ = f.SetCellValue(itemsSheet, cell, value)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
