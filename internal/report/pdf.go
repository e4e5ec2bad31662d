// internal/report/pdf.go
package report

import (
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"
)

const (
	pdfMargin    = 15.0
	pdfRowHeight = 7.0
)

// WritePDF renders tables into a single A4 document, one table after another.
func WritePDF(out io.Writer, tables ...Table) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfMargin)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pageWidth, _ := pdf.GetPageSize()
	usable := pageWidth - 2*pdfMargin

	for i, t := range tables {
		if i > 0 {
			pdf.Ln(pdfRowHeight)
		}
		pdf.SetFont("Helvetica", "B", 13)
		pdf.CellFormat(usable, pdfRowHeight+2, tr(t.Title), "", 1, "L", false, 0, "")

		widths := columnWidths(t, usable)
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetFillColor(225, 230, 240)
		for j, h := range t.Headers {
			pdf.CellFormat(widths[j], pdfRowHeight, tr(h), "1", 0, align(j), true, 0, "")
		}
		pdf.Ln(-1)

		pdf.SetFont("Helvetica", "", 10)
		for _, row := range t.Rows {
			for j := range t.Headers {
				cell := ""
				if j < len(row) {
					cell = row[j]
				}
				pdf.CellFormat(widths[j], pdfRowHeight, tr(cell), "1", 0, align(j), false, 0, "")
			}
			pdf.Ln(-1)
		}

		if len(t.Notes) > 0 {
			pdf.SetFont("Helvetica", "I", 9)
			for _, n := range t.Notes {
				pdf.CellFormat(usable, pdfRowHeight-1, tr(n), "", 1, "L", false, 0, "")
			}
		}
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	if err := pdf.Output(out); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// columnWidths gives the first column twice the share of the others.
func columnWidths(t Table, usable float64) []float64 {
	n := len(t.Headers)
	widths := make([]float64, n)
	if n == 0 {
		return widths
	}
	unit := usable / float64(n+1)
	for i := range widths {
		widths[i] = unit
	}
	widths[0] = 2 * unit
	return widths
}

func align(col int) string {
	if col == 0 {
		return "L"
	}
	return "R"
}
