// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

package report

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
)

const timeFormat = "2006-01-02 15:04:05 MST"

// renderPDF assembles the document as an A4 portrait PDF: a cover page
// with the report window, then one block per section with its chart,
// statistics table, and notes.
func renderPDF(doc document) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	// Core fonts are cp1252; user titles and the R² glyph need
	// translating or they render as mojibake.
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(doc.Spec.Title, true)
	pdf.SetAuthor("Historiographus", true)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	writePDFCover(pdf, tr, doc)

	for _, section := range doc.Sections {
		writePDFSection(pdf, tr, section)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func writePDFCover(pdf *fpdf.Fpdf, tr func(string) string, doc document) {
	pdf.AddPage()
	pdf.SetY(60)

	pdf.SetFont("Helvetica", "B", 24)
	pdf.SetTextColor(33, 33, 33)
	pdf.MultiCell(0, 12, tr(doc.Spec.Title), "", "C", false)
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 12)
	pdf.SetTextColor(90, 90, 90)
	pdf.CellFormat(0, 8, fmt.Sprintf("%s  to  %s",
		doc.Spec.Start.Format(timeFormat), doc.Spec.End.Format(timeFormat)),
		"", 1, "C", false, 0, "")
	pdf.CellFormat(0, 8, fmt.Sprintf("Generated %s", doc.GeneratedAt.Format(timeFormat)),
		"", 1, "C", false, 0, "")
	if doc.GeneratedBy != "" {
		pdf.CellFormat(0, 8, tr(fmt.Sprintf("Generated by %s", doc.GeneratedBy)),
			"", 1, "C", false, 0, "")
	}
}

func writePDFSection(pdf *fpdf.Fpdf, tr func(string) string, section renderedSection) {
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.SetTextColor(33, 33, 33)
	pdf.CellFormat(0, 10, tr(section.Title), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	if len(section.ChartPNG) > 0 {
		name := fmt.Sprintf("chart-%s", section.Title)
		opts := fpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(section.ChartPNG))
		// Full content width; height follows the chart's aspect ratio.
		pageW, _ := pdf.GetPageSize()
		left, _, right, _ := pdf.GetMargins()
		pdf.ImageOptions(name, left, pdf.GetY(), pageW-left-right, 0, true, opts, 0, "")
		pdf.Ln(6)
	}

	if len(section.Stats) > 0 {
		writePDFStatsTable(pdf, tr, section)
	}

	if len(section.Notes) > 0 {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "I", 9)
		pdf.SetTextColor(160, 80, 0)
		for _, note := range section.Notes {
			pdf.MultiCell(0, 5, tr("Note: "+note), "", "L", false)
		}
	}
}

func writePDFStatsTable(pdf *fpdf.Fpdf, tr func(string) string, section renderedSection) {
	headers := []string{"Tag", "Count", "Min", "Max", "Mean", "Std Dev", "P5", "P50", "P95", "Good %"}
	widths := []float64{46, 14, 16, 16, 16, 16, 14, 14, 14, 14}

	pdf.SetFont("Helvetica", "B", 8)
	pdf.SetFillColor(235, 238, 242)
	pdf.SetTextColor(33, 33, 33)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 8)
	for _, st := range section.Stats {
		label := st.Label
		if st.Unit != "" {
			label = fmt.Sprintf("%s (%s)", label, st.Unit)
		}
		cells := []string{
			tr(label),
			fmt.Sprintf("%d", st.Summary.Count),
			formatValue(st.Summary.Min),
			formatValue(st.Summary.Max),
			formatValue(st.Summary.Mean),
			formatValue(st.Summary.StdDev),
			formatValue(st.Summary.P5),
			formatValue(st.Summary.P50),
			formatValue(st.Summary.P95),
			fmt.Sprintf("%.1f", st.Summary.GoodRatio*100),
		}
		for i, c := range cells {
			align := "R"
			if i == 0 {
				align = "L"
			}
			pdf.CellFormat(widths[i], 6, c, "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	// Trend lines below the table, one per fitted tag.
	pdf.Ln(2)
	pdf.SetFont("Helvetica", "", 8)
	pdf.SetTextColor(90, 90, 90)
	for _, st := range section.Stats {
		if st.Trend == nil {
			continue
		}
		pdf.CellFormat(0, 5, tr(fmt.Sprintf("%s trend: %+.4f/h (R²=%.3f)",
			st.Label, st.Trend.SlopePerHour, st.Trend.RSquared)), "", 1, "L", false, 0, "")
	}
}

// formatValue renders a statistic with sensible precision for both
// large process values and small fractional ones.
func formatValue(v float64) string {
	abs := v
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= 1000:
		return fmt.Sprintf("%.0f", v)
	case abs >= 1:
		return fmt.Sprintf("%.2f", v)
	default:
		return fmt.Sprintf("%.4f", v)
	}
}
