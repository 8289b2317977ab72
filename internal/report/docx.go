// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

package report

import (
	"bytes"
	"fmt"

	"github.com/fumiama/go-docx"
)

// renderDOCX assembles the document as Office Open XML, mirroring the
// PDF layout: title block, then per-section chart, statistics table,
// and notes.
func renderDOCX(doc document) ([]byte, error) {
	w := docx.New().WithDefaultTheme()

	title := w.AddParagraph().Justification("center")
	title.AddText(doc.Spec.Title).Size("44").Bold()

	window := w.AddParagraph().Justification("center")
	window.AddText(fmt.Sprintf("%s  to  %s",
		doc.Spec.Start.Format(timeFormat), doc.Spec.End.Format(timeFormat))).
		Size("22").Color("5A5A5A")

	generated := w.AddParagraph().Justification("center")
	line := fmt.Sprintf("Generated %s", doc.GeneratedAt.Format(timeFormat))
	if doc.GeneratedBy != "" {
		line += fmt.Sprintf(" by %s", doc.GeneratedBy)
	}
	generated.AddText(line).Size("22").Color("5A5A5A")

	for _, section := range doc.Sections {
		if err := writeDOCXSection(w, section); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to render DOCX: %w", err)
	}
	return buf.Bytes(), nil
}

func writeDOCXSection(w *docx.Docx, section renderedSection) error {
	w.AddParagraph() // spacer

	heading := w.AddParagraph()
	heading.AddText(section.Title).Size("32").Bold()

	if len(section.ChartPNG) > 0 {
		p := w.AddParagraph()
		if _, err := p.AddInlineDrawing(section.ChartPNG); err != nil {
			return fmt.Errorf("failed to embed chart for %q: %w", section.Title, err)
		}
	}

	if len(section.Stats) > 0 {
		writeDOCXStatsTable(w, section)
	}

	for _, note := range section.Notes {
		p := w.AddParagraph()
		p.AddText("Note: " + note).Size("18").Italic().Color("A05000")
	}

	return nil
}

func writeDOCXStatsTable(w *docx.Docx, section renderedSection) {
	headers := []string{"Tag", "Count", "Min", "Max", "Mean", "Std Dev", "P5", "P50", "P95", "Good %"}

	table := w.AddTable(len(section.Stats)+1, len(headers), 0, nil)

	for i, h := range headers {
		table.TableRows[0].TableCells[i].AddParagraph().AddText(h).Size("18").Bold()
	}

	for row, st := range section.Stats {
		label := st.Label
		if st.Unit != "" {
			label = fmt.Sprintf("%s (%s)", label, st.Unit)
		}
		cells := []string{
			label,
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
		for col, c := range cells {
			table.TableRows[row+1].TableCells[col].AddParagraph().AddText(c).Size("18")
		}
	}

	for _, st := range section.Stats {
		if st.Trend == nil {
			continue
		}
		p := w.AddParagraph()
		p.AddText(fmt.Sprintf("%s trend: %+.4f/h (R²=%.3f)",
			st.Label, st.Trend.SlopePerHour, st.Trend.RSquared)).Size("18").Color("5A5A5A")
	}
}
