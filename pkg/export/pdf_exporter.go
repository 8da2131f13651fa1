package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// MasterlistExporter renders a Table as a landscape report for the
// registrar's printed masterlists.
type MasterlistExporter struct{}

// NewMasterlistExporter constructs a masterlist exporter.
func NewMasterlistExporter() *MasterlistExporter {
	return &MasterlistExporter{}
}

// Render creates a landscape PDF with the title, a ruled table and a
// generated-at footer. The header row repeats on every page.
func (e *MasterlistExporter) Render(table Table, title, generatedAt string) ([]byte, error) {
	if len(table.Columns) == 0 {
		return nil, fmt.Errorf("masterlist requires at least one column")
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(12, 14, 12)
	pdf.AliasNbPages("")
	colWidth := 273.0 / float64(len(table.Columns))

	writeHeader := func() {
		if title != "" {
			pdf.SetFont("Arial", "B", 13)
			pdf.CellFormat(0, 9, strings.ToUpper(title), "", 1, "C", false, 0, "")
			pdf.Ln(3)
		}
		pdf.SetFont("Arial", "B", 9)
		pdf.SetFillColor(235, 235, 235)
		for _, column := range table.Columns {
			pdf.CellFormat(colWidth, 7, column, "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 9)
	}
	pdf.SetHeaderFunc(func() {
		writeHeader()
	})
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Arial", "I", 8)
		footer := fmt.Sprintf("Generated %s - page %d of {nb}", generatedAt, pdf.PageNo())
		pdf.CellFormat(0, 8, footer, "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	for _, row := range table.Rows {
		for i := range table.Columns {
			var cell string
			if i < len(row) {
				cell = row[i]
			}
			pdf.CellFormat(colWidth, 6, cell, "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render masterlist: %w", err)
	}
	return buf.Bytes(), nil
}
