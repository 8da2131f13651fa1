package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// Slip is the printable queue stub handed to a student.
type Slip struct {
	QueueNumber string
	Destination string
	IssuedAt    string
	EstimatedAt string
	Courses     []string
}

// SlipExporter renders queue slips onto a small receipt-sized page.
type SlipExporter struct{}

// NewSlipExporter constructs a slip exporter.
func NewSlipExporter() *SlipExporter {
	return &SlipExporter{}
}

// Render produces the PDF bytes for one slip.
func (e *SlipExporter) Render(slip Slip) ([]byte, error) {
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "mm",
		Size:    gofpdf.SizeType{Wd: 80, Ht: 120},
	})
	pdf.SetMargins(6, 8, 6)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(0, 7, "PRE-REGISTRATION QUEUE", "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "B", 28)
	pdf.CellFormat(0, 16, slip.QueueNumber, "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, "Proceed to: "+strings.ToUpper(slip.Destination), "", 1, "C", false, 0, "")
	if slip.EstimatedAt != "" {
		pdf.CellFormat(0, 6, "Estimated wait: "+slip.EstimatedAt, "", 1, "C", false, 0, "")
	}
	pdf.CellFormat(0, 6, "Issued: "+slip.IssuedAt, "", 1, "C", false, 0, "")

	if len(slip.Courses) > 0 {
		pdf.Ln(3)
		pdf.SetFont("Arial", "B", 9)
		pdf.CellFormat(0, 5, "Courses", "B", 1, "L", false, 0, "")
		pdf.SetFont("Arial", "", 9)
		for _, course := range slip.Courses {
			pdf.CellFormat(0, 5, course, "", 1, "L", false, 0, "")
		}
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render slip: %w", err)
	}
	return buf.Bytes(), nil
}
