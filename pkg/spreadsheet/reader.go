package spreadsheet

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Row is a single spreadsheet row keyed by column header.
type Row map[string]string

// Get returns the trimmed cell value for a header, tolerating header case.
func (r Row) Get(header string) string {
	if v, ok := r[header]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range r {
		if strings.EqualFold(k, header) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// Sheet holds the parsed rows plus the header order they were read in.
type Sheet struct {
	Headers []string
	Rows    []Row
}

// Reader converts an uploaded workbook into an ordered sequence of rows.
type Reader struct{}

// NewReader builds a spreadsheet reader.
func NewReader() *Reader {
	return &Reader{}
}

// Read parses CSV content. The first record is the header row; short rows
// are padded so every Row carries all headers.
func (rd *Reader) Read(src io.Reader) (*Sheet, error) {
	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read workbook: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("workbook has no header row")
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = strings.TrimSpace(h)
	}

	sheet := &Sheet{Headers: headers, Rows: make([]Row, 0, len(records)-1)}
	for _, record := range records[1:] {
		row := make(Row, len(headers))
		for i, header := range headers {
			if header == "" {
				continue
			}
			if i < len(record) {
				row[header] = strings.TrimSpace(record[i])
			} else {
				row[header] = ""
			}
		}
		sheet.Rows = append(sheet.Rows, row)
	}

	return sheet, nil
}

// HasHeaders reports whether the sheet carries every required header.
func (s *Sheet) HasHeaders(required ...string) []string {
	var missing []string
	for _, want := range required {
		found := false
		for _, have := range s.Headers {
			if strings.EqualFold(have, want) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, want)
		}
	}
	return missing
}
