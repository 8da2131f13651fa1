package models

// ImportRowError records a skipped spreadsheet row and why it was skipped.
// Row numbers are 1-based and count the header row.
type ImportRowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// ImportReport summarises a bulk import: per-row failures never abort the
// batch, so callers get both the outcome counts and the skip reasons.
type ImportReport struct {
	Processed int              `json:"processed"`
	Skipped   int              `json:"skipped"`
	Errors    []ImportRowError `json:"errors,omitempty"`

	SchedulesCreated int `json:"schedules_created,omitempty"`
	StudentsUpserted int `json:"students_upserted,omitempty"`
	Irregular        int `json:"irregular,omitempty"`
	Regular          int `json:"regular,omitempty"`
}

// AddError records a skipped row.
func (r *ImportReport) AddError(row int, reason string) {
	r.Skipped++
	r.Errors = append(r.Errors, ImportRowError{Row: row, Reason: reason})
}
