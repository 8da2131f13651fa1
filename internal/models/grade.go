package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// GradeKind tags the variant carried by a Grade value.
type GradeKind string

const (
	GradeNumeric    GradeKind = "NUMERIC"
	GradePassed     GradeKind = "PASSED"
	GradeFailed     GradeKind = "FAILED"
	GradeDropped    GradeKind = "DROPPED"
	GradeIncomplete GradeKind = "INC"
	GradeUngraded   GradeKind = "UNGRADED"
)

// PassingThreshold is the highest numeric mark that still passes on the
// 1.0-5.0 scale.
const PassingThreshold = 3.0

// Grade is the polymorphic grade field: either a numeric mark or a status
// token. All parsing and classification lives here so every component
// evaluates grade semantics identically.
type Grade struct {
	Kind  GradeKind `json:"kind"`
	Value float64   `json:"value,omitempty"`
}

// ParseGrade interprets a raw spreadsheet or record value. Any value that
// parses as a float is numeric; a numeric zero is the distinct Ungraded
// status, never folded into passed or failed. Everything else is matched
// case-insensitively against the known status tokens.
func ParseGrade(raw string) (Grade, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Grade{}, fmt.Errorf("empty grade value")
	}

	if value, err := strconv.ParseFloat(trimmed, 64); err == nil {
		if value == 0 {
			return Grade{Kind: GradeUngraded}, nil
		}
		return Grade{Kind: GradeNumeric, Value: value}, nil
	}

	switch strings.ToUpper(trimmed) {
	case "INC", "INCOMPLETE":
		return Grade{Kind: GradeIncomplete}, nil
	case "PASSED":
		return Grade{Kind: GradePassed}, nil
	case "FAILED":
		return Grade{Kind: GradeFailed}, nil
	case "DROPPED":
		return Grade{Kind: GradeDropped}, nil
	}

	return Grade{}, fmt.Errorf("unrecognized grade value %q", trimmed)
}

// Passed reports whether the grade satisfies a prerequisite outright.
func (g Grade) Passed() bool {
	switch g.Kind {
	case GradePassed:
		return true
	case GradeNumeric:
		return g.Value > 0 && g.Value <= PassingThreshold
	default:
		return false
	}
}

// Failed reports a failing numeric mark or an explicit failed/dropped token.
func (g Grade) Failed() bool {
	switch g.Kind {
	case GradeFailed, GradeDropped:
		return true
	case GradeNumeric:
		return g.Value > PassingThreshold
	default:
		return false
	}
}

// Incomplete reports the INC blocking-but-not-failing state.
func (g Grade) Incomplete() bool {
	return g.Kind == GradeIncomplete
}

// AcademicRecord is one completed or attempted course in a student's
// transcript. RawGrade preserves the stored value; Grade() interprets it.
type AcademicRecord struct {
	StudentID  string `db:"student_id" json:"student_id"`
	CourseID   string `db:"course_id" json:"course_id"`
	RawGrade   string `db:"raw_grade" json:"raw_grade"`
	Term       string `db:"term" json:"term,omitempty"`
	SchoolYear string `db:"school_year" json:"school_year,omitempty"`
}

// Grade parses the stored raw value.
func (r AcademicRecord) Grade() (Grade, error) {
	return ParseGrade(r.RawGrade)
}

// IncAgreement is a persisted acknowledgement that the student agrees to
// complete an INC prerequisite concurrently with the dependent course.
type IncAgreement struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	AgreedAt  time.Time `db:"agreed_at" json:"agreed_at"`
}
