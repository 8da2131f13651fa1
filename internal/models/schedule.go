package models

import "time"

// Semester names recognised by the code generator.
const (
	SemesterFirst  = "first"
	SemesterSecond = "second"
	SemesterSummer = "summer"
)

// SemesterDigit maps a semester name to its code-generator digit.
func SemesterDigit(name string) (int, bool) {
	switch name {
	case SemesterFirst:
		return 0, true
	case SemesterSecond:
		return 1, true
	case SemesterSummer:
		return 2, true
	default:
		return 0, false
	}
}

// NextSemester advances the term cyclically: first -> second -> summer -> first.
func NextSemester(name string) (string, bool) {
	switch name {
	case SemesterFirst:
		return SemesterSecond, true
	case SemesterSecond:
		return SemesterSummer, true
	case SemesterSummer:
		return SemesterFirst, true
	default:
		return "", false
	}
}

// Semester is the global active-term record.
type Semester struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Active    bool      `db:"active" json:"active"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// MeetingBlock is one scheduled meeting of a section.
type MeetingBlock struct {
	ScheduleID string `db:"schedule_id" json:"-"`
	Position   int    `db:"position" json:"-"`
	Day        string `db:"day" json:"day"`
	Room       string `db:"room" json:"room"`
	StartTime  string `db:"start_time" json:"start_time"`
	EndTime    string `db:"end_time" json:"end_time"`
}

// Schedule is a section offering of a course with its generated code.
type Schedule struct {
	ID        string    `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	CourseID  string    `db:"course_id" json:"course_id"`
	Section   string    `db:"section" json:"section"`
	Archived  bool      `db:"archived" json:"archived"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`

	Blocks []MeetingBlock `json:"schedule"`
}

// ScheduleFilter captures the schedule list criteria.
type ScheduleFilter struct {
	CourseID  string
	Section   string
	Archived  *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
