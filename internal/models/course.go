package models

import "time"

// Course is a catalog entry owned by a program. Prerequisites reference
// other courses by ID in declaration order.
type Course struct {
	ID          string    `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	Code        string    `db:"code" json:"code"`
	Units       int       `db:"units" json:"units"`
	ProgramID   string    `db:"program_id" json:"program_id"`
	YearLevel   int       `db:"year_level" json:"year_level"`
	Semester    string    `db:"semester" json:"semester"`
	Description string    `db:"description" json:"description"`
	Archived    bool      `db:"archived" json:"archived"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`

	Prerequisites []string `json:"prerequisites"`
}

// CourseDetail joins the owning program for list responses.
type CourseDetail struct {
	Course
	ProgramName *string `db:"program_name" json:"program_name,omitempty"`
	ProgramCode *string `db:"program_code" json:"program_code,omitempty"`
}

// CourseFilter captures the list endpoint's search criteria.
type CourseFilter struct {
	Search       string
	Prerequisite string
	ProgramID    string
	YearLevel    int
	Semester     string
	Archived     *bool
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// Program groups courses and students under a degree curriculum.
type Program struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Code      string    `db:"code" json:"code"`
	Archived  bool      `db:"archived" json:"archived"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ProgramFilter captures program list criteria.
type ProgramFilter struct {
	Search    string
	Archived  *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
