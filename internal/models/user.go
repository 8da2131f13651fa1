package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin      UserRole = "ADMIN"
	RoleRegistrar  UserRole = "REGISTRAR"
	RoleCashier    UserRole = "CASHIER"
	RoleInstructor UserRole = "INSTRUCTOR"
	RoleStudent    UserRole = "STUDENT"
)

// Staff reports whether the role may operate a service window.
func (r UserRole) Staff() bool {
	switch r {
	case RoleAdmin, RoleRegistrar, RoleCashier, RoleInstructor:
		return true
	default:
		return false
	}
}

// User is an account: a student with enrollment state, or a staff member
// with per-window throughput counters.
type User struct {
	ID           string   `db:"id" json:"id"`
	Username     string   `db:"username" json:"username"`
	Email        string   `db:"email" json:"email"`
	PasswordHash string   `db:"password_hash" json:"-"`
	FirstName    string   `db:"first_name" json:"first_name"`
	MiddleName   string   `db:"middle_name" json:"middle_name,omitempty"`
	LastName     string   `db:"last_name" json:"last_name"`
	Role         UserRole `db:"role" json:"role"`

	StudentNumber string  `db:"student_number" json:"student_number,omitempty"`
	ProgramID     *string `db:"program_id" json:"program_id,omitempty"`
	Year          int     `db:"year" json:"year,omitempty"`
	Section       string  `db:"section" json:"section,omitempty"`

	Regular   bool `db:"regular" json:"regular"`
	Approved  bool `db:"approved" json:"approved"`
	Enrolled  bool `db:"enrolled" json:"enrolled"`
	EmailSent bool `db:"email_sent" json:"email_sent"`
	Archived  bool `db:"archived" json:"archived"`

	SuccessfulQueue  int `db:"successful_queue" json:"successful_queue"`
	MissedQueue      int `db:"missed_queue" json:"missed_queue"`
	TransferredQueue int `db:"transferred_queue" json:"transferred_queue"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// StudentDetail carries a student account with its resolved enrollment
// plan and transcript. CourseToTake and CourseToTakeRemoved are disjoint.
type StudentDetail struct {
	User
	CourseToTake        []string         `json:"course_to_take"`
	CourseToTakeRemoved []string         `json:"course_to_take_removed"`
	Records             []AcademicRecord `json:"records"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Search    string
	Role      *UserRole
	ProgramID string
	Archived  *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Staff throughput counter names, matching the backing columns.
const (
	StaffCounterSuccessful  = "successful_queue"
	StaffCounterMissed      = "missed_queue"
	StaffCounterTransferred = "transferred_queue"
)

// StaffCounters is the per-operator throughput snapshot.
type StaffCounters struct {
	UserID           string `db:"id" json:"user_id"`
	SuccessfulQueue  int    `db:"successful_queue" json:"successful_queue"`
	MissedQueue      int    `db:"missed_queue" json:"missed_queue"`
	TransferredQueue int    `db:"transferred_queue" json:"transferred_queue"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
