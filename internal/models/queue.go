package models

import "time"

// TicketStatus is the queue ticket lifecycle state.
type TicketStatus string

const (
	TicketWaiting   TicketStatus = "Waiting"
	TicketCompleted TicketStatus = "Completed"
	TicketCancelled TicketStatus = "Cancelled"
)

// Terminal reports whether the status ends the ticket lifecycle. Terminal
// tickets are archived and immutable.
func (s TicketStatus) Terminal() bool {
	return s == TicketCompleted || s == TicketCancelled
}

// Ticket is a queue entry tracking a student or walk-in transaction at a
// service destination. Version guards concurrent staff actions on the same
// ticket; CreatedAt is the stable FIFO tie-break within a destination.
type Ticket struct {
	ID               string       `db:"id" json:"id"`
	QueueNumber      string       `db:"queue_number" json:"queue_number"`
	StudentID        *string      `db:"student_id" json:"student_id,omitempty"`
	Destination      string       `db:"destination" json:"destination"`
	Status           TicketStatus `db:"status" json:"status"`
	Priority         bool         `db:"priority" json:"priority"`
	EstimatedMinutes int          `db:"estimated_minutes" json:"estimated_minutes"`
	Archived         bool         `db:"archived" json:"archived"`
	Version          int          `db:"version" json:"-"`
	CreatedAt        time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time    `db:"updated_at" json:"updated_at"`

	CourseIDs []string `json:"course_ids"`
}

// TicketFilter captures the queue list criteria.
type TicketFilter struct {
	Search      string
	Status      string
	Destination string
	Archived    *bool
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}

// Counter is a named monotonic sequence shared by the code generator and
// the queue number allocator.
type Counter struct {
	Name  string `db:"name" json:"name"`
	Value int64  `db:"value" json:"value"`
}

// CounterQueueNumber is the global ticket sequence; per-destination
// sequences append the destination name.
const CounterQueueNumber = "queueNumber"

// CounterScheduleCode feeds generated schedule codes.
const CounterScheduleCode = "scheduleCode"

// DestinationCounter returns the per-destination sequence name.
func DestinationCounter(destination string) string {
	return CounterQueueNumber + "-" + destination
}
