package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/unireg-ph/prereg-api/internal/models"
)

// QueueRepository handles persistence of queue tickets.
type QueueRepository struct {
	db *sqlx.DB
}

// NewQueueRepository constructs the repository.
func NewQueueRepository(db *sqlx.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

const ticketColumns = `id, queue_number, student_id, destination, status, priority, estimated_minutes, archived, version, created_at, updated_at`

// Create persists a new ticket with its transacted courses.
func (r *QueueRepository) Create(ctx context.Context, ticket *models.Ticket) error {
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = now
	}
	ticket.UpdatedAt = now
	if ticket.Status == "" {
		ticket.Status = models.TicketWaiting
	}
	ticket.Version = 1

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create ticket: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const query = `INSERT INTO tickets (id, queue_number, student_id, destination, status, priority, estimated_minutes, archived, version, created_at, updated_at)
        VALUES (:id, :queue_number, :student_id, :destination, :status, :priority, :estimated_minutes, :archived, :version, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, ticket); err != nil {
		return fmt.Errorf("create ticket: %w", err)
	}
	for i, courseID := range ticket.CourseIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ticket_courses (ticket_id, course_id, position) VALUES ($1, $2, $3)`,
			ticket.ID, courseID, i); err != nil {
			return fmt.Errorf("attach ticket course: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create ticket: %w", err)
	}
	return nil
}

// FindByID returns a ticket with its course references.
func (r *QueueRepository) FindByID(ctx context.Context, id string) (*models.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id = $1`, ticketColumns)
	var ticket models.Ticket
	if err := r.db.GetContext(ctx, &ticket, query, id); err != nil {
		return nil, err
	}
	if err := r.db.SelectContext(ctx, &ticket.CourseIDs,
		`SELECT course_id FROM ticket_courses WHERE ticket_id = $1 ORDER BY position`, id); err != nil {
		return nil, fmt.Errorf("load ticket courses: %w", err)
	}
	return &ticket, nil
}

// UpdateGuarded applies a mutation only when the stored version matches,
// bumping the version. Returns false when another writer got there first.
// created_at is written from the ticket so an advance can reissue the
// FIFO position at the new destination.
func (r *QueueRepository) UpdateGuarded(ctx context.Context, ticket *models.Ticket) (bool, error) {
	const query = `UPDATE tickets
        SET queue_number = $1, destination = $2, status = $3, estimated_minutes = $4,
            archived = $5, created_at = $6, version = version + 1, updated_at = $7
        WHERE id = $8 AND version = $9`
	result, err := r.db.ExecContext(ctx, query,
		ticket.QueueNumber, ticket.Destination, ticket.Status, ticket.EstimatedMinutes,
		ticket.Archived, ticket.CreatedAt, time.Now().UTC(), ticket.ID, ticket.Version)
	if err != nil {
		return false, fmt.Errorf("update ticket: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update ticket result: %w", err)
	}
	if affected == 0 {
		return false, nil
	}
	ticket.Version++
	return true, nil
}

// ListWaiting returns waiting tickets at a destination, priority tickets
// first, then strict FIFO by creation time.
func (r *QueueRepository) ListWaiting(ctx context.Context, destination string) ([]models.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets
        WHERE destination = $1 AND status = $2 AND archived = FALSE
        ORDER BY priority DESC, created_at ASC`, ticketColumns)
	var tickets []models.Ticket
	if err := r.db.SelectContext(ctx, &tickets, query, destination, models.TicketWaiting); err != nil {
		return nil, fmt.Errorf("list waiting tickets: %w", err)
	}
	return tickets, nil
}

// CountWaiting returns the number of waiting tickets at a destination.
func (r *QueueRepository) CountWaiting(ctx context.Context, destination string) (int, error) {
	const query = `SELECT COUNT(*) FROM tickets WHERE destination = $1 AND status = $2 AND archived = FALSE`
	var count int
	if err := r.db.GetContext(ctx, &count, query, destination, models.TicketWaiting); err != nil {
		return 0, fmt.Errorf("count waiting tickets: %w", err)
	}
	return count, nil
}

// List returns tickets filtered by search text, status, destination and
// archived flag. Search is matched case-insensitively with the pattern
// metacharacters escaped.
func (r *QueueRepository) List(ctx context.Context, filter models.TicketFilter) ([]models.Ticket, int, error) {
	base := "FROM tickets WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		pattern := "%" + escapeLike(filter.Search) + "%"
		conditions = append(conditions, fmt.Sprintf("(queue_number ILIKE $%d OR status ILIKE $%d OR destination ILIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, pattern)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Destination != "" {
		conditions = append(conditions, fmt.Sprintf("destination = $%d", len(args)+1))
		args = append(args, filter.Destination)
	}
	if filter.Archived != nil {
		conditions = append(conditions, fmt.Sprintf("archived = $%d", len(args)+1))
		args = append(args, *filter.Archived)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"created_at":   true,
		"queue_number": true,
		"destination":  true,
		"status":       true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", ticketColumns, base, sortBy, order, size, offset)
	var tickets []models.Ticket
	if err := r.db.SelectContext(ctx, &tickets, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list tickets: %w", err)
	}

	countQuery := "SELECT COUNT(*) " + base
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count tickets: %w", err)
	}
	return tickets, total, nil
}

// CompleteAllNonTerminal marks every waiting ticket done and archived.
// Used by the admin reset at the start of a new enrollment cycle.
func (r *QueueRepository) CompleteAllNonTerminal(ctx context.Context) (int64, error) {
	const query = `UPDATE tickets
        SET status = $1, archived = TRUE, version = version + 1, updated_at = $2
        WHERE status = $3`
	result, err := r.db.ExecContext(ctx, query, models.TicketCompleted, time.Now().UTC(), models.TicketWaiting)
	if err != nil {
		return 0, fmt.Errorf("complete non-terminal tickets: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("complete non-terminal result: %w", err)
	}
	return affected, nil
}

// ArchiveTerminalOlderThan archives terminal tickets whose last update is
// older than the cutoff. Used by the nightly maintenance sweep.
func (r *QueueRepository) ArchiveTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `UPDATE tickets SET archived = TRUE, updated_at = $1
        WHERE status IN ($2, $3) AND archived = FALSE AND updated_at < $4`
	result, err := r.db.ExecContext(ctx, query, time.Now().UTC(), models.TicketCompleted, models.TicketCancelled, cutoff)
	if err != nil {
		return 0, fmt.Errorf("archive terminal tickets: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("archive terminal result: %w", err)
	}
	return affected, nil
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
