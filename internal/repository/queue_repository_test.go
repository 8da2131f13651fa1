package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unireg-ph/prereg-api/internal/models"
)

func newQueueRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	return sqlxDB, mock, func() {
		sqlxDB.Close()
		db.Close()
	}
}

func ticketRows(tickets ...models.Ticket) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "queue_number", "student_id", "destination", "status", "priority",
		"estimated_minutes", "archived", "version", "created_at", "updated_at",
	})
	for _, ticket := range tickets {
		rows.AddRow(ticket.ID, ticket.QueueNumber, ticket.StudentID, ticket.Destination,
			ticket.Status, ticket.Priority, ticket.EstimatedMinutes, ticket.Archived,
			ticket.Version, ticket.CreatedAt, ticket.UpdatedAt)
	}
	return rows
}

func TestQueueRepositoryCreateAttachesCourses(t *testing.T) {
	db, mock, cleanup := newQueueRepoMock(t)
	defer cleanup()

	repo := NewQueueRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO tickets").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO ticket_courses").
		WithArgs(sqlmock.AnyArg(), "math-101", 0).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO ticket_courses").
		WithArgs(sqlmock.AnyArg(), "phys-201", 1).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	ticket := &models.Ticket{
		QueueNumber: "7 - 2026-00123",
		Destination: "registrar",
		CourseIDs:   []string{"math-101", "phys-201"},
	}
	require.NoError(t, repo.Create(context.Background(), ticket))
	assert.NotEmpty(t, ticket.ID)
	assert.Equal(t, models.TicketWaiting, ticket.Status)
	assert.Equal(t, 1, ticket.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueRepositoryUpdateGuardedBumpsVersion(t *testing.T) {
	db, mock, cleanup := newQueueRepoMock(t)
	defer cleanup()

	repo := NewQueueRepository(db)
	reissued := time.Now().UTC()
	mock.ExpectExec("UPDATE tickets").
		WithArgs("8", "admission", models.TicketWaiting, 15, false, reissued, sqlmock.AnyArg(), "tkt-1", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ticket := &models.Ticket{
		ID:               "tkt-1",
		QueueNumber:      "8",
		Destination:      "admission",
		Status:           models.TicketWaiting,
		EstimatedMinutes: 15,
		Version:          1,
		CreatedAt:        reissued,
	}
	updated, err := repo.UpdateGuarded(context.Background(), ticket)
	require.NoError(t, err)
	assert.True(t, updated)
	assert.Equal(t, 2, ticket.Version)
}

func TestQueueRepositoryUpdateGuardedStaleVersion(t *testing.T) {
	db, mock, cleanup := newQueueRepoMock(t)
	defer cleanup()

	repo := NewQueueRepository(db)
	mock.ExpectExec("UPDATE tickets").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ticket := &models.Ticket{ID: "tkt-1", Status: models.TicketWaiting, Version: 1}
	updated, err := repo.UpdateGuarded(context.Background(), ticket)
	require.NoError(t, err)
	assert.False(t, updated)
	assert.Equal(t, 1, ticket.Version, "stale update must not advance the local version")
}

func TestQueueRepositoryListWaitingOrdering(t *testing.T) {
	db, mock, cleanup := newQueueRepoMock(t)
	defer cleanup()

	repo := NewQueueRepository(db)
	now := time.Now().UTC()
	mock.ExpectQuery("ORDER BY priority DESC, created_at ASC").
		WithArgs("registrar", models.TicketWaiting).
		WillReturnRows(ticketRows(
			models.Ticket{ID: "tkt-2", QueueNumber: "2", Destination: "registrar", Status: models.TicketWaiting, Priority: true, Version: 1, CreatedAt: now, UpdatedAt: now},
			models.Ticket{ID: "tkt-1", QueueNumber: "1", Destination: "registrar", Status: models.TicketWaiting, Version: 1, CreatedAt: now.Add(-time.Minute), UpdatedAt: now},
		))

	tickets, err := repo.ListWaiting(context.Background(), "registrar")
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assert.True(t, tickets[0].Priority)
}

func TestQueueRepositoryListFiltersAndCounts(t *testing.T) {
	db, mock, cleanup := newQueueRepoMock(t)
	defer cleanup()

	repo := NewQueueRepository(db)
	now := time.Now().UTC()
	archived := false
	mock.ExpectQuery("SELECT id, queue_number").
		WithArgs("Waiting", "cashier", false).
		WillReturnRows(ticketRows(
			models.Ticket{ID: "tkt-1", QueueNumber: "1", Destination: "cashier", Status: models.TicketWaiting, Version: 1, CreatedAt: now, UpdatedAt: now},
		))
	mock.ExpectQuery(`SELECT COUNT\(\*\)`).
		WithArgs("Waiting", "cashier", false).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	tickets, total, err := repo.List(context.Background(), models.TicketFilter{
		Status:      "Waiting",
		Destination: "cashier",
		Archived:    &archived,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, tickets, 1)
	assert.Equal(t, "cashier", tickets[0].Destination)
}

func TestQueueRepositoryCompleteAllNonTerminal(t *testing.T) {
	db, mock, cleanup := newQueueRepoMock(t)
	defer cleanup()

	repo := NewQueueRepository(db)
	mock.ExpectExec("UPDATE tickets").
		WithArgs(models.TicketCompleted, sqlmock.AnyArg(), models.TicketWaiting).
		WillReturnResult(sqlmock.NewResult(0, 3))

	closed, err := repo.CompleteAllNonTerminal(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), closed)
}

func TestQueueRepositoryArchiveTerminalOlderThan(t *testing.T) {
	db, mock, cleanup := newQueueRepoMock(t)
	defer cleanup()

	repo := NewQueueRepository(db)
	cutoff := time.Now().Add(-24 * time.Hour)
	mock.ExpectExec("UPDATE tickets SET archived = TRUE").
		WithArgs(sqlmock.AnyArg(), models.TicketCompleted, models.TicketCancelled, cutoff).
		WillReturnResult(sqlmock.NewResult(0, 2))

	swept, err := repo.ArchiveTerminalOlderThan(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), swept)
}
