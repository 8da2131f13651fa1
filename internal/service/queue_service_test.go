package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unireg-ph/prereg-api/internal/models"
	appErrors "github.com/unireg-ph/prereg-api/pkg/errors"
)

type mockTicketRepo struct {
	mu      sync.Mutex
	tickets map[string]*models.Ticket
	nextID  int
}

func (m *mockTicketRepo) Create(ctx context.Context, ticket *models.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tickets == nil {
		m.tickets = make(map[string]*models.Ticket)
	}
	m.nextID++
	ticket.ID = fmt.Sprintf("tkt-%d", m.nextID)
	ticket.Version = 1
	ticket.CreatedAt = time.Now().UTC()
	cp := *ticket
	m.tickets[ticket.ID] = &cp
	return nil
}

func (m *mockTicketRepo) FindByID(ctx context.Context, id string) (*models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ticket, ok := m.tickets[id]; ok {
		cp := *ticket
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockTicketRepo) UpdateGuarded(ctx context.Context, ticket *models.Ticket) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.tickets[ticket.ID]
	if !ok || stored.Version != ticket.Version {
		return false, nil
	}
	ticket.Version++
	cp := *ticket
	m.tickets[ticket.ID] = &cp
	return true, nil
}

func (m *mockTicketRepo) ListWaiting(ctx context.Context, destination string) ([]models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var waiting []models.Ticket
	for _, ticket := range m.tickets {
		if ticket.Destination == destination && ticket.Status == models.TicketWaiting && !ticket.Archived {
			waiting = append(waiting, *ticket)
		}
	}
	return waiting, nil
}

func (m *mockTicketRepo) CountWaiting(ctx context.Context, destination string) (int, error) {
	waiting, _ := m.ListWaiting(ctx, destination)
	return len(waiting), nil
}

func (m *mockTicketRepo) List(ctx context.Context, filter models.TicketFilter) ([]models.Ticket, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []models.Ticket
	for _, ticket := range m.tickets {
		all = append(all, *ticket)
	}
	return all, len(all), nil
}

func (m *mockTicketRepo) CompleteAllNonTerminal(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var closed int64
	for _, ticket := range m.tickets {
		if !ticket.Status.Terminal() {
			ticket.Status = models.TicketCompleted
			ticket.Archived = true
			closed++
		}
	}
	return closed, nil
}

func (m *mockTicketRepo) ArchiveTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var archived int64
	for _, ticket := range m.tickets {
		if ticket.Status.Terminal() && !ticket.Archived && ticket.UpdatedAt.Before(cutoff) {
			ticket.Archived = true
			archived++
		}
	}
	return archived, nil
}

type mockCounterStore struct {
	mu     sync.Mutex
	values map[string]int64
}

func (m *mockCounterStore) Increment(ctx context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = make(map[string]int64)
	}
	m.values[name]++
	return m.values[name], nil
}

func (m *mockCounterStore) ResetAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = make(map[string]int64)
	return nil
}

type mockQueueStudents struct {
	mu       sync.Mutex
	details  map[string]*models.StudentDetail
	counters map[string]map[string]int
	resets   int
}

func (m *mockQueueStudents) LoadStudentDetail(ctx context.Context, id string) (*models.StudentDetail, error) {
	if detail, ok := m.details[id]; ok {
		cp := *detail
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockQueueStudents) IncrementStaffCounter(ctx context.Context, staffID, counter string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = make(map[string]map[string]int)
	}
	if m.counters[staffID] == nil {
		m.counters[staffID] = make(map[string]int)
	}
	m.counters[staffID][counter]++
	return nil
}

func (m *mockQueueStudents) ResetStaffCounters(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
	m.counters = nil
	return nil
}

func (m *mockQueueStudents) counterOf(staffID, counter string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[staffID][counter]
}

func newQueueFixture() (*QueueService, *mockTicketRepo, *mockCounterStore, *mockQueueStudents) {
	tickets := &mockTicketRepo{}
	counters := &mockCounterStore{}
	students := &mockQueueStudents{
		details: map[string]*models.StudentDetail{
			"stu-1": {
				User:         models.User{ID: "stu-1", StudentNumber: "2026-00123"},
				CourseToTake: []string{"math-201"},
			},
			"stu-empty": {
				User: models.User{ID: "stu-empty"},
			},
		},
	}
	svc := NewQueueService(tickets, counters, students, nil, nil,
		[]string{"registrar", "admission", "cashier"}, 5, nil, zap.NewNop())
	return svc, tickets, counters, students
}

func TestCreateForStudentIssuesAtFirstDestination(t *testing.T) {
	svc, _, counters, _ := newQueueFixture()

	ticket, err := svc.CreateForStudent(context.Background(), CreateTicketRequest{StudentID: "stu-1"})
	require.NoError(t, err)
	assert.Equal(t, "registrar", ticket.Destination)
	assert.Equal(t, models.TicketWaiting, ticket.Status)
	assert.Equal(t, "1 - 2026-00123", ticket.QueueNumber)
	assert.Equal(t, []string{"math-201"}, ticket.CourseIDs)
	assert.Equal(t, int64(1), counters.values[models.CounterQueueNumber])
}

func TestCreateForStudentWithoutPlanFails(t *testing.T) {
	svc, _, _, _ := newQueueFixture()

	_, err := svc.CreateForStudent(context.Background(), CreateTicketRequest{StudentID: "stu-empty"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateTransactionUsesPerDestinationSequence(t *testing.T) {
	svc, _, counters, _ := newQueueFixture()

	ticket, err := svc.CreateTransaction(context.Background(), CreateTransactionRequest{Destination: "cashier"})
	require.NoError(t, err)
	assert.Equal(t, "cashier", ticket.Destination)
	assert.Equal(t, "1", ticket.QueueNumber)
	assert.Equal(t, int64(1), counters.values[models.DestinationCounter("cashier")])

	_, err = svc.CreateTransaction(context.Background(), CreateTransactionRequest{Destination: "lobby"})
	require.Error(t, err)
}

func TestAdvanceMovesThroughSequenceAndCompletes(t *testing.T) {
	svc, repo, _, students := newQueueFixture()

	ticket, err := svc.CreateForStudent(context.Background(), CreateTicketRequest{StudentID: "stu-1"})
	require.NoError(t, err)

	ticket, err = svc.Advance(context.Background(), ticket.ID, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, "admission", ticket.Destination)
	assert.Equal(t, models.TicketWaiting, ticket.Status)

	ticket, err = svc.Advance(context.Background(), ticket.ID, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, "cashier", ticket.Destination)

	ticket, err = svc.Advance(context.Background(), ticket.ID, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, models.TicketCompleted, ticket.Status)
	assert.True(t, ticket.Archived)

	stored, err := repo.FindByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketCompleted, stored.Status)
	assert.Equal(t, 3, students.counterOf("staff-1", models.StaffCounterTransferred))
}

func TestAdvanceQueuesBehindTicketsAlreadyWaiting(t *testing.T) {
	svc, repo, _, _ := newQueueFixture()

	ticket, err := svc.CreateForStudent(context.Background(), CreateTicketRequest{StudentID: "stu-1"})
	require.NoError(t, err)
	// Back-date the ticket so it predates the walk-in waiting at admission.
	repo.tickets[ticket.ID].CreatedAt = time.Now().UTC().Add(-time.Hour)

	walkIn, err := svc.CreateTransaction(context.Background(), CreateTransactionRequest{Destination: "admission"})
	require.NoError(t, err)

	advanced, err := svc.Advance(context.Background(), ticket.ID, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, "admission", advanced.Destination)
	assert.False(t, advanced.CreatedAt.Before(walkIn.CreatedAt),
		"advanced ticket must re-enter the destination behind existing waiters")

	stored, err := repo.FindByID(context.Background(), advanced.ID)
	require.NoError(t, err)
	assert.Equal(t, advanced.CreatedAt, stored.CreatedAt)
}

func TestAdvanceTerminalTicketConflicts(t *testing.T) {
	svc, _, _, _ := newQueueFixture()

	ticket, err := svc.CreateForStudent(context.Background(), CreateTicketRequest{StudentID: "stu-1"})
	require.NoError(t, err)

	_, err = svc.Done(context.Background(), ticket.ID, "staff-1")
	require.NoError(t, err)

	_, err = svc.Advance(context.Background(), ticket.ID, "staff-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStateConflict.Code, appErrors.FromError(err).Code)
}

func TestAdvanceConcurrentModificationConflicts(t *testing.T) {
	svc, repo, _, _ := newQueueFixture()

	ticket, err := svc.CreateForStudent(context.Background(), CreateTicketRequest{StudentID: "stu-1"})
	require.NoError(t, err)

	// Simulate another operator touching the ticket after our read.
	stored := repo.tickets[ticket.ID]
	stored.Version++

	_, err = svc.Done(context.Background(), ticket.ID, "staff-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStateConflict.Code, appErrors.FromError(err).Code)
}

func TestDoneAndCancelCreditStaffCounters(t *testing.T) {
	svc, _, _, students := newQueueFixture()

	first, err := svc.CreateForStudent(context.Background(), CreateTicketRequest{StudentID: "stu-1"})
	require.NoError(t, err)
	second, err := svc.CreateForStudent(context.Background(), CreateTicketRequest{StudentID: "stu-1"})
	require.NoError(t, err)

	_, err = svc.Done(context.Background(), first.ID, "staff-1")
	require.NoError(t, err)
	_, err = svc.Cancel(context.Background(), second.ID, "staff-1")
	require.NoError(t, err)

	assert.Equal(t, 1, students.counterOf("staff-1", models.StaffCounterSuccessful))
	assert.Equal(t, 1, students.counterOf("staff-1", models.StaffCounterMissed))
}

func TestCurrentReturnsNoQueueSentinel(t *testing.T) {
	svc, _, _, _ := newQueueFixture()

	current, err := svc.Current(context.Background(), "cashier")
	require.NoError(t, err)
	assert.True(t, current.NoQueue)
	assert.Empty(t, current.Tickets)

	_, err = svc.CreateForStudent(context.Background(), CreateTicketRequest{StudentID: "stu-1"})
	require.NoError(t, err)

	current, err = svc.Current(context.Background(), "registrar")
	require.NoError(t, err)
	assert.False(t, current.NoQueue)
	assert.Len(t, current.Tickets, 1)
}

func TestResetClosesTicketsAndZeroesCounters(t *testing.T) {
	svc, _, counters, students := newQueueFixture()

	_, err := svc.CreateForStudent(context.Background(), CreateTicketRequest{StudentID: "stu-1"})
	require.NoError(t, err)
	_, err = svc.CreateForStudent(context.Background(), CreateTicketRequest{StudentID: "stu-1"})
	require.NoError(t, err)

	closed, err := svc.Reset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), closed)
	assert.Empty(t, counters.values)
	assert.Equal(t, 1, students.resets)

	// Post-reset numbering restarts from one.
	ticket, err := svc.CreateForStudent(context.Background(), CreateTicketRequest{StudentID: "stu-1"})
	require.NoError(t, err)
	assert.Equal(t, "1 - 2026-00123", ticket.QueueNumber)
}

func TestEstimatedWaitScalesWithQueueDepth(t *testing.T) {
	svc, _, _, _ := newQueueFixture()

	first, err := svc.CreateForStudent(context.Background(), CreateTicketRequest{StudentID: "stu-1"})
	require.NoError(t, err)
	assert.Equal(t, 0, first.EstimatedMinutes)

	second, err := svc.CreateForStudent(context.Background(), CreateTicketRequest{StudentID: "stu-1"})
	require.NoError(t, err)
	assert.Equal(t, 5, second.EstimatedMinutes)
}
