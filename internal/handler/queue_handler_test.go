package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unireg-ph/prereg-api/internal/models"
	"github.com/unireg-ph/prereg-api/internal/service"
)

type ticketStoreMock struct {
	tickets map[string]*models.Ticket
	nextID  int
}

func (m *ticketStoreMock) Create(ctx context.Context, ticket *models.Ticket) error {
	if m.tickets == nil {
		m.tickets = make(map[string]*models.Ticket)
	}
	m.nextID++
	ticket.ID = "tkt-1"
	ticket.Version = 1
	cp := *ticket
	m.tickets[ticket.ID] = &cp
	return nil
}

func (m *ticketStoreMock) FindByID(ctx context.Context, id string) (*models.Ticket, error) {
	if ticket, ok := m.tickets[id]; ok {
		cp := *ticket
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *ticketStoreMock) UpdateGuarded(ctx context.Context, ticket *models.Ticket) (bool, error) {
	stored, ok := m.tickets[ticket.ID]
	if !ok || stored.Version != ticket.Version {
		return false, nil
	}
	ticket.Version++
	cp := *ticket
	m.tickets[ticket.ID] = &cp
	return true, nil
}

func (m *ticketStoreMock) ListWaiting(ctx context.Context, destination string) ([]models.Ticket, error) {
	var out []models.Ticket
	for _, ticket := range m.tickets {
		if ticket.Destination == destination && ticket.Status == models.TicketWaiting && !ticket.Archived {
			out = append(out, *ticket)
		}
	}
	return out, nil
}

func (m *ticketStoreMock) CountWaiting(ctx context.Context, destination string) (int, error) {
	waiting, _ := m.ListWaiting(ctx, destination)
	return len(waiting), nil
}

func (m *ticketStoreMock) List(ctx context.Context, filter models.TicketFilter) ([]models.Ticket, int, error) {
	var out []models.Ticket
	for _, ticket := range m.tickets {
		out = append(out, *ticket)
	}
	return out, len(out), nil
}

func (m *ticketStoreMock) CompleteAllNonTerminal(ctx context.Context) (int64, error) {
	return 0, nil
}

func (m *ticketStoreMock) ArchiveTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type counterStoreMock struct {
	values map[string]int64
}

func (m *counterStoreMock) Increment(ctx context.Context, name string) (int64, error) {
	if m.values == nil {
		m.values = make(map[string]int64)
	}
	m.values[name]++
	return m.values[name], nil
}

func (m *counterStoreMock) ResetAll(ctx context.Context) error {
	m.values = make(map[string]int64)
	return nil
}

type queueStudentsMock struct {
	details map[string]*models.StudentDetail
}

func (m *queueStudentsMock) LoadStudentDetail(ctx context.Context, id string) (*models.StudentDetail, error) {
	if detail, ok := m.details[id]; ok {
		return detail, nil
	}
	return nil, sql.ErrNoRows
}

func (m *queueStudentsMock) IncrementStaffCounter(ctx context.Context, staffID, counter string) error {
	return nil
}

func (m *queueStudentsMock) ResetStaffCounters(ctx context.Context) error {
	return nil
}

func newQueueHandlerFixture() (*QueueHandler, *ticketStoreMock) {
	tickets := &ticketStoreMock{}
	students := &queueStudentsMock{details: map[string]*models.StudentDetail{
		"stu-1": {
			User:         models.User{ID: "stu-1", StudentNumber: "2026-00123", Role: models.RoleStudent},
			CourseToTake: []string{"math-101"},
		},
	}}
	svc := service.NewQueueService(tickets, &counterStoreMock{}, students, nil, nil,
		[]string{"registrar", "admission", "cashier"}, 5, nil, nil)
	return NewQueueHandler(svc), tickets
}

func TestQueueHandlerCreateTicket(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _ := newQueueHandlerFixture()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(service.CreateTicketRequest{StudentID: "stu-1"})
	req, _ := http.NewRequest(http.MethodPost, "/queue/tickets", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.CreateTicket(c)
	require.Equal(t, http.StatusCreated, w.Code)

	var envelope struct {
		Data models.Ticket `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "1 - 2026-00123", envelope.Data.QueueNumber)
	assert.Equal(t, "registrar", envelope.Data.Destination)
}

func TestQueueHandlerCreateTicketUnknownStudent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _ := newQueueHandlerFixture()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(service.CreateTicketRequest{StudentID: "stu-ghost"})
	req, _ := http.NewRequest(http.MethodPost, "/queue/tickets", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.CreateTicket(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestQueueHandlerCreateTicketInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _ := newQueueHandlerFixture()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/queue/tickets", bytes.NewReader([]byte(`not json`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.CreateTicket(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQueueHandlerCurrentEmptyDestination(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _ := newQueueHandlerFixture()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/queue/current/cashier", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "destination", Value: "cashier"}}

	handler.Current(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data service.CurrentQueue `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.True(t, envelope.Data.NoQueue)
	assert.Equal(t, "cashier", envelope.Data.Destination)
}

func TestQueueHandlerGetNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _ := newQueueHandlerFixture()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/queue/tickets/tkt-ghost", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "tkt-ghost"}}

	handler.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
