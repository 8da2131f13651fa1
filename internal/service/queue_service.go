package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/unireg-ph/prereg-api/internal/models"
	appErrors "github.com/unireg-ph/prereg-api/pkg/errors"
)

type ticketRepository interface {
	Create(ctx context.Context, ticket *models.Ticket) error
	FindByID(ctx context.Context, id string) (*models.Ticket, error)
	UpdateGuarded(ctx context.Context, ticket *models.Ticket) (bool, error)
	ListWaiting(ctx context.Context, destination string) ([]models.Ticket, error)
	CountWaiting(ctx context.Context, destination string) (int, error)
	List(ctx context.Context, filter models.TicketFilter) ([]models.Ticket, int, error)
	CompleteAllNonTerminal(ctx context.Context) (int64, error)
	ArchiveTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type counterStore interface {
	Increment(ctx context.Context, name string) (int64, error)
	ResetAll(ctx context.Context) error
}

type queueStudentRepository interface {
	LoadStudentDetail(ctx context.Context, id string) (*models.StudentDetail, error)
	IncrementStaffCounter(ctx context.Context, staffID, counter string) error
	ResetStaffCounters(ctx context.Context) error
}

// Broadcaster fans queue mutations out to connected observers. Publishing
// is fire-and-forget relative to the HTTP response.
type Broadcaster interface {
	Publish(ctx context.Context, event string, payload interface{}) error
}

// QueueDepthRecorder receives live waiting counts for metrics export.
type QueueDepthRecorder interface {
	SetQueueDepth(destination string, depth int)
}

// CreateTicketRequest enqueues a student with their resolved course plan.
type CreateTicketRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	Priority  bool   `json:"priority"`
}

// CreateTransactionRequest enqueues a walk-in transaction with no linked
// student, directly at the given destination.
type CreateTransactionRequest struct {
	Destination string   `json:"destination" validate:"required"`
	CourseIDs   []string `json:"course_ids"`
	Priority    bool     `json:"priority"`
}

// CurrentQueue is the waiting list at one destination. NoQueue is the
// sentinel for an empty destination; it is not an error.
type CurrentQueue struct {
	Destination string          `json:"destination"`
	NoQueue     bool            `json:"no_queue"`
	Tickets     []models.Ticket `json:"tickets"`
}

// QueueBroadcast is the payload published on every queue mutation.
type QueueBroadcast struct {
	Destination string          `json:"destination"`
	Tickets     []models.Ticket `json:"tickets"`
}

// QueueService drives tickets through the ordered destination sequence,
// allocates queue numbers and maintains wait-time estimates.
type QueueService struct {
	tickets      ticketRepository
	counters     counterStore
	students     queueStudentRepository
	broadcaster  Broadcaster
	depths       QueueDepthRecorder
	destinations []string
	serviceMins  int
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewQueueService constructs the orchestrator for the configured
// destination sequence.
func NewQueueService(tickets ticketRepository, counters counterStore, students queueStudentRepository, broadcaster Broadcaster, depths QueueDepthRecorder, destinations []string, serviceMinutes int, validate *validator.Validate, logger *zap.Logger) *QueueService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if serviceMinutes <= 0 {
		serviceMinutes = 5
	}
	return &QueueService{
		tickets:      tickets,
		counters:     counters,
		students:     students,
		broadcaster:  broadcaster,
		depths:       depths,
		destinations: destinations,
		serviceMins:  serviceMinutes,
		validator:    validate,
		logger:       logger,
	}
}

// CreateForStudent issues a ticket at the first destination carrying the
// student's resolved course plan.
func (s *QueueService) CreateForStudent(ctx context.Context, req CreateTicketRequest) (*models.Ticket, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid ticket payload")
	}
	student, err := s.students.LoadStudentDetail(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, storeError(err, "failed to load student")
	}
	if len(student.CourseToTake) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student has no resolved course plan")
	}

	sequence, err := s.counters.Increment(ctx, models.CounterQueueNumber)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrTransient.Code, appErrors.ErrTransient.Status, "failed to allocate queue number")
	}
	queueNumber := fmt.Sprintf("%d", sequence)
	if student.StudentNumber != "" {
		queueNumber = fmt.Sprintf("%d - %s", sequence, student.StudentNumber)
	}

	destination := s.destinations[0]
	estimated, err := s.estimateWait(ctx, destination)
	if err != nil {
		return nil, err
	}

	ticket := &models.Ticket{
		QueueNumber:      queueNumber,
		StudentID:        &student.ID,
		CourseIDs:        student.CourseToTake,
		Destination:      destination,
		Status:           models.TicketWaiting,
		Priority:         req.Priority,
		EstimatedMinutes: estimated,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, storeError(err, "failed to create ticket")
	}

	s.broadcast(destination)
	return ticket, nil
}

// CreateTransaction issues an anonymous ticket directly at a destination
// using that destination's own sequence, so walk-in numbering never
// collides with the main queue.
func (s *QueueService) CreateTransaction(ctx context.Context, req CreateTransactionRequest) (*models.Ticket, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid transaction payload")
	}
	if s.indexOf(req.Destination) < 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown destination "+req.Destination)
	}

	sequence, err := s.counters.Increment(ctx, models.DestinationCounter(req.Destination))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrTransient.Code, appErrors.ErrTransient.Status, "failed to allocate queue number")
	}
	estimated, err := s.estimateWait(ctx, req.Destination)
	if err != nil {
		return nil, err
	}

	ticket := &models.Ticket{
		QueueNumber:      fmt.Sprintf("%d", sequence),
		CourseIDs:        req.CourseIDs,
		Destination:      req.Destination,
		Status:           models.TicketWaiting,
		Priority:         req.Priority,
		EstimatedMinutes: estimated,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, storeError(err, "failed to create ticket")
	}

	s.broadcast(req.Destination)
	return ticket, nil
}

// Advance moves a ticket to the next destination, or completes it at the
// last one. The ticket re-enters the next destination's queue at the back
// under a freshly allocated number.
func (s *QueueService) Advance(ctx context.Context, ticketID, staffID string) (*models.Ticket, error) {
	ticket, err := s.loadMutable(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	index := s.indexOf(ticket.Destination)
	if index < 0 {
		return nil, appErrors.Clone(appErrors.ErrConfiguration, "ticket destination "+ticket.Destination+" not in sequence")
	}

	previous := ticket.Destination
	if index == len(s.destinations)-1 {
		ticket.Status = models.TicketCompleted
		ticket.Archived = true
	} else {
		next := s.destinations[index+1]
		sequence, err := s.counters.Increment(ctx, models.DestinationCounter(next))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrTransient.Code, appErrors.ErrTransient.Status, "failed to allocate queue number")
		}
		estimated, err := s.estimateWait(ctx, next)
		if err != nil {
			return nil, err
		}
		ticket.Destination = next
		ticket.QueueNumber = fmt.Sprintf("%d", sequence)
		ticket.EstimatedMinutes = estimated
		// Reissue the FIFO position so the ticket queues behind everyone
		// already waiting at the next destination.
		ticket.CreatedAt = time.Now().UTC()
	}

	if err := s.applyGuarded(ctx, ticket); err != nil {
		return nil, err
	}

	s.broadcast(previous)
	if ticket.Destination != previous {
		s.broadcast(ticket.Destination)
	}
	s.creditStaff(ctx, staffID, models.StaffCounterTransferred)
	return ticket, nil
}

// Done forces a ticket to Completed regardless of its position in the
// sequence.
func (s *QueueService) Done(ctx context.Context, ticketID, staffID string) (*models.Ticket, error) {
	ticket, err := s.loadMutable(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	ticket.Status = models.TicketCompleted
	ticket.Archived = true
	if err := s.applyGuarded(ctx, ticket); err != nil {
		return nil, err
	}
	s.broadcast(ticket.Destination)
	s.creditStaff(ctx, staffID, models.StaffCounterSuccessful)
	return ticket, nil
}

// Cancel marks a ticket as missed.
func (s *QueueService) Cancel(ctx context.Context, ticketID, staffID string) (*models.Ticket, error) {
	ticket, err := s.loadMutable(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	ticket.Status = models.TicketCancelled
	ticket.Archived = true
	if err := s.applyGuarded(ctx, ticket); err != nil {
		return nil, err
	}
	s.broadcast(ticket.Destination)
	s.creditStaff(ctx, staffID, models.StaffCounterMissed)
	return ticket, nil
}

// Current returns the waiting tickets at a destination, priority first,
// then FIFO. An empty destination yields the no-queue sentinel payload.
func (s *QueueService) Current(ctx context.Context, destination string) (*CurrentQueue, error) {
	if s.indexOf(destination) < 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown destination "+destination)
	}
	tickets, err := s.tickets.ListWaiting(ctx, destination)
	if err != nil {
		return nil, storeError(err, "failed to load queue")
	}
	if len(tickets) == 0 {
		return &CurrentQueue{Destination: destination, NoQueue: true}, nil
	}
	return &CurrentQueue{Destination: destination, Tickets: tickets}, nil
}

// List returns tickets for the admin search endpoints.
func (s *QueueService) List(ctx context.Context, filter models.TicketFilter) ([]models.Ticket, *models.Pagination, error) {
	tickets, total, err := s.tickets.List(ctx, filter)
	if err != nil {
		return nil, nil, storeError(err, "failed to list tickets")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return tickets, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one ticket.
func (s *QueueService) Get(ctx context.Context, id string) (*models.Ticket, error) {
	ticket, err := s.tickets.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "ticket not found")
		}
		return nil, storeError(err, "failed to load ticket")
	}
	return ticket, nil
}

// Reset zeroes all counters, completes every non-terminal ticket and
// clears staff throughput. Run at the start of a new enrollment cycle.
func (s *QueueService) Reset(ctx context.Context) (int64, error) {
	closed, err := s.tickets.CompleteAllNonTerminal(ctx)
	if err != nil {
		return 0, storeError(err, "failed to close open tickets")
	}
	if err := s.counters.ResetAll(ctx); err != nil {
		return 0, storeError(err, "failed to reset counters")
	}
	if err := s.students.ResetStaffCounters(ctx); err != nil {
		return 0, storeError(err, "failed to reset staff counters")
	}
	for _, destination := range s.destinations {
		s.broadcast(destination)
	}
	return closed, nil
}

// ArchiveStale archives terminal tickets older than maxAge. Invoked by
// the nightly maintenance job.
func (s *QueueService) ArchiveStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	archived, err := s.tickets.ArchiveTerminalOlderThan(ctx, time.Now().UTC().Add(-maxAge))
	if err != nil {
		return 0, storeError(err, "failed to archive stale tickets")
	}
	return archived, nil
}

// Destinations returns the configured sequence.
func (s *QueueService) Destinations() []string {
	return s.destinations
}

func (s *QueueService) loadMutable(ctx context.Context, ticketID string) (*models.Ticket, error) {
	ticket, err := s.tickets.FindByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "ticket not found")
		}
		return nil, storeError(err, "failed to load ticket")
	}
	if ticket.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrStateConflict, "ticket already "+string(ticket.Status))
	}
	return ticket, nil
}

func (s *QueueService) applyGuarded(ctx context.Context, ticket *models.Ticket) error {
	updated, err := s.tickets.UpdateGuarded(ctx, ticket)
	if err != nil {
		return storeError(err, "failed to update ticket")
	}
	if !updated {
		return appErrors.Clone(appErrors.ErrStateConflict, "ticket was modified concurrently")
	}
	return nil
}

func (s *QueueService) estimateWait(ctx context.Context, destination string) (int, error) {
	waiting, err := s.tickets.CountWaiting(ctx, destination)
	if err != nil {
		return 0, storeError(err, "failed to estimate wait time")
	}
	// Coarse heuristic, not a prediction model.
	return waiting * s.serviceMins, nil
}

// broadcast publishes the destination's full waiting list and refreshes
// the depth gauge. It must never delay or fail the primary response.
func (s *QueueService) broadcast(destination string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		tickets, err := s.tickets.ListWaiting(ctx, destination)
		if err != nil {
			s.logger.Warn("queue broadcast skipped", zap.String("destination", destination), zap.Error(err))
			return
		}
		if s.depths != nil {
			s.depths.SetQueueDepth(destination, len(tickets))
		}
		if s.broadcaster == nil {
			return
		}
		if err := s.broadcaster.Publish(ctx, "queue_updated", QueueBroadcast{Destination: destination, Tickets: tickets}); err != nil {
			s.logger.Warn("queue broadcast failed", zap.String("destination", destination), zap.Error(err))
		}
	}()
}

func (s *QueueService) creditStaff(ctx context.Context, staffID, counter string) {
	if staffID == "" {
		return
	}
	if err := s.students.IncrementStaffCounter(ctx, staffID, counter); err != nil {
		s.logger.Warn("failed to credit staff counter", zap.String("staff_id", staffID), zap.String("counter", counter), zap.Error(err))
	}
}

func (s *QueueService) indexOf(destination string) int {
	for i, d := range s.destinations {
		if d == destination {
			return i
		}
	}
	return -1
}
