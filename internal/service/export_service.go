package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/unireg-ph/prereg-api/internal/models"
	appErrors "github.com/unireg-ph/prereg-api/pkg/errors"
	"github.com/unireg-ph/prereg-api/pkg/export"
)

type exportCourseReader interface {
	FindByIDs(ctx context.Context, ids []string) (map[string]models.Course, error)
}

type exportUserLister interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
}

// ExportService renders printable slips and downloadable reports.
type ExportService struct {
	queue      *QueueService
	courses    exportCourseReader
	users      exportUserLister
	slips      *export.SlipExporter
	csv        *export.CSVExporter
	masterlist *export.MasterlistExporter
	logger     *zap.Logger
}

// NewExportService constructs the export service.
func NewExportService(queue *QueueService, courses exportCourseReader, users exportUserLister, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		queue:      queue,
		courses:    courses,
		users:      users,
		slips:      export.NewSlipExporter(),
		csv:        export.NewCSVExporter(),
		masterlist: export.NewMasterlistExporter(),
		logger:     logger,
	}
}

// TicketSlip renders the printable stub for one ticket.
func (s *ExportService) TicketSlip(ctx context.Context, ticketID string) ([]byte, error) {
	ticket, err := s.queue.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	var courseNames []string
	if len(ticket.CourseIDs) > 0 {
		found, err := s.courses.FindByIDs(ctx, ticket.CourseIDs)
		if err != nil {
			return nil, storeError(err, "failed to load ticket courses")
		}
		for _, id := range ticket.CourseIDs {
			if course, ok := found[id]; ok {
				courseNames = append(courseNames, course.Code+" "+course.Title)
			}
		}
	}

	slip := export.Slip{
		QueueNumber: ticket.QueueNumber,
		Destination: ticket.Destination,
		IssuedAt:    ticket.CreatedAt.Format("2006-01-02 15:04"),
		Courses:     courseNames,
	}
	if ticket.EstimatedMinutes > 0 {
		slip.EstimatedAt = fmt.Sprintf("%d min", ticket.EstimatedMinutes)
	}

	rendered, err := s.slips.Render(slip)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render slip")
	}
	return rendered, nil
}

// TicketsCSV exports tickets matching the filter as a CSV report.
func (s *ExportService) TicketsCSV(ctx context.Context, filter models.TicketFilter) ([]byte, error) {
	table, err := s.ticketTable(ctx, filter)
	if err != nil {
		return nil, err
	}
	rendered, err := s.csv.Render(table)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
	}
	return rendered, nil
}

// TicketsPDF exports tickets matching the filter as a printable
// masterlist.
func (s *ExportService) TicketsPDF(ctx context.Context, filter models.TicketFilter) ([]byte, error) {
	table, err := s.ticketTable(ctx, filter)
	if err != nil {
		return nil, err
	}
	rendered, err := s.masterlist.Render(table, "Queue Masterlist", time.Now().Format("2006-01-02 15:04"))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render masterlist")
	}
	return rendered, nil
}

// StudentsCSV exports the student masterlist matching the filter.
func (s *ExportService) StudentsCSV(ctx context.Context, filter models.UserFilter) ([]byte, error) {
	role := models.RoleStudent
	filter.Role = &role
	filter.Page = 1
	filter.PageSize = 100

	table := export.Table{
		Columns: []string{"student_number", "last_name", "first_name", "email", "year", "section", "regular"},
	}
	for {
		students, total, err := s.users.List(ctx, filter)
		if err != nil {
			return nil, storeError(err, "failed to list students")
		}
		for _, student := range students {
			table.Rows = append(table.Rows, []string{
				student.StudentNumber,
				student.LastName,
				student.FirstName,
				student.Email,
				strconv.Itoa(student.Year),
				student.Section,
				strconv.FormatBool(student.Regular),
			})
		}
		if filter.Page*filter.PageSize >= total {
			break
		}
		filter.Page++
	}

	rendered, err := s.csv.Render(table)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
	}
	return rendered, nil
}

// ticketTable pages the full ticket listing into export rows.
func (s *ExportService) ticketTable(ctx context.Context, filter models.TicketFilter) (export.Table, error) {
	filter.Page = 1
	filter.PageSize = 100
	table := export.Table{
		Columns: []string{"queue_number", "destination", "status", "priority", "created_at"},
	}
	for {
		tickets, pagination, err := s.queue.List(ctx, filter)
		if err != nil {
			return export.Table{}, err
		}
		for _, ticket := range tickets {
			table.Rows = append(table.Rows, []string{
				ticket.QueueNumber,
				ticket.Destination,
				string(ticket.Status),
				strconv.FormatBool(ticket.Priority),
				ticket.CreatedAt.Format("2006-01-02 15:04:05"),
			})
		}
		if filter.Page*filter.PageSize >= pagination.TotalCount {
			break
		}
		filter.Page++
	}
	return table, nil
}
