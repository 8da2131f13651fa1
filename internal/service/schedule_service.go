package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/unireg-ph/prereg-api/internal/models"
	appErrors "github.com/unireg-ph/prereg-api/pkg/errors"
)

type scheduleRepository interface {
	List(ctx context.Context, filter models.ScheduleFilter) ([]models.Schedule, int, error)
	FindByID(ctx context.Context, id string) (*models.Schedule, error)
	Create(ctx context.Context, schedule *models.Schedule) error
	SetArchived(ctx context.Context, id string, archived bool) error
}

type scheduleCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// MeetingBlockRequest is one meeting of a section.
type MeetingBlockRequest struct {
	Day       string `json:"day" validate:"required"`
	Room      string `json:"room"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
}

// ScheduleRequest creates a section offering. The schedule code is always
// generated, never supplied.
type ScheduleRequest struct {
	CourseID string                `json:"course_id" validate:"required"`
	Section  string                `json:"section" validate:"required"`
	Blocks   []MeetingBlockRequest `json:"schedule" validate:"required,min=1,dive"`
}

// ScheduleService manages section offerings.
type ScheduleService struct {
	schedules scheduleRepository
	courses   scheduleCourseReader
	codes     codeMinter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewScheduleService constructs the schedule service.
func NewScheduleService(schedules scheduleRepository, courses scheduleCourseReader, codes codeMinter, validate *validator.Validate, logger *zap.Logger) *ScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleService{schedules: schedules, courses: courses, codes: codes, validator: validate, logger: logger}
}

// List returns offerings matching the filter.
func (s *ScheduleService) List(ctx context.Context, filter models.ScheduleFilter) ([]models.Schedule, *models.Pagination, error) {
	schedules, total, err := s.schedules.List(ctx, filter)
	if err != nil {
		return nil, nil, storeError(err, "failed to list schedules")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return schedules, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one offering.
func (s *ScheduleService) Get(ctx context.Context, id string) (*models.Schedule, error) {
	schedule, err := s.schedules.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return nil, storeError(err, "failed to load schedule")
	}
	return schedule, nil
}

// Create mints a code for the offering and persists it with its meeting
// blocks in request order.
func (s *ScheduleService) Create(ctx context.Context, req ScheduleRequest) (*models.Schedule, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}
	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown course")
		}
		return nil, storeError(err, "failed to verify course")
	}

	code, err := s.codes.Next(ctx)
	if err != nil {
		return nil, err
	}

	schedule := &models.Schedule{Code: code, CourseID: req.CourseID, Section: req.Section}
	for _, block := range req.Blocks {
		schedule.Blocks = append(schedule.Blocks, models.MeetingBlock{
			Day:       block.Day,
			Room:      block.Room,
			StartTime: block.StartTime,
			EndTime:   block.EndTime,
		})
	}
	if err := s.schedules.Create(ctx, schedule); err != nil {
		return nil, storeError(err, "failed to create schedule")
	}
	s.logger.Info("schedule created", zap.String("schedule_id", schedule.ID), zap.String("code", schedule.Code))
	return schedule, nil
}

// Archive soft-deletes an offering.
func (s *ScheduleService) Archive(ctx context.Context, id string) error {
	return s.setArchived(ctx, id, true)
}

// Restore reverses an archive.
func (s *ScheduleService) Restore(ctx context.Context, id string) error {
	return s.setArchived(ctx, id, false)
}

func (s *ScheduleService) setArchived(ctx context.Context, id string, archived bool) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.schedules.SetArchived(ctx, id, archived); err != nil {
		return storeError(err, "failed to archive schedule")
	}
	return nil
}
