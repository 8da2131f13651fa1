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

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindByIDs(ctx context.Context, ids []string) (map[string]models.Course, error)
	ExistsCode(ctx context.Context, programID, code, excludeID string) (bool, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	SetArchived(ctx context.Context, id string, archived bool) error
}

type courseProgramReader interface {
	FindByID(ctx context.Context, id string) (*models.Program, error)
}

// CourseRequest is the create/update payload for a catalog entry.
type CourseRequest struct {
	Title         string   `json:"title" validate:"required"`
	Code          string   `json:"code" validate:"required"`
	Units         int      `json:"units" validate:"required,min=1"`
	ProgramID     string   `json:"program_id" validate:"required"`
	YearLevel     int      `json:"year_level" validate:"required,min=1"`
	Semester      string   `json:"semester" validate:"required,oneof=first second summer"`
	Description   string   `json:"description"`
	Prerequisites []string `json:"prerequisites"`
}

// CourseService manages the course catalog.
type CourseService struct {
	courses   courseRepository
	programs  courseProgramReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs the catalog service.
func NewCourseService(courses courseRepository, programs courseProgramReader, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{courses: courses, programs: programs, validator: validate, logger: logger}
}

// List returns catalog entries matching the filter.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, *models.Pagination, error) {
	courses, total, err := s.courses.List(ctx, filter)
	if err != nil {
		return nil, nil, storeError(err, "failed to list courses")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return courses, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one catalog entry.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, storeError(err, "failed to load course")
	}
	return course, nil
}

// Create adds a catalog entry. The code must be unique within its
// program and every prerequisite must already exist.
func (s *CourseService) Create(ctx context.Context, req CourseRequest) (*models.Course, error) {
	if err := s.validate(ctx, req, ""); err != nil {
		return nil, err
	}
	course := &models.Course{
		Title:         req.Title,
		Code:          req.Code,
		Units:         req.Units,
		ProgramID:     req.ProgramID,
		YearLevel:     req.YearLevel,
		Semester:      req.Semester,
		Description:   req.Description,
		Prerequisites: req.Prerequisites,
	}
	if err := s.courses.Create(ctx, course); err != nil {
		return nil, storeError(err, "failed to create course")
	}
	s.logger.Info("course created", zap.String("course_id", course.ID), zap.String("code", course.Code))
	return course, nil
}

// Update replaces the mutable fields of a catalog entry, including its
// prerequisite list.
func (s *CourseService) Update(ctx context.Context, id string, req CourseRequest) (*models.Course, error) {
	course, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.validate(ctx, req, id); err != nil {
		return nil, err
	}
	for _, prereq := range req.Prerequisites {
		if prereq == id {
			return nil, appErrors.Clone(appErrors.ErrValidation, "a course cannot be its own prerequisite")
		}
	}

	course.Title = req.Title
	course.Code = req.Code
	course.Units = req.Units
	course.ProgramID = req.ProgramID
	course.YearLevel = req.YearLevel
	course.Semester = req.Semester
	course.Description = req.Description
	course.Prerequisites = req.Prerequisites
	if err := s.courses.Update(ctx, course); err != nil {
		return nil, storeError(err, "failed to update course")
	}
	return course, nil
}

// Archive soft-deletes a catalog entry so existing references stay valid.
func (s *CourseService) Archive(ctx context.Context, id string) error {
	return s.setArchived(ctx, id, true)
}

// Restore reverses an archive.
func (s *CourseService) Restore(ctx context.Context, id string) error {
	return s.setArchived(ctx, id, false)
}

func (s *CourseService) setArchived(ctx context.Context, id string, archived bool) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.courses.SetArchived(ctx, id, archived); err != nil {
		return storeError(err, "failed to archive course")
	}
	return nil
}

func (s *CourseService) validate(ctx context.Context, req CourseRequest, excludeID string) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	if _, err := s.programs.FindByID(ctx, req.ProgramID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "unknown program")
		}
		return storeError(err, "failed to verify program")
	}

	exists, err := s.courses.ExistsCode(ctx, req.ProgramID, req.Code, excludeID)
	if err != nil {
		return storeError(err, "failed to verify course code")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "course code already used in this program")
	}

	if len(req.Prerequisites) > 0 {
		found, err := s.courses.FindByIDs(ctx, req.Prerequisites)
		if err != nil {
			return storeError(err, "failed to verify prerequisites")
		}
		for _, prereq := range req.Prerequisites {
			if _, ok := found[prereq]; !ok {
				return appErrors.Clone(appErrors.ErrValidation, "unknown prerequisite course "+prereq)
			}
		}
	}
	return nil
}
