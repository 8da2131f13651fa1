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

type programRepository interface {
	List(ctx context.Context, filter models.ProgramFilter) ([]models.Program, int, error)
	FindByID(ctx context.Context, id string) (*models.Program, error)
	ExistsCode(ctx context.Context, code, excludeID string) (bool, error)
	Create(ctx context.Context, program *models.Program) error
	Update(ctx context.Context, program *models.Program) error
}

// ProgramRequest is the create/update payload for a degree program.
type ProgramRequest struct {
	Name string `json:"name" validate:"required"`
	Code string `json:"code" validate:"required"`
}

// ProgramService manages degree programs.
type ProgramService struct {
	programs  programRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewProgramService constructs the program service.
func NewProgramService(programs programRepository, validate *validator.Validate, logger *zap.Logger) *ProgramService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgramService{programs: programs, validator: validate, logger: logger}
}

// List returns programs matching the filter.
func (s *ProgramService) List(ctx context.Context, filter models.ProgramFilter) ([]models.Program, *models.Pagination, error) {
	programs, total, err := s.programs.List(ctx, filter)
	if err != nil {
		return nil, nil, storeError(err, "failed to list programs")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return programs, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one program.
func (s *ProgramService) Get(ctx context.Context, id string) (*models.Program, error) {
	program, err := s.programs.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		return nil, storeError(err, "failed to load program")
	}
	return program, nil
}

// Create adds a program with a unique code.
func (s *ProgramService) Create(ctx context.Context, req ProgramRequest) (*models.Program, error) {
	if err := s.validate(ctx, req, ""); err != nil {
		return nil, err
	}
	program := &models.Program{Name: req.Name, Code: req.Code}
	if err := s.programs.Create(ctx, program); err != nil {
		return nil, storeError(err, "failed to create program")
	}
	s.logger.Info("program created", zap.String("program_id", program.ID), zap.String("code", program.Code))
	return program, nil
}

// Update renames a program.
func (s *ProgramService) Update(ctx context.Context, id string, req ProgramRequest) (*models.Program, error) {
	program, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.validate(ctx, req, id); err != nil {
		return nil, err
	}
	program.Name = req.Name
	program.Code = req.Code
	if err := s.programs.Update(ctx, program); err != nil {
		return nil, storeError(err, "failed to update program")
	}
	return program, nil
}

// Archive soft-deletes a program.
func (s *ProgramService) Archive(ctx context.Context, id string) error {
	return s.setArchived(ctx, id, true)
}

// Restore reverses an archive.
func (s *ProgramService) Restore(ctx context.Context, id string) error {
	return s.setArchived(ctx, id, false)
}

func (s *ProgramService) setArchived(ctx context.Context, id string, archived bool) error {
	program, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	program.Archived = archived
	if err := s.programs.Update(ctx, program); err != nil {
		return storeError(err, "failed to archive program")
	}
	return nil
}

func (s *ProgramService) validate(ctx context.Context, req ProgramRequest, excludeID string) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid program payload")
	}
	exists, err := s.programs.ExistsCode(ctx, req.Code, excludeID)
	if err != nil {
		return storeError(err, "failed to verify program code")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "program code already in use")
	}
	return nil
}
