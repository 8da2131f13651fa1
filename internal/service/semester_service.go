package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/unireg-ph/prereg-api/internal/models"
	appErrors "github.com/unireg-ph/prereg-api/pkg/errors"
)

type semesterRepository interface {
	FindActive(ctx context.Context) (*models.Semester, error)
	SetActive(ctx context.Context, name string) (*models.Semester, error)
}

// SemesterService manages the single active term that drives curriculum
// lookups and schedule code generation.
type SemesterService struct {
	semesters semesterRepository
	logger    *zap.Logger
}

// NewSemesterService constructs the term service.
func NewSemesterService(semesters semesterRepository, logger *zap.Logger) *SemesterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SemesterService{semesters: semesters, logger: logger}
}

// Active returns the current term.
func (s *SemesterService) Active(ctx context.Context) (*models.Semester, error) {
	semester, err := s.semesters.FindActive(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConfiguration, "no active semester configured")
		}
		return nil, storeError(err, "failed to load active semester")
	}
	return semester, nil
}

// SetActive switches the active term to the named semester.
func (s *SemesterService) SetActive(ctx context.Context, name string) (*models.Semester, error) {
	if _, ok := models.SemesterDigit(name); !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unrecognized semester name "+name)
	}
	semester, err := s.semesters.SetActive(ctx, name)
	if err != nil {
		return nil, storeError(err, "failed to switch semester")
	}
	s.logger.Info("active semester changed", zap.String("semester", semester.Name))
	return semester, nil
}

// Advance rolls the term forward cyclically: first, second, summer.
func (s *SemesterService) Advance(ctx context.Context) (*models.Semester, error) {
	current, err := s.Active(ctx)
	if err != nil {
		return nil, err
	}
	next, ok := models.NextSemester(current.Name)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrConfiguration, "unrecognized semester name "+current.Name)
	}
	return s.SetActive(ctx, next)
}
