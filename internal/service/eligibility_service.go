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

type eligibilityStudentRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	LoadStudentDetail(ctx context.Context, id string) (*models.StudentDetail, error)
	ReplaceCourseToTake(ctx context.Context, studentID string, courseIDs []string) error
	RemovePlanCourse(ctx context.Context, studentID, courseID string) error
	RestorePlanCourse(ctx context.Context, studentID, courseID string) error
	CreateIncAgreements(ctx context.Context, studentID string, courseIDs []string) error
	IncAgreementsOf(ctx context.Context, studentID string) (map[string]bool, error)
}

type eligibilityCourseRepository interface {
	FindByIDs(ctx context.Context, ids []string) (map[string]models.Course, error)
	ListForCurriculum(ctx context.Context, programID string, yearLevel int, semester string) ([]models.Course, error)
}

type activeTermReader interface {
	FindActive(ctx context.Context) (*models.Semester, error)
}

// EvaluateRequest asks whether a student may take a candidate course set.
type EvaluateRequest struct {
	StudentID string   `json:"student_id" validate:"required"`
	CourseIDs []string `json:"course_ids" validate:"required,min=1,dive,required"`
	Agreed    bool     `json:"agreed"`
}

// Evaluation is the verdict for one candidate batch. Map keys and values
// are course codes. The batch commits only when Committed is true.
type Evaluation struct {
	Eligible          []string            `json:"eligible,omitempty"`
	Blocked           map[string][]string `json:"blocked,omitempty"`
	IncompleteBlocked map[string][]string `json:"incomplete_blocked,omitempty"`
	AlreadyPassed     []string            `json:"already_passed,omitempty"`
	NeedsAgreement    bool                `json:"needs_agreement"`
	Committed         bool                `json:"committed"`
}

// EligibilityService decides which courses a student may add to their
// enrollment plan based on prerequisite completion and grade history.
type EligibilityService struct {
	students  eligibilityStudentRepository
	courses   eligibilityCourseRepository
	terms     activeTermReader
	notifier  Notifier
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEligibilityService constructs the service. The notifier may be nil.
func NewEligibilityService(students eligibilityStudentRepository, courses eligibilityCourseRepository, terms activeTermReader, notifier Notifier, validate *validator.Validate, logger *zap.Logger) *EligibilityService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EligibilityService{students: students, courses: courses, terms: terms, notifier: notifier, validator: validate, logger: logger}
}

// Evaluate classifies each candidate course and, when nothing blocks the
// batch, commits the full candidate list as the student's plan.
//
// Already-passed candidates block the whole batch: the caller must drop
// them and resubmit. Hard-missing prerequisites block next. INC
// prerequisites alone require the student's persisted agreement to retake
// the incomplete course concurrently before the batch commits.
func (s *EligibilityService) Evaluate(ctx context.Context, req EvaluateRequest) (*Evaluation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid evaluation payload")
	}

	detail, err := s.students.LoadStudentDetail(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, storeError(err, "failed to load student")
	}

	candidates, err := s.courses.FindByIDs(ctx, req.CourseIDs)
	if err != nil {
		return nil, storeError(err, "failed to load courses")
	}
	for _, id := range req.CourseIDs {
		if _, ok := candidates[id]; !ok {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course "+id+" not found")
		}
	}

	passed, incomplete := s.classifyRecords(detail.Records)

	// Prerequisites may reference courses outside the candidate batch;
	// fetch them for their codes.
	var prereqIDs []string
	seen := make(map[string]bool)
	for _, course := range candidates {
		for _, prereqID := range course.Prerequisites {
			if !seen[prereqID] {
				seen[prereqID] = true
				prereqIDs = append(prereqIDs, prereqID)
			}
		}
	}
	prereqCourses, err := s.courses.FindByIDs(ctx, prereqIDs)
	if err != nil {
		return nil, storeError(err, "failed to load prerequisites")
	}

	inBatch := make(map[string]bool, len(req.CourseIDs))
	for _, id := range req.CourseIDs {
		inBatch[id] = true
	}

	verdict := &Evaluation{
		Blocked:           map[string][]string{},
		IncompleteBlocked: map[string][]string{},
	}
	var incPrereqIDs []string

	for _, candidateID := range req.CourseIDs {
		course := candidates[candidateID]

		if passed[candidateID] {
			verdict.AlreadyPassed = append(verdict.AlreadyPassed, course.Code)
			continue
		}

		var missing, incBlocked []string
		for _, prereqID := range course.Prerequisites {
			switch {
			case passed[prereqID]:
			case inBatch[prereqID]:
				// Concurrent enrollment within the same batch satisfies
				// the prerequisite.
			case incomplete[prereqID]:
				incBlocked = append(incBlocked, s.codeOf(prereqCourses, prereqID))
				incPrereqIDs = append(incPrereqIDs, prereqID)
			default:
				missing = append(missing, s.codeOf(prereqCourses, prereqID))
			}
		}

		switch {
		case len(missing) > 0:
			verdict.Blocked[course.Code] = missing
		case len(incBlocked) > 0:
			verdict.IncompleteBlocked[course.Code] = incBlocked
		default:
			verdict.Eligible = append(verdict.Eligible, candidateID)
		}
	}

	if len(verdict.AlreadyPassed) > 0 {
		return &Evaluation{AlreadyPassed: verdict.AlreadyPassed}, nil
	}
	if len(verdict.Blocked) > 0 {
		return &Evaluation{Blocked: verdict.Blocked}, nil
	}
	if len(verdict.IncompleteBlocked) > 0 {
		verdict.NeedsAgreement = true
		if !req.Agreed {
			verdict.Eligible = nil
			return verdict, nil
		}
		agreed, err := s.students.IncAgreementsOf(ctx, req.StudentID)
		if err != nil {
			return nil, storeError(err, "failed to load agreements")
		}
		for _, prereqID := range incPrereqIDs {
			if !agreed[prereqID] {
				verdict.Eligible = nil
				return verdict, nil
			}
		}
	}

	if err := s.students.ReplaceCourseToTake(ctx, req.StudentID, req.CourseIDs); err != nil {
		return nil, storeError(err, "failed to commit course plan")
	}
	verdict.Eligible = req.CourseIDs
	verdict.Committed = true
	return verdict, nil
}

// AcknowledgeIncomplete persists the student's agreement to complete the
// given INC courses concurrently with their dependents.
func (s *EligibilityService) AcknowledgeIncomplete(ctx context.Context, studentID string, courseIDs []string) error {
	if studentID == "" || len(courseIDs) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "student and courses are required")
	}
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return storeError(err, "failed to load student")
	}
	courses, err := s.courses.FindByIDs(ctx, courseIDs)
	if err != nil {
		return storeError(err, "failed to load courses")
	}
	codes := make([]string, 0, len(courseIDs))
	for _, id := range courseIDs {
		course, ok := courses[id]
		if !ok {
			return appErrors.Clone(appErrors.ErrNotFound, "course "+id+" not found")
		}
		codes = append(codes, course.Code)
	}
	if err := s.students.CreateIncAgreements(ctx, studentID, courseIDs); err != nil {
		return storeError(err, "failed to record agreement")
	}
	if s.notifier != nil {
		s.notifier.QueueIncAgreementNotice(*student, codes)
	}
	return nil
}

// EnrollRegular assigns the full curriculum block for the student's
// program, year level and the active semester as their plan.
func (s *EligibilityService) EnrollRegular(ctx context.Context, studentID string) ([]models.Course, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, storeError(err, "failed to load student")
	}
	if student.ProgramID == nil || student.Year <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student has no program or year level")
	}
	term, err := s.terms.FindActive(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConfiguration, "no active semester configured")
		}
		return nil, storeError(err, "failed to load semester")
	}
	courses, err := s.courses.ListForCurriculum(ctx, *student.ProgramID, student.Year, term.Name)
	if err != nil {
		return nil, storeError(err, "failed to load curriculum")
	}
	courseIDs := make([]string, len(courses))
	for i, course := range courses {
		courseIDs[i] = course.ID
	}
	if err := s.students.ReplaceCourseToTake(ctx, studentID, courseIDs); err != nil {
		return nil, storeError(err, "failed to commit course plan")
	}
	return courses, nil
}

// RemoveFromPlan moves a course into the excluded set after an admin
// rejection.
func (s *EligibilityService) RemoveFromPlan(ctx context.Context, studentID, courseID string) error {
	if err := s.students.RemovePlanCourse(ctx, studentID, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not in plan")
		}
		return storeError(err, "failed to remove course from plan")
	}
	return nil
}

// RestoreToPlan returns an excluded course to the plan.
func (s *EligibilityService) RestoreToPlan(ctx context.Context, studentID, courseID string) error {
	if err := s.students.RestorePlanCourse(ctx, studentID, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not in removed set")
		}
		return storeError(err, "failed to restore course to plan")
	}
	return nil
}

// classifyRecords splits the transcript into passed and incomplete sets.
// Failed, dropped and ungraded entries fall through to the hard-missing
// path; unparseable values are logged and ignored.
func (s *EligibilityService) classifyRecords(records []models.AcademicRecord) (passed, incomplete map[string]bool) {
	passed = make(map[string]bool, len(records))
	incomplete = make(map[string]bool)
	for _, record := range records {
		grade, err := record.Grade()
		if err != nil {
			s.logger.Warn("skipping unparseable grade",
				zap.String("student_id", record.StudentID),
				zap.String("course_id", record.CourseID),
				zap.String("raw_grade", record.RawGrade))
			continue
		}
		switch {
		case grade.Passed():
			passed[record.CourseID] = true
		case grade.Incomplete():
			incomplete[record.CourseID] = true
		}
	}
	return passed, incomplete
}

func (s *EligibilityService) codeOf(courses map[string]models.Course, id string) string {
	if course, ok := courses[id]; ok {
		return course.Code
	}
	return id
}
