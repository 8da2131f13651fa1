package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unireg-ph/prereg-api/internal/models"
	appErrors "github.com/unireg-ph/prereg-api/pkg/errors"
)

type mockStudentRepo struct {
	students   map[string]*models.StudentDetail
	agreements map[string]map[string]bool
	plans      map[string][]string
	removed    map[string][]string
}

func (m *mockStudentRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if detail, ok := m.students[id]; ok {
		cp := detail.User
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) LoadStudentDetail(ctx context.Context, id string) (*models.StudentDetail, error) {
	if detail, ok := m.students[id]; ok {
		cp := *detail
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) ReplaceCourseToTake(ctx context.Context, studentID string, courseIDs []string) error {
	if m.plans == nil {
		m.plans = make(map[string][]string)
	}
	m.plans[studentID] = append([]string(nil), courseIDs...)
	return nil
}

func (m *mockStudentRepo) RemovePlanCourse(ctx context.Context, studentID, courseID string) error {
	plan := m.plans[studentID]
	for i, id := range plan {
		if id == courseID {
			m.plans[studentID] = append(plan[:i], plan[i+1:]...)
			if m.removed == nil {
				m.removed = make(map[string][]string)
			}
			m.removed[studentID] = append(m.removed[studentID], courseID)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *mockStudentRepo) RestorePlanCourse(ctx context.Context, studentID, courseID string) error {
	for i, id := range m.removed[studentID] {
		if id == courseID {
			m.removed[studentID] = append(m.removed[studentID][:i], m.removed[studentID][i+1:]...)
			m.plans[studentID] = append(m.plans[studentID], courseID)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *mockStudentRepo) CreateIncAgreements(ctx context.Context, studentID string, courseIDs []string) error {
	if m.agreements == nil {
		m.agreements = make(map[string]map[string]bool)
	}
	if m.agreements[studentID] == nil {
		m.agreements[studentID] = make(map[string]bool)
	}
	for _, id := range courseIDs {
		m.agreements[studentID][id] = true
	}
	return nil
}

func (m *mockStudentRepo) IncAgreementsOf(ctx context.Context, studentID string) (map[string]bool, error) {
	agreed := make(map[string]bool)
	for id := range m.agreements[studentID] {
		agreed[id] = true
	}
	return agreed, nil
}

type mockCourseRepo struct {
	courses    map[string]models.Course
	curriculum []models.Course
}

func (m *mockCourseRepo) FindByIDs(ctx context.Context, ids []string) (map[string]models.Course, error) {
	found := make(map[string]models.Course, len(ids))
	for _, id := range ids {
		if course, ok := m.courses[id]; ok {
			found[id] = course
		}
	}
	return found, nil
}

func (m *mockCourseRepo) ListForCurriculum(ctx context.Context, programID string, yearLevel int, semester string) ([]models.Course, error) {
	return m.curriculum, nil
}

type mockTermRepo struct {
	active *models.Semester
}

func (m *mockTermRepo) FindActive(ctx context.Context) (*models.Semester, error) {
	if m.active == nil {
		return nil, sql.ErrNoRows
	}
	return m.active, nil
}

func eligibilityFixture() (*mockStudentRepo, *mockCourseRepo) {
	students := &mockStudentRepo{
		students: map[string]*models.StudentDetail{
			"stu-1": {
				User: models.User{ID: "stu-1", Role: models.RoleStudent},
				Records: []models.AcademicRecord{
					{StudentID: "stu-1", CourseID: "math-101", RawGrade: "2.5"},
					{StudentID: "stu-1", CourseID: "phys-101", RawGrade: "INC"},
					{StudentID: "stu-1", CourseID: "chem-101", RawGrade: "4.0"},
				},
			},
		},
	}
	courses := &mockCourseRepo{
		courses: map[string]models.Course{
			"math-101": {ID: "math-101", Code: "MATH101"},
			"math-201": {ID: "math-201", Code: "MATH201", Prerequisites: []string{"math-101"}},
			"math-301": {ID: "math-301", Code: "MATH301", Prerequisites: []string{"math-201"}},
			"phys-101": {ID: "phys-101", Code: "PHYS101"},
			"phys-201": {ID: "phys-201", Code: "PHYS201", Prerequisites: []string{"phys-101"}},
			"chem-101": {ID: "chem-101", Code: "CHEM101"},
			"chem-201": {ID: "chem-201", Code: "CHEM201", Prerequisites: []string{"chem-101"}},
		},
	}
	return students, courses
}

func TestEvaluateCommitsWhenPrerequisitesPassed(t *testing.T) {
	students, courses := eligibilityFixture()
	svc := NewEligibilityService(students, courses, &mockTermRepo{}, nil, nil, zap.NewNop())

	verdict, err := svc.Evaluate(context.Background(), EvaluateRequest{
		StudentID: "stu-1",
		CourseIDs: []string{"math-201"},
	})
	require.NoError(t, err)
	assert.True(t, verdict.Committed)
	assert.Equal(t, []string{"math-201"}, verdict.Eligible)
	assert.Equal(t, []string{"math-201"}, students.plans["stu-1"])
}

func TestEvaluateConcurrentPrerequisiteInBatch(t *testing.T) {
	students, courses := eligibilityFixture()
	svc := NewEligibilityService(students, courses, &mockTermRepo{}, nil, nil, zap.NewNop())

	// math-301 needs math-201, which is also in the batch.
	verdict, err := svc.Evaluate(context.Background(), EvaluateRequest{
		StudentID: "stu-1",
		CourseIDs: []string{"math-201", "math-301"},
	})
	require.NoError(t, err)
	assert.True(t, verdict.Committed)
	assert.ElementsMatch(t, []string{"math-201", "math-301"}, students.plans["stu-1"])
}

func TestEvaluateBlockedByMissingPrerequisite(t *testing.T) {
	students, courses := eligibilityFixture()
	svc := NewEligibilityService(students, courses, &mockTermRepo{}, nil, nil, zap.NewNop())

	// chem-101 was failed (4.0), so chem-201 is hard blocked.
	verdict, err := svc.Evaluate(context.Background(), EvaluateRequest{
		StudentID: "stu-1",
		CourseIDs: []string{"chem-201"},
	})
	require.NoError(t, err)
	assert.False(t, verdict.Committed)
	assert.Equal(t, []string{"CHEM101"}, verdict.Blocked["CHEM201"])
	assert.Empty(t, students.plans["stu-1"], "blocked batch must not mutate the plan")
}

func TestEvaluateAlreadyPassedBlocksBatch(t *testing.T) {
	students, courses := eligibilityFixture()
	svc := NewEligibilityService(students, courses, &mockTermRepo{}, nil, nil, zap.NewNop())

	verdict, err := svc.Evaluate(context.Background(), EvaluateRequest{
		StudentID: "stu-1",
		CourseIDs: []string{"math-101", "math-201"},
	})
	require.NoError(t, err)
	assert.False(t, verdict.Committed)
	assert.Equal(t, []string{"MATH101"}, verdict.AlreadyPassed)
	assert.Empty(t, verdict.Blocked)
	assert.Empty(t, students.plans["stu-1"])
}

func TestEvaluateIncompletePrerequisiteNeedsAgreement(t *testing.T) {
	students, courses := eligibilityFixture()
	svc := NewEligibilityService(students, courses, &mockTermRepo{}, nil, nil, zap.NewNop())

	// phys-101 is INC; without agreement the batch stays uncommitted.
	verdict, err := svc.Evaluate(context.Background(), EvaluateRequest{
		StudentID: "stu-1",
		CourseIDs: []string{"phys-201"},
	})
	require.NoError(t, err)
	assert.True(t, verdict.NeedsAgreement)
	assert.False(t, verdict.Committed)
	assert.Equal(t, []string{"PHYS101"}, verdict.IncompleteBlocked["PHYS201"])
	assert.Empty(t, students.plans["stu-1"])
}

func TestEvaluateIncompleteAgreedFlagWithoutRecordStaysBlocked(t *testing.T) {
	students, courses := eligibilityFixture()
	svc := NewEligibilityService(students, courses, &mockTermRepo{}, nil, nil, zap.NewNop())

	// The agreed flag alone is not enough; the agreement must be persisted.
	verdict, err := svc.Evaluate(context.Background(), EvaluateRequest{
		StudentID: "stu-1",
		CourseIDs: []string{"phys-201"},
		Agreed:    true,
	})
	require.NoError(t, err)
	assert.True(t, verdict.NeedsAgreement)
	assert.False(t, verdict.Committed)
}

func TestEvaluateIncompleteWithPersistedAgreementCommits(t *testing.T) {
	students, courses := eligibilityFixture()
	svc := NewEligibilityService(students, courses, &mockTermRepo{}, nil, nil, zap.NewNop())

	require.NoError(t, svc.AcknowledgeIncomplete(context.Background(), "stu-1", []string{"phys-101"}))

	verdict, err := svc.Evaluate(context.Background(), EvaluateRequest{
		StudentID: "stu-1",
		CourseIDs: []string{"phys-201"},
		Agreed:    true,
	})
	require.NoError(t, err)
	assert.True(t, verdict.Committed)
	assert.Equal(t, []string{"phys-201"}, students.plans["stu-1"])
}

func TestEvaluateUnknownCourse(t *testing.T) {
	students, courses := eligibilityFixture()
	svc := NewEligibilityService(students, courses, &mockTermRepo{}, nil, nil, zap.NewNop())

	_, err := svc.Evaluate(context.Background(), EvaluateRequest{
		StudentID: "stu-1",
		CourseIDs: []string{"nope"},
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestEnrollRegularAssignsCurriculum(t *testing.T) {
	students, courses := eligibilityFixture()
	programID := "prog-1"
	students.students["stu-1"].ProgramID = &programID
	students.students["stu-1"].Year = 2
	courses.curriculum = []models.Course{
		{ID: "math-201", Code: "MATH201"},
		{ID: "phys-201", Code: "PHYS201"},
	}
	terms := &mockTermRepo{active: &models.Semester{Name: models.SemesterFirst, Active: true}}
	svc := NewEligibilityService(students, courses, terms, nil, nil, zap.NewNop())

	assigned, err := svc.EnrollRegular(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Len(t, assigned, 2)
	assert.Equal(t, []string{"math-201", "phys-201"}, students.plans["stu-1"])
}

func TestEnrollRegularNoActiveSemester(t *testing.T) {
	students, courses := eligibilityFixture()
	programID := "prog-1"
	students.students["stu-1"].ProgramID = &programID
	students.students["stu-1"].Year = 2
	svc := NewEligibilityService(students, courses, &mockTermRepo{}, nil, nil, zap.NewNop())

	_, err := svc.EnrollRegular(context.Background(), "stu-1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConfiguration.Code, appErr.Code)
}

func TestRemoveAndRestorePlanCourse(t *testing.T) {
	students, courses := eligibilityFixture()
	students.plans = map[string][]string{"stu-1": {"math-201"}}
	svc := NewEligibilityService(students, courses, &mockTermRepo{}, nil, nil, zap.NewNop())

	require.NoError(t, svc.RemoveFromPlan(context.Background(), "stu-1", "math-201"))
	assert.Empty(t, students.plans["stu-1"])

	require.NoError(t, svc.RestoreToPlan(context.Background(), "stu-1", "math-201"))
	assert.Equal(t, []string{"math-201"}, students.plans["stu-1"])

	err := svc.RemoveFromPlan(context.Background(), "stu-1", "ghost")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
