package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unireg-ph/prereg-api/internal/models"
	appErrors "github.com/unireg-ph/prereg-api/pkg/errors"
	"github.com/unireg-ph/prereg-api/pkg/spreadsheet"
)

type mockImportCourses struct {
	byCode map[string][]models.CourseDetail
}

func (m *mockImportCourses) FindByCode(ctx context.Context, code string) ([]models.CourseDetail, error) {
	return m.byCode[strings.ToUpper(code)], nil
}

type mockImportSchedules struct {
	created []*models.Schedule
}

func (m *mockImportSchedules) BulkCreate(ctx context.Context, schedules []*models.Schedule) error {
	m.created = append(m.created, schedules...)
	return nil
}

type mockImportUsers struct {
	byNumber map[string]*models.User
	merged   map[string][]models.AcademicRecord
	nextID   int
}

func (m *mockImportUsers) FindByStudentNumber(ctx context.Context, studentNumber string) (*models.User, error) {
	if user, ok := m.byNumber[studentNumber]; ok {
		cp := *user
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockImportUsers) Create(ctx context.Context, user *models.User) error {
	if m.byNumber == nil {
		m.byNumber = make(map[string]*models.User)
	}
	m.nextID++
	user.ID = fmt.Sprintf("usr-%d", m.nextID)
	cp := *user
	m.byNumber[user.StudentNumber] = &cp
	return nil
}

func (m *mockImportUsers) Update(ctx context.Context, user *models.User) error {
	cp := *user
	m.byNumber[user.StudentNumber] = &cp
	return nil
}

func (m *mockImportUsers) MergeAcademicRecords(ctx context.Context, studentID string, records []models.AcademicRecord) error {
	if m.merged == nil {
		m.merged = make(map[string][]models.AcademicRecord)
	}
	m.merged[studentID] = append(m.merged[studentID], records...)
	return nil
}

type mockImportPrograms struct {
	byName map[string]*models.Program
}

func (m *mockImportPrograms) FindByName(ctx context.Context, name string) (*models.Program, error) {
	if program, ok := m.byName[name]; ok {
		return program, nil
	}
	return nil, sql.ErrNoRows
}

type mockCodeMinter struct {
	next int
}

func (m *mockCodeMinter) Next(ctx context.Context) (string, error) {
	m.next++
	return fmt.Sprintf("20260%05d", m.next), nil
}

type mockEnroller struct {
	enrolled []string
}

func (m *mockEnroller) EnrollRegular(ctx context.Context, studentID string) ([]models.Course, error) {
	m.enrolled = append(m.enrolled, studentID)
	return nil, nil
}

type mockNotifier struct {
	confirmations []string
	concerns      map[string][]string
}

func (m *mockNotifier) QueueEnrollmentConfirmation(user models.User) {
	m.confirmations = append(m.confirmations, user.StudentNumber)
}

func (m *mockNotifier) QueueGradeConcern(user models.User, flaggedCourses []string) {
	if m.concerns == nil {
		m.concerns = make(map[string][]string)
	}
	m.concerns[user.StudentNumber] = flaggedCourses
}

func (m *mockNotifier) QueueIncAgreementNotice(user models.User, courseCodes []string) {}

func (m *mockNotifier) QueueRegistrationRejection(user models.User) {}

func courseDetail(id, code, programName string) models.CourseDetail {
	detail := models.CourseDetail{Course: models.Course{ID: id, Code: code}}
	if programName != "" {
		detail.ProgramName = &programName
	}
	return detail
}

func newImportFixture() (*ImportService, *mockImportCourses, *mockImportSchedules, *mockImportUsers, *mockEnroller, *mockNotifier) {
	courses := &mockImportCourses{
		byCode: map[string][]models.CourseDetail{
			"MATH101": {courseDetail("math-101", "MATH101", "")},
			"PHYS101": {courseDetail("phys-101", "PHYS101", "")},
		},
	}
	schedules := &mockImportSchedules{}
	users := &mockImportUsers{}
	programs := &mockImportPrograms{byName: map[string]*models.Program{
		"BSCS": {ID: "prog-1", Name: "BSCS", Code: "BSCS"},
	}}
	enroller := &mockEnroller{}
	notifier := &mockNotifier{}
	svc := NewImportService(spreadsheet.NewReader(), courses, schedules, users, programs,
		&mockCodeMinter{}, enroller, notifier, zap.NewNop())
	return svc, courses, schedules, users, enroller, notifier
}

func TestImportSchedulesGroupsRowsBySection(t *testing.T) {
	svc, _, schedules, _, _, _ := newImportFixture()

	workbook := strings.Join([]string{
		"code,section,day,room,startTime,endTime",
		"MATH101,A,Mon,201,08:00,09:30",
		"MATH101,A,Wed,201,08:00,09:30",
		"PHYS101,B,Tue,Lab1,10:00,12:00",
	}, "\n")

	report, err := svc.ImportSchedules(context.Background(), strings.NewReader(workbook))
	require.NoError(t, err)
	assert.Equal(t, 3, report.Processed)
	assert.Equal(t, 0, report.Skipped)
	assert.Equal(t, 2, report.SchedulesCreated)
	require.Len(t, schedules.created, 2)

	math := schedules.created[0]
	assert.Equal(t, "math-101", math.CourseID)
	assert.Equal(t, "A", math.Section)
	assert.Equal(t, "2026000001", math.Code)
	require.Len(t, math.Blocks, 2)
	assert.Equal(t, "Mon", math.Blocks[0].Day)
	assert.Equal(t, "Wed", math.Blocks[1].Day)
}

func TestImportSchedulesUnknownCourseSkipsGroup(t *testing.T) {
	svc, _, schedules, _, _, _ := newImportFixture()

	workbook := strings.Join([]string{
		"code,section,day,room,startTime,endTime",
		"GHOST1,A,Mon,201,08:00,09:30",
		"MATH101,A,Mon,201,08:00,09:30",
	}, "\n")

	report, err := svc.ImportSchedules(context.Background(), strings.NewReader(workbook))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Skipped)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0].Reason, "GHOST1")
	assert.Len(t, schedules.created, 1)
}

func TestImportSchedulesAmbiguousCodeNeedsProgram(t *testing.T) {
	svc, courses, _, _, _, _ := newImportFixture()
	courses.byCode["MATH101"] = []models.CourseDetail{
		courseDetail("math-101-cs", "MATH101", "BSCS"),
		courseDetail("math-101-it", "MATH101", "BSIT"),
	}

	workbook := strings.Join([]string{
		"code,section,day,room,startTime,endTime",
		"MATH101,A,Mon,201,08:00,09:30",
	}, "\n")

	_, err := svc.ImportSchedules(context.Background(), strings.NewReader(workbook))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "MATH101")
	assert.Contains(t, appErr.Message, "BSIT")
}

func TestImportSchedulesProgramColumnDisambiguates(t *testing.T) {
	svc, courses, schedules, _, _, _ := newImportFixture()
	courses.byCode["MATH101"] = []models.CourseDetail{
		courseDetail("math-101-cs", "MATH101", "BSCS"),
		courseDetail("math-101-it", "MATH101", "BSIT"),
	}

	workbook := strings.Join([]string{
		"code,section,program,day,room,startTime,endTime",
		"MATH101,A,BSIT,Mon,201,08:00,09:30",
	}, "\n")

	report, err := svc.ImportSchedules(context.Background(), strings.NewReader(workbook))
	require.NoError(t, err)
	assert.Equal(t, 1, report.SchedulesCreated)
	assert.Equal(t, "math-101-it", schedules.created[0].CourseID)
}

func TestImportSchedulesMissingHeadersAborts(t *testing.T) {
	svc, _, _, _, _, _ := newImportFixture()

	_, err := svc.ImportSchedules(context.Background(), strings.NewReader("code,section\nMATH101,A"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestImportRosterCleanStudentBecomesRegular(t *testing.T) {
	svc, _, _, users, enroller, notifier := newImportFixture()

	workbook := strings.Join([]string{
		"studentNumber,email,firstName,lastName,program,year,section,MATH101",
		"2026-001,ana@example.com,Ana,Reyes,BSCS,2,A,1.75",
	}, "\n")

	report, err := svc.ImportRoster(context.Background(), strings.NewReader(workbook))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Regular)
	assert.Equal(t, 0, report.Irregular)

	user := users.byNumber["2026-001"]
	require.NotNil(t, user)
	assert.True(t, user.Regular)
	assert.Equal(t, models.RoleStudent, user.Role)
	require.NotNil(t, user.ProgramID)
	assert.Equal(t, "prog-1", *user.ProgramID)

	assert.Equal(t, []string{user.ID}, enroller.enrolled)
	assert.Equal(t, []string{"2026-001"}, notifier.confirmations)

	records := users.merged[user.ID]
	require.Len(t, records, 1)
	assert.Equal(t, "math-101", records[0].CourseID)
	assert.Equal(t, "1.75", records[0].RawGrade)
}

func TestImportRosterFlaggedGradeGoesIrregular(t *testing.T) {
	svc, _, _, users, enroller, notifier := newImportFixture()

	workbook := strings.Join([]string{
		"studentNumber,email,firstName,lastName,MATH101,PHYS101",
		"2026-002,ben@example.com,Ben,Cruz,4.0,0",
	}, "\n")

	report, err := svc.ImportRoster(context.Background(), strings.NewReader(workbook))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Irregular)
	assert.Equal(t, 0, report.Regular)

	user := users.byNumber["2026-002"]
	require.NotNil(t, user)
	assert.False(t, user.Regular)
	assert.Empty(t, enroller.enrolled, "irregular students keep their plan untouched")
	assert.ElementsMatch(t, []string{"MATH101", "PHYS101"}, notifier.concerns["2026-002"])
}

func TestImportRosterRowFailuresDoNotAbortBatch(t *testing.T) {
	svc, _, _, users, _, _ := newImportFixture()

	workbook := strings.Join([]string{
		"studentNumber,email,firstName,lastName,MATH101",
		",missing@example.com,No,Number,1.5",
		"2026-003,cathy@example.com,Cathy,Lim,2.0",
	}, "\n")

	report, err := svc.ImportRoster(context.Background(), strings.NewReader(workbook))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Skipped)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, 2, report.Errors[0].Row)
	assert.NotNil(t, users.byNumber["2026-003"])
}

func TestImportRosterUnknownSubjectColumnSkipped(t *testing.T) {
	svc, _, _, users, _, _ := newImportFixture()

	workbook := strings.Join([]string{
		"studentNumber,email,firstName,lastName,NOPE999,MATH101",
		"2026-004,dan@example.com,Dan,Tan,1.0,2.5",
	}, "\n")

	report, err := svc.ImportRoster(context.Background(), strings.NewReader(workbook))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)

	user := users.byNumber["2026-004"]
	require.NotNil(t, user)
	records := users.merged[user.ID]
	require.Len(t, records, 1)
	assert.Equal(t, "math-101", records[0].CourseID)
}

func TestImportRosterProgramColumnResolvesSharedSubjectCode(t *testing.T) {
	svc, courses, _, users, _, _ := newImportFixture()
	courses.byCode["MATH101"] = []models.CourseDetail{
		courseDetail("math-101-it", "MATH101", "BSIT"),
		courseDetail("math-101-cs", "MATH101", "BSCS"),
	}

	workbook := strings.Join([]string{
		"studentNumber,email,firstName,lastName,program,MATH101",
		"2026-006,fe@example.com,Fe,Uy,BSCS,1.5",
	}, "\n")

	report, err := svc.ImportRoster(context.Background(), strings.NewReader(workbook))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)

	user := users.byNumber["2026-006"]
	require.NotNil(t, user)
	records := users.merged[user.ID]
	require.Len(t, records, 1)
	assert.Equal(t, "math-101-cs", records[0].CourseID)
}

func TestImportRosterAmbiguousSubjectColumnSkipped(t *testing.T) {
	svc, courses, _, users, _, _ := newImportFixture()
	courses.byCode["MATH101"] = []models.CourseDetail{
		courseDetail("math-101-it", "MATH101", "BSIT"),
		courseDetail("math-101-cs", "MATH101", "BSCS"),
	}

	workbook := strings.Join([]string{
		"studentNumber,email,firstName,lastName,MATH101,PHYS101",
		"2026-007,gio@example.com,Gio,Vy,1.5,2.0",
	}, "\n")

	report, err := svc.ImportRoster(context.Background(), strings.NewReader(workbook))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)

	user := users.byNumber["2026-007"]
	require.NotNil(t, user)
	records := users.merged[user.ID]
	require.Len(t, records, 1, "a column no program resolves must not guess a course")
	assert.Equal(t, "phys-101", records[0].CourseID)
}

func TestImportRosterUpdatesExistingStudent(t *testing.T) {
	svc, _, _, users, _, _ := newImportFixture()
	users.byNumber = map[string]*models.User{
		"2026-005": {ID: "usr-existing", StudentNumber: "2026-005", Email: "old@example.com", Regular: false},
	}

	workbook := strings.Join([]string{
		"studentNumber,email,firstName,lastName,MATH101",
		"2026-005,new@example.com,Eva,Sy,1.25",
	}, "\n")

	report, err := svc.ImportRoster(context.Background(), strings.NewReader(workbook))
	require.NoError(t, err)
	assert.Equal(t, 1, report.StudentsUpserted)

	user := users.byNumber["2026-005"]
	assert.Equal(t, "usr-existing", user.ID)
	assert.Equal(t, "new@example.com", user.Email)
	assert.True(t, user.Regular)
}
