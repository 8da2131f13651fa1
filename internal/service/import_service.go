package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/unireg-ph/prereg-api/internal/models"
	appErrors "github.com/unireg-ph/prereg-api/pkg/errors"
	"github.com/unireg-ph/prereg-api/pkg/spreadsheet"
)

type importCourseRepository interface {
	FindByCode(ctx context.Context, code string) ([]models.CourseDetail, error)
}

type importScheduleRepository interface {
	BulkCreate(ctx context.Context, schedules []*models.Schedule) error
}

type importUserRepository interface {
	FindByStudentNumber(ctx context.Context, studentNumber string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	MergeAcademicRecords(ctx context.Context, studentID string, records []models.AcademicRecord) error
}

type importProgramRepository interface {
	FindByName(ctx context.Context, name string) (*models.Program, error)
}

type codeMinter interface {
	Next(ctx context.Context) (string, error)
}

type regularEnroller interface {
	EnrollRegular(ctx context.Context, studentID string) ([]models.Course, error)
}

// Metadata columns of a roster workbook. Every other column is read as a
// subject code carrying a grade.
var rosterMetadataColumns = map[string]bool{
	"studentnumber": true,
	"email":         true,
	"firstname":     true,
	"lastname":      true,
	"middlename":    true,
	"program":       true,
	"year":          true,
	"section":       true,
	"role":          true,
}

// ImportService reconciles uploaded workbooks against the catalog and the
// student roster. Rows fail individually; only an unreadable workbook or
// missing required headers abort a batch.
type ImportService struct {
	reader    *spreadsheet.Reader
	courses   importCourseRepository
	schedules importScheduleRepository
	users     importUserRepository
	programs  importProgramRepository
	codes     codeMinter
	enroller  regularEnroller
	notifier  Notifier
	logger    *zap.Logger
}

// NewImportService wires the reconciler.
func NewImportService(reader *spreadsheet.Reader, courses importCourseRepository, schedules importScheduleRepository, users importUserRepository, programs importProgramRepository, codes codeMinter, enroller regularEnroller, notifier Notifier, logger *zap.Logger) *ImportService {
	if reader == nil {
		reader = spreadsheet.NewReader()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImportService{
		reader:    reader,
		courses:   courses,
		schedules: schedules,
		users:     users,
		programs:  programs,
		codes:     codes,
		enroller:  enroller,
		notifier:  notifier,
		logger:    logger,
	}
}

type scheduleGroup struct {
	courseCode string
	program    string
	section    string
	rows       []spreadsheet.Row
	firstRow   int
}

// ImportSchedules creates section offerings from a workbook. Rows sharing
// (code, section) form one schedule whose meeting blocks keep row order;
// each group receives one generated schedule code.
func (s *ImportService) ImportSchedules(ctx context.Context, src io.Reader) (*models.ImportReport, error) {
	sheet, err := s.reader.Read(src)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unreadable workbook")
	}
	if missing := sheet.HasHeaders("code", "section", "day", "startTime", "endTime"); len(missing) > 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "missing required columns: "+strings.Join(missing, ", "))
	}

	report := &models.ImportReport{}
	groups := make(map[string]*scheduleGroup)
	var order []string

	for i, row := range sheet.Rows {
		rowNum := i + 2
		code := row.Get("code")
		section := row.Get("section")
		if code == "" || section == "" {
			report.AddError(rowNum, "missing course code or section")
			continue
		}
		key := strings.ToUpper(code) + "|" + strings.ToUpper(section)
		group, ok := groups[key]
		if !ok {
			group = &scheduleGroup{courseCode: code, program: row.Get("program"), section: section, firstRow: rowNum}
			groups[key] = group
			order = append(order, key)
		}
		if group.program == "" {
			group.program = row.Get("program")
		}
		group.rows = append(group.rows, row)
		report.Processed++
	}

	resolved, ambiguous, err := s.resolveGroups(ctx, groups, report)
	if err != nil {
		return nil, err
	}
	if len(ambiguous) > 0 {
		sort.Strings(ambiguous)
		return nil, appErrors.Clone(appErrors.ErrValidation,
			"ambiguous course codes, add a program column to disambiguate: "+strings.Join(ambiguous, "; "))
	}

	var schedules []*models.Schedule
	for _, key := range order {
		group := groups[key]
		courseID, ok := resolved[key]
		if !ok {
			continue
		}
		code, err := s.codes.Next(ctx)
		if err != nil {
			return nil, err
		}
		schedule := &models.Schedule{Code: code, CourseID: courseID, Section: group.section}
		for _, row := range group.rows {
			schedule.Blocks = append(schedule.Blocks, models.MeetingBlock{
				Day:       row.Get("day"),
				Room:      row.Get("room"),
				StartTime: row.Get("startTime"),
				EndTime:   row.Get("endTime"),
			})
		}
		schedules = append(schedules, schedule)
	}

	if len(schedules) > 0 {
		if err := s.schedules.BulkCreate(ctx, schedules); err != nil {
			return nil, storeError(err, "failed to persist schedules")
		}
	}
	report.SchedulesCreated = len(schedules)
	return report, nil
}

// resolveGroups maps each group to a course ID. Groups whose code matches
// no course fail individually; codes shared by several programs without a
// program hint accumulate into the ambiguous batch error.
func (s *ImportService) resolveGroups(ctx context.Context, groups map[string]*scheduleGroup, report *models.ImportReport) (map[string]string, []string, error) {
	resolved := make(map[string]string, len(groups))
	var ambiguous []string

	for key, group := range groups {
		candidates, err := s.courses.FindByCode(ctx, group.courseCode)
		if err != nil {
			return nil, nil, storeError(err, "failed to resolve course "+group.courseCode)
		}
		switch {
		case len(candidates) == 0:
			report.Processed -= len(group.rows)
			for range group.rows {
				report.AddError(group.firstRow, "unknown course code "+group.courseCode)
			}
		case len(candidates) == 1:
			resolved[key] = candidates[0].ID
		default:
			match := matchProgram(candidates, group.program)
			if match == "" {
				ambiguous = append(ambiguous, group.courseCode+" ("+candidatePrograms(candidates)+")")
				continue
			}
			resolved[key] = match
		}
	}
	return resolved, ambiguous, nil
}

// ImportRoster upserts students by student number, merges their imported
// grades into the transcript and routes each row to the regular or
// irregular outcome.
func (s *ImportService) ImportRoster(ctx context.Context, src io.Reader) (*models.ImportReport, error) {
	sheet, err := s.reader.Read(src)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unreadable workbook")
	}
	if missing := sheet.HasHeaders("studentNumber", "email", "firstName", "lastName"); len(missing) > 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "missing required columns: "+strings.Join(missing, ", "))
	}

	subjectColumns := make([]string, 0, len(sheet.Headers))
	for _, header := range sheet.Headers {
		if header == "" || rosterMetadataColumns[strings.ToLower(header)] {
			continue
		}
		subjectColumns = append(subjectColumns, header)
	}

	report := &models.ImportReport{}
	// Sequential processing keeps per-student upserts serialized.
	for i, row := range sheet.Rows {
		rowNum := i + 2
		if err := s.importRosterRow(ctx, row, subjectColumns, report); err != nil {
			report.AddError(rowNum, err.Error())
			continue
		}
		report.Processed++
	}
	return report, nil
}

func (s *ImportService) importRosterRow(ctx context.Context, row spreadsheet.Row, subjectColumns []string, report *models.ImportReport) error {
	studentNumber := row.Get("studentNumber")
	email := row.Get("email")
	if studentNumber == "" || email == "" {
		return errors.New("missing student number or email")
	}

	user, err := s.upsertStudent(ctx, row, studentNumber, email)
	if err != nil {
		return err
	}
	report.StudentsUpserted++

	records, flagged := s.parseGradeColumns(ctx, row, subjectColumns, user.ID)
	if len(records) > 0 {
		if err := s.users.MergeAcademicRecords(ctx, user.ID, records); err != nil {
			return fmt.Errorf("merge grades: %w", err)
		}
	}

	if len(flagged) > 0 {
		if user.Regular {
			user.Regular = false
			if err := s.users.Update(ctx, user); err != nil {
				return fmt.Errorf("flag irregular: %w", err)
			}
		}
		report.Irregular++
		if s.notifier != nil {
			s.notifier.QueueGradeConcern(*user, flagged)
		}
		return nil
	}

	if !user.Regular {
		user.Regular = true
		if err := s.users.Update(ctx, user); err != nil {
			return fmt.Errorf("restore regular: %w", err)
		}
	}
	if s.enroller != nil {
		if _, err := s.enroller.EnrollRegular(ctx, user.ID); err != nil {
			return fmt.Errorf("enroll regular: %w", err)
		}
	}
	report.Regular++
	if s.notifier != nil {
		s.notifier.QueueEnrollmentConfirmation(*user)
	}
	return nil
}

// upsertStudent finds or creates the account for a roster row. New
// accounts get the student number as their initial password.
func (s *ImportService) upsertStudent(ctx context.Context, row spreadsheet.Row, studentNumber, email string) (*models.User, error) {
	year, _ := strconv.Atoi(row.Get("year"))
	programID, err := s.resolveProgram(ctx, row.Get("program"))
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByStudentNumber(ctx, studentNumber)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("look up student %s: %w", studentNumber, err)
	}

	if user == nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(studentNumber), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash initial password: %w", err)
		}
		user = &models.User{
			Username:      studentNumber,
			Email:         email,
			PasswordHash:  string(hash),
			FirstName:     row.Get("firstName"),
			MiddleName:    row.Get("middleName"),
			LastName:      row.Get("lastName"),
			Role:          models.RoleStudent,
			StudentNumber: studentNumber,
			ProgramID:     programID,
			Year:          year,
			Section:       row.Get("section"),
			Approved:      true,
		}
		if err := s.users.Create(ctx, user); err != nil {
			return nil, fmt.Errorf("create student %s: %w", studentNumber, err)
		}
		return user, nil
	}

	user.Email = email
	user.FirstName = row.Get("firstName")
	user.MiddleName = row.Get("middleName")
	user.LastName = row.Get("lastName")
	if programID != nil {
		user.ProgramID = programID
	}
	if year > 0 {
		user.Year = year
	}
	if section := row.Get("section"); section != "" {
		user.Section = section
	}
	if err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("update student %s: %w", studentNumber, err)
	}
	return user, nil
}

// parseGradeColumns reads every subject column of a row. A code offered
// by several programs is matched against the row's program column.
// Unknown subjects, unparseable grades and columns left ambiguous are
// logged and skipped; flagged returns the codes carrying an ungraded or
// failing mark.
func (s *ImportService) parseGradeColumns(ctx context.Context, row spreadsheet.Row, subjectColumns []string, studentID string) ([]models.AcademicRecord, []string) {
	var records []models.AcademicRecord
	var flagged []string

	for _, column := range subjectColumns {
		raw := row.Get(column)
		if raw == "" {
			continue
		}
		candidates, err := s.courses.FindByCode(ctx, column)
		if err != nil {
			s.logger.Warn("subject lookup failed", zap.String("subject", column), zap.Error(err))
			continue
		}
		if len(candidates) == 0 {
			s.logger.Info("skipping unknown subject column", zap.String("subject", column))
			continue
		}

		course := candidates[0]
		if len(candidates) > 1 {
			courseID := matchProgram(candidates, row.Get("program"))
			if courseID == "" {
				s.logger.Warn("skipping ambiguous subject column",
					zap.String("subject", column),
					zap.String("programs", candidatePrograms(candidates)))
				continue
			}
			for _, candidate := range candidates {
				if candidate.ID == courseID {
					course = candidate
					break
				}
			}
		}

		grade, err := models.ParseGrade(raw)
		if err != nil {
			s.logger.Warn("skipping unparseable grade", zap.String("subject", column), zap.String("value", raw))
			continue
		}
		if grade.Failed() || grade.Kind == models.GradeUngraded {
			flagged = append(flagged, course.Code)
		}
		records = append(records, models.AcademicRecord{
			StudentID: studentID,
			CourseID:  course.ID,
			RawGrade:  raw,
		})
	}
	return records, flagged
}

func (s *ImportService) resolveProgram(ctx context.Context, name string) (*string, error) {
	if name == "" {
		return nil, nil
	}
	program, err := s.programs.FindByName(ctx, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Info("skipping unknown program", zap.String("program", name))
			return nil, nil
		}
		return nil, fmt.Errorf("look up program %s: %w", name, err)
	}
	return &program.ID, nil
}

func matchProgram(candidates []models.CourseDetail, program string) string {
	if program == "" {
		return ""
	}
	for _, candidate := range candidates {
		if candidate.ProgramName != nil && strings.EqualFold(*candidate.ProgramName, program) {
			return candidate.ID
		}
		if candidate.ProgramCode != nil && strings.EqualFold(*candidate.ProgramCode, program) {
			return candidate.ID
		}
	}
	return ""
}

func candidatePrograms(candidates []models.CourseDetail) string {
	names := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		switch {
		case candidate.ProgramName != nil:
			names = append(names, *candidate.ProgramName)
		case candidate.ProgramCode != nil:
			names = append(names, *candidate.ProgramCode)
		}
	}
	return strings.Join(names, ", ")
}
