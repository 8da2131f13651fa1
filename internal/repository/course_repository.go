package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/unireg-ph/prereg-api/internal/models"
)

// CourseRepository handles persistence of catalog courses.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// List returns courses filtered by the provided criteria.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error) {
	base := `FROM courses c LEFT JOIN programs p ON p.id = c.program_id`
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		pattern := "%" + escapeLike(filter.Search) + "%"
		conditions = append(conditions, fmt.Sprintf("(c.title ILIKE $%d OR c.code ILIKE $%d OR c.description ILIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, pattern)
	}
	if filter.Prerequisite != "" {
		conditions = append(conditions, fmt.Sprintf(`EXISTS (SELECT 1 FROM course_prerequisites cp
            JOIN courses pc ON pc.id = cp.prerequisite_id
            WHERE cp.course_id = c.id AND pc.code ILIKE $%d)`, len(args)+1))
		args = append(args, "%"+escapeLike(filter.Prerequisite)+"%")
	}
	if filter.ProgramID != "" {
		conditions = append(conditions, fmt.Sprintf("c.program_id = $%d", len(args)+1))
		args = append(args, filter.ProgramID)
	}
	if filter.YearLevel > 0 {
		conditions = append(conditions, fmt.Sprintf("c.year_level = $%d", len(args)+1))
		args = append(args, filter.YearLevel)
	}
	if filter.Semester != "" {
		conditions = append(conditions, fmt.Sprintf("c.semester = $%d", len(args)+1))
		args = append(args, filter.Semester)
	}
	if filter.Archived != nil {
		conditions = append(conditions, fmt.Sprintf("c.archived = $%d", len(args)+1))
		args = append(args, *filter.Archived)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"title":      "c.title",
		"code":       "c.code",
		"year_level": "c.year_level",
		"created_at": "c.created_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "c.code"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT c.id, c.title, c.code, c.units, c.program_id, c.year_level, c.semester,
        c.description, c.archived, c.created_at, c.updated_at,
        p.name AS program_name, p.code AS program_code
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var courses []models.CourseDetail
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	countQuery := "SELECT COUNT(*) " + base + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}

	for i := range courses {
		prereqs, err := r.prerequisitesOf(ctx, courses[i].ID)
		if err != nil {
			return nil, 0, err
		}
		courses[i].Prerequisites = prereqs
	}
	return courses, total, nil
}

// FindByID returns a course with its ordered prerequisites.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT id, title, code, units, program_id, year_level, semester, description, archived, created_at, updated_at
        FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	prereqs, err := r.prerequisitesOf(ctx, id)
	if err != nil {
		return nil, err
	}
	course.Prerequisites = prereqs
	return &course, nil
}

// FindByIDs returns the subset of requested courses that exist, keyed by ID.
func (r *CourseRepository) FindByIDs(ctx context.Context, ids []string) (map[string]models.Course, error) {
	result := make(map[string]models.Course, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	query, args, err := sqlx.In(`SELECT id, title, code, units, program_id, year_level, semester, description, archived, created_at, updated_at
        FROM courses WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("build course lookup: %w", err)
	}
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("find courses: %w", err)
	}
	for _, course := range courses {
		prereqs, err := r.prerequisitesOf(ctx, course.ID)
		if err != nil {
			return nil, err
		}
		course.Prerequisites = prereqs
		result[course.ID] = course
	}
	return result, nil
}

// FindByCode returns every non-archived course carrying the code, across
// programs. Callers disambiguate by program when more than one matches.
func (r *CourseRepository) FindByCode(ctx context.Context, code string) ([]models.CourseDetail, error) {
	const query = `SELECT c.id, c.title, c.code, c.units, c.program_id, c.year_level, c.semester,
        c.description, c.archived, c.created_at, c.updated_at,
        p.name AS program_name, p.code AS program_code
        FROM courses c LEFT JOIN programs p ON p.id = c.program_id
        WHERE UPPER(c.code) = UPPER($1) AND c.archived = FALSE`
	var courses []models.CourseDetail
	if err := r.db.SelectContext(ctx, &courses, query, code); err != nil {
		return nil, fmt.Errorf("find course by code: %w", err)
	}
	return courses, nil
}

// ListForCurriculum returns the non-archived catalog courses for a program,
// year level and semester. Feeds the regular-student auto assignment.
func (r *CourseRepository) ListForCurriculum(ctx context.Context, programID string, yearLevel int, semester string) ([]models.Course, error) {
	const query = `SELECT id, title, code, units, program_id, year_level, semester, description, archived, created_at, updated_at
        FROM courses
        WHERE program_id = $1 AND year_level = $2 AND semester = $3 AND archived = FALSE
        ORDER BY code`
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, programID, yearLevel, semester); err != nil {
		return nil, fmt.Errorf("list curriculum courses: %w", err)
	}
	return courses, nil
}

// ExistsCode checks for a duplicate code within a program.
func (r *CourseRepository) ExistsCode(ctx context.Context, programID, code, excludeID string) (bool, error) {
	query := `SELECT COUNT(*) FROM courses WHERE program_id = $1 AND UPPER(code) = UPPER($2)`
	args := []interface{}{programID, code}
	if excludeID != "" {
		query += " AND id <> $3"
		args = append(args, excludeID)
	}
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return false, fmt.Errorf("check course code: %w", err)
	}
	return count > 0, nil
}

// Create persists a course and its prerequisite list.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	course.CreatedAt = now
	course.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create course: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const query = `INSERT INTO courses (id, title, code, units, program_id, year_level, semester, description, archived, created_at, updated_at)
        VALUES (:id, :title, :code, :units, :program_id, :year_level, :semester, :description, :archived, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	if err := replacePrerequisites(ctx, tx, course.ID, course.Prerequisites); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create course: %w", err)
	}
	return nil
}

// Update persists course fields and replaces the prerequisite list.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update course: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const query = `UPDATE courses
        SET title = :title, code = :code, units = :units, program_id = :program_id,
            year_level = :year_level, semester = :semester, description = :description,
            archived = :archived, updated_at = :updated_at
        WHERE id = :id`
	if _, err := tx.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	if err := replacePrerequisites(ctx, tx, course.ID, course.Prerequisites); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update course: %w", err)
	}
	return nil
}

// SetArchived flips the archive flag. Courses are never hard-deleted.
func (r *CourseRepository) SetArchived(ctx context.Context, id string, archived bool) error {
	const query = `UPDATE courses SET archived = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, archived, time.Now().UTC()); err != nil {
		return fmt.Errorf("archive course: %w", err)
	}
	return nil
}

func (r *CourseRepository) prerequisitesOf(ctx context.Context, courseID string) ([]string, error) {
	var prereqs []string
	if err := r.db.SelectContext(ctx, &prereqs,
		`SELECT prerequisite_id FROM course_prerequisites WHERE course_id = $1 ORDER BY position`, courseID); err != nil {
		return nil, fmt.Errorf("load prerequisites: %w", err)
	}
	return prereqs, nil
}

func replacePrerequisites(ctx context.Context, tx *sqlx.Tx, courseID string, prereqs []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM course_prerequisites WHERE course_id = $1`, courseID); err != nil {
		return fmt.Errorf("clear prerequisites: %w", err)
	}
	for i, prereqID := range prereqs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO course_prerequisites (course_id, prerequisite_id, position) VALUES ($1, $2, $3)`,
			courseID, prereqID, i); err != nil {
			return fmt.Errorf("insert prerequisite: %w", err)
		}
	}
	return nil
}
