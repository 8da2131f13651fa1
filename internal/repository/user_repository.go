package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/unireg-ph/prereg-api/internal/models"
)

// UserRepository handles persistence of accounts, transcripts and the
// per-student enrollment plan.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs the repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, email, password_hash, first_name, middle_name, last_name, role,
    student_number, program_id, year, section, regular, approved, enrolled, email_sent, archived,
    successful_queue, missed_queue, transferred_queue, created_at, updated_at`

// List returns users filtered by the provided criteria.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	base := "FROM users WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		pattern := "%" + escapeLike(filter.Search) + "%"
		conditions = append(conditions, fmt.Sprintf(
			"(first_name ILIKE $%d OR last_name ILIKE $%d OR middle_name ILIKE $%d OR email ILIKE $%d OR username ILIKE $%d OR student_number ILIKE $%d)",
			len(args)+1, len(args)+1, len(args)+1, len(args)+1, len(args)+1, len(args)+1))
		args = append(args, pattern)
	}
	if filter.Role != nil {
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(args)+1))
		args = append(args, *filter.Role)
	}
	if filter.ProgramID != "" {
		conditions = append(conditions, fmt.Sprintf("program_id = $%d", len(args)+1))
		args = append(args, filter.ProgramID)
	}
	if filter.Archived != nil {
		conditions = append(conditions, fmt.Sprintf("archived = $%d", len(args)+1))
		args = append(args, *filter.Archived)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{"last_name": true, "username": true, "created_at": true, "student_number": true}
	if !allowedSorts[sortBy] {
		sortBy = "last_name"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", userColumns, base, sortBy, order, size, offset)
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	countQuery := "SELECT COUNT(*) " + base
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	return users, total, nil
}

// FindByID returns a user by ID.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE id = $1", userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByLogin matches username or email case-insensitively.
func (r *UserRepository) FindByLogin(ctx context.Context, login string) (*models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE UPPER(username) = UPPER($1) OR UPPER(email) = UPPER($1)", userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, login); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByStudentNumber returns the account keyed by student number.
func (r *UserRepository) FindByStudentNumber(ctx context.Context, studentNumber string) (*models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE student_number = $1", userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, studentNumber); err != nil {
		return nil, err
	}
	return &user, nil
}

// ExistsLogin checks for a duplicate username or email.
func (r *UserRepository) ExistsLogin(ctx context.Context, username, email, excludeID string) (bool, error) {
	query := `SELECT COUNT(*) FROM users WHERE (UPPER(username) = UPPER($1) OR UPPER(email) = UPPER($2))`
	args := []interface{}{username, email}
	if excludeID != "" {
		query += " AND id <> $3"
		args = append(args, excludeID)
	}
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return false, fmt.Errorf("check user login: %w", err)
	}
	return count > 0, nil
}

// Create persists a new user.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	const query = `INSERT INTO users (id, username, email, password_hash, first_name, middle_name, last_name, role,
        student_number, program_id, year, section, regular, approved, enrolled, email_sent, archived,
        successful_queue, missed_queue, transferred_queue, created_at, updated_at)
        VALUES (:id, :username, :email, :password_hash, :first_name, :middle_name, :last_name, :role,
        :student_number, :program_id, :year, :section, :regular, :approved, :enrolled, :email_sent, :archived,
        :successful_queue, :missed_queue, :transferred_queue, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// Update persists mutable account fields.
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()
	const query = `UPDATE users SET username = :username, email = :email, password_hash = :password_hash,
        first_name = :first_name, middle_name = :middle_name, last_name = :last_name, role = :role,
        student_number = :student_number, program_id = :program_id, year = :year, section = :section,
        regular = :regular, approved = :approved, enrolled = :enrolled, email_sent = :email_sent,
        archived = :archived, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

// MarkEmailSent flags an account once its notification email goes out.
func (r *UserRepository) MarkEmailSent(ctx context.Context, id string) error {
	const query = `UPDATE users SET email_sent = TRUE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark email sent: %w", err)
	}
	return nil
}

// LoadStudentDetail returns a student account with plan and transcript.
func (r *UserRepository) LoadStudentDetail(ctx context.Context, id string) (*models.StudentDetail, error) {
	user, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	detail := &models.StudentDetail{User: *user}

	if err := r.db.SelectContext(ctx, &detail.CourseToTake,
		`SELECT course_id FROM course_to_take WHERE student_id = $1 ORDER BY position`, id); err != nil {
		return nil, fmt.Errorf("load course plan: %w", err)
	}
	if err := r.db.SelectContext(ctx, &detail.CourseToTakeRemoved,
		`SELECT course_id FROM course_to_take_removed WHERE student_id = $1 ORDER BY removed_at`, id); err != nil {
		return nil, fmt.Errorf("load removed plan: %w", err)
	}
	if err := r.db.SelectContext(ctx, &detail.Records,
		`SELECT student_id, course_id, raw_grade, term, school_year FROM academic_records WHERE student_id = $1 ORDER BY course_id`, id); err != nil {
		return nil, fmt.Errorf("load academic records: %w", err)
	}
	return detail, nil
}

// ReplaceCourseToTake swaps the student's resolved plan for the given list
// and drops any overlap from the excluded set so the two stay disjoint.
func (r *UserRepository) ReplaceCourseToTake(ctx context.Context, studentID string, courseIDs []string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace plan: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM course_to_take WHERE student_id = $1`, studentID); err != nil {
		return fmt.Errorf("clear plan: %w", err)
	}
	for i, courseID := range courseIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO course_to_take (student_id, course_id, position) VALUES ($1, $2, $3)`,
			studentID, courseID, i); err != nil {
			return fmt.Errorf("insert plan course: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM course_to_take_removed WHERE student_id = $1 AND course_id = $2`,
			studentID, courseID); err != nil {
			return fmt.Errorf("restore plan disjointness: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace plan: %w", err)
	}
	return nil
}

// RemovePlanCourse moves a course from the plan to the excluded set.
func (r *UserRepository) RemovePlanCourse(ctx context.Context, studentID, courseID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin remove plan course: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	result, err := tx.ExecContext(ctx,
		`DELETE FROM course_to_take WHERE student_id = $1 AND course_id = $2`, studentID, courseID)
	if err != nil {
		return fmt.Errorf("remove plan course: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove plan course result: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO course_to_take_removed (student_id, course_id, removed_at) VALUES ($1, $2, $3)
         ON CONFLICT (student_id, course_id) DO NOTHING`,
		studentID, courseID, time.Now().UTC()); err != nil {
		return fmt.Errorf("record removed course: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit remove plan course: %w", err)
	}
	return nil
}

// RestorePlanCourse moves a course from the excluded set back to the plan.
func (r *UserRepository) RestorePlanCourse(ctx context.Context, studentID, courseID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin restore plan course: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	result, err := tx.ExecContext(ctx,
		`DELETE FROM course_to_take_removed WHERE student_id = $1 AND course_id = $2`, studentID, courseID)
	if err != nil {
		return fmt.Errorf("restore plan course: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("restore plan course result: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO course_to_take (student_id, course_id, position)
         VALUES ($1, $2, COALESCE((SELECT MAX(position) + 1 FROM course_to_take WHERE student_id = $1), 0))
         ON CONFLICT (student_id, course_id) DO NOTHING`,
		studentID, courseID); err != nil {
		return fmt.Errorf("re-add plan course: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit restore plan course: %w", err)
	}
	return nil
}

// MergeAcademicRecords upserts grades per (student, course): the incoming
// value wins for the same course, unrelated entries are preserved.
func (r *UserRepository) MergeAcademicRecords(ctx context.Context, studentID string, records []models.AcademicRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin merge records: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const query = `INSERT INTO academic_records (student_id, course_id, raw_grade, term, school_year)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (student_id, course_id) DO UPDATE SET raw_grade = EXCLUDED.raw_grade,
            term = EXCLUDED.term, school_year = EXCLUDED.school_year`
	for _, record := range records {
		if _, err := tx.ExecContext(ctx, query, studentID, record.CourseID, record.RawGrade, record.Term, record.SchoolYear); err != nil {
			return fmt.Errorf("merge record %s: %w", record.CourseID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit merge records: %w", err)
	}
	return nil
}

// CreateIncAgreements persists the student's acknowledgement of each INC
// prerequisite. Existing agreements are left untouched.
func (r *UserRepository) CreateIncAgreements(ctx context.Context, studentID string, courseIDs []string) error {
	const query = `INSERT INTO inc_agreements (id, student_id, course_id, agreed_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (student_id, course_id) DO NOTHING`
	for _, courseID := range courseIDs {
		if _, err := r.db.ExecContext(ctx, query, uuid.NewString(), studentID, courseID, time.Now().UTC()); err != nil {
			return fmt.Errorf("create inc agreement %s: %w", courseID, err)
		}
	}
	return nil
}

// IncAgreementsOf returns the set of INC course IDs the student has
// acknowledged.
func (r *UserRepository) IncAgreementsOf(ctx context.Context, studentID string) (map[string]bool, error) {
	var courseIDs []string
	if err := r.db.SelectContext(ctx, &courseIDs,
		`SELECT course_id FROM inc_agreements WHERE student_id = $1`, studentID); err != nil {
		return nil, fmt.Errorf("load inc agreements: %w", err)
	}
	agreed := make(map[string]bool, len(courseIDs))
	for _, id := range courseIDs {
		agreed[id] = true
	}
	return agreed, nil
}

// IncrementStaffCounter atomically bumps one throughput counter.
func (r *UserRepository) IncrementStaffCounter(ctx context.Context, staffID, counter string) error {
	switch counter {
	case models.StaffCounterSuccessful, models.StaffCounterMissed, models.StaffCounterTransferred:
	default:
		return errors.New("unknown staff counter " + counter)
	}
	query := fmt.Sprintf(`UPDATE users SET %s = %s + 1, updated_at = $2 WHERE id = $1`, counter, counter)
	if _, err := r.db.ExecContext(ctx, query, staffID, time.Now().UTC()); err != nil {
		return fmt.Errorf("increment %s: %w", counter, err)
	}
	return nil
}

// StaffCountersOf returns the throughput snapshot for one staff member.
func (r *UserRepository) StaffCountersOf(ctx context.Context, staffID string) (*models.StaffCounters, error) {
	const query = `SELECT id, successful_queue, missed_queue, transferred_queue FROM users WHERE id = $1`
	var counters models.StaffCounters
	if err := r.db.GetContext(ctx, &counters, query, staffID); err != nil {
		return nil, err
	}
	return &counters, nil
}

// ResetStaffCounters zeroes every operator's throughput counters.
func (r *UserRepository) ResetStaffCounters(ctx context.Context) error {
	const query = `UPDATE users SET successful_queue = 0, missed_queue = 0, transferred_queue = 0, updated_at = $1
        WHERE role IN ($2, $3, $4, $5)`
	if _, err := r.db.ExecContext(ctx, query, time.Now().UTC(),
		models.RoleAdmin, models.RoleRegistrar, models.RoleCashier, models.RoleInstructor); err != nil {
		return fmt.Errorf("reset staff counters: %w", err)
	}
	return nil
}
