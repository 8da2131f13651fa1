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

// ScheduleRepository handles persistence of section schedules.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository constructs the repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// List returns schedules filtered by the provided criteria.
func (r *ScheduleRepository) List(ctx context.Context, filter models.ScheduleFilter) ([]models.Schedule, int, error) {
	base := "FROM schedules WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Section != "" {
		conditions = append(conditions, fmt.Sprintf("section = $%d", len(args)+1))
		args = append(args, filter.Section)
	}
	if filter.Archived != nil {
		conditions = append(conditions, fmt.Sprintf("archived = $%d", len(args)+1))
		args = append(args, *filter.Archived)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{"code": true, "section": true, "created_at": true}
	if !allowedSorts[sortBy] {
		sortBy = "code"
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

	query := fmt.Sprintf("SELECT id, code, course_id, section, archived, created_at %s ORDER BY %s %s LIMIT %d OFFSET %d", base, sortBy, order, size, offset)
	var schedules []models.Schedule
	if err := r.db.SelectContext(ctx, &schedules, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list schedules: %w", err)
	}

	countQuery := "SELECT COUNT(*) " + base
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count schedules: %w", err)
	}

	for i := range schedules {
		blocks, err := r.blocksOf(ctx, schedules[i].ID)
		if err != nil {
			return nil, 0, err
		}
		schedules[i].Blocks = blocks
	}
	return schedules, total, nil
}

// FindByID returns a schedule with its ordered meeting blocks.
func (r *ScheduleRepository) FindByID(ctx context.Context, id string) (*models.Schedule, error) {
	const query = `SELECT id, code, course_id, section, archived, created_at FROM schedules WHERE id = $1`
	var schedule models.Schedule
	if err := r.db.GetContext(ctx, &schedule, query, id); err != nil {
		return nil, err
	}
	blocks, err := r.blocksOf(ctx, id)
	if err != nil {
		return nil, err
	}
	schedule.Blocks = blocks
	return &schedule, nil
}

// Create persists one schedule with its meeting blocks.
func (r *ScheduleRepository) Create(ctx context.Context, schedule *models.Schedule) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create schedule: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := createScheduleTx(ctx, tx, schedule); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create schedule: %w", err)
	}
	return nil
}

// BulkCreate persists a batch of schedules in one transaction. Used by the
// import reconciler after grouping rows.
func (r *ScheduleRepository) BulkCreate(ctx context.Context, schedules []*models.Schedule) error {
	if len(schedules) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bulk create schedules: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, schedule := range schedules {
		if err := createScheduleTx(ctx, tx, schedule); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bulk create schedules: %w", err)
	}
	return nil
}

// SetArchived flips the archive flag.
func (r *ScheduleRepository) SetArchived(ctx context.Context, id string, archived bool) error {
	const query = `UPDATE schedules SET archived = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, archived); err != nil {
		return fmt.Errorf("archive schedule: %w", err)
	}
	return nil
}

func (r *ScheduleRepository) blocksOf(ctx context.Context, scheduleID string) ([]models.MeetingBlock, error) {
	var blocks []models.MeetingBlock
	if err := r.db.SelectContext(ctx, &blocks,
		`SELECT schedule_id, position, day, room, start_time, end_time FROM schedule_blocks WHERE schedule_id = $1 ORDER BY position`, scheduleID); err != nil {
		return nil, fmt.Errorf("load schedule blocks: %w", err)
	}
	return blocks, nil
}

func createScheduleTx(ctx context.Context, tx *sqlx.Tx, schedule *models.Schedule) error {
	if schedule.ID == "" {
		schedule.ID = uuid.NewString()
	}
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO schedules (id, code, course_id, section, archived, created_at)
        VALUES (:id, :code, :course_id, :section, :archived, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, schedule); err != nil {
		return fmt.Errorf("create schedule: %w", err)
	}
	for i, block := range schedule.Blocks {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schedule_blocks (schedule_id, position, day, room, start_time, end_time) VALUES ($1, $2, $3, $4, $5, $6)`,
			schedule.ID, i, block.Day, block.Room, block.StartTime, block.EndTime); err != nil {
			return fmt.Errorf("insert schedule block: %w", err)
		}
	}
	return nil
}
