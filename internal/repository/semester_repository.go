package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/unireg-ph/prereg-api/internal/models"
)

// SemesterRepository handles the global active-term record.
type SemesterRepository struct {
	db *sqlx.DB
}

// NewSemesterRepository constructs the repository.
func NewSemesterRepository(db *sqlx.DB) *SemesterRepository {
	return &SemesterRepository{db: db}
}

// FindActive returns the single active semester record.
func (r *SemesterRepository) FindActive(ctx context.Context) (*models.Semester, error) {
	const query = `SELECT id, name, active, updated_at FROM semesters WHERE active = TRUE LIMIT 1`
	var semester models.Semester
	if err := r.db.GetContext(ctx, &semester, query); err != nil {
		return nil, err
	}
	return &semester, nil
}

// SetActive switches the active term to the named semester, creating the
// record on first use.
func (r *SemesterRepository) SetActive(ctx context.Context, name string) (*models.Semester, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin set semester: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `UPDATE semesters SET active = FALSE, updated_at = $1 WHERE active = TRUE`, now); err != nil {
		return nil, fmt.Errorf("deactivate semester: %w", err)
	}
	const upsert = `INSERT INTO semesters (id, name, active, updated_at) VALUES ($1, $2, TRUE, $3)
        ON CONFLICT (name) DO UPDATE SET active = TRUE, updated_at = EXCLUDED.updated_at
        RETURNING id, name, active, updated_at`
	var semester models.Semester
	if err := tx.GetContext(ctx, &semester, upsert, uuid.NewString(), name, now); err != nil {
		return nil, fmt.Errorf("activate semester: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit set semester: %w", err)
	}
	return &semester, nil
}
