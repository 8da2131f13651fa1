package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/unireg-ph/prereg-api/internal/models"
)

// CounterRepository handles named monotonic sequences.
type CounterRepository struct {
	db *sqlx.DB
}

// NewCounterRepository constructs the repository.
func NewCounterRepository(db *sqlx.DB) *CounterRepository {
	return &CounterRepository{db: db}
}

// Increment bumps the named counter and returns the post-increment value.
// The upsert and increment happen in a single statement so two concurrent
// callers can never observe the same value.
func (r *CounterRepository) Increment(ctx context.Context, name string) (int64, error) {
	const query = `INSERT INTO counters (name, value) VALUES ($1, 1)
        ON CONFLICT (name) DO UPDATE SET value = counters.value + 1
        RETURNING value`
	var value int64
	if err := r.db.GetContext(ctx, &value, query, name); err != nil {
		return 0, fmt.Errorf("increment counter %s: %w", name, err)
	}
	return value, nil
}

// Get returns the current value without incrementing. Missing counters
// read as zero.
func (r *CounterRepository) Get(ctx context.Context, name string) (int64, error) {
	const query = `SELECT COALESCE((SELECT value FROM counters WHERE name = $1), 0)`
	var value int64
	if err := r.db.GetContext(ctx, &value, query, name); err != nil {
		return 0, fmt.Errorf("get counter %s: %w", name, err)
	}
	return value, nil
}

// List returns all counters for the admin dashboard.
func (r *CounterRepository) List(ctx context.Context) ([]models.Counter, error) {
	const query = `SELECT name, value FROM counters ORDER BY name`
	var counters []models.Counter
	if err := r.db.SelectContext(ctx, &counters, query); err != nil {
		return nil, fmt.Errorf("list counters: %w", err)
	}
	return counters, nil
}

// ResetAll zeroes every counter. Used at the start of a new enrollment cycle.
func (r *CounterRepository) ResetAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE counters SET value = 0`); err != nil {
		return fmt.Errorf("reset counters: %w", err)
	}
	return nil
}
