package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCounterRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	return sqlxDB, mock, func() {
		sqlxDB.Close()
		db.Close()
	}
}

func TestCounterRepositoryIncrement(t *testing.T) {
	db, mock, cleanup := newCounterRepoMock(t)
	defer cleanup()

	repo := NewCounterRepository(db)
	mock.ExpectQuery("INSERT INTO counters").
		WithArgs("queue_number").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(42))

	value, err := repo.Increment(context.Background(), "queue_number")
	require.NoError(t, err)
	assert.Equal(t, int64(42), value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCounterRepositoryGetMissingReadsZero(t *testing.T) {
	db, mock, cleanup := newCounterRepoMock(t)
	defer cleanup()

	repo := NewCounterRepository(db)
	mock.ExpectQuery("SELECT COALESCE").
		WithArgs("schedule_code").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(0))

	value, err := repo.Get(context.Background(), "schedule_code")
	require.NoError(t, err)
	assert.Equal(t, int64(0), value)
}

func TestCounterRepositoryResetAll(t *testing.T) {
	db, mock, cleanup := newCounterRepoMock(t)
	defer cleanup()

	repo := NewCounterRepository(db)
	mock.ExpectExec("UPDATE counters SET value = 0").
		WillReturnResult(sqlmock.NewResult(0, 5))

	require.NoError(t, repo.ResetAll(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
