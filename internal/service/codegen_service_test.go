package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unireg-ph/prereg-api/internal/models"
	appErrors "github.com/unireg-ph/prereg-api/pkg/errors"
)

func fixedClock(year int) func() time.Time {
	return func() time.Time {
		return time.Date(year, time.June, 15, 12, 0, 0, 0, time.UTC)
	}
}

func TestCodeGeneratorFormat(t *testing.T) {
	counters := &mockCounterStore{}
	terms := &mockTermRepo{active: &models.Semester{Name: models.SemesterFirst, Active: true}}
	gen := NewCodeGenerator(counters, terms, fixedClock(2026), zap.NewNop())

	code, err := gen.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2026000001", code)

	code, err = gen.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2026000002", code)
}

func TestCodeGeneratorSemesterDigits(t *testing.T) {
	cases := map[string]string{
		models.SemesterFirst:  "2026000001",
		models.SemesterSecond: "2026100001",
		models.SemesterSummer: "2026200001",
	}
	for name, want := range cases {
		counters := &mockCounterStore{}
		terms := &mockTermRepo{active: &models.Semester{Name: name, Active: true}}
		gen := NewCodeGenerator(counters, terms, fixedClock(2026), zap.NewNop())

		code, err := gen.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, code, "semester %s", name)
	}
}

func TestCodeGeneratorNoActiveSemester(t *testing.T) {
	gen := NewCodeGenerator(&mockCounterStore{}, &mockTermRepo{}, fixedClock(2026), zap.NewNop())

	_, err := gen.Next(context.Background())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConfiguration.Code, appErrors.FromError(err).Code)
}

func TestCodeGeneratorUnknownSemesterName(t *testing.T) {
	terms := &mockTermRepo{active: &models.Semester{Name: "trimester", Active: true}}
	gen := NewCodeGenerator(&mockCounterStore{}, terms, fixedClock(2026), zap.NewNop())

	_, err := gen.Next(context.Background())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConfiguration.Code, appErrors.FromError(err).Code)
}

func TestCodeGeneratorSequenceNotConsumedOnFailure(t *testing.T) {
	counters := &mockCounterStore{}
	gen := NewCodeGenerator(counters, &mockTermRepo{}, fixedClock(2026), zap.NewNop())

	_, err := gen.Next(context.Background())
	require.Error(t, err)
	assert.Empty(t, counters.values)
}
