package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/unireg-ph/prereg-api/internal/models"
	appErrors "github.com/unireg-ph/prereg-api/pkg/errors"
)

// CodeGenerator mints sortable schedule codes from the active term and a
// monotonic sequence: calendar year, one semester digit, then a
// zero-padded counter.
type CodeGenerator struct {
	counters  counterStore
	semesters activeTermReader
	now       func() time.Time
	logger    *zap.Logger
}

// NewCodeGenerator constructs the generator. now may be nil, in which
// case the system clock is used.
func NewCodeGenerator(counters counterStore, semesters activeTermReader, now func() time.Time, logger *zap.Logger) *CodeGenerator {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CodeGenerator{counters: counters, semesters: semesters, now: now, logger: logger}
}

// Next returns a fresh schedule code, e.g. "2026000042" for the 42nd
// code minted during the first semester of 2026. Codes from the same
// term sort by issue order.
func (g *CodeGenerator) Next(ctx context.Context) (string, error) {
	semester, err := g.semesters.FindActive(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrConfiguration, "no active semester configured")
		}
		return "", storeError(err, "failed to load active semester")
	}

	digit, ok := models.SemesterDigit(semester.Name)
	if !ok {
		return "", appErrors.Clone(appErrors.ErrConfiguration, "unrecognized semester name "+semester.Name)
	}

	sequence, err := g.counters.Increment(ctx, models.CounterScheduleCode)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrTransient.Code, appErrors.ErrTransient.Status, "failed to advance schedule code sequence")
	}

	code := fmt.Sprintf("%d%d%05d", g.now().Year(), digit, sequence)
	g.logger.Debug("minted schedule code", zap.String("code", code))
	return code, nil
}
