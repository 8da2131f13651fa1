package service

import (
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	appErrors "github.com/unireg-ph/prereg-api/pkg/errors"
)

func TestStoreErrorSurfacesConnectionFaultsAsRetryable(t *testing.T) {
	err := storeError(driver.ErrBadConn, "failed to load ticket")
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrTransient.Code, appErr.Code)
	assert.Equal(t, appErrors.ErrTransient.Status, appErr.Status)

	err = storeError(errors.New("null value in column"), "failed to load ticket")
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}
