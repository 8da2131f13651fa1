package service

import (
	appErrors "github.com/unireg-ph/prereg-api/pkg/errors"
)

// storeError classifies a repository failure. Connection-level faults
// surface as retryable so clients back off and retry; everything else
// is an internal error.
func storeError(err error, message string) error {
	if appErrors.Transient(err) {
		return appErrors.Wrap(err, appErrors.ErrTransient.Code, appErrors.ErrTransient.Status, message)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
