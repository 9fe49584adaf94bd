// Package http exposes the scanner over a small fiber API.
package http

import (
	"errors"

	"scanner_server/core/domain"
	"scanner_server/core/port/out"
	"scanner_server/pkg/apperr"
)

// toAppError maps a service error onto the HTTP error vocabulary.
func toAppError(err error) *apperr.AppError {
	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var re *domain.RetrievalError
	var pe *out.ProviderError
	switch {
	case errors.Is(err, domain.ErrScanInProgress):
		return apperr.ScanInProgress()
	case errors.Is(err, domain.ErrNotAuthenticated):
		return apperr.NotAuthenticated()
	case errors.Is(err, domain.ErrInvalidState):
		return apperr.InvalidState(err)
	case errors.Is(err, domain.ErrUnknownSource):
		return apperr.BadRequest(err.Error())
	case errors.As(err, &pe) && (pe.Code == out.ProviderErrTokenExpired || pe.Code == out.ProviderErrAuth):
		ae := apperr.NotAuthenticated()
		ae.Err = err
		return ae
	case errors.As(err, &re):
		ae := apperr.RetrievalFailed(string(domain.StageEnumerate), err)
		if re.PageToken != "" {
			ae.WithDetail("page_token", re.PageToken)
		}
		return ae
	default:
		return apperr.InternalWithError(err)
	}
}
