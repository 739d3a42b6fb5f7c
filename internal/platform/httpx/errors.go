// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// Stable body error codes for the authorization decision surface.
const (
	CodeUnauthorized              = "UNAUTHORIZED"
	CodeTokenExpired              = "TOKEN_EXPIRED"
	CodeInvalidToken              = "INVALID_TOKEN"
	CodeAccountInactive           = "ACCOUNT_INACTIVE"
	CodeForbidden                 = "FORBIDDEN"
	CodeInsufficientPermissions   = "INSUFFICIENT_PERMISSIONS"
	CodeNoPatientAssignment       = "NO_PATIENT_ASSIGNMENT"
	CodeReadOnlyAccess            = "READ_ONLY_ACCESS"
	CodeSecurityViolation         = "SECURITY_VIOLATION"
	CodeInsufficientJustification = "INSUFFICIENT_JUSTIFICATION"
	CodeAdminRequired             = "ADMIN_REQUIRED"
	CodeAlreadyAssigned           = "ALREADY_ASSIGNED"
	CodeRateLimited               = "RATE_LIMITED"
	CodeInternal                  = "INTERNAL_ERROR"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
