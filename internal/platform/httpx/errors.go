package httpx

import (
	"errors"
	"net/http"

	"github.com/jobready/authcore/internal/shared"
)

// StatusOf maps a domain error kind to its HTTP status.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, shared.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, shared.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrAuthorization):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to the JSON error envelope.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusOf(err)
	if status == http.StatusInternalServerError {
		Fail(w, status, "internal error", "internal_error")
		return
	}
	code := "error"
	if e, ok := shared.AsError(err); ok && e.Code != "" {
		code = e.Code
	}
	Fail(w, status, shared.UserSafeMessage(err), code)
}
