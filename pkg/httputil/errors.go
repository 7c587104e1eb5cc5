package httputil

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

// StatusForError maps rbac errors to HTTP status codes
func StatusForError(err error) int {
	switch {
	case errors.Is(err, rbac.ErrInvalidName), errors.Is(err, rbac.ErrInvalidSubject):
		return http.StatusBadRequest
	case errors.Is(err, rbac.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, rbac.ErrDuplicateName), errors.Is(err, rbac.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, rbac.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteRBACError writes err with the status StatusForError picks. Not-found
// responses carry the missing names. Store failures and unexpected errors
// are reported without their cause.
func WriteRBACError(w http.ResponseWriter, err error) {
	status := StatusForError(err)
	switch status {
	case http.StatusNotFound:
		WriteNotFound(w, err.Error(), rbac.MissingNames(err))
	case http.StatusServiceUnavailable:
		WriteServiceUnavailable(w, "store unavailable")
	case http.StatusInternalServerError:
		WriteErrorMessage(w, status, "internal server error")
	default:
		WriteError(w, status, err)
	}
}
