package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/kasb-api/internal/domain"
)

// httpError maps domain sentinel errors onto HTTP statuses. Anything
// unmatched is reported as a generic internal error without leaking internals.
func httpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrAuthentication), errors.Is(err, domain.ErrToken):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrAuthorization):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrRateLimit):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		slog.Error("unhandled error", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
