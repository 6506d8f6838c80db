package httputil

import (
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"

	"github.com/tombee/conduit/pkg/errors"
)

// WriteJSON writes a JSON response with the given status code and data.
// If encoding fails, it logs the error.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to write JSON response", slog.Any("error", err))
	}
}

// WriteError writes a JSON error response with the given status code and message.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{
		"error": message,
	})
}

// WriteDomainError maps a typed error to its HTTP status and writes it.
// Unknown kinds become a 500 with a generic message so internal details
// never cross the API boundary.
func WriteDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.IsNotFound(err):
		WriteError(w, http.StatusNotFound, err.Error())
	case errors.IsAlreadyExists(err):
		WriteError(w, http.StatusConflict, err.Error())
	case errors.IsValidation(err):
		WriteError(w, http.StatusBadRequest, err.Error())
	case errors.IsRateLimit(err):
		w.Header().Set("Retry-After", "60")
		WriteError(w, http.StatusTooManyRequests, err.Error())
	case errors.IsTimeout(err):
		WriteError(w, http.StatusGatewayTimeout, err.Error())
	case errors.IsSessionExpired(err):
		WriteError(w, http.StatusGone, err.Error())
	default:
		var upstream *errors.UpstreamError
		if stderrors.As(err, &upstream) {
			WriteError(w, http.StatusBadGateway, err.Error())
			return
		}
		WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
