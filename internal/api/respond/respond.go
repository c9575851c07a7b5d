package respond

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/CARBONMOLECULE09/bear-code/internal/model"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    int                    `json:"code"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// WriteError writes a standardized error response
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	writeError(w, statusCode, message, nil)
}

func writeError(w http.ResponseWriter, statusCode int, message string, details map[string]interface{}) {
	WriteJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Code:    statusCode,
		Message: message,
		Details: details,
	})
}

// WriteBadRequest writes a 400 Bad Request response
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message)
}

// WriteNotFound writes a 404 Not Found response
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message)
}

// WriteInternalError writes a 500 Internal Server Error response
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message)
}

// StatusFor maps a service error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrLedgerInconsistency):
		// Checked first: its cause may wrap a classified error.
		return http.StatusInternalServerError
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrInsufficientCredits):
		return http.StatusPaymentRequired
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, model.ErrIndexingFailed):
		return http.StatusBadGateway
	case errors.Is(err, model.ErrExternalStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteServiceError writes err with the status from StatusFor. Unclassified errors
// are logged and their text is not exposed.
func WriteServiceError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	var details map[string]interface{}

	var ic *model.InsufficientCreditsError
	var ve model.ValidationError
	switch {
	case errors.As(err, &ic):
		details = map[string]interface{}{"required": ic.Required, "available": ic.Available}
	case errors.As(err, &ve):
		details = map[string]interface{}{"field": ve.Field}
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error().Stack().Err(err).Msg("request failed")
		if !errors.Is(err, model.ErrLedgerInconsistency) {
			msg = "internal error"
		}
	}
	writeError(w, status, msg, details)
}
