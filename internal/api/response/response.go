// internal/api/response/response.go
package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/newthinker/presetd/internal/core"
)

// Meta contains response metadata.
type Meta struct {
	Timestamp time.Time `json:"timestamp"`
}

// SuccessResponse is the standard success response format.
type SuccessResponse struct {
	Data any  `json:"data"`
	Meta Meta `json:"meta"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   string `json:"cause,omitempty"`
	Details any    `json:"details,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// statusByCode maps error codes to HTTP statuses.
var statusByCode = map[string]int{
	core.ErrPresetNotFound.Code:        http.StatusNotFound,
	core.ErrSessionNotFound.Code:       http.StatusNotFound,
	core.ErrJobNotFound.Code:           http.StatusNotFound,
	core.ErrNameConflict.Code:          http.StatusConflict,
	core.ErrConfirmationRequired.Code:  http.StatusConflict,
	core.ErrOperationAborted.Code:      http.StatusConflict,
	core.ErrPresetActive.Code:          http.StatusConflict,
	core.ErrNoActivePreset.Code:        http.StatusConflict,
	core.ErrNamespaceAlreadyInUse.Code: http.StatusConflict,
	core.ErrSessionClosed.Code:         http.StatusGone,
	core.ErrInvalidName.Code:           http.StatusBadRequest,
	core.ErrMalformedDraftName.Code:    http.StatusBadRequest,
	core.ErrInvalidRequest.Code:        http.StatusBadRequest,
	core.ErrUnauthorized.Code:          http.StatusUnauthorized,
	core.ErrNetwork.Code:               http.StatusBadGateway,
	core.ErrBacktestFailed.Code:        http.StatusBadGateway,
}

// StatusFor returns the HTTP status for err.
func StatusFor(err error) int {
	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		if status, ok := statusByCode[coreErr.Code]; ok {
			return status
		}
	}
	return http.StatusInternalServerError
}

// JSON writes a success response with data.
func JSON(w http.ResponseWriter, status int, data any) {
	resp := SuccessResponse{
		Data: data,
		Meta: Meta{Timestamp: time.Now().UTC()},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// Error writes an error response.
func Error(w http.ResponseWriter, status int, err error) {
	ErrorWithDetails(w, status, err, nil)
}

// FromError writes an error response with the status mapped from err.
func FromError(w http.ResponseWriter, err error) {
	ErrorWithDetails(w, StatusFor(err), err, nil)
}

// ErrorWithDetails writes an error response carrying a structured payload
// the client needs to continue, such as a confirmation request.
func ErrorWithDetails(w http.ResponseWriter, status int, err error, details any) {
	detail := ErrorDetail{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Details: details,
	}

	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		detail.Code = coreErr.Code
		detail.Message = coreErr.Message
		if coreErr.Cause != nil {
			detail.Cause = coreErr.Cause.Error()
		}
	}

	resp := ErrorResponse{Error: detail}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
