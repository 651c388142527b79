package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"

	"taskstream/internal/engine"
	dErrors "taskstream/pkg/domain-errors"
)

type errorResponse struct {
	Error          string `json:"error"`
	Message        string `json:"message,omitempty"`
	CurrentVersion uint64 `json:"currentVersion,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError translates engine and domain errors into wire responses. A
// concurrency conflict carries the current version so the client can
// refresh and resubmit.
func writeError(w http.ResponseWriter, err error) {
	var conflict *engine.ConflictError
	if errors.As(err, &conflict) {
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:          string(dErrors.CodeConflict),
			Message:        "stale expected version",
			CurrentVersion: conflict.CurrentVersion,
		})
		return
	}

	code := dErrors.CodeOf(err)
	status := statusFor(code)
	message := ""
	var de *dErrors.Error
	if errors.As(err, &de) {
		message = de.Message
	}
	writeJSON(w, status, errorResponse{Error: string(code), Message: message})
}

func statusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeInvalidInput, dErrors.CodeInvariantViolation:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
