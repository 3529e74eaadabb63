package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/dhruvsoni1802/browser-hub/internal/failure"
	"github.com/dhruvsoni1802/browser-hub/internal/session"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

// writeFailure maps a core error to its transport status by kind
func writeFailure(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "code", code, "error", err)
	}
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{
		Code:     code,
		Message:  err.Error(),
		Guidance: failure.GuidanceOf(err),
	}})
}

func statusFor(err error) (int, string) {
	if errors.Is(err, session.ErrInvalidKey) {
		return http.StatusBadRequest, ErrCodeInvalidRequest
	}

	switch failure.KindOf(err) {
	case failure.NotFound:
		return http.StatusNotFound, ErrCodeNotFound
	case failure.InvalidInput:
		return http.StatusBadRequest, ErrCodeInvalidRequest
	case failure.AttachFailure:
		return http.StatusServiceUnavailable, ErrCodeAttachFailed
	case failure.LaunchFailure:
		return http.StatusServiceUnavailable, ErrCodeLaunchFailed
	case failure.NavigationFailure:
		return http.StatusBadGateway, ErrCodeNavigationFailed
	case failure.PersistenceFailure:
		return http.StatusInternalServerError, ErrCodePersistenceFailed
	default:
		return http.StatusInternalServerError, ErrCodeInternalError
	}
}

// decodeJSON reads a JSON body. An empty body leaves dst untouched.
func decodeJSON(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
