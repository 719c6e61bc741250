package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/TheEntropyCollective/mediavault/pkg/common/vaulterr"
	"github.com/TheEntropyCollective/mediavault/pkg/security"
)

// APIResponse is the envelope of every JSON response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// statusFor maps an error onto an HTTP status and a message safe for clients.
// Denials are checked first so that nothing else about a refused request leaks.
func statusFor(err error) (int, string) {
	var maxBytes *http.MaxBytesError

	switch {
	case errors.Is(err, vaulterr.ErrAccessDenied):
		return http.StatusForbidden, "access denied"
	case errors.Is(err, vaulterr.ErrResourceNotFound),
		errors.Is(err, vaulterr.ErrRecordNotFound),
		errors.Is(err, vaulterr.ErrGrantNotFound):
		return http.StatusNotFound, "not found"
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, "upload too large"
	case errors.Is(err, vaulterr.ErrInvalidInput):
		return http.StatusBadRequest, security.SanitizeString(err.Error())
	case errors.Is(err, vaulterr.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "storage temporarily unavailable"
	case errors.Is(err, vaulterr.ErrAuthenticationFailure),
		errors.Is(err, vaulterr.ErrObjectNotFound):
		return http.StatusInternalServerError, "content unavailable or corrupted"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func sendData(w http.ResponseWriter, status int, data interface{}) {
	sendJSON(w, status, APIResponse{Success: true, Data: data})
}

func (s *Server) sendError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.WithFields(map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
			"status": status,
		}).WithError(err).Error("request failed")
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}
	sendJSON(w, status, APIResponse{Success: false, Error: message})
}
