package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lumikids/pip/pkg/core"
)

// errorBody is what the app's countdown-gated retry UI consumes.
type errorBody struct {
	Message        string `json:"message"`
	RetryDelayMs   int64  `json:"retryDelayMs,omitempty"`
	QuotaExhausted bool   `json:"quotaExhausted,omitempty"`
}

// writeError maps a failure to an HTTP status and the retry-UI body.
// Remote classes get their child-facing message and pacing; anything else
// is an internal error.
func (s *Server) writeError(w http.ResponseWriter, route string, err error) {
	var remote *core.RemoteError
	if errors.As(err, &remote) {
		status := http.StatusBadGateway
		switch remote.Type {
		case core.ErrQuotaExhausted:
			status = http.StatusTooManyRequests
		case core.ErrServiceUnavailable:
			status = http.StatusServiceUnavailable
		}
		s.metrics.remoteErrors.WithLabelValues(string(remote.Type)).Inc()
		writeJSON(w, status, errorBody{
			Message:        remote.Message,
			RetryDelayMs:   remote.RetryDelay.Milliseconds(),
			QuotaExhausted: remote.QuotaExhausted,
		})
		s.countRequest(route, status)
		return
	}

	s.logger.Error("handler failed", "route", route, "error", err)
	writeJSON(w, http.StatusInternalServerError, errorBody{Message: "internal error"})
	s.countRequest(route, http.StatusInternalServerError)
}

func (s *Server) writeBadRequest(w http.ResponseWriter, route, message string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Message: message})
	s.countRequest(route, http.StatusBadRequest)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
