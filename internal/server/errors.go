package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/skyroll/internal/providers"
	"github.com/desertthunder/skyroll/internal/shared"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

var statusTable = []struct {
	err    error
	status int
}{
	{shared.ErrInvalidInput, http.StatusBadRequest},
	{shared.ErrMissingArgument, http.StatusBadRequest},
	{shared.ErrInvalidArgument, http.StatusBadRequest},
	{shared.ErrInvalidCredentialKey, http.StatusBadRequest},
	{shared.ErrMissingCredentials, http.StatusBadRequest},
	{shared.ErrInvalidState, http.StatusBadRequest},
	{shared.ErrUnsupportedProviderType, http.StatusBadRequest},
	{shared.ErrProviderNotFound, http.StatusNotFound},
	{shared.ErrIndexOutOfRange, http.StatusNotFound},
	{shared.ErrInstanceMissing, http.StatusNotFound},
	{shared.ErrInstanceExists, http.StatusConflict},
	{shared.ErrInvalidTransition, http.StatusConflict},
	{shared.ErrReauthRequired, http.StatusUnauthorized},
	{shared.ErrNotAuthenticated, http.StatusUnauthorized},
	{shared.ErrTokenExpired, http.StatusUnauthorized},
	{shared.ErrAuthFailed, http.StatusUnauthorized},
	{shared.ErrServiceUnavailable, http.StatusServiceUnavailable},
	{shared.ErrAPIRequest, http.StatusBadGateway},
	{shared.ErrTimeout, http.StatusGatewayTimeout},
	{context.DeadlineExceeded, http.StatusGatewayTimeout},
}

// statusFor maps an error to the HTTP status reported to the client.
// Rejected authorization codes are the caller's problem; other upstream auth failures are the server's.
func statusFor(err error) int {
	var authErr *providers.ExternalAuthError
	if errors.As(err, &authErr) {
		if authErr.Reason == providers.ReasonUpstream {
			return http.StatusBadGateway
		}
		return http.StatusBadRequest
	}

	for _, entry := range statusTable {
		if errors.Is(err, entry.err) {
			return entry.status
		}
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := shared.MarshalJSON(v, false)
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
	w.Write([]byte("\n"))
}

// writeError reports err with the status from [statusFor]. Server-side failures are logged.
func writeError(w http.ResponseWriter, logger *log.Logger, err error) {
	status := statusFor(err)
	body := ErrorResponse{Error: err.Error()}

	var authErr *providers.ExternalAuthError
	if errors.As(err, &authErr) {
		body.Error = authErr.Message
		body.Reason = authErr.Reason
	}

	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, body)
}
