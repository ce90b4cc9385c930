package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/benthamhq/bentham/pkg/log"
	"github.com/benthamhq/bentham/pkg/types"
)

// envelope is the uniform response shape for every route
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

// apiError carries a stable machine-readable code and a safe message.
// Messages never echo request input and never expose internals.
type apiError struct {
	Code    types.ErrorCode `json:"code"`
	Message string          `json:"message"`
}

func respondData(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, code types.ErrorCode, message string) {
	writeJSON(w, status, envelope{
		Success: false,
		Error:   &apiError{Code: code, Message: message},
	})
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger := log.WithComponent("gateway")
		logger.Error().Err(err).Msg("Failed to encode response")
	}
}
