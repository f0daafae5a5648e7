package console

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/relaybox/internal/control"
	"github.com/nerrad567/relaybox/internal/relay"
)

// Error is the body of every non-2xx console response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Machine-readable values of Error.Code.
const (
	ErrCodeBadRequest = "bad_request"
	ErrCodeNotFound   = "not_found"
	ErrCodeConflict   = "conflict"
	ErrCodeBindFailed = "bind_failed"
	ErrCodeInternal   = "internal_error"
)

// classifyStartError maps a controller start failure to a status and code.
// Unknown errors are internal.
func classifyStartError(err error) (int, string) {
	var bindErr *relay.BindError
	switch {
	case errors.Is(err, relay.ErrAlreadyRunning):
		return http.StatusConflict, ErrCodeConflict
	case errors.Is(err, relay.ErrInvalidPort), errors.Is(err, control.ErrInvalidAddress):
		return http.StatusBadRequest, ErrCodeBadRequest
	case errors.As(err, &bindErr):
		return http.StatusConflict, ErrCodeBindFailed
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may have gone away
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}
