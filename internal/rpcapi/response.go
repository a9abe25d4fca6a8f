package rpcapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/opencode-ai/agentrund/pkg/types"
)

// ErrorResponse is the JSON body of every non-2xx response, grounded on
// telnet2-opencode's internal/server/response.go shape.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeDomainError maps a types.DomainError's Kind to an HTTP status per
// §7's propagation policy: Validation and Persistence/Internal are RPC-level
// failures; Authorization, Provider and Tool are modeled as event-stream
// values elsewhere and only reach here if a handler surfaces one directly,
// in which case they still need a sane status.
func writeDomainError(w http.ResponseWriter, err error) {
	var derr *types.DomainError
	if !errors.As(err, &derr) {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: ErrorDetail{
			Kind:    string(types.ErrorInternal),
			Message: err.Error(),
		}})
		return
	}

	status := http.StatusInternalServerError
	switch derr.Kind {
	case types.ErrorValidation:
		status = http.StatusBadRequest
	case types.ErrorAuthorization:
		status = http.StatusForbidden
	case types.ErrorProvider, types.ErrorTool:
		status = http.StatusBadGateway
	case types.ErrorPersistence, types.ErrorInternal:
		status = http.StatusInternalServerError
	}

	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{
		Kind:    string(derr.Kind),
		Message: derr.Error(),
	}})
}
