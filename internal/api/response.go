package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"field-sync-service/internal/logger"
	"field-sync-service/internal/remote"
	"field-sync-service/internal/sync"
)

// response is the uniform body of every API reply.
type response struct {
	Success    bool              `json:"success"`
	Data       any               `json:"data,omitempty"`
	Error      string            `json:"error,omitempty"`
	IsOffline  bool              `json:"isOffline,omitempty"`
	Message    string            `json:"message,omitempty"`
	Validation map[string]string `json:"validation,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Log.Warn("Failed to write response", zap.Error(err))
	}
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, response{Success: true, Data: data})
}

// writeError maps engine and remote errors to a status and body.
func writeError(w http.ResponseWriter, err error) {
	var (
		verr      *sync.ValidationError
		remoteErr *remote.Error
	)

	switch {
	case errors.As(err, &verr):
		fields := make(map[string]string, len(verr.Fields))
		for _, f := range verr.Fields {
			fields[f] = "required"
		}
		writeJSON(w, http.StatusUnprocessableEntity, response{Error: err.Error(), Validation: fields})
	case errors.As(err, &remoteErr) && errors.Is(err, remote.ErrRejected):
		status := remoteErr.StatusCode
		if status < 400 || status >= 500 {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, response{Error: remoteErr.Message, Validation: remoteErr.Fields})
	case errors.Is(err, remote.ErrRejected):
		writeJSON(w, http.StatusUnprocessableEntity, response{Error: err.Error()})
	default:
		logger.Log.Error("Request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, response{Error: err.Error()})
	}
}
