package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"field-sync-service/internal/entity"
	"field-sync-service/internal/sync"
)

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	payload, ok := decodeEntity(w, r)
	if !ok {
		return
	}
	h.save(w, r, payload, false, http.StatusCreated)
}

// UpdateClient edits the client addressed by {id}, which is either its
// real id or the temp id it was given offline.
func (h *Handler) UpdateClient(w http.ResponseWriter, r *http.Request) {
	payload, ok := decodeEntity(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	if payload.TempID() == id || strings.HasPrefix(id, "tmp-") {
		payload[entity.FieldTempID] = id
		delete(payload, entity.FieldID)
	} else {
		payload[entity.FieldID] = id
	}

	h.save(w, r, payload, true, http.StatusOK)
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request, payload entity.Entity, isEdit bool, onlineStatus int) {
	result, err := h.syncManager.SaveEntity(r.Context(), payload, isEdit)
	if err != nil {
		writeError(w, err)
		return
	}

	status := onlineStatus
	if result.IsOffline {
		status = http.StatusAccepted
	}
	writeJSON(w, status, response{
		Success:   result.Success,
		Data:      result.Data,
		IsOffline: result.IsOffline,
		Message:   result.Message,
	})
}

func (h *Handler) ListLocalClients(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, h.syncManager.LocalRecords())
}

func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	// A client hanging up must not abort the drain it started.
	report, err := h.syncManager.TriggerSync(context.WithoutCancel(r.Context()))
	switch {
	case err == nil:
		writeData(w, http.StatusOK, report)
	case errors.Is(err, sync.ErrSyncInProgress):
		writeJSON(w, http.StatusConflict, response{Error: err.Error()})
	case errors.Is(err, sync.ErrOffline):
		writeJSON(w, http.StatusServiceUnavailable, response{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, response{Data: report, Error: err.Error()})
	}
}

func (h *Handler) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, h.syncManager.State())
}

func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, h.syncManager.PendingOperations())
}

func (h *Handler) ClearPending(w http.ResponseWriter, r *http.Request) {
	if err := h.syncManager.ClearPendingData(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, h.syncManager.State())
}

func (h *Handler) ResetLocalData(w http.ResponseWriter, r *http.Request) {
	if err := h.syncManager.ResetLocalData(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, h.syncManager.State())
}

func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, response{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	history, err := h.syncManager.History(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, history)
}

type connectivityRequest struct {
	Online *bool `json:"online"`
}

func (h *Handler) SetConnectivity(w http.ResponseWriter, r *http.Request) {
	if h.manual == nil {
		writeJSON(w, http.StatusConflict, response{Error: "connectivity is not in manual mode"})
		return
	}

	var req connectivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Online == nil {
		writeJSON(w, http.StatusBadRequest, response{Error: `body must be {"online": true|false}`})
		return
	}

	h.manual.Set(*req.Online)
	writeData(w, http.StatusOK, h.syncManager.State())
}

func decodeEntity(w http.ResponseWriter, r *http.Request) (entity.Entity, bool) {
	var payload entity.Entity
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, response{Error: "invalid JSON body: " + err.Error()})
		return nil, false
	}
	if payload == nil {
		payload = entity.Entity{}
	}
	return payload, true
}
