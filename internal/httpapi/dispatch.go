package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/numera-app/numera/internal/backend"
	"github.com/numera-app/numera/internal/task"
)

// Backend is the slice of the backend client the HTTP layer needs: task
// dispatch plus the liveness probe behind /readyz.
type Backend interface {
	StartTask(ctx context.Context, method, path string, payload any) (task.ID, error)
	Ping(ctx context.Context) error
}

// backendRoutes maps each task type to the backend call that starts it.
// Payloads pass through from the UI request body; async_query is forced so
// the backend always answers with a task id.
var backendRoutes = map[task.Type]struct {
	method string
	path   string
}{
	task.TypeAddAccount:              {http.MethodPut, "/blockchains"},
	task.TypeRemoveAccount:           {http.MethodDelete, "/blockchains"},
	task.TypeQueryBalances:           {http.MethodGet, "/balances"},
	task.TypeQueryBlockchainBalances: {http.MethodGet, "/balances/blockchains"},
	task.TypeQueryExchangeBalances:   {http.MethodGet, "/exchanges/balances"},
	task.TypeTradeHistory:            {http.MethodGet, "/trades"},
	task.TypeProcessHistory:          {http.MethodGet, "/history"},
	task.TypeExchangeRates:           {http.MethodGet, "/exchange_rates"},
}

type startTaskRequest struct {
	Description  string          `json:"description"`
	IgnoreResult bool            `json:"ignore_result"`
	Payload      json.RawMessage `json:"payload"`
}

func (s *Server) handleStartTask(w http.ResponseWriter, r *http.Request) {
	typ := task.Type(chi.URLParam(r, "type"))
	route, ok := backendRoutes[typ]
	if !ok {
		respondError(w, http.StatusNotFound, "unknown_task_type", "no such task type")
		return
	}

	var req startTaskRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	payload := map[string]any{"async_query": true}
	if len(req.Payload) > 0 {
		var extra map[string]any
		if err := json.Unmarshal(req.Payload, &extra); err != nil {
			respondError(w, http.StatusBadRequest, "invalid_payload", "payload must be a JSON object")
			return
		}
		for k, v := range extra {
			payload[k] = v
		}
		payload["async_query"] = true
	}

	meta := task.Meta{Description: req.Description, IgnoreResult: req.IgnoreResult}
	fut, err := s.engine.Await(r.Context(), typ, meta, func(ctx context.Context) (task.ID, error) {
		return s.backend.StartTask(ctx, route.method, route.path, payload)
	})
	if err != nil {
		switch {
		case errors.Is(err, task.ErrTypePending):
			respondError(w, http.StatusConflict, "task_type_pending", err.Error())
		case errors.Is(err, backend.ErrRemote):
			respondError(w, http.StatusBadGateway, "backend_rejected", err.Error())
		default:
			respondError(w, http.StatusBadGateway, "backend_unreachable", err.Error())
		}
		return
	}

	respondJSON(w, http.StatusAccepted, fut.Record())
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	typ := task.Type(chi.URLParam(r, "type"))
	if !typ.Valid() {
		respondError(w, http.StatusNotFound, "unknown_task_type", "no such task type")
		return
	}
	if !s.engine.Cancel(typ) {
		respondError(w, http.StatusNotFound, "task_not_pending", "no outstanding task of that type")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"cancelled": string(typ)})
}
