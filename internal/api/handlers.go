package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-home/internal/automation"
	"github.com/nerrad567/gray-logic-home/internal/home"
)

// sourceAPI is the trigger source when the caller names none.
const sourceAPI = "api"

// commandRequest is the optional body of POST /commands/{name} and
// POST /keys/{key}.
type commandRequest struct {
	Modifier string `json:"modifier"`
	Source   string `json:"source"`
}

// stateRequest is the body of PUT /state. At least one field is required.
type stateRequest struct {
	State        string `json:"state,omitempty"`
	DoNotDisturb *bool  `json:"doNotDisturb,omitempty"`
}

// doorbellRequest is the optional body of POST /doorbell.
type doorbellRequest struct {
	Source string `json:"source"`
}

// decodeOptional decodes a JSON body into v, accepting an empty body.
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	snap, err := s.home.Snapshot(r.Context())
	if err != nil {
		s.writeHomeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSetState(w http.ResponseWriter, r *http.Request) {
	var req stateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.State == "" && req.DoNotDisturb == nil {
		writeBadRequest(w, "state or doNotDisturb is required")
		return
	}

	ctx := r.Context()
	if req.State != "" {
		next, err := automation.ParseSystemState(req.State)
		if err != nil {
			writeInvalid(w, err.Error())
			return
		}
		if err := s.home.SetState(ctx, next); err != nil {
			s.writeHomeError(w, err)
			return
		}
	}
	if req.DoNotDisturb != nil {
		if err := s.home.SetDoNotDisturb(ctx, *req.DoNotDisturb); err != nil {
			s.writeHomeError(w, err)
			return
		}
	}

	s.handleGetState(w, r)
}

func (s *Server) handleExecuteCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := decodeOptional(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	name := chi.URLParam(r, "name")
	result, err := s.home.ExecuteCommandByName(r.Context(), name, req.Modifier, callerSource(r, req.Source))
	s.writeResult(w, result, err)
}

func (s *Server) handleKeyEntry(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := decodeOptional(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	key := chi.URLParam(r, "key")
	result, err := s.home.HandleKeyEntry(r.Context(), key, req.Modifier, callerSource(r, req.Source))
	s.writeResult(w, result, err)
}

func (s *Server) handleDoorbell(w http.ResponseWriter, r *http.Request) {
	var req doorbellRequest
	if err := decodeOptional(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := s.home.RingDoorbell(r.Context(), callerSource(r, req.Source)); err != nil {
		s.writeHomeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "ringing"})
}

func (s *Server) handleCapabilities(w http.ResponseWriter, _ *http.Request) {
	if s.capabilities == nil {
		writeJSON(w, http.StatusOK, map[string]any{"capabilities": []any{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"capabilities": s.capabilities.Statuses()})
}

// writeResult maps an execution outcome to a status code. The result, when
// there is one, is always the body.
func (s *Server) writeResult(w http.ResponseWriter, result *automation.ExecutionResult, err error) {
	switch {
	case result == nil && err != nil:
		s.writeHomeError(w, err)
	case errors.Is(err, automation.ErrCommandNotFound), errors.Is(err, home.ErrKeyNotBound):
		writeJSON(w, http.StatusNotFound, result)
	case errors.Is(err, automation.ErrRecursionLimit):
		writeJSON(w, http.StatusConflict, result)
	case err != nil:
		writeJSON(w, http.StatusUnprocessableEntity, result)
	case !result.OK():
		writeJSON(w, http.StatusBadGateway, result)
	default:
		writeJSON(w, http.StatusOK, result)
	}
}

// writeHomeError maps orchestrator errors without a result.
func (s *Server) writeHomeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, home.ErrStopped):
		writeStopped(w)
	case errors.Is(err, automation.ErrInvalidState):
		writeInvalid(w, err.Error())
	default:
		s.logger.Error("orchestrator request failed", "error", err)
		writeInternalError(w, "request failed")
	}
}
