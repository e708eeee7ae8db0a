package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-irfan/internal/fan"
)

const (
	// operationTimeout bounds one fan operation including transport pacing.
	// The client disconnecting does not cancel a started operation.
	operationTimeout = 10 * time.Second

	maxFanIDLen = 128
)

// fanResponse is the API view of a fan.
type fanResponse struct {
	ID         string       `json:"id"`
	Attributes fan.Info     `json:"attributes"`
	State      fan.Snapshot `json:"state"`
}

func newFanResponse(f *fan.Fan) fanResponse {
	return fanResponse{
		ID:         f.ID(),
		Attributes: f.Info(),
		State:      f.CurrentState(),
	}
}

type percentageRequest struct {
	Percentage *int `json:"percentage"`
}

type oscillationRequest struct {
	Oscillating *bool `json:"oscillating"`
}

type directionRequest struct {
	Direction string `json:"direction"`
}

// handleListFans returns every managed fan.
func (s *Server) handleListFans(w http.ResponseWriter, _ *http.Request) {
	fans := s.fans.Fans()
	out := make([]fanResponse, 0, len(fans))
	for _, f := range fans {
		out = append(out, newFanResponse(f))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"fans":  out,
		"count": len(out),
	})
}

// handleGetFan returns one fan.
func (s *Server) handleGetFan(w http.ResponseWriter, r *http.Request) {
	f, ok := s.lookupFan(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newFanResponse(f))
}

// handleFanHistory returns recorded state changes, newest first.
func (s *Server) handleFanHistory(w http.ResponseWriter, r *http.Request) {
	f, ok := s.lookupFan(w, r)
	if !ok {
		return
	}
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "state history is not available")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.history.List(r.Context(), f.ID(), limit)
	if err != nil {
		s.logger.Error("listing fan history failed", "fan_id", f.ID(), "error", err)
		writeInternalError(w, "failed to list history")
		return
	}
	if entries == nil {
		entries = []fan.HistoryEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"fan_id":  f.ID(),
		"entries": entries,
		"count":   len(entries),
	})
}

// handleSetPercentage handles PUT /fans/{id}/percentage {"percentage": 0..100}.
func (s *Server) handleSetPercentage(w http.ResponseWriter, r *http.Request) {
	f, ok := s.lookupFan(w, r)
	if !ok {
		return
	}

	var req percentageRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Percentage == nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "percentage is required")
		return
	}

	s.runOperation(w, r, f, "set_percentage", func(ctx context.Context) error {
		return f.SetPercentage(ctx, *req.Percentage)
	})
}

// handleTurnOn handles POST /fans/{id}/turn_on with an optional percentage.
func (s *Server) handleTurnOn(w http.ResponseWriter, r *http.Request) {
	f, ok := s.lookupFan(w, r)
	if !ok {
		return
	}

	var req percentageRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	s.runOperation(w, r, f, "turn_on", func(ctx context.Context) error {
		return f.TurnOn(ctx, req.Percentage)
	})
}

// handleTurnOff handles POST /fans/{id}/turn_off.
func (s *Server) handleTurnOff(w http.ResponseWriter, r *http.Request) {
	f, ok := s.lookupFan(w, r)
	if !ok {
		return
	}

	s.runOperation(w, r, f, "turn_off", f.TurnOff)
}

// handleOscillate handles PUT /fans/{id}/oscillation {"oscillating": bool}.
func (s *Server) handleOscillate(w http.ResponseWriter, r *http.Request) {
	f, ok := s.lookupFan(w, r)
	if !ok {
		return
	}

	var req oscillationRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Oscillating == nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "oscillating is required")
		return
	}

	s.runOperation(w, r, f, "oscillate", func(ctx context.Context) error {
		return f.Oscillate(ctx, *req.Oscillating)
	})
}

// handleSetDirection handles PUT /fans/{id}/direction {"direction": "forward"|"reverse"}.
func (s *Server) handleSetDirection(w http.ResponseWriter, r *http.Request) {
	f, ok := s.lookupFan(w, r)
	if !ok {
		return
	}

	var req directionRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Direction == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "direction is required")
		return
	}

	s.runOperation(w, r, f, "set_direction", func(ctx context.Context) error {
		return f.SetDirection(ctx, fan.Direction(req.Direction))
	})
}

// runOperation executes op and writes the fan's resulting state or the
// mapped error.
func (s *Server) runOperation(w http.ResponseWriter, r *http.Request, f *fan.Fan, name string, op func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), operationTimeout)
	defer cancel()

	err := op(ctx)

	s.logger.Info("fan operation",
		"fan_id", f.ID(),
		"operation", name,
		"subject", subjectFrom(r.Context()),
		"request_id", r.Context().Value(ctxKeyRequestID),
		"error", err,
	)

	if err != nil {
		writeOperationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newFanResponse(f))
}

// writeOperationError maps fan errors onto HTTP responses.
func writeOperationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, fan.ErrInvalidPercentage):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, fan.ErrUnsupported):
		writeError(w, http.StatusBadRequest, ErrCodeUnsupported, err.Error())
	case errors.Is(err, fan.ErrDispatchFailed):
		writeError(w, http.StatusBadGateway, ErrCodeDispatchFailed, err.Error())
	default:
		writeInternalError(w, "fan operation failed")
	}
}

// lookupFan resolves {id} or writes a 400/404.
func (s *Server) lookupFan(w http.ResponseWriter, r *http.Request) (*fan.Fan, bool) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxFanIDLen {
		writeBadRequest(w, "invalid fan ID")
		return nil, false
	}
	f, ok := s.fans.Fan(id)
	if !ok {
		writeNotFound(w, "fan not found")
		return nil, false
	}
	return f, true
}

// decodeBody decodes a JSON body. With allowEmpty an absent body leaves v
// untouched.
func decodeBody(r *http.Request, v any, allowEmpty bool) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if allowEmpty && errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
