// Package api exposes the pricing engine over HTTP: a single action
// endpoint, admin authentication for event changes, and a WebSocket feed
// of engine notifications.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atmx/urgency-engine/internal/apperr"
	"github.com/atmx/urgency-engine/internal/engine"
)

// maxBodyBytes caps request bodies; a full 100-item batch fits easily.
const maxBodyBytes = 1 << 20

// Action names accepted by the dispatcher.
const (
	ActionCalculate = "calculate"
	ActionBatch     = "batch"
	ActionCalendar  = "calendar"
	ActionEvents    = "events"
	ActionStats     = "stats"
	ActionHealth    = "health"
)

// Event sub-actions carried in the events payload.
const (
	EventAdd    = "add_event"
	EventRemove = "remove_event"
	EventList   = "list_events"
)

// Response is the envelope of every reply.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// Envelope is the request body: one action name plus its payload.
type Envelope struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// request is the closed set of decoded actions.
type request interface {
	privileged() bool
}

type calculateRequest struct{ engine.QuoteRequest }

// batchRequest keeps items raw; each is decoded in its own batch slot.
type batchRequest struct {
	Requests []json.RawMessage `json:"requests"`
}

type calendarRequest struct{ engine.CalendarRequest }

type addEventRequest struct{ engine.AddEventRequest }

type removeEventRequest struct {
	EventID string `json:"eventId"`
}

type listEventsRequest struct{ engine.ListEventsRequest }

type statsRequest struct{}

type healthRequest struct{}

func (*calculateRequest) privileged() bool   { return false }
func (*batchRequest) privileged() bool       { return false }
func (*calendarRequest) privileged() bool    { return false }
func (*addEventRequest) privileged() bool    { return true }
func (*removeEventRequest) privileged() bool { return true }
func (*listEventsRequest) privileged() bool  { return false }
func (*statsRequest) privileged() bool       { return false }
func (*healthRequest) privileged() bool      { return false }

// Service serves the action endpoint.
type Service struct {
	engine *engine.Engine
	auth   *AdminAuth
}

// NewService creates the HTTP service.
func NewService(e *engine.Engine, auth *AdminAuth) *Service {
	if auth == nil {
		auth = NewAdminAuth(nil)
	}
	return &Service{engine: e, auth: auth}
}

// Routes mounts the service under r.
func (s *Service) Routes(r chi.Router) {
	r.Post("/urgency-pricing", s.HandleAction)
	r.Get("/urgency-pricing/stats", s.HandleStats)
	r.Get("/urgency-pricing/health", s.HandleHealth)
}

// HandleAction handles POST /api/v1/urgency-pricing.
func (s *Service) HandleAction(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var env Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeError(w, apperr.Validation("invalid request body: %v", err), nil)
		return
	}

	req, err := newRequest(env)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	if req.privileged() {
		if err := s.auth.Verify(r); err != nil {
			slog.Warn("rejected privileged action", "action", env.Action, "remote", r.RemoteAddr, "err", err)
			writeError(w, err, nil)
			return
		}
	}
	if err := decodeInto(env, req); err != nil {
		writeError(w, err, nil)
		return
	}

	data, err := s.dispatch(r.Context(), req)
	if err != nil {
		writeError(w, err, data)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

// HandleStats handles GET /api/v1/urgency-pricing/stats.
func (s *Service) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: s.engine.Stats(r.Context())})
}

// HandleHealth handles GET /health and GET /api/v1/urgency-pricing/health.
func (s *Service) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: s.engine.Health(r.Context())})
}

// newRequest resolves the action name to an empty request of the matching
// variant. Only the events sub-action is read from the payload, so
// privileged actions are known before their fields are decoded.
func newRequest(env Envelope) (request, error) {
	switch env.Action {
	case ActionCalculate:
		return &calculateRequest{}, nil
	case ActionBatch:
		return &batchRequest{}, nil
	case ActionCalendar:
		return &calendarRequest{}, nil
	case ActionEvents:
		return newEventRequest(env)
	case ActionStats:
		return &statsRequest{}, nil
	case ActionHealth:
		return &healthRequest{}, nil
	case "":
		return nil, apperr.Validation("action is required")
	default:
		return nil, apperr.Validation("unknown action %q", env.Action)
	}
}

func newEventRequest(env Envelope) (request, error) {
	var sub struct {
		Action string `json:"action"`
	}
	if err := decodePayload(env, &sub); err != nil {
		return nil, err
	}
	switch sub.Action {
	case EventAdd:
		return &addEventRequest{}, nil
	case EventRemove:
		return &removeEventRequest{}, nil
	case EventList:
		return &listEventsRequest{}, nil
	case "":
		return nil, apperr.Validation("events payload requires an action")
	default:
		return nil, apperr.Validation("unknown events action %q", sub.Action)
	}
}

// decodeInto fills req from the envelope payload.
func decodeInto(env Envelope, req request) error {
	switch req.(type) {
	case *statsRequest, *healthRequest:
		return nil
	}
	return decodePayload(env, req)
}

func decodePayload(env Envelope, dst any) error {
	raw := bytes.TrimSpace(env.Payload)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return apperr.Validation("%s payload is required", env.Action)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return apperr.Validation("invalid %s payload: %v", env.Action, err)
	}
	return nil
}

// dispatch runs req. For a calculate whose result could not be cached the
// quote is returned together with the error.
func (s *Service) dispatch(ctx context.Context, req request) (any, error) {
	switch req := req.(type) {
	case *calculateRequest:
		q, err := s.engine.Calculate(ctx, req.QuoteRequest)
		if q == nil {
			return nil, err
		}
		return q, err
	case *batchRequest:
		res, err := s.engine.Batch(ctx, req.Requests)
		if err != nil {
			return nil, err
		}
		return res, nil
	case *calendarRequest:
		res, err := s.engine.Calendar(ctx, req.CalendarRequest)
		if err != nil {
			return nil, err
		}
		return res, nil
	case *addEventRequest:
		res, err := s.engine.AddEvent(ctx, req.AddEventRequest)
		if res == nil {
			return nil, err
		}
		return res, err
	case *removeEventRequest:
		res, err := s.engine.RemoveEvent(ctx, req.EventID)
		if res == nil {
			return nil, err
		}
		return res, err
	case *listEventsRequest:
		events, err := s.engine.ListEvents(ctx, req.ListEventsRequest)
		if err != nil {
			return nil, err
		}
		return events, nil
	case *statsRequest:
		return s.engine.Stats(ctx), nil
	case *healthRequest:
		return s.engine.Health(ctx), nil
	default:
		return nil, fmt.Errorf("unhandled request type %T", req)
	}
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrAuthentication):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error, data any) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "code", apperr.Code(err), "err", err)
	}
	writeJSON(w, status, Response{
		Success: false,
		Data:    data,
		Error:   err.Error(),
		Code:    apperr.Code(err),
	})
}

func writeJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
