// Package httptransport is the HTTP edge of the engine: command submission,
// event history reads, the SSE live stream, and derived views. It delegates
// to domain services without embedding business logic.
package httptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"taskstream/internal/aggregate"
	"taskstream/internal/broadcast"
	"taskstream/internal/engine"
	"taskstream/internal/eventlog"
	jwttoken "taskstream/internal/jwt_token"
	"taskstream/internal/projection"
	"taskstream/internal/subscription"
	id "taskstream/pkg/domain"
	dErrors "taskstream/pkg/domain-errors"
	"taskstream/pkg/requestcontext"
)

// CommandProcessor runs one command end to end.
type CommandProcessor interface {
	Process(ctx context.Context, cmd engine.Command) (*engine.Result, error)
}

// Handler serves the engine's HTTP surface.
type Handler struct {
	processor  CommandProcessor
	store      eventlog.Store
	registry   *subscription.Registry
	dispatcher *broadcast.Dispatcher
	views      *projection.Cache
	tokens     *jwttoken.Service
	log        *logrus.Logger
}

func NewHandler(
	processor CommandProcessor,
	store eventlog.Store,
	registry *subscription.Registry,
	dispatcher *broadcast.Dispatcher,
	views *projection.Cache,
	tokens *jwttoken.Service,
	log *logrus.Logger,
) *Handler {
	return &Handler{
		processor:  processor,
		store:      store,
		registry:   registry,
		dispatcher: dispatcher,
		views:      views,
		tokens:     tokens,
		log:        log,
	}
}

// Register mounts the authenticated API routes.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(h.tokens, h.log))
		r.Post("/v1/commands", h.handleSubmitCommand)
		r.Get("/v1/aggregates/{aggregateID}/events", h.handleReadEvents)
		r.Get("/v1/stream", h.handleStream)
		r.Get("/v1/tasks/{taskID}", h.handleTaskView)
		r.Get("/v1/projects/{projectID}", h.handleProjectView)
		r.Get("/v1/projects/{projectID}/tasks", h.handleProjectTasks)
		r.Get("/v1/assignments/{assignmentID}", h.handleAssignmentView)
	})
}

type eventResponse struct {
	AggregateType string          `json:"aggregateType"`
	AggregateID   uuid.UUID       `json:"aggregateId"`
	Seq           uint64          `json:"seq"`
	Kind          string          `json:"kind"`
	Actor         string          `json:"actor,omitempty"`
	OccurredAt    time.Time       `json:"occurredAt"`
	Payload       json.RawMessage `json:"payload"`
}

func toEventResponse(event aggregate.Event) (eventResponse, error) {
	payload, err := aggregate.EncodePayload(event.Payload)
	if err != nil {
		return eventResponse{}, err
	}
	out := eventResponse{
		AggregateType: string(event.AggregateType),
		AggregateID:   event.AggregateID,
		Seq:           event.Seq,
		Kind:          string(event.Kind),
		OccurredAt:    event.OccurredAt,
		Payload:       payload,
	}
	if !event.Actor.IsNil() {
		out.Actor = event.Actor.String()
	}
	return out, nil
}

type commandResponse struct {
	NewVersion uint64          `json:"newVersion"`
	Events     []eventResponse `json:"events"`
}

func (h *Handler) handleSubmitCommand(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	cmd, err := req.toCommand(requestcontext.Actor(ctx))
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.processor.Process(ctx, cmd)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := commandResponse{NewVersion: result.NewVersion, Events: make([]eventResponse, 0, len(result.Events))}
	for _, event := range result.Events {
		encoded, err := toEventResponse(event)
		if err != nil {
			writeError(w, err)
			return
		}
		resp.Events = append(resp.Events, encoded)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleReadEvents(w http.ResponseWriter, r *http.Request) {
	aggregateID, err := uuid.Parse(chi.URLParam(r, "aggregateID"))
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "malformed aggregate id"))
		return
	}

	var since uint64
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err = strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, dErrors.New(dErrors.CodeInvalidInput, "malformed since parameter"))
			return
		}
	}

	events, err := h.store.ReadFrom(r.Context(), aggregateID, since)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]eventResponse, 0, len(events))
	for _, event := range events {
		encoded, err := toEventResponse(event)
		if err != nil {
			writeError(w, err)
			return
		}
		out = append(out, encoded)
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

func (h *Handler) handleTaskView(w http.ResponseWriter, r *http.Request) {
	taskID, err := id.ParseTaskID(chi.URLParam(r, "taskID"))
	if err != nil {
		writeError(w, err)
		return
	}
	view, ok := h.views.Task(r.Context(), taskID)
	if !ok {
		writeError(w, dErrors.New(dErrors.CodeNotFound, "task does not exist"))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleProjectView(w http.ResponseWriter, r *http.Request) {
	projectID, err := id.ParseProjectID(chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, err)
		return
	}
	view, ok := h.views.Project(r.Context(), projectID)
	if !ok {
		writeError(w, dErrors.New(dErrors.CodeNotFound, "project does not exist"))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleProjectTasks(w http.ResponseWriter, r *http.Request) {
	projectID, err := id.ParseProjectID(chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, err)
		return
	}
	tasks := h.views.Board().TasksByProject(projectID)
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (h *Handler) handleAssignmentView(w http.ResponseWriter, r *http.Request) {
	assignmentID, err := id.ParseAssignmentID(chi.URLParam(r, "assignmentID"))
	if err != nil {
		writeError(w, err)
		return
	}
	view, ok := h.views.Assignment(r.Context(), assignmentID)
	if !ok {
		writeError(w, dErrors.New(dErrors.CodeNotFound, "assignment does not exist"))
		return
	}
	writeJSON(w, http.StatusOK, view)
}
