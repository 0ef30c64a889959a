package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/skillsync/internal/domain/feed"
	"github.com/okian/skillsync/internal/domain/types"
)

// maxEventBytes bounds a POST /events body.
const maxEventBytes = 1 << 20

// EventDependencies defines the interface for event publishing dependencies.
type EventDependencies interface {
	Publish(ctx context.Context, env feed.Envelope) (types.PublishResult, error)
}

// EventsHandler handles event requests.
type EventsHandler struct {
	deps EventDependencies
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

type ackResponse struct {
	Status    string `json:"status"`
	EventID   string `json:"event_id"`
	Duplicate bool   `json:"duplicate"`
}

// HandlePostEvent handles POST /events: one change envelope per request.
func (h *EventsHandler) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_event"
	var env feed.Envelope
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBytes)).Decode(&env); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	res, err := h.deps.Publish(r.Context(), env)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	if res.Duplicate {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", EventID: res.EventID, Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", EventID: res.EventID})
}
