package api

import (
	"context"
	"net/http"
)

// ProjectionsDependencies defines the live view operations.
type ProjectionsDependencies interface {
	View(ctx context.Context, source, userID string) (any, error)
	Watch(ctx context.Context, userID string) error
	Unwatch(userID string) error
}

// ProjectionsHandler serves a user's live views.
type ProjectionsHandler struct {
	deps ProjectionsDependencies
}

// NewProjectionsHandler creates a new projections handler.
func NewProjectionsHandler(deps ProjectionsDependencies) *ProjectionsHandler {
	return &ProjectionsHandler{deps: deps}
}

type projectionResponse struct {
	Source  string `json:"source"`
	UserID  string `json:"user_id"`
	Records any    `json:"records"`
}

type watchResponse struct {
	UserID   string `json:"user_id"`
	Watching bool   `json:"watching"`
}

// HandleGetProjection handles GET /projections/{source}/{user}.
func (h *ProjectionsHandler) HandleGetProjection(w http.ResponseWriter, r *http.Request) {
	const op = "api.projection"
	source, user := r.PathValue("source"), r.PathValue("user")
	records, err := h.deps.View(r.Context(), source, user)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, projectionResponse{Source: source, UserID: user, Records: records})
}

// HandleWatch handles PUT /watch/{user}.
func (h *ProjectionsHandler) HandleWatch(w http.ResponseWriter, r *http.Request) {
	const op = "api.watch"
	user := r.PathValue("user")
	if err := h.deps.Watch(r.Context(), user); err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, watchResponse{UserID: user, Watching: true})
}

// HandleUnwatch handles DELETE /watch/{user}.
func (h *ProjectionsHandler) HandleUnwatch(w http.ResponseWriter, r *http.Request) {
	const op = "api.unwatch"
	user := r.PathValue("user")
	if err := h.deps.Unwatch(user); err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, watchResponse{UserID: user, Watching: false})
}
