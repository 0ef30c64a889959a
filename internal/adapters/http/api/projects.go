package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/skillsync/internal/domain/model"
	"github.com/okian/skillsync/internal/domain/types"
)

// maxRecommendations caps the limit query parameter.
const maxRecommendations = 100

// ProjectsDependencies defines the operations behind the project routes.
type ProjectsDependencies interface {
	Recommendations(ctx context.Context, userID, role string, limit int) ([]model.Project, error)
	CompleteProject(ctx context.Context, userID, projectID string) (string, error)
}

// ProjectsHandler handles recommendation and completion requests.
type ProjectsHandler struct {
	deps ProjectsDependencies
}

// NewProjectsHandler creates a new projects handler.
func NewProjectsHandler(deps ProjectsDependencies) *ProjectsHandler {
	return &ProjectsHandler{deps: deps}
}

type recommendationsResponse struct {
	UserID   string          `json:"user_id"`
	Role     string          `json:"role"`
	Projects []model.Project `json:"projects"`
}

// HandleGetRecommendations handles GET /projects/recommendations/{user}?role=&limit=.
// A missing limit uses the service default.
func (h *ProjectsHandler) HandleGetRecommendations(w http.ResponseWriter, r *http.Request) {
	const op = "api.recommendations"
	user, role, err := userAndRole(r)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxRecommendations {
			writeFailure(w, WrapKind(op, ErrBadRequest, fmt.Errorf("limit must be between 1 and %d", maxRecommendations)))
			return
		}
	}

	projects, err := h.deps.Recommendations(r.Context(), user, role, limit)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	if projects == nil {
		projects = []model.Project{}
	}
	writeJSON(w, http.StatusOK, recommendationsResponse{UserID: user, Role: role, Projects: projects})
}

// HandleCompleteProject handles POST /projects/{id}/complete?user=.
func (h *ProjectsHandler) HandleCompleteProject(w http.ResponseWriter, r *http.Request) {
	const op = "api.complete_project"
	projectID := strings.TrimSpace(r.PathValue("id"))
	user := strings.TrimSpace(r.URL.Query().Get("user"))
	switch {
	case projectID == "":
		writeFailure(w, WrapKind(op, ErrBadRequest, errMissing("project id")))
		return
	case user == "":
		writeFailure(w, WrapKind(op, ErrBadRequest, errMissing("user")))
		return
	}

	jobID, err := h.deps.CompleteProject(r.Context(), user, projectID)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusAccepted, types.CompletionAck{JobID: jobID, ProjectID: projectID, UserID: user, Status: "queued"})
}

func errMissing(what string) error {
	return errors.New("missing " + what)
}
