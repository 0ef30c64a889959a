package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/okian/skillsync/internal/domain/model"
)

// SkillsDependencies defines the engine reads behind the skill routes.
type SkillsDependencies interface {
	SkillGaps(ctx context.Context, userID, role string) ([]model.SkillGap, error)
	Timeline(ctx context.Context, userID, role string) (model.Timeline, error)
}

// SkillsHandler handles gap and timeline requests.
type SkillsHandler struct {
	deps SkillsDependencies
}

// NewSkillsHandler creates a new skills handler.
func NewSkillsHandler(deps SkillsDependencies) *SkillsHandler {
	return &SkillsHandler{deps: deps}
}

type gapsResponse struct {
	UserID string           `json:"user_id"`
	Role   string           `json:"role"`
	Gaps   []model.SkillGap `json:"gaps"`
}

type timelineResponse struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	model.Timeline
}

// HandleGetGaps handles GET /skills/{user}/gaps?role=.
func (h *SkillsHandler) HandleGetGaps(w http.ResponseWriter, r *http.Request) {
	const op = "api.skill_gaps"
	user, role, err := userAndRole(r)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	gaps, err := h.deps.SkillGaps(r.Context(), user, role)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, gapsResponse{UserID: user, Role: role, Gaps: gaps})
}

// HandleGetTimeline handles GET /skills/{user}/timeline?role=.
func (h *SkillsHandler) HandleGetTimeline(w http.ResponseWriter, r *http.Request) {
	const op = "api.timeline"
	user, role, err := userAndRole(r)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	tl, err := h.deps.Timeline(r.Context(), user, role)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, timelineResponse{UserID: user, Role: role, Timeline: tl})
}

func userAndRole(r *http.Request) (string, string, error) {
	user := strings.TrimSpace(r.PathValue("user"))
	if user == "" {
		return "", "", errMissing("user")
	}
	role := strings.TrimSpace(r.URL.Query().Get("role"))
	if role == "" {
		return "", "", errMissing("role")
	}
	return user, role, nil
}
