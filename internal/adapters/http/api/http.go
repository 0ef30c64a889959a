// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/skillsync/internal/domain/feed"
	"github.com/okian/skillsync/internal/domain/model"
	"github.com/okian/skillsync/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Publish pushes a change envelope into the feed, deduplicated by event id.
	Publish(ctx context.Context, env feed.Envelope) (types.PublishResult, error)

	// Engine reads.
	SkillGaps(ctx context.Context, userID, role string) ([]model.SkillGap, error)
	Timeline(ctx context.Context, userID, role string) (model.Timeline, error)
	Recommendations(ctx context.Context, userID, role string, limit int) ([]model.Project, error)

	// CompleteProject queues a completion and returns the job id.
	CompleteProject(ctx context.Context, userID, projectID string) (string, error)

	// Live views.
	View(ctx context.Context, source, userID string) (any, error)
	Watch(ctx context.Context, userID string) error
	Unwatch(userID string) error
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	eventsHandler      *EventsHandler
	skillsHandler      *SkillsHandler
	projectsHandler    *ProjectsHandler
	projectionsHandler *ProjectionsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		eventsHandler:      NewEventsHandler(deps),
		skillsHandler:      NewSkillsHandler(deps),
		projectsHandler:    NewProjectsHandler(deps),
		projectionsHandler: NewProjectionsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("POST /events", MetricsMiddleware(s.eventsHandler.HandlePostEvent, "events"))
	mux.HandleFunc("GET /skills/{user}/gaps", MetricsMiddleware(s.skillsHandler.HandleGetGaps, "skill_gaps"))
	mux.HandleFunc("GET /skills/{user}/timeline", MetricsMiddleware(s.skillsHandler.HandleGetTimeline, "timeline"))
	mux.HandleFunc("GET /projects/recommendations/{user}", MetricsMiddleware(s.projectsHandler.HandleGetRecommendations, "recommendations"))
	mux.HandleFunc("POST /projects/{id}/complete", MetricsMiddleware(s.projectsHandler.HandleCompleteProject, "complete_project"))
	mux.HandleFunc("GET /projections/{source}/{user}", MetricsMiddleware(s.projectionsHandler.HandleGetProjection, "projection"))
	mux.HandleFunc("PUT /watch/{user}", MetricsMiddleware(s.projectionsHandler.HandleWatch, "watch"))
	mux.HandleFunc("DELETE /watch/{user}", MetricsMiddleware(s.projectionsHandler.HandleUnwatch, "watch"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure writes err with the status its kind maps to.
func writeFailure(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err)
}
