package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/okian/skillsync/internal/adapters/http/api"
	"github.com/okian/skillsync/internal/adapters/repository"
	service "github.com/okian/skillsync/internal/app"
	"github.com/okian/skillsync/internal/domain/feed"
	"github.com/okian/skillsync/internal/domain/model"
	"github.com/okian/skillsync/internal/domain/roles"
	"github.com/okian/skillsync/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

// mockDependencies records calls and returns canned results.
type mockDependencies struct {
	published  []feed.Envelope
	seen       map[string]bool
	publishErr error

	gaps      []model.SkillGap
	timeline  model.Timeline
	projects  []model.Project
	engineErr error

	lastLimit   int
	completeErr error

	view     any
	viewErr  error
	watched  map[string]bool
	watchErr error
}

func (m *mockDependencies) Publish(_ context.Context, env feed.Envelope) (types.PublishResult, error) {
	if m.publishErr != nil {
		return types.PublishResult{}, m.publishErr
	}
	if m.seen == nil {
		m.seen = make(map[string]bool)
	}
	if env.EventID == "" {
		env.EventID = fmt.Sprintf("gen-%d", len(m.published))
	}
	if m.seen[env.EventID] {
		return types.PublishResult{EventID: env.EventID, Duplicate: true}, nil
	}
	m.seen[env.EventID] = true
	m.published = append(m.published, env)
	return types.PublishResult{EventID: env.EventID}, nil
}

func (m *mockDependencies) SkillGaps(_ context.Context, _, _ string) ([]model.SkillGap, error) {
	return m.gaps, m.engineErr
}

func (m *mockDependencies) Timeline(_ context.Context, _, _ string) (model.Timeline, error) {
	return m.timeline, m.engineErr
}

func (m *mockDependencies) Recommendations(_ context.Context, _, _ string, limit int) ([]model.Project, error) {
	m.lastLimit = limit
	return m.projects, m.engineErr
}

func (m *mockDependencies) CompleteProject(_ context.Context, userID, projectID string) (string, error) {
	if m.completeErr != nil {
		return "", m.completeErr
	}
	return "job-" + projectID + "-" + userID, nil
}

func (m *mockDependencies) View(_ context.Context, _, _ string) (any, error) {
	return m.view, m.viewErr
}

func (m *mockDependencies) Watch(_ context.Context, userID string) error {
	if m.watchErr != nil {
		return m.watchErr
	}
	if m.watched == nil {
		m.watched = make(map[string]bool)
	}
	m.watched[userID] = true
	return nil
}

func (m *mockDependencies) Unwatch(userID string) error {
	delete(m.watched, userID)
	return nil
}

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats() map[string]interface{} {
	return m.stats
}

func newMux(deps *mockDependencies) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, &mockStatsProvider{stats: map[string]interface{}{"started": true}}).Register(mux)
	return mux
}

func do(mux http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return out
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		mux := newMux(&mockDependencies{})

		Convey("Then the health endpoint should serve metrics", func() {
			w := do(mux, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then the stats endpoint should serve JSON", func() {
			w := do(mux, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldStartWith, "application/json")
			So(decode(w)["started"], ShouldEqual, true)
		})

		Convey("Then unknown paths should be not found", func() {
			So(do(mux, http.MethodGet, "/unknown", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Then wrong methods should be refused", func() {
			So(do(mux, http.MethodGet, "/events", "").Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestEventsHandler(t *testing.T) {
	Convey("Given the events endpoint", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps)
		body := `{"event_id":"evt-1","source":"skills","kind":"INSERT","record":{"id":"s1","user_id":"u1","name":"Go"}}`

		Convey("When a valid envelope is posted", func() {
			w := do(mux, http.MethodPost, "/events", body)

			Convey("Then it should be accepted and published", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(decode(w)["status"], ShouldEqual, "accepted")
				So(deps.published, ShouldHaveLength, 1)
				So(deps.published[0].Source, ShouldEqual, "skills")
				So(string(deps.published[0].Record), ShouldContainSubstring, `"id":"s1"`)
			})

			Convey("And posting it again should report a duplicate", func() {
				w := do(mux, http.MethodPost, "/events", body)
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["duplicate"], ShouldEqual, true)
				So(deps.published, ShouldHaveLength, 1)
			})
		})

		Convey("When the body is not JSON", func() {
			w := do(mux, http.MethodPost, "/events", `{not json`)

			Convey("Then it should be a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decode(w)["code"], ShouldEqual, "bad_request")
			})
		})

		Convey("When the service rejects the envelope", func() {
			deps.publishErr = fmt.Errorf("%w: UPSERT", feed.ErrMalformedEvent)
			w := do(mux, http.MethodPost, "/events", body)

			Convey("Then it should be a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the service is not running", func() {
			deps.publishErr = service.ErrNotStarted
			w := do(mux, http.MethodPost, "/events", body)

			Convey("Then it should be unavailable", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			})
		})
	})
}

func TestSkillsHandler(t *testing.T) {
	Convey("Given the skill routes", t, func() {
		deps := &mockDependencies{
			gaps:     []model.SkillGap{{Skill: "React", Current: 50, Target: 80, Gap: 30}},
			timeline: model.Timeline{MonthsToTarget: 4, CompletionPercentage: 80, NextMilestone: "Improve SQL skill (20 points gap)"},
		}
		mux := newMux(deps)

		Convey("When gaps are requested", func() {
			w := do(mux, http.MethodGet, "/skills/u1/gaps?role=Frontend", "")

			Convey("Then they should be returned with the user and role", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				out := decode(w)
				So(out["user_id"], ShouldEqual, "u1")
				So(out["role"], ShouldEqual, "Frontend")
				So(out["gaps"], ShouldHaveLength, 1)
			})
		})

		Convey("When the timeline is requested", func() {
			w := do(mux, http.MethodGet, "/skills/u1/timeline?role=Frontend", "")

			Convey("Then the estimate should be inlined", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				out := decode(w)
				So(out["months_to_target"], ShouldEqual, 4.0)
				So(out["completion_percentage"], ShouldEqual, 80.0)
				So(out["next_milestone"], ShouldEqual, "Improve SQL skill (20 points gap)")
			})
		})

		Convey("When the role is missing", func() {
			w := do(mux, http.MethodGet, "/skills/u1/gaps", "")

			Convey("Then it should be a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decode(w)["message"], ShouldContainSubstring, "missing role")
			})
		})

		Convey("When the role is unknown", func() {
			deps.engineErr = fmt.Errorf("%w: %q", roles.ErrUnknownRole, "astronaut")
			w := do(mux, http.MethodGet, "/skills/u1/timeline?role=astronaut", "")

			Convey("Then it should be not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When the engine fails unexpectedly", func() {
			deps.engineErr = errors.New("store down")
			w := do(mux, http.MethodGet, "/skills/u1/gaps?role=Frontend", "")

			Convey("Then it should be an internal error", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(decode(w)["code"], ShouldEqual, "internal_error")
			})
		})
	})
}

func TestProjectsHandler(t *testing.T) {
	Convey("Given the project routes", t, func() {
		deps := &mockDependencies{projects: []model.Project{{ID: "p1", OwnerID: "u1"}}}
		mux := newMux(deps)

		Convey("When recommendations are requested with a limit", func() {
			w := do(mux, http.MethodGet, "/projects/recommendations/u1?role=Frontend&limit=2", "")

			Convey("Then the limit should be passed through", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.lastLimit, ShouldEqual, 2)
				So(decode(w)["projects"], ShouldHaveLength, 1)
			})
		})

		Convey("When recommendations are requested without a limit", func() {
			deps.projects = nil
			w := do(mux, http.MethodGet, "/projects/recommendations/u1?role=Frontend", "")

			Convey("Then the default should be used and an empty list returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.lastLimit, ShouldEqual, 0)
				So(w.Body.String(), ShouldContainSubstring, `"projects":[]`)
			})
		})

		Convey("When the limit is invalid", func() {
			for _, limit := range []string{"0", "-3", "abc", "1000"} {
				w := do(mux, http.MethodGet, "/projects/recommendations/u1?role=Frontend&limit="+limit, "")
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			}
		})

		Convey("When a project is completed", func() {
			w := do(mux, http.MethodPost, "/projects/p1/complete?user=u1", "")

			Convey("Then the job should be acknowledged", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				out := decode(w)
				So(out["job_id"], ShouldEqual, "job-p1-u1")
				So(out["status"], ShouldEqual, "queued")
			})
		})

		Convey("When the completing user is missing", func() {
			w := do(mux, http.MethodPost, "/projects/p1/complete", "")

			Convey("Then it should be a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When completion fails", func() {
			cases := map[error]int{
				fmt.Errorf("project %q: %w", "p1", repository.ErrNotFound): http.StatusNotFound,
				service.ErrNotParticipant:                                  http.StatusForbidden,
				service.ErrAlreadyCompleted:                                http.StatusConflict,
				fmt.Errorf("%w: queue full", service.ErrBusy):              http.StatusTooManyRequests,
			}

			Convey("Then each error kind should map to its status", func() {
				for err, status := range cases {
					deps.completeErr = err
					So(do(mux, http.MethodPost, "/projects/p1/complete?user=u1", "").Code, ShouldEqual, status)
				}
			})
		})
	})
}

func TestProjectionsHandler(t *testing.T) {
	Convey("Given the projection routes", t, func() {
		deps := &mockDependencies{view: []model.Skill{{ID: "s1", UserID: "u1", Name: "Go"}}}
		mux := newMux(deps)

		Convey("When a view is requested", func() {
			w := do(mux, http.MethodGet, "/projections/skills/u1", "")

			Convey("Then its records should be returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				out := decode(w)
				So(out["source"], ShouldEqual, "skills")
				So(out["records"], ShouldHaveLength, 1)
			})
		})

		Convey("When the source is unknown", func() {
			deps.viewErr = fmt.Errorf("%w: %q", service.ErrUnknownSource, "invoices")
			w := do(mux, http.MethodGet, "/projections/invoices/u1", "")

			Convey("Then it should be a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When a user is watched and unwatched", func() {
			watch := do(mux, http.MethodPut, "/watch/u1", "")
			So(deps.watched["u1"], ShouldBeTrue)
			unwatch := do(mux, http.MethodDelete, "/watch/u1", "")

			Convey("Then both should succeed", func() {
				So(watch.Code, ShouldEqual, http.StatusOK)
				So(decode(watch)["watching"], ShouldEqual, true)
				So(unwatch.Code, ShouldEqual, http.StatusOK)
				So(deps.watched["u1"], ShouldBeFalse)
			})
		})
	})
}

func TestOpError(t *testing.T) {
	Convey("Given errors tagged by handlers", t, func() {
		cause := errors.New("decode failed")
		wrapped := api.WrapKind("api.post_event", api.ErrBadRequest, cause)
		kindOnly := api.NewKind("api.post_event", api.ErrBackpressure)

		Convey("Then both the kind and the cause should be matchable", func() {
			So(errors.Is(wrapped, api.ErrBadRequest), ShouldBeTrue)
			So(errors.Is(wrapped, cause), ShouldBeTrue)
			So(errors.Is(kindOnly, api.ErrBackpressure), ShouldBeTrue)
			var opErr *api.OpError
			So(errors.As(wrapped, &opErr), ShouldBeTrue)
			So(opErr.Op, ShouldEqual, "api.post_event")
		})

		Convey("Then messages should carry the operation", func() {
			So(wrapped.Error(), ShouldEqual, "api.post_event: bad request: decode failed")
			So(kindOnly.Error(), ShouldEqual, "api.post_event: backpressure")
			So(api.Wrap("op", cause).Error(), ShouldEqual, "op: decode failed")
			So(api.Wrap("op", nil), ShouldBeNil)
		})
	})
}
