package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/okian/skillsync/internal/adapters/feed/memory"
	"github.com/okian/skillsync/internal/adapters/repository"
	service "github.com/okian/skillsync/internal/app"
	"github.com/okian/skillsync/internal/domain/feed"
	"github.com/okian/skillsync/internal/domain/model"
	"github.com/okian/skillsync/internal/domain/roles"
	"github.com/okian/skillsync/internal/domain/skillgap"
	"github.com/okian/skillsync/internal/domain/types"
	"github.com/okian/skillsync/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

var fullstack = model.Role{Name: "Fullstack", Requirements: []model.RoleSkillRequirement{
	{Name: "React", RequiredLevel: 80},
	{Name: "SQL", RequiredLevel: 40},
}}

func newStartedService(t *testing.T, opts ...service.Option) *service.Service {
	t.Helper()
	catalog, err := roles.NewCatalog(fullstack)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	svc := service.New(append([]service.Option{
		service.WithWorkerCount(2),
		service.WithQueueSize(16),
		service.WithRoleCatalog(catalog),
	}, opts...)...)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	return svc
}

func eventually(check func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if check() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return check()
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then it should report defaults without being started", func() {
			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, false)
			So(stats["queueSize"], ShouldEqual, 1024)
			So(stats["recommendationLimit"], ShouldEqual, 3)
			So(svc.Store(), ShouldBeNil)
		})
	})

	Convey("Given a new service with custom options", t, func() {
		svc := service.New(
			service.WithWorkerCount(8),
			service.WithQueueSize(50),
			service.WithDedupeSize(25),
			service.WithRecommendationLimit(5),
		)

		Convey("Then the options should be applied", func() {
			stats := svc.GetStats()
			So(stats["workerCount"], ShouldEqual, 8)
			So(stats["queueSize"], ShouldEqual, 50)
			So(stats["dedupeSize"], ShouldEqual, 25)
			So(stats["recommendationLimit"], ShouldEqual, 5)
		})
	})
}

func TestService_StartStop(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New(service.WithWorkerCount(2))
		defer svc.Stop()
		ctx := context.Background()

		Convey("When starting the service twice", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)

			Convey("Then it should be started with default collaborators", func() {
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)
				So(stats["queueLength"], ShouldEqual, 0)
				So(svc.Store(), ShouldNotBeNil)
				So(svc.Roles(), ShouldResemble, []string{"Backend Engineer", "Data Engineer", "Frontend Engineer"})
			})

			Convey("And stopping twice should be safe", func() {
				svc.Stop()
				svc.Stop()
				So(svc.GetStats()["started"], ShouldEqual, false)
			})

			Convey("And it should start again after a stop", func() {
				svc.Stop()
				So(svc.Start(ctx), ShouldBeNil)
				So(svc.GetStats()["started"], ShouldEqual, true)
			})
		})

		Convey("When it is used before starting", func() {
			_, pubErr := svc.Publish(ctx, feed.Envelope{Source: model.SourceSkills, Kind: feed.KindDelete, Key: "s1"})
			_, skillsErr := svc.Skills(ctx, "u1")
			_, completeErr := svc.CompleteProject(ctx, "u1", "p1")
			watchErr := svc.Watch(ctx, "u1")

			Convey("Then every operation should report it is not started", func() {
				So(errors.Is(pubErr, service.ErrNotStarted), ShouldBeTrue)
				So(errors.Is(skillsErr, service.ErrNotStarted), ShouldBeTrue)
				So(errors.Is(completeErr, service.ErrNotStarted), ShouldBeTrue)
				So(errors.Is(watchErr, service.ErrNotStarted), ShouldBeTrue)
			})
		})
	})
}

func TestService_Publish(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc := newStartedService(t)
		defer svc.Stop()
		ctx := context.Background()

		Convey("When an envelope carries an event id", func() {
			env := feed.Envelope{EventID: "evt-1", Source: model.SourceSkills, Kind: "delete", Key: "s1"}
			first, err1 := svc.Publish(ctx, env)
			second, err2 := svc.Publish(ctx, env)

			Convey("Then the redelivery should be acknowledged as a duplicate", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(first, ShouldResemble, types.PublishResult{EventID: "evt-1"})
				So(second, ShouldResemble, types.PublishResult{EventID: "evt-1", Duplicate: true})
				So(svc.GetStats()["seenEvents"], ShouldEqual, int64(1))
			})
		})

		Convey("When an envelope has no event id", func() {
			res, err := svc.Publish(ctx, feed.Envelope{Source: model.SourceSkills, Kind: feed.KindDelete, Key: "s1"})

			Convey("Then one should be generated", func() {
				So(err, ShouldBeNil)
				So(res.EventID, ShouldNotBeEmpty)
				So(res.Duplicate, ShouldBeFalse)
			})
		})

		Convey("When the source is unknown", func() {
			_, err := svc.Publish(ctx, feed.Envelope{Source: "invoices", Kind: feed.KindDelete, Key: "i1"})

			Convey("Then it should be rejected", func() {
				So(errors.Is(err, service.ErrUnknownSource), ShouldBeTrue)
			})
		})

		Convey("When the kind is unknown", func() {
			_, err := svc.Publish(ctx, feed.Envelope{Source: model.SourceSkills, Kind: "UPSERT", Key: "s1"})

			Convey("Then it should be rejected as malformed", func() {
				So(errors.Is(err, feed.ErrMalformedEvent), ShouldBeTrue)
			})
		})
	})
}

func TestService_Engine(t *testing.T) {
	Convey("Given a user with React 50 and SQL 20 and a set of projects", t, func() {
		svc := newStartedService(t)
		defer svc.Stop()
		ctx := context.Background()
		store := svc.Store()

		for _, sk := range []model.Skill{
			{ID: "react", UserID: "u1", Name: "React", Proficiency: 50},
			{ID: "sql", UserID: "u1", Name: "SQL", Proficiency: 20},
			{ID: "other", UserID: "u2", Name: "React", Proficiency: 100},
		} {
			_, err := store.AddSkill(ctx, sk)
			So(err, ShouldBeNil)
		}
		for _, p := range []model.Project{
			{ID: "p-react", OwnerID: "u1", Title: "UI", Skills: []model.ProjectSkill{{SkillName: "react", SkillLevel: 5}}},
			{ID: "p-sql", OwnerID: "u1", Title: "Reports", Skills: []model.ProjectSkill{{SkillName: "SQL", SkillLevel: 8}}},
			{ID: "p-go", OwnerID: "u1", Title: "CLI", Skills: []model.ProjectSkill{{SkillName: "Go", SkillLevel: 4}}},
			{ID: "p-done", OwnerID: "u1", Status: model.StatusCompleted, Skills: []model.ProjectSkill{{SkillName: "React", SkillLevel: 9}}},
			{ID: "p-mine", OwnerID: "u9", AssignedTo: "u1", Skills: []model.ProjectSkill{{SkillName: "React", SkillLevel: 9}}},
		} {
			_, err := store.SaveProject(ctx, p)
			So(err, ShouldBeNil)
		}

		Convey("When computing gaps for a role", func() {
			gaps, err := svc.SkillGaps(ctx, "u1", "fullstack")

			Convey("Then they should be ordered largest first", func() {
				So(err, ShouldBeNil)
				So(gaps, ShouldResemble, []model.SkillGap{
					{Skill: "React", Current: 50, Target: 80, Gap: 30},
					{Skill: "SQL", Current: 20, Target: 40, Gap: 20},
				})
			})
		})

		Convey("When the role is unknown", func() {
			_, gapErr := svc.SkillGaps(ctx, "u1", "astronaut")
			_, tlErr := svc.Timeline(ctx, "u1", "astronaut")

			Convey("Then the catalog error should surface", func() {
				So(errors.Is(gapErr, roles.ErrUnknownRole), ShouldBeTrue)
				So(errors.Is(tlErr, roles.ErrUnknownRole), ShouldBeTrue)
			})
		})

		Convey("When estimating the timeline", func() {
			tl, err := svc.Timeline(ctx, "u1", "Fullstack")

			Convey("Then it should match the engine over the stored skills", func() {
				So(err, ShouldBeNil)
				skills, _ := store.GetUserSkills(ctx, "u1")
				So(tl, ShouldResemble, skillgap.EstimateCareerTimeline(fullstack.Requirements, skills))
			})
		})

		Convey("When recommending projects", func() {
			all, err := svc.Recommendations(ctx, "u1", "Fullstack", 10)
			top, topErr := svc.Recommendations(ctx, "u1", "Fullstack", 1)

			Convey("Then open projects closing the largest gaps should come first", func() {
				So(err, ShouldBeNil)
				So(topErr, ShouldBeNil)
				ids := make([]string, len(all))
				for i, p := range all {
					ids[i] = p.ID
				}
				So(ids, ShouldResemble, []string{"p-react", "p-sql"})
				So(top, ShouldHaveLength, 1)
				So(top[0].ID, ShouldEqual, "p-react")
			})
		})

		Convey("When the user id is missing", func() {
			_, err := svc.SkillGaps(ctx, "", "Fullstack")

			Convey("Then it should be rejected", func() {
				So(errors.Is(err, service.ErrInvalidArgument), ShouldBeTrue)
			})
		})
	})
}

func TestService_CompleteProject(t *testing.T) {
	Convey("Given a user with SQL 20 and a project exercising SQL and Docker", t, func() {
		svc := newStartedService(t)
		defer svc.Stop()
		ctx := context.Background()
		store := svc.Store()

		_, err := store.AddSkill(ctx, model.Skill{ID: "sql", UserID: "u1", Name: "SQL", Proficiency: 20, TargetProficiency: 60})
		So(err, ShouldBeNil)
		_, err = store.SaveProject(ctx, model.Project{ID: "p1", OwnerID: "u1", Title: "Warehouse", Skills: []model.ProjectSkill{
			{SkillName: "sql", SkillLevel: 8},
			{SkillName: "Docker", SkillLevel: 3},
		}})
		So(err, ShouldBeNil)
		_, err = store.SaveProject(ctx, model.Project{ID: "p-other", OwnerID: "u2"})
		So(err, ShouldBeNil)
		_, err = store.SaveProject(ctx, model.Project{ID: "p-done", OwnerID: "u1", Status: model.StatusCompleted})
		So(err, ShouldBeNil)

		Convey("When the project is completed", func() {
			jobID, err := svc.CompleteProject(ctx, "u1", "p1")
			So(err, ShouldBeNil)
			So(jobID, ShouldNotBeEmpty)

			completed := eventually(func() bool {
				p, err := store.GetProject(ctx, "p1")
				return err == nil && p.Status == model.StatusCompleted
			})

			Convey("Then the user's skills should be raised and created", func() {
				So(completed, ShouldBeTrue)
				skills, err := store.GetUserSkills(ctx, "u1")
				So(err, ShouldBeNil)
				So(skills, ShouldHaveLength, 2)
				So(skills[0].Proficiency, ShouldEqual, 35)
				So(skills[0].RecentImprovement, ShouldBeTrue)
				So(skills[1].Name, ShouldEqual, "Docker")
				So(skills[1].Proficiency, ShouldEqual, 30)
				So(skills[1].TargetProficiency, ShouldEqual, 60)
				So(skills[1].Category, ShouldEqual, skillgap.NewSkillCategory)
			})

			Convey("And completing it again should be refused", func() {
				So(completed, ShouldBeTrue)
				_, err := svc.CompleteProject(ctx, "u1", "p1")
				So(errors.Is(err, service.ErrAlreadyCompleted), ShouldBeTrue)
			})
		})

		Convey("When the project is unknown", func() {
			_, err := svc.CompleteProject(ctx, "u1", "nope")

			Convey("Then the not found error should surface", func() {
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When the user does not take part in the project", func() {
			_, err := svc.CompleteProject(ctx, "u1", "p-other")

			Convey("Then it should be refused", func() {
				So(errors.Is(err, service.ErrNotParticipant), ShouldBeTrue)
			})
		})

		Convey("When the project is already completed", func() {
			_, err := svc.CompleteProject(ctx, "u1", "p-done")

			Convey("Then it should be refused", func() {
				So(errors.Is(err, service.ErrAlreadyCompleted), ShouldBeTrue)
			})
		})

		Convey("When the project id is missing", func() {
			_, err := svc.CompleteProject(ctx, "u1", "")

			Convey("Then it should be rejected", func() {
				So(errors.Is(err, service.ErrInvalidArgument), ShouldBeTrue)
			})
		})
	})
}

// failingSource subscribes through a broker but refuses one collection.
type failingSource struct {
	*memory.Broker
	refuse string
}

func (f failingSource) Subscribe(ctx context.Context, source string, h feed.Handler) (feed.Subscription, error) {
	if source == f.refuse {
		return nil, errors.New("connection reset")
	}
	return f.Broker.Subscribe(ctx, source, h)
}

func TestService_WatchFeedFailure(t *testing.T) {
	Convey("Given a feed that accepts skills but refuses projects", t, func() {
		broker := memory.NewBroker()
		defer broker.Close()
		svc := newStartedService(t, service.WithFeedSource(failingSource{Broker: broker, refuse: model.SourceProjects}))
		defer svc.Stop()

		Convey("When a user is watched", func() {
			var err error
			So(func() { err = svc.Watch(context.Background(), "u1") }, ShouldNotPanic)

			Convey("Then the connection error should be reported", func() {
				So(errors.Is(err, feed.ErrFeedConnection), ShouldBeTrue)
				So(svc.Watching("u1"), ShouldBeFalse)
			})

			Convey("And the projections already opened should be released", func() {
				So(broker.Subscribers(model.SourceSkills), ShouldEqual, 0)
				So(broker.Subscribers(model.SourceProjects), ShouldEqual, 0)
			})
		})
	})
}

// slowStore widens the window between reading a user's skills and writing them back.
type slowStore struct {
	repository.Store
	delay time.Duration
}

func (s slowStore) GetUserSkills(ctx context.Context, userID string) ([]model.Skill, error) {
	time.Sleep(s.delay)
	return s.Store.GetUserSkills(ctx, userID)
}

func TestService_ConcurrentCompletions(t *testing.T) {
	Convey("Given a user completing four projects at once on eight workers", t, func() {
		ctx := context.Background()
		store := slowStore{Store: repository.NewMemoryStore(), delay: 5 * time.Millisecond}
		svc := newStartedService(t, service.WithStore(store), service.WithWorkerCount(8))
		defer svc.Stop()

		_, err := store.AddSkill(ctx, model.Skill{ID: "sql", UserID: "u1", Name: "SQL", Proficiency: 0})
		So(err, ShouldBeNil)
		ids := make([]string, 4)
		for i := range ids {
			ids[i] = fmt.Sprintf("p%d", i+1)
			_, err := store.SaveProject(ctx, model.Project{ID: ids[i], OwnerID: "u1", Skills: []model.ProjectSkill{
				{SkillName: "SQL", SkillLevel: 10},
				{SkillName: "Kubernetes", SkillLevel: 3},
			}})
			So(err, ShouldBeNil)
		}

		for _, id := range ids {
			_, err := svc.CompleteProject(ctx, "u1", id)
			So(err, ShouldBeNil)
		}
		// A repeated request for a queued project must not credit it twice.
		_, _ = svc.CompleteProject(ctx, "u1", ids[0])

		done := eventually(func() bool {
			for _, id := range ids {
				p, err := store.GetProject(ctx, id)
				if err != nil || p.Status != model.StatusCompleted {
					return false
				}
			}
			return svc.GetStats()["queueLength"] == 0
		})

		Convey("Then every increase should build on the previous one", func() {
			So(done, ShouldBeTrue)
			time.Sleep(50 * time.Millisecond)
			skills, err := store.GetUserSkills(ctx, "u1")
			So(err, ShouldBeNil)

			byName := map[string][]model.Skill{}
			for _, s := range skills {
				byName[s.Name] = append(byName[s.Name], s)
			}
			So(byName["SQL"], ShouldHaveLength, 1)
			So(byName["SQL"][0].Proficiency, ShouldEqual, 60)
			So(byName["Kubernetes"], ShouldHaveLength, 1)
			So(byName["Kubernetes"][0].Proficiency, ShouldEqual, 55)
		})
	})
}
