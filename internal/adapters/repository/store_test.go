package repository_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/okian/skillsync/internal/adapters/repository"
	"github.com/okian/skillsync/internal/domain/feed"
	"github.com/okian/skillsync/internal/domain/model"
	"github.com/okian/skillsync/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type recordingPublisher struct {
	mu   sync.Mutex
	envs []feed.Envelope
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, env feed.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.envs = append(p.envs, env)
	return nil
}

func (p *recordingPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.envs))
	for i, e := range p.envs {
		out[i] = e.Source + ":" + string(e.Kind)
	}
	return out
}

type storeFactory func(t *testing.T, opts ...repository.Option) repository.Store

func memoryFactory(_ *testing.T, opts ...repository.Option) repository.Store {
	return repository.NewMemoryStore(opts...)
}

func sqliteFactory(t *testing.T, opts ...repository.Option) repository.Store {
	path := filepath.Join(t.TempDir(), "nested", "skills.db")
	s, err := repository.NewSQLiteStore(context.Background(), path, opts...)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, "memory", memoryFactory)
}

func TestSQLiteStore(t *testing.T) {
	runStoreContract(t, "sqlite", sqliteFactory)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("SKILLSYNC_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SKILLSYNC_TEST_POSTGRES_DSN not set")
	}
	runStoreContract(t, "postgres", func(t *testing.T, opts ...repository.Option) repository.Store {
		s, err := repository.NewPostgresStore(context.Background(), dsn, opts...)
		if err != nil {
			t.Fatalf("open postgres: %v", err)
		}
		ctx := context.Background()
		for _, table := range []string{"skills", "projects", "messages", "notifications"} {
			if _, err := s.Pool().Exec(ctx, "TRUNCATE "+table); err != nil {
				t.Fatalf("truncate %s: %v", table, err)
			}
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func runStoreContract(t *testing.T, name string, newStore storeFactory) {
	ctx := context.Background()

	Convey("Given an empty "+name+" store", t, func() {
		pub := &recordingPublisher{}
		s := newStore(t, repository.WithPublisher(pub))

		Convey("When skills are added for two users", func() {
			sql, err := s.AddSkill(ctx, model.Skill{UserID: "u1", Name: "SQL", Category: "Data", Proficiency: 60, TargetProficiency: 80})
			So(err, ShouldBeNil)
			_, err = s.AddSkill(ctx, model.Skill{UserID: "u2", Name: "Go", Proficiency: 10, TargetProficiency: 40})
			So(err, ShouldBeNil)
			_, err = s.AddSkill(ctx, model.Skill{ID: "fixed", UserID: "u1", Name: "React", Proficiency: 0, TargetProficiency: 50})
			So(err, ShouldBeNil)

			Convey("Then ids should be assigned and lists kept per user in order", func() {
				So(sql.ID, ShouldNotBeEmpty)
				skills, err := s.GetUserSkills(ctx, "u1")
				So(err, ShouldBeNil)
				So(skills, ShouldHaveLength, 2)
				So(skills[0].Name, ShouldEqual, "SQL")
				So(skills[1].ID, ShouldEqual, "fixed")
			})

			Convey("And each insert should be published", func() {
				So(pub.kinds(), ShouldResemble, []string{"skills:INSERT", "skills:INSERT", "skills:INSERT"})
			})

			Convey("When a skill is patched", func() {
				updated, err := s.UpdateSkill(ctx, sql.ID, model.SkillPatch{Proficiency: 68, RecentImprovement: true})

				Convey("Then the stored record should change", func() {
					So(err, ShouldBeNil)
					So(updated.Proficiency, ShouldEqual, 68)
					So(updated.RecentImprovement, ShouldBeTrue)
					So(updated.Name, ShouldEqual, "SQL")
					skills, _ := s.GetUserSkills(ctx, "u1")
					So(skills[0].Proficiency, ShouldEqual, 68)
				})

				Convey("And an UPDATE should be published with the record", func() {
					So(pub.kinds()[3], ShouldEqual, "skills:UPDATE")
					evt, err := feed.Decode[model.Skill](pub.envs[3])
					So(err, ShouldBeNil)
					So(evt.Record.Proficiency, ShouldEqual, 68)
				})
			})
		})

		Convey("When an unknown skill is patched", func() {
			_, err := s.UpdateSkill(ctx, "missing", model.SkillPatch{Proficiency: 10})

			Convey("Then it should report not found", func() {
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When invalid skills are written", func() {
			_, noUser := s.AddSkill(ctx, model.Skill{Name: "Go"})
			_, tooHigh := s.AddSkill(ctx, model.Skill{UserID: "u1", Name: "Go", Proficiency: 101})
			_, badPatch := s.UpdateSkill(ctx, "any", model.SkillPatch{Proficiency: -1})

			Convey("Then they should be rejected", func() {
				So(errors.Is(noUser, repository.ErrInvalidRecord), ShouldBeTrue)
				So(errors.Is(tooHigh, repository.ErrInvalidRecord), ShouldBeTrue)
				So(errors.Is(badPatch, repository.ErrInvalidRecord), ShouldBeTrue)
				So(pub.kinds(), ShouldBeEmpty)
			})
		})

		Convey("When projects are saved", func() {
			p, err := s.SaveProject(ctx, model.Project{
				OwnerID: "u1",
				Title:   "Dashboard",
				Skills:  []model.ProjectSkill{{SkillName: "React", SkillLevel: 6}, {SkillName: "SQL", SkillLevel: 3}},
			})
			So(err, ShouldBeNil)
			_, err = s.SaveProject(ctx, model.Project{ID: "p2", OwnerID: "u2", AssignedTo: "u1", Status: model.StatusInProgress})
			So(err, ShouldBeNil)

			Convey("Then defaults should be applied", func() {
				So(p.ID, ShouldNotBeEmpty)
				So(p.Status, ShouldEqual, model.StatusPending)
			})

			Convey("And owner and assignee lookups should differ", func() {
				owned, err := s.GetUserProjects(ctx, "u1")
				So(err, ShouldBeNil)
				So(owned, ShouldHaveLength, 1)
				So(owned[0].Title, ShouldEqual, "Dashboard")

				assigned, err := s.GetAssignedProjects(ctx, "u1")
				So(err, ShouldBeNil)
				So(assigned, ShouldHaveLength, 1)
				So(assigned[0].ID, ShouldEqual, "p2")
			})

			Convey("And project skills should round trip", func() {
				skills, err := s.GetProjectSkills(ctx, p.ID)
				So(err, ShouldBeNil)
				So(skills, ShouldResemble, []model.ProjectSkill{{SkillName: "React", SkillLevel: 6}, {SkillName: "SQL", SkillLevel: 3}})
			})

			Convey("When a saved project is saved again", func() {
				p.Status = model.StatusCompleted
				_, err := s.SaveProject(ctx, p)
				So(err, ShouldBeNil)

				Convey("Then it should be replaced and published as an UPDATE", func() {
					got, err := s.GetProject(ctx, p.ID)
					So(err, ShouldBeNil)
					So(got.Status, ShouldEqual, model.StatusCompleted)
					So(pub.kinds(), ShouldResemble, []string{"projects:INSERT", "projects:INSERT", "projects:UPDATE"})
				})
			})
		})

		Convey("When an unknown project is requested", func() {
			_, err := s.GetProject(ctx, "nope")
			_, skillsErr := s.GetProjectSkills(ctx, "nope")

			Convey("Then it should report not found", func() {
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				So(errors.Is(skillsErr, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When a project has an unknown status", func() {
			_, err := s.SaveProject(ctx, model.Project{OwnerID: "u1", Status: "archived"})

			Convey("Then it should be rejected", func() {
				So(errors.Is(err, repository.ErrInvalidRecord), ShouldBeTrue)
			})
		})

		Convey("When messages and notifications are added", func() {
			m, err := s.AddMessage(ctx, model.Message{UserID: "u1", Body: "hello"})
			So(err, ShouldBeNil)
			_, err = s.AddNotification(ctx, model.Notification{UserID: "u1", Title: "Project assigned"})
			So(err, ShouldBeNil)
			_, err = s.AddNotification(ctx, model.Notification{UserID: "u2", Title: "other"})
			So(err, ShouldBeNil)

			Convey("Then they should be listed for their user", func() {
				So(m.CreatedAt.IsZero(), ShouldBeFalse)
				msgs, err := s.GetUserMessages(ctx, "u1")
				So(err, ShouldBeNil)
				So(msgs, ShouldHaveLength, 1)
				So(msgs[0].Body, ShouldEqual, "hello")
				So(msgs[0].CreatedAt.Equal(m.CreatedAt), ShouldBeTrue)

				notes, err := s.GetUserNotifications(ctx, "u1")
				So(err, ShouldBeNil)
				So(notes, ShouldHaveLength, 1)
				So(notes[0].Title, ShouldEqual, "Project assigned")
			})
		})
	})

	Convey("Given a "+name+" store whose publisher fails", t, func() {
		s := newStore(t, repository.WithPublisher(&recordingPublisher{err: errors.New("broker down")}))

		Convey("When a skill is added", func() {
			sk, err := s.AddSkill(ctx, model.Skill{UserID: "u1", Name: "Go", Proficiency: 5, TargetProficiency: 10})

			Convey("Then the write should still succeed", func() {
				So(err, ShouldBeNil)
				skills, _ := s.GetUserSkills(ctx, "u1")
				So(skills, ShouldHaveLength, 1)
				So(skills[0].ID, ShouldEqual, sk.ID)
			})
		})
	})
}
