package redis_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/okian/skillsync/internal/adapters/feed/redis"
	"github.com/okian/skillsync/internal/domain/feed"
	"github.com/okian/skillsync/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestFeedUnreachable(t *testing.T) {
	Convey("Given a feed pointed at a closed port", t, func() {
		f := redis.New(goredis.NewClient(&goredis.Options{
			Addr:        "127.0.0.1:1",
			DialTimeout: 50 * time.Millisecond,
			MaxRetries:  -1,
		}))
		defer f.Close()
		ctx := context.Background()

		Convey("Then ping should report a feed connection error", func() {
			So(errors.Is(f.Ping(ctx), feed.ErrFeedConnection), ShouldBeTrue)
		})

		Convey("Then subscribing should fail", func() {
			_, err := f.Subscribe(ctx, "skills", func(feed.Envelope) {})
			So(err, ShouldNotBeNil)
		})

		Convey("Then publishing without a source should be rejected before any I/O", func() {
			So(errors.Is(f.Publish(ctx, feed.Envelope{}), feed.ErrMalformedEvent), ShouldBeTrue)
		})
	})
}

func TestFeedLive(t *testing.T) {
	addr := os.Getenv("SKILLSYNC_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SKILLSYNC_TEST_REDIS_ADDR not set")
	}

	Convey("Given a feed on a live server", t, func() {
		f := redis.New(redis.NewClient(addr, "", 0), redis.WithChannelPrefix("test."+uuid.NewString()+"."))
		defer f.Close()
		ctx := context.Background()

		var mu sync.Mutex
		var got []string
		sub, err := f.Subscribe(ctx, "skills", func(env feed.Envelope) {
			mu.Lock()
			got = append(got, env.Key)
			mu.Unlock()
		})
		So(err, ShouldBeNil)
		defer sub.Unsubscribe()

		Convey("When envelopes are published", func() {
			for _, k := range []string{"a", "b", "c"} {
				So(f.Publish(ctx, feed.Envelope{Source: "skills", Kind: feed.KindDelete, Key: k}), ShouldBeNil)
			}

			Convey("Then they should arrive in order", func() {
				deadline := time.Now().Add(2 * time.Second)
				for time.Now().Before(deadline) {
					mu.Lock()
					n := len(got)
					mu.Unlock()
					if n == 3 {
						break
					}
					time.Sleep(10 * time.Millisecond)
				}
				mu.Lock()
				defer mu.Unlock()
				So(got, ShouldResemble, []string{"a", "b", "c"})
			})
		})
	})
}
