package worker_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/okian/squadwatch/internal/adapters/mq/queue"
	"github.com/okian/squadwatch/internal/adapters/mq/worker"
	"github.com/okian/squadwatch/internal/domain/model"
	"github.com/okian/squadwatch/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	_ = logger.Init()
	os.Exit(m.Run())
}

type delivery struct {
	kind model.NoticeKind
	key  string
	text string
}

type fakePublisher struct {
	mu         sync.Mutex
	deliveries []delivery
	failKey    string
}

func (p *fakePublisher) PublishSummary(_ context.Context, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deliveries = append(p.deliveries, delivery{kind: model.NoticePublish, text: text})
	return nil
}

func (p *fakePublisher) UpdateSummary(_ context.Context, key, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if key == p.failKey {
		return errors.New("channel unavailable")
	}
	p.deliveries = append(p.deliveries, delivery{kind: model.NoticeUpdate, key: key, text: text})
	return nil
}

func (p *fakePublisher) snapshot() []delivery {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]delivery(nil), p.deliveries...)
}

func TestPoolDeliversInOrder(t *testing.T) {
	convey.Convey("Given a pool with one worker", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue(queue.WithCapacity(8))
		pub := &fakePublisher{}
		pool := worker.NewPool(1, q, pub, worker.WithDeliveryTimeout(time.Second))
		pool.Start(ctx)

		convey.Convey("When updates and a final publish are queued", func() {
			key := "2026-10-18|early"
			convey.So(q.Enqueue(ctx, model.Notice{Kind: model.NoticeUpdate, Key: key, Text: "v1"}), convey.ShouldBeTrue)
			convey.So(q.Enqueue(ctx, model.Notice{Kind: model.NoticeUpdate, Key: key, Text: "v2"}), convey.ShouldBeTrue)
			convey.So(q.Enqueue(ctx, model.Notice{Kind: model.NoticePublish, Key: key, Text: "final"}), convey.ShouldBeTrue)

			convey.So(pool.Shutdown(ctx), convey.ShouldBeNil)

			convey.Convey("Then the publisher sees them in queue order", func() {
				got := pub.snapshot()
				convey.So(got, convey.ShouldHaveLength, 3)
				convey.So(got[0], convey.ShouldResemble, delivery{kind: model.NoticeUpdate, key: key, text: "v1"})
				convey.So(got[1].text, convey.ShouldEqual, "v2")
				convey.So(got[2], convey.ShouldResemble, delivery{kind: model.NoticePublish, text: "final"})
			})
		})
	})
}

func TestWorkerSurvivesDeliveryErrors(t *testing.T) {
	convey.Convey("Given a worker whose publisher rejects one key", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		q := queue.NewInMemoryQueue()
		pub := &fakePublisher{failKey: "bad"}
		w := worker.NewInMemoryWorker(q, pub, worker.WithName("test"), worker.WithLogger(logger.Nop()))
		go w.Run(ctx)

		convey.So(q.Enqueue(ctx, model.Notice{Kind: model.NoticeUpdate, Key: "bad", Text: "x"}), convey.ShouldBeTrue)
		convey.So(q.Enqueue(ctx, model.Notice{Kind: model.NoticeUpdate, Key: "good", Text: "y"}), convey.ShouldBeTrue)
		convey.So(q.Close(), convey.ShouldBeNil)

		convey.Convey("Then later notices are still delivered", func() {
			deadline := time.Now().Add(2 * time.Second)
			for len(pub.snapshot()) == 0 && time.Now().Before(deadline) {
				time.Sleep(5 * time.Millisecond)
			}
			got := pub.snapshot()
			convey.So(got, convey.ShouldHaveLength, 1)
			convey.So(got[0].key, convey.ShouldEqual, "good")
		})
	})
}

func TestWorkerShutdown(t *testing.T) {
	convey.Convey("Given a running worker on an idle queue", t, func() {
		q := queue.NewInMemoryQueue()
		w := worker.NewInMemoryWorker(q, &fakePublisher{})
		go w.Run(context.Background())

		convey.Convey("Then Shutdown returns once the loop exits", func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			convey.So(w.Shutdown(ctx), convey.ShouldBeNil)
		})
	})
}

func TestPoolOutlivesStartContext(t *testing.T) {
	convey.Convey("Given a pool started with a cancellable context", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		q := queue.NewInMemoryQueue(queue.WithCapacity(16))
		pub := &fakePublisher{}
		pool := worker.NewPool(1, q, pub, worker.WithLogger(logger.Nop()))
		pool.Start(ctx)

		convey.Convey("When notices are queued and the context is cancelled before Shutdown", func() {
			key := "2026-10-18|late"
			for _, text := range []string{"v1", "v2", "v3"} {
				convey.So(q.Enqueue(ctx, model.Notice{Kind: model.NoticeUpdate, Key: key, Text: text}), convey.ShouldBeTrue)
			}
			convey.So(q.Enqueue(ctx, model.Notice{Kind: model.NoticePublish, Key: key, Text: "final"}), convey.ShouldBeTrue)
			cancel()

			convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)

			convey.Convey("Then every queued notice is still delivered", func() {
				got := pub.snapshot()
				convey.So(got, convey.ShouldHaveLength, 4)
				convey.So(got[3], convey.ShouldResemble, delivery{kind: model.NoticePublish, text: "final"})
			})
		})
	})
}
