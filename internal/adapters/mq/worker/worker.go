// Package worker delivers queued session summaries to the reporting channel.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/okian/squadwatch/internal/domain/model"
	"github.com/okian/squadwatch/pkg/logger"
	"github.com/okian/squadwatch/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultDeliveryTimeout = 15 * time.Second
	poolShutdownTimeout    = 30 * time.Second
)

// Notice is what workers read off the queue.
type Notice = model.Notice

// Publisher is the reporting channel.
type Publisher interface {
	PublishSummary(ctx context.Context, text string) error
	UpdateSummary(ctx context.Context, key, text string) error
}

// Queue defines how workers receive notices.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Notice
}

// Worker delivers notices using the provided interfaces.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown gracefully stops the worker.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue     Queue
	publisher Publisher
	name      string
	timeout   time.Duration

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, publisher Publisher, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     queue,
		publisher: publisher,
		name:      "worker",
		timeout:   defaultDeliveryTimeout,
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop. It drains the queue until it is closed.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	notices := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case n, ok := <-notices:
			if !ok {
				return
			}
			if err := w.deliver(ctx, n); err != nil {
				w.logger.Error(ctx, "summary delivery failed",
					logger.String("kind", string(n.Kind)),
					logger.String("key", n.Key),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// deliver hands one notice to the publisher under the delivery timeout.
func (w *InMemoryWorker) deliver(ctx context.Context, n Notice) error {
	start := time.Now()
	defer func() {
		metrics.RecordNoticeLatency(float64(time.Since(start).Milliseconds()))
	}()

	dctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	var err error
	switch n.Kind {
	case model.NoticeUpdate:
		err = w.publisher.UpdateSummary(dctx, n.Key, n.Text)
	case model.NoticePublish:
		err = w.publisher.PublishSummary(dctx, n.Text)
	default:
		err = fmt.Errorf("unknown notice kind %q", n.Kind)
	}

	if err != nil {
		metrics.RecordNoticeDelivery(string(n.Kind), "error")
		return err
	}
	metrics.RecordNoticeDelivery(string(n.Kind), "ok")
	return nil
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
	cancel  context.CancelFunc
}

// NewPool creates a new worker pool. Updates for one key must stay ordered,
// so a single worker is the usual choice.
func NewPool(workerCount int, queue Queue, publisher Publisher, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		logger:  logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		pool.workers[i] = NewInMemoryWorker(queue, publisher, wopts...)
	}
	return pool
}

// Start starts all workers in the pool. Workers outlive ctx: they stop only
// when Shutdown has drained the queue, so summaries queued before a signal
// are still delivered.
func (p *Pool) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	for _, worker := range p.workers {
		go worker.Run(runCtx)
	}
}

// Shutdown closes the queue, lets workers drain it and waits for them.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, worker := range p.workers {
		select {
		case <-worker.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	if p.cancel != nil {
		p.cancel()
	}
	return nil
}
