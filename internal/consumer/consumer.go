// Package consumer drains the main payment queue on a fixed tick and
// fans the work out to the dispatch engine at bounded concurrency.
package consumer

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/maxsonferovante/AsyncPaymentProcessor/internal/model"
)

// firstPopWait is the short-blocking window of the first pop in a tick,
// which keeps idle instances from hammering the store.
const firstPopWait = 100 * time.Millisecond

// Dispatcher processes one decoded payment and reports acceptance.
type Dispatcher interface {
	Process(ctx context.Context, p model.Payment) bool
}

// source is the pop side of the queue adapter.
type source interface {
	Pop(ctx context.Context) (string, bool, error)
	PopWait(ctx context.Context, wait time.Duration) (string, bool, error)
}

// Stats is a snapshot of the consumer's atomic counters.
type Stats struct {
	Active    int64 // dispatch tasks currently in flight
	Completed int64 // tasks that ended with an accepted payment
	Total     int64 // tasks submitted since start
	Batches   int64 // ticks that popped at least one item
}

// Consumer runs the periodic batch pull. The atomic in-flight counter is
// the whole worker pool: each payment runs on its own goroutine and the
// counter caps how many exist at once.
type Consumer struct {
	queue      source
	dispatcher Dispatcher

	maxConcurrent int64
	batchSize     int64
	tick          time.Duration

	active    atomic.Int64
	completed atomic.Int64
	total     atomic.Int64
	batches   atomic.Int64

	log *logrus.Entry
}

// New builds a consumer with the given concurrency cap, per-tick batch
// size and tick period.
func New(queue source, dispatcher Dispatcher, maxConcurrent, batchSize int, tick time.Duration) *Consumer {
	return &Consumer{
		queue:         queue,
		dispatcher:    dispatcher,
		maxConcurrent: int64(maxConcurrent),
		batchSize:     int64(batchSize),
		tick:          tick,
		log:           logrus.WithField("component", "queue-consumer"),
	}
}

// Run executes ticks until ctx is cancelled. In-flight dispatch tasks are
// not awaited on shutdown; their outbound calls carry their own deadlines.
func (c *Consumer) Run(ctx context.Context) {
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunTick(ctx)
		}
	}
}

// RunTick performs one batch cycle: refuse when saturated, otherwise pop
// up to min(batchSize, free slots) items and hand each to a dispatch
// goroutine. Only the first pop may block, and only briefly.
func (c *Consumer) RunTick(ctx context.Context) {
	available := c.maxConcurrent - c.active.Load()
	if available <= 0 {
		return
	}
	batch := min(c.batchSize, available)

	raw, ok, err := c.queue.PopWait(ctx, firstPopWait)
	if err != nil {
		c.log.WithError(err).Warn("queue pop failed, skipping tick")
		return
	}
	if !ok {
		return
	}
	c.batches.Add(1)
	c.submit(ctx, raw)

	for i := int64(1); i < batch; i++ {
		raw, ok, err := c.queue.Pop(ctx)
		if err != nil {
			c.log.WithError(err).Warn("queue pop failed mid-batch")
			return
		}
		if !ok {
			return
		}
		c.submit(ctx, raw)
	}
}

// submit hands one raw queue item to a dispatch goroutine. The in-flight
// counter is incremented before the goroutine starts so a tick can never
// overshoot the cap, and decremented when the task ends either way.
func (c *Consumer) submit(ctx context.Context, raw string) {
	c.active.Add(1)
	c.total.Add(1)

	go func() {
		defer c.active.Add(-1)

		var p model.Payment
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			// Malformed queue entries cannot be retried meaningfully.
			c.log.WithError(err).Error("dropping malformed payment message")
			return
		}
		if c.dispatcher.Process(ctx, p) {
			c.completed.Add(1)
		}
	}()
}

// Stats returns the current counter values.
func (c *Consumer) Stats() Stats {
	return Stats{
		Active:    c.active.Load(),
		Completed: c.completed.Load(),
		Total:     c.total.Load(),
		Batches:   c.batches.Load(),
	}
}
