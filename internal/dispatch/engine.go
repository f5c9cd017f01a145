// Package dispatch holds the single-payment processing logic: choose a
// processor from the cached health views, submit, and record or
// re-enqueue.
package dispatch

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/maxsonferovante/AsyncPaymentProcessor/internal/model"
	"github.com/maxsonferovante/AsyncPaymentProcessor/internal/processor"
)

// HealthSource reports the cached health view for a processor.
type HealthSource interface {
	Get(ctx context.Context, pt model.ProcessorType) (model.HealthView, bool)
}

// Submitter forwards one payment to a processor endpoint.
type Submitter interface {
	Submit(ctx context.Context, pt model.ProcessorType, p model.Payment) processor.Outcome
}

// Publisher pushes a payment back onto the head of the main queue. The
// queue adapter implements it, which keeps the engine free of a direct
// dependency on the queue it is itself fed from.
type Publisher interface {
	Publish(ctx context.Context, p model.Payment) error
}

// Recorder persists an accepted payment for the summary reader.
type Recorder interface {
	Record(ctx context.Context, p model.Payment)
}

// Options are the dispatch knobs.
type Options struct {
	// MaxRetryAttemptsPerDispatch is how many submits each processor
	// gets within a single dispatch before the engine moves on.
	MaxRetryAttemptsPerDispatch int
	// MaxReenqueueCount is how many re-enqueues a payment survives
	// before it is terminally failed.
	MaxReenqueueCount int
	// AssumeHealthyWhenUnknown makes the engine try a processor whose
	// health view is missing instead of skipping it.
	AssumeHealthyWhenUnknown bool
}

// Engine processes one payment at a time, preferring the default
// processor for its lower fee.
type Engine struct {
	health    HealthSource
	submitter Submitter
	publisher Publisher
	recorder  Recorder
	opts      Options
	log       *logrus.Entry
}

// NewEngine wires the dispatch engine. Non-positive option values fall
// back to their defaults.
func NewEngine(health HealthSource, submitter Submitter, publisher Publisher, recorder Recorder, opts Options) *Engine {
	if opts.MaxRetryAttemptsPerDispatch <= 0 {
		opts.MaxRetryAttemptsPerDispatch = 2
	}
	if opts.MaxReenqueueCount <= 0 {
		opts.MaxReenqueueCount = 3
	}
	return &Engine{
		health:    health,
		submitter: submitter,
		publisher: publisher,
		recorder:  recorder,
		opts:      opts,
		log:       logrus.WithField("component", "dispatch-engine"),
	}
}

// Process runs one dispatch for a popped payment and reports whether a
// processor accepted it. Rejected payments are re-enqueued until the
// re-enqueue ceiling, then terminally failed.
func (e *Engine) Process(ctx context.Context, p model.Payment) bool {
	p.Status = model.StatusProcessing

	if e.tryProcessor(ctx, &p, model.ProcessorDefault) ||
		e.tryProcessor(ctx, &p, model.ProcessorFallback) {
		p.Status = model.StatusSuccess
		e.recorder.Record(ctx, p)
		e.log.WithFields(logrus.Fields{
			"correlation_id": p.CorrelationID,
			"processor":      p.ProcessorType,
		}).Info("payment accepted")
		return true
	}

	e.handleFailure(ctx, p)
	return false
}

func (e *Engine) tryProcessor(ctx context.Context, p *model.Payment, pt model.ProcessorType) bool {
	if !e.healthy(ctx, pt) {
		e.log.WithFields(logrus.Fields{
			"correlation_id": p.CorrelationID,
			"processor":      pt,
		}).Debug("processor skipped as unhealthy")
		return false
	}

	for attempt := 1; attempt <= e.opts.MaxRetryAttemptsPerDispatch; attempt++ {
		if e.submitter.Submit(ctx, pt, *p) == processor.Accepted {
			p.ProcessorType = pt
			return true
		}
		e.log.WithFields(logrus.Fields{
			"correlation_id": p.CorrelationID,
			"processor":      pt,
			"attempt":        attempt,
			"max_attempts":   e.opts.MaxRetryAttemptsPerDispatch,
		}).Warn("submission attempt failed")
	}
	return false
}

func (e *Engine) healthy(ctx context.Context, pt model.ProcessorType) bool {
	view, ok := e.health.Get(ctx, pt)
	if !ok {
		return e.opts.AssumeHealthyWhenUnknown
	}
	return !view.Failing
}

func (e *Engine) handleFailure(ctx context.Context, p model.Payment) {
	p.RetryCount++

	if p.RetryCount >= e.opts.MaxReenqueueCount {
		p.Status = model.StatusFailed
		e.log.WithFields(logrus.Fields{
			"correlation_id": p.CorrelationID,
			"retry_count":    p.RetryCount,
		}).Error("payment failed permanently, retry ceiling reached")
		return
	}

	p.Status = model.StatusRetry
	if err := e.publisher.Publish(ctx, p); err != nil {
		// A payment that cannot be re-serialised is unrecoverable.
		e.log.WithError(err).WithFields(logrus.Fields{
			"correlation_id": p.CorrelationID,
			"retry_count":    p.RetryCount,
		}).Error("dropping payment, re-enqueue failed")
		return
	}
	e.log.WithFields(logrus.Fields{
		"correlation_id": p.CorrelationID,
		"retry_count":    p.RetryCount,
	}).Warn("payment re-enqueued for retry")
}
