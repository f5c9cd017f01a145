// Package orchestrator runs the leader-elected periodic health probing
// of both payment processors.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/maxsonferovante/AsyncPaymentProcessor/internal/model"
	"github.com/maxsonferovante/AsyncPaymentProcessor/internal/store"
)

const (
	// Probes run just under every five seconds; the processors answer
	// anything more frequent with 429 and no new information.
	tickInterval = 4998 * time.Millisecond

	leaseName = "healthcheck-leader-lock-registry:global-health-check-leader-task"

	// The lease outlives a worst-case probe cycle (~5 s join deadline)
	// with margin, so a crashed leader is replaced within seconds.
	leaseTTL = 12 * time.Second

	joinDeadline = 5 * time.Second
)

// Prober obtains a fresh health view straight from a processor.
type Prober interface {
	Probe(ctx context.Context, pt model.ProcessorType) *model.HealthView
}

// HealthSink publishes or clears the shared health view for a processor.
type HealthSink interface {
	Put(ctx context.Context, pt model.ProcessorType, view model.HealthView) error
	Remove(ctx context.Context, pt model.ProcessorType) error
}

// Lease is a held leadership lease.
type Lease interface {
	Release(ctx context.Context) error
}

// Leaser hands out the fleet-wide health-check leadership lease. A nil
// Lease without error means another instance holds it.
type Leaser interface {
	TryAcquireLease(ctx context.Context, name string, ttl time.Duration) (Lease, error)
}

// StoreLeaser adapts the shared store's lease API to the Leaser interface.
type StoreLeaser struct {
	Store *store.Store
}

func (sl StoreLeaser) TryAcquireLease(ctx context.Context, name string, ttl time.Duration) (Lease, error) {
	lease, err := sl.Store.TryAcquireLease(ctx, name, ttl)
	if err != nil {
		return nil, err
	}
	if lease == nil {
		return nil, nil
	}
	return lease, nil
}

// Orchestrator probes both processors under a shared lease so at most
// one instance in the fleet probes per interval.
type Orchestrator struct {
	prober Prober
	sink   HealthSink
	leaser Leaser
	log    *logrus.Entry
}

// New wires the orchestrator.
func New(prober Prober, sink HealthSink, leaser Leaser) *Orchestrator {
	return &Orchestrator{
		prober: prober,
		sink:   sink,
		leaser: leaser,
		log:    logrus.WithField("component", "health-orchestrator"),
	}
}

// Run executes probe cycles until ctx is cancelled. Each instance runs at
// most one cycle at a time; a cycle that overruns simply fails to acquire
// the next lease.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.RunTick(ctx)
		}
	}
}

// RunTick performs one leader-elected probe cycle: acquire the lease,
// probe both processors in parallel, publish the results, release.
func (o *Orchestrator) RunTick(ctx context.Context) {
	lease, err := o.leaser.TryAcquireLease(ctx, leaseName, leaseTTL)
	if err != nil {
		o.log.WithError(err).Warn("lease acquisition failed, skipping probe cycle")
		return
	}
	if lease == nil {
		o.log.Debug("another instance leads the health check")
		return
	}
	defer func() {
		if err := lease.Release(ctx); err != nil {
			o.log.WithError(err).Warn("releasing health-check lease")
		}
	}()

	o.log.Debug("acquired health-check leadership for this cycle")

	probeCtx, cancel := context.WithTimeout(ctx, joinDeadline)
	defer cancel()

	var wg sync.WaitGroup
	for _, pt := range []model.ProcessorType{model.ProcessorDefault, model.ProcessorFallback} {
		wg.Add(1)
		go func(pt model.ProcessorType) {
			defer wg.Done()
			o.probeAndPublish(probeCtx, pt)
		}(pt)
	}
	wg.Wait()
}

// probeAndPublish refreshes the cached view of one processor. A failed
// probe clears the cache entry so dispatch stops trusting a stale
// opinion; a failed write clears it too, unless the failure was our own
// encoding, in which case whatever is cached is still the best available.
func (o *Orchestrator) probeAndPublish(ctx context.Context, pt model.ProcessorType) {
	view := o.prober.Probe(ctx, pt)
	if view == nil {
		o.log.WithField("processor", pt).Warn("no health view obtained")
		if err := o.sink.Remove(ctx, pt); err != nil {
			o.log.WithError(err).WithField("processor", pt).Warn("clearing health view")
		}
		return
	}

	if err := o.sink.Put(ctx, pt, *view); err != nil {
		var serr *store.Error
		if errors.As(err, &serr) && serr.Kind == store.KindSerialization {
			o.log.WithError(err).WithField("processor", pt).Error("encoding health view")
			return
		}
		o.log.WithError(err).WithField("processor", pt).Error("publishing health view")
		if err := o.sink.Remove(ctx, pt); err != nil {
			o.log.WithError(err).WithField("processor", pt).Warn("clearing health view")
		}
		return
	}

	o.log.WithFields(logrus.Fields{
		"processor":         pt,
		"failing":           view.Failing,
		"min_response_time": view.MinResponseTime,
	}).Debug("health view published")
}
