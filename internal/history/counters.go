package history

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/maxsonferovante/AsyncPaymentProcessor/internal/model"
	"github.com/maxsonferovante/AsyncPaymentProcessor/internal/store"
)

const countersKey = "payment:counters"

// Counters accumulates per-processor request counts and amount totals in
// a single hash. It is the alternative reporting shape kept from earlier
// revisions of the system; the history lists stay authoritative and the
// counters are disabled unless WORKER_ENABLE_COUNTERS is set.
type Counters struct {
	store *store.Store
	log   *logrus.Entry
}

// NewCounters builds the aggregate counter recorder.
func NewCounters(s *store.Store) *Counters {
	return &Counters{
		store: s,
		log:   logrus.WithField("component", "payment-counters"),
	}
}

// Record increments the totals for the processor that accepted the
// payment. Like the list recorder, failures are logged and swallowed.
func (c *Counters) Record(ctx context.Context, p model.Payment) {
	if !p.ProcessorType.Valid() {
		c.log.WithField("correlation_id", p.CorrelationID).Error("payment counted without processor type")
		return
	}

	prefix := p.ProcessorType.KeySuffix()
	if err := c.store.HashIncrementInt(ctx, countersKey, prefix+"_totalRequests", 1); err != nil {
		c.log.WithError(err).WithField("processor", p.ProcessorType).Warn("incrementing request counter")
		return
	}
	if err := c.store.HashIncrementFloat(ctx, countersKey, prefix+"_totalAmount", float64(p.Amount)); err != nil {
		c.log.WithError(err).WithField("processor", p.ProcessorType).Warn("incrementing amount counter")
	}
}

// Snapshot returns every counter field, mainly for diagnostics.
func (c *Counters) Snapshot(ctx context.Context) (map[string]string, error) {
	return c.store.HashGetAll(ctx, countersKey)
}
