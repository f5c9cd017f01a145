// Package health reads and writes the shared per-processor health views.
package health

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/maxsonferovante/AsyncPaymentProcessor/internal/model"
	"github.com/maxsonferovante/AsyncPaymentProcessor/internal/store"
)

const (
	keyPrefix = "payment_processor_health:"

	// The TTL sits just under the probe interval so a stalled leader's
	// stale opinion expires before the next probe would have landed.
	viewTTL = 4900 * time.Millisecond
)

// Cache stores one HealthView per processor in the shared store, written
// by the health-check leader and read by every instance's dispatch engine.
type Cache struct {
	store *store.Store
	log   *logrus.Entry
}

// NewCache builds a cache over the shared store.
func NewCache(s *store.Store) *Cache {
	return &Cache{
		store: s,
		log:   logrus.WithField("component", "health-cache"),
	}
}

func key(pt model.ProcessorType) string {
	return keyPrefix + pt.KeySuffix()
}

// Put writes the view for one processor with the cache TTL.
func (c *Cache) Put(ctx context.Context, pt model.ProcessorType, view model.HealthView) error {
	raw, err := json.Marshal(view)
	if err != nil {
		return store.NewSerializationError("health view encode", err)
	}
	return c.store.SetStringWithTTL(ctx, key(pt), string(raw), viewTTL)
}

// Get returns the current view for one processor. Missing, expired and
// unreadable entries all report ok=false; an unreadable entry is deleted
// so it cannot keep dispatch blind until its TTL runs out.
func (c *Cache) Get(ctx context.Context, pt model.ProcessorType) (model.HealthView, bool) {
	raw, ok, err := c.store.GetString(ctx, key(pt))
	if err != nil {
		c.log.WithError(err).WithField("processor", pt).Warn("reading health view")
		return model.HealthView{}, false
	}
	if !ok {
		return model.HealthView{}, false
	}

	var view model.HealthView
	if err := json.Unmarshal([]byte(raw), &view); err != nil {
		c.log.WithError(err).WithField("processor", pt).Warn("removing corrupt health view")
		if delErr := c.store.Delete(ctx, key(pt)); delErr != nil {
			c.log.WithError(delErr).WithField("processor", pt).Warn("deleting corrupt health view")
		}
		return model.HealthView{}, false
	}
	return view, true
}

// Remove clears the view for one processor.
func (c *Cache) Remove(ctx context.Context, pt model.ProcessorType) error {
	return c.store.Delete(ctx, key(pt))
}

// HasFreshView reports whether an unexpired view exists for the processor.
func (c *Cache) HasFreshView(ctx context.Context, pt model.ProcessorType) bool {
	_, ok, err := c.store.GetString(ctx, key(pt))
	return err == nil && ok
}
