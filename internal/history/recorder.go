// Package history persists accepted payments for the companion summary
// API: primarily as per-processor append-only lists, optionally also as
// aggregate counters.
package history

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/maxsonferovante/AsyncPaymentProcessor/internal/model"
	"github.com/maxsonferovante/AsyncPaymentProcessor/internal/store"
)

const (
	defaultListKey  = "payments:history:default"
	fallbackListKey = "payments:history:fallback"
)

// Recorder appends each accepted payment to the history list of the
// processor that took it.
type Recorder struct {
	store *store.Store
	log   *logrus.Entry
}

// NewRecorder builds a recorder over the shared store.
func NewRecorder(s *store.Store) *Recorder {
	return &Recorder{
		store: s,
		log:   logrus.WithField("component", "history-recorder"),
	}
}

// Record appends the payment to its processor's history list. Failures
// are logged and swallowed: the processor has already accepted the
// payment, so nothing upstream could act on an error here.
func (r *Recorder) Record(ctx context.Context, p model.Payment) {
	if !p.ProcessorType.Valid() {
		r.log.WithField("correlation_id", p.CorrelationID).Error("payment recorded without processor type")
		return
	}

	raw, err := json.Marshal(p)
	if err != nil {
		r.log.WithError(err).WithField("correlation_id", p.CorrelationID).Error("encoding payment for history")
		return
	}
	if err := r.store.ListPushHead(ctx, listKey(p.ProcessorType), string(raw)); err != nil {
		r.log.WithError(err).WithFields(logrus.Fields{
			"correlation_id": p.CorrelationID,
			"processor":      p.ProcessorType,
		}).Error("appending payment to history")
		return
	}
	r.log.WithFields(logrus.Fields{
		"correlation_id": p.CorrelationID,
		"processor":      p.ProcessorType,
	}).Debug("payment recorded")
}

func listKey(pt model.ProcessorType) string {
	if pt == model.ProcessorDefault {
		return defaultListKey
	}
	return fallbackListKey
}

// PaymentRecorder is the recording side shared by the list recorder and
// the aggregate counters.
type PaymentRecorder interface {
	Record(ctx context.Context, p model.Payment)
}

// Tee fans each accepted payment out to several recorders.
type Tee struct {
	recorders []PaymentRecorder
}

// NewTee combines recorders into one.
func NewTee(recorders ...PaymentRecorder) *Tee {
	return &Tee{recorders: recorders}
}

// Record forwards the payment to every underlying recorder.
func (t *Tee) Record(ctx context.Context, p model.Payment) {
	for _, r := range t.recorders {
		r.Record(ctx, p)
	}
}
