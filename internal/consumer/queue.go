package consumer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/maxsonferovante/AsyncPaymentProcessor/internal/model"
	"github.com/maxsonferovante/AsyncPaymentProcessor/internal/store"
)

// Queue adapts the main payment list in the shared store. It serves both
// sides of the flow: the consumer pops from its tail and the dispatch
// engine head-pushes retries back through Publish.
type Queue struct {
	store *store.Store
	key   string
}

// NewQueue binds the adapter to the named list.
func NewQueue(s *store.Store, key string) *Queue {
	return &Queue{store: s, key: key}
}

// Pop removes the tail item without blocking.
func (q *Queue) Pop(ctx context.Context) (string, bool, error) {
	return q.store.ListPopTail(ctx, q.key)
}

// PopWait removes the tail item, waiting up to wait for one to arrive.
func (q *Queue) PopWait(ctx context.Context, wait time.Duration) (string, bool, error) {
	return q.store.ListPopTailBlocking(ctx, q.key, wait)
}

// Publish serialises the payment and pushes it at the head of the queue.
// It implements the dispatch engine's Publisher.
func (q *Queue) Publish(ctx context.Context, p model.Payment) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return store.NewSerializationError("payment encode", err)
	}
	return q.store.ListPushHead(ctx, q.key, string(raw))
}

// Length returns the current backlog depth.
func (q *Queue) Length(ctx context.Context) (int64, error) {
	return q.store.ListLength(ctx, q.key)
}
