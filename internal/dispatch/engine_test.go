package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxsonferovante/AsyncPaymentProcessor/internal/model"
	"github.com/maxsonferovante/AsyncPaymentProcessor/internal/processor"
	"github.com/maxsonferovante/AsyncPaymentProcessor/internal/store"
)

// fakeHealth serves a fixed set of health views.
type fakeHealth struct {
	views map[model.ProcessorType]model.HealthView
}

func (f *fakeHealth) Get(_ context.Context, pt model.ProcessorType) (model.HealthView, bool) {
	view, ok := f.views[pt]
	return view, ok
}

func healthyBoth() *fakeHealth {
	return &fakeHealth{views: map[model.ProcessorType]model.HealthView{
		model.ProcessorDefault:  {Failing: false},
		model.ProcessorFallback: {Failing: false},
	}}
}

// fakeSubmitter returns a fixed outcome per processor and records calls.
type fakeSubmitter struct {
	mu       sync.Mutex
	outcomes map[model.ProcessorType]processor.Outcome
	calls    []model.ProcessorType
}

func (f *fakeSubmitter) Submit(_ context.Context, pt model.ProcessorType, _ model.Payment) processor.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, pt)
	return f.outcomes[pt]
}

func (f *fakeSubmitter) callCount(pt model.ProcessorType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == pt {
			n++
		}
	}
	return n
}

type fakePublisher struct {
	mu        sync.Mutex
	published []model.Payment
	err       error
}

func (f *fakePublisher) Publish(_ context.Context, p model.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, p)
	return nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	recorded []model.Payment
}

func (f *fakeRecorder) Record(_ context.Context, p model.Payment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, p)
}

func pendingPayment() model.Payment {
	return model.NewPayment(uuid.New(), model.Amount(19.90), time.Now())
}

func TestProcessAcceptedByDefault(t *testing.T) {
	submitter := &fakeSubmitter{outcomes: map[model.ProcessorType]processor.Outcome{
		model.ProcessorDefault: processor.Accepted,
	}}
	publisher := &fakePublisher{}
	recorder := &fakeRecorder{}
	engine := NewEngine(healthyBoth(), submitter, publisher, recorder, Options{})

	accepted := engine.Process(context.Background(), pendingPayment())

	assert.True(t, accepted)
	require.Len(t, recorder.recorded, 1)
	assert.Equal(t, model.ProcessorDefault, recorder.recorded[0].ProcessorType)
	assert.Equal(t, model.StatusSuccess, recorder.recorded[0].Status)
	assert.Empty(t, publisher.published)
	assert.Equal(t, 1, submitter.callCount(model.ProcessorDefault))
	assert.Zero(t, submitter.callCount(model.ProcessorFallback))
}

func TestProcessFallsBackWhenDefaultUnhealthy(t *testing.T) {
	health := &fakeHealth{views: map[model.ProcessorType]model.HealthView{
		model.ProcessorDefault:  {Failing: true},
		model.ProcessorFallback: {Failing: false},
	}}
	submitter := &fakeSubmitter{outcomes: map[model.ProcessorType]processor.Outcome{
		model.ProcessorFallback: processor.Accepted,
	}}
	recorder := &fakeRecorder{}
	engine := NewEngine(health, submitter, &fakePublisher{}, recorder, Options{})

	accepted := engine.Process(context.Background(), pendingPayment())

	assert.True(t, accepted)
	require.Len(t, recorder.recorded, 1)
	assert.Equal(t, model.ProcessorFallback, recorder.recorded[0].ProcessorType)
	assert.Zero(t, submitter.callCount(model.ProcessorDefault))
}

func TestProcessFallsBackWhenDefaultRejects(t *testing.T) {
	submitter := &fakeSubmitter{outcomes: map[model.ProcessorType]processor.Outcome{
		model.ProcessorDefault:  processor.Rejected,
		model.ProcessorFallback: processor.Accepted,
	}}
	recorder := &fakeRecorder{}
	engine := NewEngine(healthyBoth(), submitter, &fakePublisher{}, recorder, Options{})

	accepted := engine.Process(context.Background(), pendingPayment())

	assert.True(t, accepted)
	require.Len(t, recorder.recorded, 1)
	assert.Equal(t, model.ProcessorFallback, recorder.recorded[0].ProcessorType)
	// Default got its full attempt budget before the engine moved on.
	assert.Equal(t, 2, submitter.callCount(model.ProcessorDefault))
	assert.Equal(t, 1, submitter.callCount(model.ProcessorFallback))
}

func TestProcessBothUnhealthyReenqueuesWithoutSubmitting(t *testing.T) {
	health := &fakeHealth{views: map[model.ProcessorType]model.HealthView{
		model.ProcessorDefault:  {Failing: true},
		model.ProcessorFallback: {Failing: true},
	}}
	submitter := &fakeSubmitter{}
	publisher := &fakePublisher{}
	recorder := &fakeRecorder{}
	engine := NewEngine(health, submitter, publisher, recorder, Options{})

	accepted := engine.Process(context.Background(), pendingPayment())

	assert.False(t, accepted)
	assert.Empty(t, submitter.calls)
	assert.Empty(t, recorder.recorded)
	require.Len(t, publisher.published, 1)
	assert.Equal(t, 1, publisher.published[0].RetryCount)
	assert.Equal(t, model.StatusRetry, publisher.published[0].Status)
}

func TestProcessMissingViewsSkipByDefault(t *testing.T) {
	submitter := &fakeSubmitter{}
	publisher := &fakePublisher{}
	engine := NewEngine(&fakeHealth{}, submitter, publisher, &fakeRecorder{}, Options{})

	accepted := engine.Process(context.Background(), pendingPayment())

	assert.False(t, accepted)
	assert.Empty(t, submitter.calls)
	assert.Len(t, publisher.published, 1)
}

func TestProcessMissingViewsTriedWhenAssumeHealthy(t *testing.T) {
	submitter := &fakeSubmitter{outcomes: map[model.ProcessorType]processor.Outcome{
		model.ProcessorDefault: processor.Accepted,
	}}
	engine := NewEngine(&fakeHealth{}, submitter, &fakePublisher{}, &fakeRecorder{}, Options{
		AssumeHealthyWhenUnknown: true,
	})

	accepted := engine.Process(context.Background(), pendingPayment())

	assert.True(t, accepted)
	assert.Equal(t, 1, submitter.callCount(model.ProcessorDefault))
}

func TestProcessExhaustsAttemptBudgetPerProcessor(t *testing.T) {
	submitter := &fakeSubmitter{}
	publisher := &fakePublisher{}
	engine := NewEngine(healthyBoth(), submitter, publisher, &fakeRecorder{}, Options{
		MaxRetryAttemptsPerDispatch: 3,
	})

	accepted := engine.Process(context.Background(), pendingPayment())

	assert.False(t, accepted)
	assert.Equal(t, 3, submitter.callCount(model.ProcessorDefault))
	assert.Equal(t, 3, submitter.callCount(model.ProcessorFallback))
	assert.Len(t, publisher.published, 1)
}

func TestProcessRetryCeilingFailsTerminally(t *testing.T) {
	health := &fakeHealth{views: map[model.ProcessorType]model.HealthView{
		model.ProcessorDefault:  {Failing: true},
		model.ProcessorFallback: {Failing: true},
	}}
	publisher := &fakePublisher{}
	engine := NewEngine(health, &fakeSubmitter{}, publisher, &fakeRecorder{}, Options{
		MaxReenqueueCount: 3,
	})

	p := pendingPayment()
	p.RetryCount = 2

	accepted := engine.Process(context.Background(), p)

	// Third failure reaches the ceiling: terminal, not re-enqueued.
	assert.False(t, accepted)
	assert.Empty(t, publisher.published)
}

func TestProcessReenqueueSerializationFailureDropsPayment(t *testing.T) {
	publisher := &fakePublisher{err: store.NewSerializationError("payment encode", assert.AnError)}
	engine := NewEngine(&fakeHealth{}, &fakeSubmitter{}, publisher, &fakeRecorder{}, Options{})

	accepted := engine.Process(context.Background(), pendingPayment())

	assert.False(t, accepted)
	assert.Empty(t, publisher.published)
}

func TestIdempotentReplayRecordedOnce(t *testing.T) {
	// A 422 duplicate response surfaces as Accepted from the submitter;
	// the engine must record exactly one history entry for it.
	submitter := &fakeSubmitter{outcomes: map[model.ProcessorType]processor.Outcome{
		model.ProcessorDefault: processor.Accepted,
	}}
	recorder := &fakeRecorder{}
	engine := NewEngine(healthyBoth(), submitter, &fakePublisher{}, recorder, Options{})

	accepted := engine.Process(context.Background(), pendingPayment())

	assert.True(t, accepted)
	assert.Len(t, recorder.recorded, 1)
}
