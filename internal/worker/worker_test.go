package worker

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"subject-choices/internal/analysis"
	"subject-choices/internal/auth"
	"subject-choices/internal/model"
	"subject-choices/internal/queue"
	"subject-choices/pkg/errors"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolRunsJobs(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Start(context.Background())

	var ran int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		require.NoError(t, pool.Submit(func(ctx context.Context) error {
			defer wg.Done()
			atomic.AddInt32(&ran, 1)
			return nil
		}))
	}
	wg.Wait()
	pool.Stop()

	assert.Equal(t, int32(4), atomic.LoadInt32(&ran))
}

func TestWorkerPoolRejectsWhenFull(t *testing.T) {
	// Not started, so nothing drains the buffer of two.
	pool := NewWorkerPool(1)
	noop := func(ctx context.Context) error { return nil }

	require.NoError(t, pool.Submit(noop))
	require.NoError(t, pool.Submit(noop))
	assert.ErrorIs(t, pool.Submit(noop), errors.ErrQueueFull)
}

type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) Process(ctx context.Context, actor auth.Actor, uploadID int64, skipReview bool) (*analysis.ProcessOutcome, error) {
	args := m.Called(actor, uploadID, skipReview)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*analysis.ProcessOutcome), args.Error(1)
}

func TestIngestionWorkerProcess(t *testing.T) {
	processor := new(mockProcessor)
	processor.On("Process", auth.Actor{ID: "teacher-1"}, int64(1), true).
		Return(&analysis.ProcessOutcome{Result: &model.ImportResult{UploadID: 1, RecordCount: 3}}, nil)
	processor.On("Process", auth.Actor{ID: "teacher-1"}, int64(2), true).
		Return(nil, errors.AlreadyProcessedError{UploadID: 2})
	processor.On("Process", auth.Actor{ID: "teacher-1"}, int64(3), true).
		Return(nil, errors.ErrUploadNotFound)

	w := NewIngestionWorker(processor, nil, 1)
	ctx := context.Background()

	assert.NoError(t, w.process(ctx, model.IngestionJob{UploadID: 1, ActorID: "teacher-1"}))
	assert.NoError(t, w.process(ctx, model.IngestionJob{UploadID: 2, ActorID: "teacher-1"}))
	assert.ErrorIs(t, w.process(ctx, model.IngestionJob{UploadID: 3, ActorID: "teacher-1"}), errors.ErrUploadNotFound)
	processor.AssertExpectations(t)
}

func TestIngestionWorkerRejectsBadMessages(t *testing.T) {
	w := NewIngestionWorker(new(mockProcessor), nil, 1)
	assert.Error(t, w.handleMessage(context.Background(), []byte("{not json")))
}

// scriptedLists hands out queued messages, then reports an empty list until the
// context ends.
type scriptedLists struct {
	mu       sync.Mutex
	messages []string
}

func (s *scriptedLists) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	return redis.NewIntResult(int64(len(values)), nil)
}

func (s *scriptedLists) BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd {
	s.mu.Lock()
	if len(s.messages) > 0 {
		msg := s.messages[0]
		s.messages = s.messages[1:]
		s.mu.Unlock()
		return redis.NewStringSliceResult([]string{keys[0], msg}, nil)
	}
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return redis.NewStringSliceResult(nil, ctx.Err())
	case <-time.After(5 * time.Millisecond):
		return redis.NewStringSliceResult(nil, redis.Nil)
	}
}

func TestIngestionWorkerStartStopsPoolAfterConsumer(t *testing.T) {
	data, err := json.Marshal(model.IngestionJob{UploadID: 4, ActorID: "teacher-1"})
	require.NoError(t, err)

	processed := make(chan struct{})
	processor := new(mockProcessor)
	processor.On("Process", auth.Actor{ID: "teacher-1"}, int64(4), true).
		Run(func(mock.Arguments) { close(processed) }).
		Return(&analysis.ProcessOutcome{Result: &model.ImportResult{UploadID: 4, RecordCount: 1}}, nil)

	lists := &scriptedLists{messages: []string{string(data)}}
	w := NewIngestionWorker(processor, queue.NewConsumer(lists, "jobs", ":dlq"), 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	select {
	case <-processed:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not processed")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	processor.AssertExpectations(t)
}
