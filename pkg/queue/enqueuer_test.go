package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/avuweb/membership/pkg/queue"
)

type mockEnqueuerRepo struct {
	mock.Mock
}

func (m *mockEnqueuerRepo) CreateTask(ctx context.Context, task *queue.Task) error {
	return m.Called(ctx, task).Error(0)
}

func TestEnqueuer_Enqueue(t *testing.T) {
	t.Parallel()

	repo := &mockEnqueuerRepo{}
	var captured *queue.Task
	repo.On("CreateTask", mock.Anything, mock.AnythingOfType("*queue.Task")).
		Run(func(args mock.Arguments) { captured = args.Get(1).(*queue.Task) }).
		Return(nil)

	e, err := queue.NewEnqueuer(repo, queue.WithDefaultQueue("billing"))
	require.NoError(t, err)

	before := time.Now()
	require.NoError(t, e.Enqueue(context.Background(), pingPayload{N: 3},
		queue.WithDelay(time.Minute),
		queue.WithPriority(queue.PriorityHigh),
		queue.WithMaxAttempts(5),
	))

	require.NotNil(t, captured)
	assert.Equal(t, "billing", captured.Queue)
	assert.Equal(t, queue.TaskNameOf(pingPayload{}), captured.TaskName)
	assert.Equal(t, queue.TaskTypeOneTime, captured.TaskType)
	assert.Equal(t, queue.TaskStatusPending, captured.Status)
	assert.Equal(t, queue.PriorityHigh, captured.Priority)
	assert.Equal(t, int8(5), captured.MaxAttempts)
	assert.JSONEq(t, `{"n":3}`, string(captured.Payload))
	assert.True(t, captured.ScheduledAt.After(before.Add(59*time.Second)))
	repo.AssertExpectations(t)
}

func TestEnqueuer_Errors(t *testing.T) {
	t.Parallel()

	_, err := queue.NewEnqueuer(nil)
	assert.ErrorIs(t, err, queue.ErrRepositoryNil)

	repo := &mockEnqueuerRepo{}
	e, err := queue.NewEnqueuer(repo)
	require.NoError(t, err)

	assert.ErrorIs(t, e.Enqueue(context.Background(), nil), queue.ErrPayloadNil)
	assert.ErrorIs(t, e.Enqueue(context.Background(), pingPayload{}, queue.WithPriority(101)), queue.ErrInvalidPriority)

	storeErr := errors.New("db down")
	repo.On("CreateTask", mock.Anything, mock.Anything).Return(storeErr).Once()
	assert.ErrorIs(t, e.Enqueue(context.Background(), pingPayload{}), storeErr)
}

func TestTaskNameOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "queue_test.pingPayload", queue.TaskNameOf(pingPayload{}))
	assert.Equal(t, "queue_test.pingPayload", queue.TaskNameOf(&pingPayload{}))
	assert.Equal(t, queue.TaskNameOf(pingPayload{}), queue.NewTaskHandler(func(context.Context, pingPayload) error { return nil }).Name())
}
