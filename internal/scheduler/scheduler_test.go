package scheduler

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Scheduler_FiresPeriodicTaskAndDelivers(t *testing.T) {
	sched, err := New(NewStore(t.TempDir()), WithPollInterval(5*time.Millisecond))
	require.NoError(t, err)

	var fired atomic.Int64
	var lastPayload atomic.Value
	require.NoError(t, sched.RegisterHandler("client-a", func(ctx context.Context, taskID uuid.UUID, payload json.RawMessage) error {
		fired.Add(1)
		lastPayload.Store(string(payload))
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sched.Run(ctx) }()

	_, err = sched.AddTask(AddTaskInput{
		ClientID: "client-a",
		TimeSpec: PeriodicTime(MinPeriod),
		Persist:  false,
		Task:     []byte(`{"tick":true}`),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return fired.Load() >= 2
	}, 3*MinPeriod, 5*time.Millisecond)

	assert.Equal(t, `{"tick":true}`, lastPayload.Load())
}

func Test_Scheduler_ExactTaskFiresOnceThenDisables(t *testing.T) {
	sched, err := New(NewStore(t.TempDir()), WithPollInterval(5*time.Millisecond))
	require.NoError(t, err)

	var fired atomic.Int64
	require.NoError(t, sched.RegisterHandler("client-a", func(ctx context.Context, taskID uuid.UUID, payload json.RawMessage) error {
		fired.Add(1)
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sched.Run(ctx) }()

	id, err := sched.AddTask(AddTaskInput{
		ClientID: "client-a",
		TimeSpec: ExactTime(time.Now().Add(5 * time.Millisecond)),
		Persist:  false,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return fired.Load() >= 1
	}, time.Second, 5*time.Millisecond)

	// Give the timer loop a few more ticks; the count must not advance
	// past 1 once the task disables itself.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(1), fired.Load())

	task, err := sched.GetTask(id)
	require.NoError(t, err)
	assert.False(t, task.Enabled)
}

func Test_Scheduler_RegisterHandler_DuplicateRejected(t *testing.T) {
	sched, err := New(NewStore(t.TempDir()))
	require.NoError(t, err)

	noop := func(ctx context.Context, taskID uuid.UUID, payload json.RawMessage) error { return nil }
	require.NoError(t, sched.RegisterHandler("client-a", noop))
	assert.ErrorIs(t, sched.RegisterHandler("client-a", noop), ErrHandlerRegistered)
}

func Test_Scheduler_ChangeTaskState_DisablesDelivery(t *testing.T) {
	sched, err := New(NewStore(t.TempDir()), WithPollInterval(5*time.Millisecond))
	require.NoError(t, err)

	var fired atomic.Int64
	require.NoError(t, sched.RegisterHandler("client-a", func(ctx context.Context, taskID uuid.UUID, payload json.RawMessage) error {
		fired.Add(1)
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sched.Run(ctx) }()

	id, err := sched.AddTask(AddTaskInput{
		ClientID: "client-a",
		TimeSpec: PeriodicTime(MinPeriod),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return fired.Load() >= 1 }, 3*MinPeriod, 5*time.Millisecond)
	require.NoError(t, sched.ChangeTaskState(id, false))

	// Wait longer than one period: an enabled task would have fired again.
	stopped := fired.Load()
	time.Sleep(MinPeriod + 500*time.Millisecond)
	assert.Equal(t, stopped, fired.Load())
}
