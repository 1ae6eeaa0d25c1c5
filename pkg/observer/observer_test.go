package observer

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glottahq/glotta/pkg/log"
	"github.com/glottahq/glotta/pkg/store"
	"github.com/glottahq/glotta/pkg/tasks"
	"github.com/glottahq/glotta/pkg/types"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true, Output: io.Discard})
	m.Run()
}

func newTestObserver(t *testing.T, maxWait, interval time.Duration) (*Observer, *tasks.Manager) {
	t.Helper()

	mr := miniredis.RunT(t)
	st := store.New(store.Config{Addr: mr.Addr()})
	t.Cleanup(func() { _ = st.Close() })

	manager := tasks.NewManager(st)
	return New(manager, maxWait, interval), manager
}

func createTask(t *testing.T, manager *tasks.Manager, images int) *types.Task {
	t.Helper()

	payloads := make([][]byte, images)
	for i := range payloads {
		payloads[i] = []byte{0x89, 0x50, byte(i)}
	}
	task, err := manager.Create(context.Background(), payloads, types.LanguageVietnamese)
	require.NoError(t, err)
	return task
}

func TestAwaitReturnsOnFirstPartial(t *testing.T) {
	obs, manager := newTestObserver(t, 5*time.Second, 20*time.Millisecond)
	ctx := context.Background()

	task := createTask(t, manager, 2)
	_, err := manager.ClaimNext(ctx, "worker-1")
	require.NoError(t, err)

	go func() {
		time.Sleep(80 * time.Millisecond)
		_ = manager.CompleteImage(ctx, task.TaskID, 0, "xin chào")
	}()

	start := time.Now()
	res, err := obs.Await(ctx, task.TaskID, 5*time.Second)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, types.TaskStatusProcessing, res.Status)
	assert.Equal(t, 1, res.CompletedImages)
	assert.Equal(t, 2, res.TotalImages)
	assert.InDelta(t, 50.0, res.ProgressPercentage, 0.01)
	assert.Nil(t, res.Success)
	assert.Zero(t, res.EstimatedWaitTime)

	require.Len(t, res.PartialResults, 2)
	assert.Equal(t, types.TaskStatusCompleted, res.PartialResults[0].Status)
	assert.Equal(t, "xin chào", res.PartialResults[0].TranslatedText)
	assert.Equal(t, types.TaskStatusPending, res.PartialResults[1].Status)
}

func TestAwaitImmediateWhenTerminal(t *testing.T) {
	obs, manager := newTestObserver(t, 5*time.Second, 20*time.Millisecond)
	ctx := context.Background()

	task := createTask(t, manager, 1)
	_, err := manager.ClaimNext(ctx, "worker-1")
	require.NoError(t, err)
	require.NoError(t, manager.CompleteImage(ctx, task.TaskID, 0, "done"))

	start := time.Now()
	res, err := obs.Await(ctx, task.TaskID, 5*time.Second)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, types.TaskStatusCompleted, res.Status)
	require.NotNil(t, res.Success)
	assert.True(t, *res.Success)
	assert.Equal(t, "done", res.TranslatedText)
	assert.InDelta(t, 100.0, res.ProgressPercentage, 0.01)
	assert.NotNil(t, res.CompletedAt)
}

func TestAwaitFailedTask(t *testing.T) {
	obs, manager := newTestObserver(t, 5*time.Second, 20*time.Millisecond)
	ctx := context.Background()

	task := createTask(t, manager, 1)
	_, err := manager.ClaimNext(ctx, "worker-1")
	require.NoError(t, err)
	require.NoError(t, manager.Fail(ctx, task.TaskID, "provider exploded", 2.0))

	res, err := obs.Await(ctx, task.TaskID, time.Second)
	require.NoError(t, err)

	assert.Equal(t, types.TaskStatusFailed, res.Status)
	require.NotNil(t, res.Success)
	assert.False(t, *res.Success)
	assert.Equal(t, "provider exploded", res.Error)
}

func TestAwaitTimeoutReturnsSnapshotWithEstimate(t *testing.T) {
	obs, manager := newTestObserver(t, 5*time.Second, 20*time.Millisecond)
	ctx := context.Background()

	task := createTask(t, manager, 2)

	start := time.Now()
	res, err := obs.Await(ctx, task.TaskID, 150*time.Millisecond)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
	assert.Equal(t, types.TaskStatusPending, res.Status)
	assert.Zero(t, res.CompletedImages)
	assert.Nil(t, res.Success)
	assert.GreaterOrEqual(t, res.EstimatedWaitTime, 2)
}

func TestAwaitClampsTimeout(t *testing.T) {
	obs, manager := newTestObserver(t, 150*time.Millisecond, 20*time.Millisecond)
	ctx := context.Background()

	task := createTask(t, manager, 1)

	start := time.Now()
	res, err := obs.Await(ctx, task.TaskID, time.Hour)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), time.Second)
	assert.Positive(t, res.EstimatedWaitTime)
}

func TestAwaitZeroTimeoutUsesCeiling(t *testing.T) {
	obs, manager := newTestObserver(t, 150*time.Millisecond, 20*time.Millisecond)
	ctx := context.Background()

	task := createTask(t, manager, 1)

	start := time.Now()
	_, err := obs.Await(ctx, task.TaskID, 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestAwaitUnknownTask(t *testing.T) {
	obs, _ := newTestObserver(t, time.Second, 20*time.Millisecond)

	_, err := obs.Await(context.Background(), "no-such-task", time.Second)
	assert.ErrorIs(t, err, tasks.ErrNotFound)
}

func TestAwaitContextCancel(t *testing.T) {
	obs, manager := newTestObserver(t, 5*time.Second, 20*time.Millisecond)

	task := createTask(t, manager, 1)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(80 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := obs.Await(ctx, task.TaskID, 5*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 2*time.Second)
}
