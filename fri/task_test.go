package fri

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arloliu/go-fri/logger"
	"github.com/stretchr/testify/require"
)

func TestTaskManager_StartLoop(t *testing.T) {
	require := require.New(t)

	mgr := NewTaskManager(context.Background(), logger.NewPermissiveMockLogger())

	var iterations atomic.Int32
	var canceled atomic.Bool
	require.NoError(mgr.Start("loop", func(_ context.Context) bool {
		return iterations.Add(1) < 3
	}, func() { canceled.Store(true) }))

	mgr.Wait()
	require.Equal(int32(3), iterations.Load())
	require.True(canceled.Load())
	require.Zero(mgr.TaskCount())
}

func TestTaskManager_StopCancelsTasks(t *testing.T) {
	require := require.New(t)

	mgr := NewTaskManager(context.Background(), logger.NewPermissiveMockLogger())

	started := make(chan struct{})
	require.NoError(mgr.Go("blocked", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	}))

	<-started
	require.Equal(1, mgr.TaskCount())

	mgr.Stop()
	require.True(mgr.WaitTimeout(time.Second))
	require.Zero(mgr.TaskCount())

	require.Error(mgr.Go("late", func(context.Context) {}), "stopped manager must refuse new tasks")
}

func TestTaskManager_WaitRenewsContext(t *testing.T) {
	require := require.New(t)

	mgr := NewTaskManager(context.Background(), logger.NewPermissiveMockLogger())
	mgr.Stop()
	mgr.Wait()

	done := make(chan struct{})
	require.NoError(mgr.Go("again", func(context.Context) { close(done) }))
	<-done
	mgr.Wait()
}

func TestTaskManager_RecoversPanics(t *testing.T) {
	require := require.New(t)

	l := logger.NewPermissiveMockLogger()
	mgr := NewTaskManager(context.Background(), l)

	require.NoError(mgr.Go("panicky", func(context.Context) { panic("boom") }))
	require.NoError(mgr.Start("panicky-loop", func(context.Context) bool { panic("boom") }, nil))

	require.True(mgr.WaitTimeout(time.Second))
	l.AssertCalled(t, "Error", "panic in task", []any{"name", "panicky", "panic", "boom"})
}

func TestTaskManager_WaitTimeoutExpires(t *testing.T) {
	require := require.New(t)

	mgr := NewTaskManager(context.Background(), logger.NewPermissiveMockLogger())
	release := make(chan struct{})
	require.NoError(mgr.Go("slow", func(context.Context) { <-release }))

	require.False(mgr.WaitTimeout(20 * time.Millisecond))
	close(release)
	require.True(mgr.WaitTimeout(time.Second))
}
