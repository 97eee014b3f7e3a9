package fri

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-fri/logger"
)

// TaskFunc represents a loop body run within a goroutine managed by the TaskManager.
// It should return true to continue running the task, or false to stop the goroutine.
type TaskFunc func(ctx context.Context) bool

// TaskCancelFunc is called when a goroutine managed by the TaskManager exits.
// It can be used to release resources associated with the goroutine.
type TaskCancelFunc func()

// TaskManager manages the lifecycle of goroutines (tasks) spawned by a channel, a
// transport or a server.
//
// Every task receives the manager context, which is canceled by Stop. Wait and WaitTimeout
// join all tasks, so nothing a component spawned outlives it. Panics raised by task
// bodies are recovered and logged.
//
// Example Usage:
//
//	taskMgr := fri.NewTaskManager(ctx, logger)
//
//	// run a loop until it returns false or the manager is stopped
//	_ = taskMgr.Start("receiver", func(ctx context.Context) bool {
//	    // ... one iteration ...
//	    return true
//	}, nil)
//
//	// run a one-shot function, e.g. a user callback
//	_ = taskMgr.Go("handler", func(ctx context.Context) { ... })
//
//	taskMgr.Stop()
//	taskMgr.Wait()
type TaskManager struct {
	pctx   context.Context
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger logger.Logger
	count  atomic.Int32
	mu     sync.RWMutex // protect ctx and cancel
	taskMu sync.RWMutex // protect task creation during Wait()
}

// NewTaskManager creates a new TaskManager with ctx as the parent context.
func NewTaskManager(ctx context.Context, l logger.Logger) *TaskManager {
	if l == nil {
		l = logger.GetLogger()
	}
	mgr := &TaskManager{pctx: ctx, logger: l}
	mgr.ctx, mgr.cancel = context.WithCancel(ctx)

	return mgr
}

// Context returns the context shared by the running tasks.
func (mgr *TaskManager) Context() context.Context {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()

	return mgr.ctx
}

// Start starts a goroutine running taskFunc in a loop until it returns false or the manager is stopped.
//
// The cancelFunc, if not nil, is called when the goroutine exits.
func (mgr *TaskManager) Start(name string, taskFunc TaskFunc, cancelFunc TaskCancelFunc) error {
	mgr.logger.Debug("start task", "name", name)

	return mgr.spawn(name, func(ctx context.Context) {
		if cancelFunc != nil {
			defer cancelFunc()
		}

		defer func() {
			if r := recover(); r != nil {
				mgr.logger.Error("panic in task loop", "name", name, "panic", r)
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			default:
				if !taskFunc(ctx) {
					return
				}
			}
		}
	})
}

// Go starts a goroutine running fn once.
func (mgr *TaskManager) Go(name string, fn func(ctx context.Context)) error {
	mgr.logger.Debug("start one-shot task", "name", name)

	return mgr.spawn(name, func(ctx context.Context) {
		mgr.callWithRecover(name, func() { fn(ctx) })
	})
}

// Stop signals all running goroutines by canceling their context.
func (mgr *TaskManager) Stop() {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	if mgr.cancel != nil {
		mgr.cancel()
	}
}

// Wait waits for all goroutines to terminate.
//
// After Wait returns the manager can start new tasks again with a fresh context.
func (mgr *TaskManager) Wait() {
	mgr.taskMu.Lock()
	defer mgr.taskMu.Unlock()

	mgr.wg.Wait()

	mgr.mu.Lock()
	mgr.ctx, mgr.cancel = context.WithCancel(mgr.pctx)
	mgr.mu.Unlock()
}

// WaitTimeout waits for all goroutines to terminate, at most for timeout.
// It returns false if some tasks were still running when the timeout elapsed.
func (mgr *TaskManager) WaitTimeout(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		mgr.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		mgr.logger.Warn("tasks still running after timeout", "task_count", mgr.TaskCount(), "timeout", timeout)
		return false
	}
}

// TaskCount returns the number of currently running goroutines.
func (mgr *TaskManager) TaskCount() int {
	return int(mgr.count.Load())
}

func (mgr *TaskManager) spawn(name string, body func(ctx context.Context)) error {
	mgr.taskMu.RLock()
	defer mgr.taskMu.RUnlock()

	ctx := mgr.Context()
	select {
	case <-ctx.Done():
		return fmt.Errorf("task manager already stopped, can't start %s", name)
	default:
	}

	mgr.wg.Add(1)
	mgr.count.Add(1)

	go func() {
		defer func() {
			mgr.count.Add(-1)
			mgr.wg.Done()
			mgr.logger.Debug(fmt.Sprintf("%s task terminated", name), "task_count", mgr.TaskCount())
		}()

		body(ctx)
	}()

	return nil
}

// callWithRecover calls a function with panic protection.
func (mgr *TaskManager) callWithRecover(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("panic in task", "name", name, "panic", r)
		}
	}()

	fn()
}
