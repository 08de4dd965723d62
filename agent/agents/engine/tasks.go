package engine

import (
	"context"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"
)

// RunningTask is the handle for one in-flight turn. At most one exists per
// thread at any instant.
type RunningTask struct {
	threadID  string
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// Controller owns the running-task map and mediates cooperative
// cancellation. It is safe for concurrent use.
type Controller struct {
	tasks *xsync.MapOf[string, *RunningTask]
}

func NewController() *Controller {
	return &Controller{tasks: xsync.NewMapOf[string, *RunningTask]()}
}

// Begin registers a new turn for the thread, first cancelling any previous
// task and waiting for it to terminate so turns stay strictly sequential.
// The returned context is cancelled by Cancel, by Finish, or by the parent.
func (c *Controller) Begin(ctx context.Context, threadID string) (context.Context, *RunningTask, error) {
	taskCtx, cancel := context.WithCancel(ctx)
	task := &RunningTask{
		threadID: threadID,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	// The slot is claimed inside Compute so two concurrent Begins can
	// never both install a handle for the thread.
	for {
		var prev *RunningTask
		c.tasks.Compute(threadID, func(current *RunningTask, loaded bool) (*RunningTask, bool) {
			if loaded {
				prev = current
				return current, false
			}
			return task, false
		})
		if prev == nil {
			return taskCtx, task, nil
		}

		prev.cancel()
		select {
		case <-prev.done:
		case <-ctx.Done():
			cancel()
			return nil, nil, ctx.Err()
		}
	}
}

// Finish releases the handle. Safe to call more than once.
func (c *Controller) Finish(task *RunningTask) {
	if task == nil {
		return
	}
	c.tasks.Compute(task.threadID, func(current *RunningTask, loaded bool) (*RunningTask, bool) {
		if loaded && current == task {
			return nil, true
		}
		return current, !loaded
	})
	task.cancel()
	task.closeOnce.Do(func() { close(task.done) })
}

// Cancel requests cooperative cancellation of the thread's active turn.
// A cancel for a thread with no running task is a no-op.
func (c *Controller) Cancel(threadID string) bool {
	task, ok := c.tasks.Load(threadID)
	if !ok {
		return false
	}
	log.Info().Str("thread_id", threadID).Msg("cancelling running turn")
	task.cancel()
	return true
}

// Running reports whether the thread currently has an active turn.
func (c *Controller) Running(threadID string) bool {
	_, ok := c.tasks.Load(threadID)
	return ok
}
