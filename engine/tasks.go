package engine

import (
	"context"
	"errors"
	"time"

	"github.com/pithecene-io/scenesync/types"
)

// TransformTask is an inbound transform waiting to be applied on the
// coordination goroutine.
type TransformTask struct {
	Update     *types.TransformUpdate
	ReceivedAt time.Time
	SessionID  string
}

// Applier mutates the host scene. It returns ErrObjectNotFound when the
// named object does not exist.
type Applier interface {
	ApplyTransform(u *types.TransformUpdate) error
}

// ApplierFunc adapts a function to Applier.
type ApplierFunc func(u *types.TransformUpdate) error

// ApplyTransform calls f.
func (f ApplierFunc) ApplyTransform(u *types.TransformUpdate) error {
	return f(u)
}

// Tasks returns the channel of pending transform tasks. The host drains it
// from its coordination goroutine and passes each task to Apply.
func (e *Engine) Tasks() <-chan TransformTask {
	return e.tasks
}

// Apply applies one task with the gate armed: the gate is Applying while
// the applier runs and enters Cooldown afterwards, whether or not the
// applier succeeded.
func (e *Engine) Apply(task TransformTask, applier Applier) error {
	err := e.applyGated(task.Update, applier)

	switch {
	case errors.Is(err, ErrObjectNotFound):
		e.logger.Warn("transform target not found", map[string]any{"object": task.Update.ObjectName})
	case err != nil:
		e.logger.Error("failed to apply transform", map[string]any{
			"object": task.Update.ObjectName,
			"error":  err.Error(),
		})
	default:
		e.logger.Debug("transform applied", map[string]any{"object": task.Update.ObjectName})
	}
	return err
}

func (e *Engine) applyGated(u *types.TransformUpdate, applier Applier) error {
	e.gate.BeginApply(u)
	defer e.gate.EndApply()
	return applier.ApplyTransform(u)
}

// ApplyPending applies every queued task without blocking and returns how
// many were processed.
func (e *Engine) ApplyPending(applier Applier) int {
	n := 0
	for {
		select {
		case task := <-e.tasks:
			_ = e.Apply(task, applier)
			n++
		default:
			return n
		}
	}
}

// RunTasks applies tasks as they arrive until ctx is done.
func (e *Engine) RunTasks(ctx context.Context, applier Applier) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case task := <-e.tasks:
			_ = e.Apply(task, applier)
		}
	}
}
