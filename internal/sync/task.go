package sync

import (
	"context"
	"time"

	"github.com/kimhsiao/nutrilog/backend/internal/models"
)

// PushResult is the outcome of one profile push.
type PushResult struct {
	Provider  models.CloudProvider
	Started   time.Time
	Finished  time.Time
	Err       error
	Discarded bool // provider was no longer active when the push finished
}

// OK reports whether the push reached the backend and still counts.
func (r PushResult) OK() bool {
	return r.Err == nil && !r.Discarded
}

// Task is a handle on an asynchronous push.
type Task struct {
	provider models.CloudProvider
	done     chan struct{}
	result   PushResult
}

func newTask(provider models.CloudProvider) *Task {
	return &Task{
		provider: provider,
		done:     make(chan struct{}),
	}
}

// Provider returns the push target.
func (t *Task) Provider() models.CloudProvider {
	return t.provider
}

// Done is closed once the push has finished.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the push finishes or ctx ends. Cancelling ctx only stops
// the wait; the push itself keeps running.
func (t *Task) Wait(ctx context.Context) (PushResult, error) {
	select {
	case <-t.done:
		return t.result, nil
	case <-ctx.Done():
		return PushResult{Provider: t.provider}, ctx.Err()
	}
}

func (t *Task) finish(r PushResult) {
	t.result = r
	close(t.done)
}
