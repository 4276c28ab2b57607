// Package schedule runs cancellable periodic tasks.
package schedule

import (
	"context"
	"sync"
	"time"
)

// Task is a running periodic callback. The zero value is not useful;
// create via Every.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Every calls fn once per interval until ctx is cancelled or Stop is called.
// The first call happens after one interval.
func Every(ctx context.Context, interval time.Duration, fn func()) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(t.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
	return t
}

// Stop cancels the task. It does not wait for an in-flight callback, so
// it is safe to call from inside fn.
func (t *Task) Stop() {
	if t == nil {
		return
	}
	t.cancel()
}

// Done is closed once the task goroutine has exited.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Slot holds at most one task of a given kind. Starting a new task always
// cancels the previous one first.
type Slot struct {
	mu   sync.Mutex
	task *Task
}

// Start replaces the slot's task with a new one.
func (s *Slot) Start(ctx context.Context, interval time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.task != nil {
		s.task.Stop()
		s.task = nil
	}
	s.task = Every(ctx, interval, fn)
}

// Stop cancels the current task, if any.
func (s *Slot) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.task != nil {
		s.task.Stop()
		s.task = nil
	}
}

// Active reports whether a task is scheduled.
func (s *Slot) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.task != nil
}
