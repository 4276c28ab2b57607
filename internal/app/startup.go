package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.aimuz.me/thinkbox/supervisor"
)

// Ensurer brings the backend to ready.
type Ensurer interface {
	EnsureReady(ctx context.Context, timeout time.Duration) (supervisor.Phase, error)
}

// Startup runs backend readiness off the UI thread and keeps the last
// phase for the splash window.
type Startup struct {
	emit func(name string, data any)

	mu     sync.RWMutex
	status BackendStatus
	cancel context.CancelFunc
	done   chan struct{}
}

// NewStartup creates a Startup that announces phases through emit.
func NewStartup(emit func(name string, data any)) *Startup {
	return &Startup{emit: emit}
}

// OnPhase records a phase change. Pass it as supervisor.Options.OnPhase.
func (st *Startup) OnPhase(phase supervisor.Phase, message string) {
	st.mu.Lock()
	st.status.Phase = string(phase)
	st.status.Message = message
	if phase != supervisor.PhaseFailed {
		st.status.Error = ""
	}
	status := st.status
	st.mu.Unlock()

	slog.Info("backend phase", "phase", phase, "message", message)
	if st.emit != nil {
		st.emit(EventBackendPhase, status)
	}
}

// Run starts EnsureReady in the background. Stops any existing run first.
// onReady runs after the backend is healthy; onFail after it gave up.
func (st *Startup) Run(ctx context.Context, e Ensurer, timeout time.Duration, onReady func(), onFail func(error)) {
	st.Stop()

	st.mu.Lock()
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	st.cancel = cancel
	st.done = done
	st.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()

		phase, err := e.EnsureReady(ctx, timeout)
		if err != nil || phase != supervisor.PhaseReady {
			st.fail(err)
			if onFail != nil {
				onFail(err)
			}
			return
		}
		if onReady != nil {
			onReady()
		}
	}()
}

// Stop cancels a run in progress and waits for it to return.
func (st *Startup) Stop() {
	st.mu.Lock()
	cancel, done := st.cancel, st.done
	st.cancel, st.done = nil, nil
	st.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Status returns the last reported phase, safe for concurrent access.
func (st *Startup) Status() BackendStatus {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.status
}

func (st *Startup) fail(err error) {
	if err == nil {
		return
	}
	st.mu.Lock()
	st.status.Error = err.Error()
	st.mu.Unlock()
	slog.Error("backend startup", "error", err)
}
