// Package supervisor makes sure the local backend is serving, spawning it
// when nothing answers the health endpoint, and stops it on exit if this
// process started it.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"
)

// Phase is the startup phase of the backend.
type Phase string

const (
	PhaseStarting         Phase = "starting"
	PhaseWaitingForHealth Phase = "waiting_for_health"
	PhaseReady            Phase = "ready"
	PhaseFailed           Phase = "failed"
)

// Messages shown while starting.
const (
	MsgStarting = "Starting backend service..."
	MsgWaiting  = "Waiting for backend to become ready..."
	MsgReady    = "Backend ready."
	MsgFailed   = "Backend failed to start. Check Python/.venv and backend dependencies."
)

const (
	defaultPollInterval  = 700 * time.Millisecond
	defaultStartTimeout  = 60 * time.Second
	defaultShutdownGrace = 3 * time.Second
)

var (
	// ErrStartupTimeout means the backend never became healthy.
	ErrStartupTimeout = errors.New("backend did not become healthy before the timeout")
	// ErrNoInterpreter means no Python candidate could be started.
	ErrNoInterpreter = errors.New("no python interpreter could be started")
)

// State is a snapshot of the supervisor.
type State struct {
	Phase     Phase `json:"phase"`
	OwnsChild bool  `json:"owns_child"`
	PID       int   `json:"pid"`
}

// Options configures a Supervisor.
type Options struct {
	Prober HealthChecker

	// BackendDir and Python are explicit overrides; empty means search.
	BackendDir string
	Python     string

	Host string
	Port int

	// Output receives the child's stdout and stderr.
	Output io.Writer

	// OnPhase is called on every phase change.
	OnPhase func(phase Phase, message string)

	PollInterval  time.Duration
	ShutdownGrace time.Duration
	Start         StartFunc
	Candidates    func(override string) []string
}

// Supervisor owns the backend child process, if it started one.
type Supervisor struct {
	opts Options

	startMu sync.Mutex // serializes EnsureReady

	mu    sync.Mutex
	state State
	child Process
}

// New creates a supervisor. Zero-valued options get defaults.
func New(opts Options) *Supervisor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = defaultShutdownGrace
	}
	if opts.Start == nil {
		opts.Start = StartExec
	}
	if opts.Candidates == nil {
		opts.Candidates = BackendCandidates
	}
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.Port == 0 {
		opts.Port = 8000
	}
	return &Supervisor{opts: opts, state: State{Phase: PhaseStarting}}
}

// State returns the current state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// EnsureReady returns PhaseReady once the backend answers its health check,
// spawning it first if needed. It never spawns a second child while one it
// owns is still running. A zero timeout means 60s.
func (s *Supervisor) EnsureReady(ctx context.Context, timeout time.Duration) (Phase, error) {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	if timeout <= 0 {
		timeout = defaultStartTimeout
	}

	s.setPhase(PhaseStarting, MsgStarting)

	if s.opts.Prober.Healthy(ctx) {
		s.setPhase(PhaseReady, MsgReady)
		return PhaseReady, nil
	}

	if !s.childRunning() {
		if err := s.spawn(); err != nil {
			s.setPhase(PhaseFailed, MsgFailed)
			return PhaseFailed, err
		}
	}

	s.setPhase(PhaseWaitingForHealth, MsgWaiting)

	start := time.Now()
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		if s.opts.Prober.Healthy(ctx) {
			s.setPhase(PhaseReady, MsgReady)
			return PhaseReady, nil
		}
		if time.Since(start) >= timeout {
			s.setPhase(PhaseFailed, MsgFailed)
			return PhaseFailed, ErrStartupTimeout
		}

		select {
		case <-ctx.Done():
			s.setPhase(PhaseFailed, MsgFailed)
			return PhaseFailed, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Shutdown stops the child if this supervisor started it: interrupt first,
// then kill after the grace period. A backend found already running is
// left alone.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	child := s.child
	owns := s.state.OwnsChild
	s.child = nil
	s.state.OwnsChild = false
	s.state.PID = 0
	s.mu.Unlock()

	if !owns || child == nil {
		return
	}

	select {
	case <-child.Done():
		return
	default:
	}

	slog.Info("stopping backend", "pid", child.PID())
	if err := child.Signal(os.Interrupt); err != nil {
		slog.Debug("interrupt backend", "error", err)
		if err := child.Kill(); err != nil {
			slog.Warn("kill backend", "pid", child.PID(), "error", err)
		}
		return
	}

	select {
	case <-child.Done():
	case <-time.After(s.opts.ShutdownGrace):
		slog.Warn("backend ignored interrupt, killing", "pid", child.PID())
		if err := child.Kill(); err != nil {
			slog.Warn("kill backend", "pid", child.PID(), "error", err)
		}
	}
}

func (s *Supervisor) spawn() error {
	dir, err := LocateBackend(s.opts.Candidates(s.opts.BackendDir))
	if err != nil {
		return fmt.Errorf("locate backend: %w", err)
	}

	args := []string{
		"-m", "uvicorn", "app.main:app",
		"--host", s.opts.Host,
		"--port", strconv.Itoa(s.opts.Port),
	}
	env := append(os.Environ(), "PYTHONUNBUFFERED=1")

	var errs []error
	for _, py := range InterpreterCandidates(s.opts.Python, dir) {
		cmd := Command{
			Path:   py.Path,
			Args:   append(append([]string{}, py.Args...), args...),
			Dir:    dir,
			Env:    env,
			Output: s.opts.Output,
		}
		proc, err := s.opts.Start(cmd)
		if err != nil {
			slog.Debug("backend interpreter failed", "python", py.Path, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", py.Path, err))
			continue
		}

		slog.Info("backend started", "python", py.Path, "dir", dir, "pid", proc.PID())
		s.mu.Lock()
		s.child = proc
		s.state.OwnsChild = true
		s.state.PID = proc.PID()
		s.mu.Unlock()

		go s.watchChild(proc)
		return nil
	}

	return fmt.Errorf("spawn backend: %w", errors.Join(append([]error{ErrNoInterpreter}, errs...)...))
}

func (s *Supervisor) watchChild(proc Process) {
	<-proc.Done()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.child != proc {
		return
	}
	slog.Warn("backend exited", "pid", proc.PID())
	s.child = nil
	s.state.OwnsChild = false
	s.state.PID = 0
}

func (s *Supervisor) childRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.child == nil {
		return false
	}
	select {
	case <-s.child.Done():
		return false
	default:
		return true
	}
}

func (s *Supervisor) setPhase(phase Phase, msg string) {
	s.mu.Lock()
	s.state.Phase = phase
	s.mu.Unlock()

	if s.opts.OnPhase != nil {
		s.opts.OnPhase(phase, msg)
	}
}
