package supervisor

import (
	"io"
	"os"
	"os/exec"
)

// Command describes one backend launch attempt.
type Command struct {
	Path   string
	Args   []string
	Dir    string
	Env    []string
	Output io.Writer
}

// Process is a started child.
type Process interface {
	PID() int
	Signal(sig os.Signal) error
	Kill() error
	// Done is closed when the process has exited.
	Done() <-chan struct{}
}

// StartFunc launches a command without waiting for it to finish.
type StartFunc func(cmd Command) (Process, error)

type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
}

// StartExec is the default StartFunc, backed by os/exec.
func StartExec(c Command) (Process, error) {
	cmd := exec.Command(c.Path, c.Args...) //nolint:gosec
	cmd.Dir = c.Dir
	cmd.Env = c.Env
	if c.Output != nil {
		cmd.Stdout = c.Output
		cmd.Stderr = c.Output
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &execProcess{cmd: cmd, done: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

func (p *execProcess) PID() int                   { return p.cmd.Process.Pid }
func (p *execProcess) Signal(sig os.Signal) error { return p.cmd.Process.Signal(sig) }
func (p *execProcess) Kill() error                { return p.cmd.Process.Kill() }
func (p *execProcess) Done() <-chan struct{}      { return p.done }
