package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/tetherproc/tether/iox"
)

// replyChannelFD is the file descriptor the worker inherits for the
// worker-to-parent frame channel. Stdin carries parent-to-worker frames;
// stdout and stderr stay free for raw diagnostic text.
const replyChannelFD = 3

// ExitStatus describes how a worker process terminated.
type ExitStatus struct {
	// Code is the process exit code, or -1 when killed by a signal.
	Code int
	// Signal is the terminating signal name, empty on a plain exit.
	Signal string
}

func (s ExitStatus) String() string {
	if s.Signal != "" {
		return fmt.Sprintf("signal %s", s.Signal)
	}
	return fmt.Sprintf("exit code %d", s.Code)
}

// Process abstracts the worker child process so tests can drive the far side
// of the channel without forking.
type Process interface {
	// Start launches the process.
	Start(ctx context.Context) error
	// Requests is the parent-to-worker frame channel.
	Requests() io.WriteCloser
	// Replies is the worker-to-parent frame channel.
	Replies() io.Reader
	// Stdout is the worker's raw standard output (diagnostics only).
	Stdout() io.Reader
	// Stderr is the worker's raw standard error (diagnostics only).
	Stderr() io.Reader
	// Wait blocks until the process exits and returns its status.
	Wait() (ExitStatus, error)
	// Kill force-terminates the process. Safe to call more than once and
	// after exit; duplicate attempts are harmless.
	Kill() error
	// Pid returns the process id, or 0 before Start.
	Pid() int
}

// ProcConfig configures worker process creation.
type ProcConfig struct {
	// EntryPoint is the worker binary to fork.
	EntryPoint string
	// Args is the worker's argument list.
	Args []string
	// WorkDir is the working directory for the process, if set.
	WorkDir string
	// Env is the additional environment, appended to the parent's.
	Env []string
}

// ProcFactory creates a Process. Used for test injection.
type ProcFactory func(config *ProcConfig) Process

// execProcess is the exec.Cmd-backed Process implementation.
type execProcess struct {
	config *ProcConfig
	cmd    *exec.Cmd

	requests io.WriteCloser
	replies  io.Reader
	stdout   io.Reader
	stderr   io.Reader

	// Parent copies of child-held pipe ends, closed after Start so reads
	// see EOF when the child exits.
	childEnds []*os.File
}

// NewProcess creates the default exec-backed worker process.
func NewProcess(config *ProcConfig) Process {
	return &execProcess{config: config}
}

// Start launches the worker binary with the protocol channels wired up:
// stdin carries request frames, inherited fd 3 carries reply frames, and
// stdout/stderr are plain pipes for diagnostic capture.
func (p *execProcess) Start(ctx context.Context) error {
	p.cmd = exec.CommandContext(ctx, p.config.EntryPoint, p.config.Args...)
	if p.config.WorkDir != "" {
		p.cmd.Dir = p.config.WorkDir
	}
	if len(p.config.Env) > 0 {
		p.cmd.Env = append(os.Environ(), p.config.Env...)
	}

	stdin, err := p.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}
	p.requests = stdin

	// Reply channel: the worker writes to its fd 3, we read the other end.
	// Deliberately not a Stdout/StderrPipe: exec.Cmd.Wait closes those on
	// reap, racing any reader still draining buffered frames.
	replyR, replyW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("create reply pipe: %w", err)
	}
	p.replies = replyR
	p.cmd.ExtraFiles = []*os.File{replyW}
	p.childEnds = append(p.childEnds, replyW)

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	p.stdout = stdoutR
	p.cmd.Stdout = stdoutW
	p.childEnds = append(p.childEnds, stdoutW)

	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("create stderr pipe: %w", err)
	}
	p.stderr = stderrR
	p.cmd.Stderr = stderrW
	p.childEnds = append(p.childEnds, stderrW)

	if err := p.cmd.Start(); err != nil {
		p.closeChildEnds()
		return fmt.Errorf("start worker: %w", err)
	}

	// The child holds duplicates now; release ours so EOF propagates.
	p.closeChildEnds()

	return nil
}

func (p *execProcess) closeChildEnds() {
	for _, f := range p.childEnds {
		iox.DiscardClose(f)
	}
	p.childEnds = nil
}

func (p *execProcess) Requests() io.WriteCloser { return p.requests }
func (p *execProcess) Replies() io.Reader      { return p.replies }
func (p *execProcess) Stdout() io.Reader       { return p.stdout }
func (p *execProcess) Stderr() io.Reader       { return p.stderr }

// Wait blocks until the worker exits and reports its exit code or signal.
func (p *execProcess) Wait() (ExitStatus, error) {
	if p.cmd == nil {
		return ExitStatus{}, errors.New("worker not started")
	}

	err := p.cmd.Wait()
	if err == nil {
		return ExitStatus{Code: 0}, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		status := ExitStatus{Code: -1}
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if ws.Signaled() {
				status.Signal = ws.Signal().String()
			} else {
				status.Code = ws.ExitStatus()
			}
		}
		return status, nil
	}

	return ExitStatus{}, fmt.Errorf("worker wait failed: %w", err)
}

// Kill force-terminates the worker process.
func (p *execProcess) Kill() error {
	if p.cmd != nil && p.cmd.Process != nil {
		err := p.cmd.Process.Kill()
		// Already-finished processes are not an error for callers;
		// termination is best-effort and idempotent.
		if err != nil && errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		return err
	}
	return nil
}

// Pid returns the worker process id.
func (p *execProcess) Pid() int {
	if p.cmd != nil && p.cmd.Process != nil {
		return p.cmd.Process.Pid
	}
	return 0
}
