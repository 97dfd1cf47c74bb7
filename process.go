package vlab

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// ErrWaitTimeout is returned by Process.Wait when the process is still
// running at the deadline.
var ErrWaitTimeout = errors.New("timed out waiting for process")

// ProcessConfig describes a process to start.
type ProcessConfig struct {
	Args []string
	// OutFile receives stdout and stderr. If empty, the process
	// shares vlab's stdout and stderr.
	OutFile string
	// Interactive connects the process's stdin to vlab's stdin.
	// Incompatible with OutFile.
	Interactive bool
	Dir         string
	// Name is a readable name for diagnostics.
	Name string
}

// Process is a supervised child process. It runs in its own process
// group, so that signals reach all of its descendants.
type Process struct {
	Name string
	Args []string

	cmd *exec.Cmd
	out *os.File

	// Closed when the process has exited.
	stopped chan struct{}
	err     error
}

// StartProcess starts a process as described by cfg.
func StartProcess(cfg ProcessConfig) (*Process, error) {
	if len(cfg.Args) == 0 {
		return nil, errors.New("no command given")
	}
	if cfg.Interactive && cfg.OutFile != "" {
		return nil, errors.New("interactive process can't have an output file")
	}

	ret := &Process{
		Name:    cfg.Name,
		Args:    cfg.Args,
		stopped: make(chan struct{}),
	}
	ret.cmd = exec.Command(cfg.Args[0], cfg.Args[1:]...)
	ret.cmd.Dir = cfg.Dir
	ret.cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}

	if cfg.OutFile != "" {
		out, err := os.Create(cfg.OutFile)
		if err != nil {
			return nil, fmt.Errorf("creating output file: %w", err)
		}
		ret.out = out
		ret.cmd.Stdout = out
		ret.cmd.Stderr = out
	} else {
		ret.cmd.Stdout = os.Stdout
		ret.cmd.Stderr = os.Stderr
	}

	if cfg.Interactive {
		ret.cmd.Stdin = os.Stdin
	}

	if err := ret.cmd.Start(); err != nil {
		if ret.out != nil {
			ret.out.Close()
		}
		return nil, fmt.Errorf("starting %s: %w", filepath.Base(cfg.Args[0]), err)
	}
	go func() {
		ret.err = ret.cmd.Wait()
		if ret.out != nil {
			ret.out.Close()
		}
		close(ret.stopped)
	}()

	return ret, nil
}

// Pid returns the process ID.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Poll reports whether the process is still running.
func (p *Process) Poll() bool {
	select {
	case <-p.stopped:
		return false
	default:
		return true
	}
}

// Err returns the result of the process once it has exited.
func (p *Process) Err() error {
	select {
	case <-p.stopped:
		return p.err
	default:
		return nil
	}
}

// Wait waits for the process to exit, for at most timeout. A zero
// timeout waits forever.
func (p *Process) Wait(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	select {
	case <-p.stopped:
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrWaitTimeout
		}
		return ctx.Err()
	}
}

// Signal sends sig to the process itself.
func (p *Process) Signal(sig syscall.Signal) error {
	if !p.Poll() {
		return nil
	}
	if err := unix.Kill(p.Pid(), sig); err != nil && !errors.Is(err, unix.ESRCH) {
		return err
	}
	return nil
}

// SignalGroup sends sig to every process in the process's group. A
// group that no longer exists is not an error. Once the process has
// been reaped its pid may belong to someone else, so nothing is sent.
func (p *Process) SignalGroup(sig syscall.Signal) error {
	if !p.Poll() {
		return nil
	}
	// Started with Setpgid, so the group ID is the pid.
	if err := unix.Kill(-p.Pid(), sig); err != nil && !errors.Is(err, unix.ESRCH) {
		return err
	}
	return nil
}

func (p *Process) String() string {
	if p.Name != "" {
		return fmt.Sprintf("%s (%s, pid %d)", p.Name, filepath.Base(p.Args[0]), p.Pid())
	}
	return fmt.Sprintf("%s (pid %d)", filepath.Base(p.Args[0]), p.Pid())
}
