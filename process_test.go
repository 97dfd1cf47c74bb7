package vlab

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestProcessOutFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.log")
	p, err := StartProcess(ProcessConfig{
		Args:    []string{"/bin/sh", "-c", "echo hello; echo oops >&2"},
		OutFile: out,
		Name:    "greeter",
	})
	require.NoError(t, err)
	require.NoError(t, p.Wait(context.Background(), 5*time.Second))
	require.False(t, p.Poll())
	require.NoError(t, p.Err())

	bs, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, "hello\noops\n", string(bs))
	require.Contains(t, p.String(), "greeter")
}

func TestProcessExitStatus(t *testing.T) {
	p, err := StartProcess(ProcessConfig{Args: []string{"/bin/sh", "-c", "exit 4"}})
	require.NoError(t, err)
	require.NoError(t, p.Wait(context.Background(), 5*time.Second))
	require.Error(t, p.Err())
}

func TestProcessWaitTimeout(t *testing.T) {
	p, err := StartProcess(ProcessConfig{Args: []string{"sleep", "60"}})
	require.NoError(t, err)
	defer p.SignalGroup(unix.SIGKILL)

	require.True(t, p.Poll())
	require.Nil(t, p.Err())
	require.ErrorIs(t, p.Wait(context.Background(), 50*time.Millisecond), ErrWaitTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, p.Wait(ctx, time.Second), context.Canceled)
}

func TestProcessSignalGroup(t *testing.T) {
	// Killing the group must take the shell's child down with it.
	pidfile := filepath.Join(t.TempDir(), "child.pid")
	p, err := StartProcess(ProcessConfig{
		Args: []string{"/bin/sh", "-c", "sleep 60 & echo $! > " + pidfile + "; wait"},
	})
	require.NoError(t, err)

	var child int
	require.Eventually(t, func() bool {
		bs, err := os.ReadFile(pidfile)
		if err != nil || !strings.HasSuffix(string(bs), "\n") {
			return false
		}
		child, err = strconv.Atoi(strings.TrimSpace(string(bs)))
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	pgid, err := unix.Getpgid(p.Pid())
	require.NoError(t, err)
	require.Equal(t, p.Pid(), pgid)

	require.NoError(t, p.SignalGroup(unix.SIGKILL))
	require.NoError(t, p.Wait(context.Background(), 5*time.Second))
	require.Eventually(t, func() bool { return gone(child) }, 5*time.Second, 10*time.Millisecond)

	// Signaling a process that's gone is fine.
	require.NoError(t, p.SignalGroup(unix.SIGKILL))
	require.NoError(t, p.Signal(unix.SIGKILL))
}

func TestProcessStopContinue(t *testing.T) {
	p, err := StartProcess(ProcessConfig{Args: []string{"sleep", "60"}})
	require.NoError(t, err)
	defer p.SignalGroup(unix.SIGKILL)

	require.NoError(t, p.Signal(unix.SIGSTOP))
	require.NoError(t, p.Signal(unix.SIGCONT))
	require.True(t, p.Poll())
}

func TestStartProcessErrors(t *testing.T) {
	_, err := StartProcess(ProcessConfig{})
	require.Error(t, err)

	_, err = StartProcess(ProcessConfig{
		Args:        []string{"true"},
		OutFile:     filepath.Join(t.TempDir(), "out"),
		Interactive: true,
	})
	require.Error(t, err)

	_, err = StartProcess(ProcessConfig{Args: []string{filepath.Join(t.TempDir(), "missing")}})
	require.Error(t, err)

	_, err = StartProcess(ProcessConfig{
		Args:    []string{"true"},
		OutFile: filepath.Join(t.TempDir(), "nodir", "out"),
	})
	require.Error(t, err)
}

// gone reports whether pid no longer runs. A zombie counts as gone,
// since its reaper may not be us.
func gone(pid int) bool {
	if unix.Kill(pid, 0) == unix.ESRCH {
		return true
	}
	bs, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return true
	}
	i := strings.LastIndexByte(string(bs), ')')
	return i >= 0 && strings.HasPrefix(string(bs[i+1:]), " Z")
}
