package vlab

import (
	"context"
	"os"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

const (
	// SocketPollInterval is how often WaitForSocket checks for the
	// socket.
	SocketPollInterval = 100 * time.Millisecond
	// DefaultSocketTimeout is how long helper processes get to create
	// their sockets.
	DefaultSocketTimeout = 2 * time.Second
)

// WaitForSocket waits for the socket at path to appear, failing with a
// SynchronizationTimeout after timeout. which names the socket's owner
// in the error. An empty path returns immediately.
func WaitForSocket(ctx context.Context, which, path string, timeout time.Duration) error {
	if path == "" {
		return nil
	}
	err := wait.PollUntilContextTimeout(ctx, SocketPollInterval, timeout, true, func(context.Context) (bool, error) {
		_, err := os.Stat(path)
		return err == nil, nil
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if wait.Interrupted(err) {
		return Failf(SynchronizationTimeout, "Socket %s for %s didn't appear!", path, which)
	}
	return err
}
