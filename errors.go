package vlab

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Kind classifies a Failure. The kind selects the process exit code
// of the vlab command.
type Kind int

const (
	// RuntimeFailure is the generic failure of a run: a node that
	// didn't shut down, a bad test status, a plugin postrun check.
	RuntimeFailure Kind = iota
	// ConfigurationError is a malformed or inconsistent node file or
	// set of arguments.
	ConfigurationError
	// ValidationError is a missing binary or resource, detected
	// before any process is started.
	ValidationError
	// SynchronizationTimeout is a helper socket that never appeared.
	SynchronizationTimeout
	// TimeoutFailure is the primary node exceeding the run timeout.
	TimeoutFailure
)

func (k Kind) String() string {
	switch k {
	case RuntimeFailure:
		return "runtime failure"
	case ConfigurationError:
		return "configuration error"
	case ValidationError:
		return "validation error"
	case SynchronizationTimeout:
		return "synchronization timeout"
	case TimeoutFailure:
		return "timeout"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ExitCode returns the process exit code for failures of this kind.
func (k Kind) ExitCode() int {
	if k == TimeoutFailure {
		return 3
	}
	return 2
}

// Failure is an error that ends a vlab run.
type Failure struct {
	Kind Kind
	Msg  string
	Err  error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return f.Msg
	}
	if f.Msg == "" {
		return f.Err.Error()
	}
	return f.Msg + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error { return f.Err }

// Failf returns a Failure of the given kind with a formatted message.
func Failf(kind Kind, format string, args ...interface{}) error {
	return &Failure{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// ExitCode maps the result of a run to the vlab process exit code: 0
// for success, 3 for a timeout, 2 for everything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind.ExitCode()
	}
	return 2
}

// IsKind reports whether err is a Failure of the given kind.
func IsKind(err error, kind Kind) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == kind
}

// CheckStatus classifies the test outcome recorded by the primary
// node in statusfile.
func CheckStatus(statusfile string) error {
	bs, err := os.ReadFile(statusfile)
	if errors.Is(err, os.ErrNotExist) {
		return Failf(RuntimeFailure, "status file wasn't created - test crashed?")
	}
	if err != nil {
		return &Failure{Kind: RuntimeFailure, Msg: "reading status file", Err: err}
	}
	val, err := strconv.Atoi(strings.TrimSpace(string(bs)))
	if err != nil {
		return Failf(RuntimeFailure, "status %q isn't a valid integer", bs)
	}
	if val != 0 {
		return Failf(RuntimeFailure, "test script failed with status %d", val)
	}
	return nil
}
