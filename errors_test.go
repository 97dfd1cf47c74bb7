package vlab

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckStatus(t *testing.T) {
	tests := []struct {
		name    string
		content *string
		wantErr string
	}{
		{name: "missing", wantErr: "status file wasn't created - test crashed?"},
		{name: "zero", content: strptr("0\n")},
		{name: "nonzero", content: strptr("7"), wantErr: "test script failed with status 7"},
		{name: "garbage", content: strptr("abc"), wantErr: `status "abc" isn't a valid integer`},
		{name: "empty", content: strptr(""), wantErr: "isn't a valid integer"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "status")
			if test.content != nil {
				require.NoError(t, os.WriteFile(path, []byte(*test.content), 0644))
			}
			err := CheckStatus(path)
			if test.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, test.wantErr)
			require.True(t, IsKind(err, RuntimeFailure))
			require.Equal(t, 2, ExitCode(err))
		})
	}
}

func TestExitCode(t *testing.T) {
	require.Equal(t, 0, ExitCode(nil))
	require.Equal(t, 2, ExitCode(errors.New("boom")))
	require.Equal(t, 2, ExitCode(Failf(ValidationError, "missing")))
	require.Equal(t, 3, ExitCode(Failf(TimeoutFailure, "slow")))
	wrapped := fmt.Errorf("running: %w", Failf(TimeoutFailure, "slow"))
	require.Equal(t, 3, ExitCode(wrapped))
}

func TestFailureError(t *testing.T) {
	cause := errors.New("no such file")
	f := &Failure{Kind: ConfigurationError, Msg: "reading node file", Err: cause}
	require.Equal(t, "reading node file: no such file", f.Error())
	require.ErrorIs(t, f, cause)
	require.Equal(t, "no such file", (&Failure{Err: cause}).Error())
}

func TestCombineErrors(t *testing.T) {
	post := []error{errors.New("leak on b")}
	require.NoError(t, combineErrors(nil, nil))
	require.Equal(t, post[0], combineErrors(nil, post))

	err := combineErrors(Failf(TimeoutFailure, "slow"), post)
	require.Equal(t, 3, ExitCode(err))
	require.ErrorContains(t, err, "slow")
	require.ErrorContains(t, err, "leak on b")

	err = combineErrors(nil, append(post, errors.New("leak on c")))
	require.Equal(t, 2, ExitCode(err))
	require.ErrorContains(t, err, "leak on c")
}

func strptr(s string) *string { return &s }
