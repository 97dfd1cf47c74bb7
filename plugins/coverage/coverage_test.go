package coverage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// Records its arguments into the file given with -o.
const fakeLcov = `#!/bin/sh
all="$*"
out=""
while [ $# -gt 0 ]; do
	if [ "$1" = "-o" ]; then out="$2"; fi
	shift
done
echo "$all" >> "$out"
`

func useFakeLcov(t *testing.T, script string) {
	path := filepath.Join(t.TempDir(), "lcov")
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	old := lcovCommand
	lcovCommand = path
	t.Cleanup(func() { lcovCommand = old })
}

func gcovDir(t *testing.T, files ...string) string {
	dir := filepath.Join(t.TempDir(), "gcov")
	require.NoError(t, os.MkdirAll(dir, 0755))
	for _, f := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), nil, 0644))
	}
	return dir
}

func TestCollectNothing(t *testing.T) {
	log := zaptest.NewLogger(t)
	runLogs := t.TempDir()
	useFakeLcov(t, "#!/bin/sh\nexit 1\n")

	require.NoError(t, collect(log, filepath.Join(t.TempDir(), "missing"), runLogs, runLogs, "ap"))
	require.NoError(t, collect(log, gcovDir(t, "reset"), runLogs, runLogs, "ap"))

	_, err := os.Stat(filepath.Join(runLogs, CombinedFile))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestCollect(t *testing.T) {
	log := zaptest.NewLogger(t)
	runLogs := t.TempDir()
	useFakeLcov(t, fakeLcov)
	combined := filepath.Join(runLogs, CombinedFile)

	apLogs := filepath.Join(runLogs, "ap")
	require.NoError(t, os.Mkdir(apLogs, 0755))
	apGcov := gcovDir(t, "reset", "fs")
	require.NoError(t, collect(log, apGcov, apLogs, runLogs, "ap"))

	apFile := filepath.Join(apLogs, "lcov-ap")
	ap, err := os.ReadFile(apFile)
	require.NoError(t, err)
	require.Equal(t, "-q --rc lcov_branch_coverage=1 -c -d "+apGcov+" -o "+apFile+"\n", string(ap))
	first, err := os.ReadFile(combined)
	require.NoError(t, err)
	require.Equal(t, ap, first)

	staLogs := filepath.Join(runLogs, "sta")
	require.NoError(t, os.Mkdir(staLogs, 0755))
	require.NoError(t, collect(log, gcovDir(t, "reset", "net"), staLogs, runLogs, "sta"))

	merged, err := os.ReadFile(combined)
	require.NoError(t, err)
	require.Contains(t, string(merged), "-a "+filepath.Join(staLogs, "lcov-sta")+" -a "+combined+" -o "+combined)
	require.Equal(t, []string{"-q", "--rc", "lcov_branch_coverage=1"}, lcovArgs)
}

func TestCollectLcovFailure(t *testing.T) {
	useFakeLcov(t, "#!/bin/sh\necho no geninfo >&2\nexit 1\n")
	runLogs := t.TempDir()
	err := collect(zaptest.NewLogger(t), gcovDir(t, "reset", "fs"), runLogs, runLogs, "ap")
	require.ErrorContains(t, err, "no geninfo")
}
