package vlab

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCtrlScript(t *testing.T) {
	rt := &RuntimeData{TmpDir: "/tmp/vlab1"}
	nodes := []*Node{{Addr: "10.0.0.1"}, {Addr: "10.0.0.2"}, {Addr: "10.0.0.3"}}
	plugins := []Plugin{&testPlugin{name: "a"}, &testPlugin{name: "b"}}

	got := ctrlScript(&ctrlScriptConfig{
		plugins:  plugins,
		rt:       rt,
		nodes:    nodes,
		command:  []string{"./run-test.sh", "--fast"},
		cwd:      "/home/user/tests",
		nodeStop: "/tmp/vlab1/stop.sh",
	})

	require.True(t, strings.HasPrefix(got, "#!/bin/sh\n\necho ctrl-start-a\necho ctrl-start-b\n"))
	require.True(t, strings.HasSuffix(got, "echo ctrl-stop-a\necho ctrl-stop-b\n\npoweroff -f\n"))

	for _, want := range []string{
		"cd /tmp/.host//home/user/tests\n",
		"./run-test.sh --fast\ncode=$?\n",
		"echo $code > $status\n",
		"ssh -Fnone -oStrictHostKeyChecking=no 10.0.0.2 /tmp/.host//tmp/vlab1/stop.sh\n",
		"ssh -Fnone -oStrictHostKeyChecking=no 10.0.0.3 /tmp/.host//tmp/vlab1/stop.sh\n",
		"echo power off 10.0.0.3 ; ssh -Fnone -oStrictHostKeyChecking=no 10.0.0.3 poweroff -f &\n",
		"echo waiting 5 seconds for shutdown; sleep 5\n",
	} {
		require.Contains(t, got, want)
	}
	require.NotContains(t, got, "10.0.0.1")

	// Ordering: test, stop scripts, power off, settle, plugin stop.
	order := []string{"code=$?", "stop.sh", "power off", "sleep 5", "ctrl-stop-a"}
	last := -1
	for _, s := range order {
		i := strings.Index(got, s)
		require.Greater(t, i, last, "%q out of order", s)
		last = i
	}
}

func TestCtrlScriptSingleNode(t *testing.T) {
	got := ctrlScript(&ctrlScriptConfig{
		rt:       &RuntimeData{},
		nodes:    []*Node{{Addr: "10.0.0.1"}},
		command:  []string{"true"},
		cwd:      "/src",
		nodeStop: "/tmp/stop.sh",
	})
	require.NotContains(t, got, "ssh")
	require.NotContains(t, got, "sleep 5")
	require.Contains(t, got, "\ntrue\ncode=$?\n")
}

func TestNodeScripts(t *testing.T) {
	rt := &RuntimeData{}
	plugins := []Plugin{&testPlugin{name: "a"}, &testPlugin{name: "b"}}

	start := nodeStartScript(plugins, rt, "/tmp/x/stop.sh")
	require.Equal(t, `#!/bin/sh

chmod +x /tmp/.host//tmp/x/stop.sh

echo node-start-a
echo node-start-b

while true ; do sleep 600 ; done
`, start)

	require.Equal(t, "#!/bin/sh\n\necho node-stop-a\necho node-stop-b\n", nodeStopScript(plugins, rt))
	require.Equal(t, "#!/bin/sh\n\n\n", earlyScript(nil, rt))
}
