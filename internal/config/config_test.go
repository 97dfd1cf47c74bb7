package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	f, err := Parse([]byte(`
nodes:
  - name: ap
    hwsim:
    kmemleak:
      caches: [dentry]
  - addr: 10.0.0.7
wmediumd:
  config: radio.cfg
controller:
  start-time: 12345
`))
	require.NoError(t, err)
	require.Len(t, f.Nodes, 2)
	require.Contains(t, f.Nodes[0], "hwsim")
	require.Equal(t, map[string]interface{}{"caches": []interface{}{"dentry"}}, f.Nodes[0]["kmemleak"])
	require.Equal(t, "radio.cfg", f.Wmediumd.Config)
	require.Nil(t, f.Net)

	start, err := f.StartTime()
	require.NoError(t, err)
	require.Equal(t, int64(12345), start)
	require.False(t, f.NoSHM())

	n, err := DecodeNode(f.Nodes[1])
	require.NoError(t, err)
	require.Equal(t, &Node{Addr: "10.0.0.7"}, n)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte("wmediumd:\n  config: x\n"))
	require.EqualError(t, err, "no nodes defined")

	_, err = Parse([]byte("nodes: {a: b}\n"))
	require.Error(t, err)
}

func TestDecodeNode(t *testing.T) {
	n, err := DecodeNode(nil)
	require.NoError(t, err)
	require.Equal(t, &Node{}, n)

	n, err = DecodeNode(map[string]interface{}{"mem": 512.0, "rootfs": "fs", "name": "sta", "extra": true})
	require.NoError(t, err)
	require.Equal(t, &Node{Mem: 512, RootFS: "fs", Name: "sta"}, n)

	_, err = DecodeNode(map[string]interface{}{"mem": "big"})
	require.Error(t, err)
}

func TestController(t *testing.T) {
	f, err := Parse([]byte("nodes: [{}]\ncontroller:\n  no-shm:\n  start-time:\n"))
	require.NoError(t, err)
	require.True(t, f.NoSHM())
	start, err := f.StartTime()
	require.NoError(t, err)
	require.Zero(t, start)

	f, err = Parse([]byte("nodes: [{}]\ncontroller:\n  start-time: later\n"))
	require.NoError(t, err)
	_, err = f.StartTime()
	require.Error(t, err)
}
