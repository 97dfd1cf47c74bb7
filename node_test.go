package vlab

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func nodesWithAddrs(addrs ...string) []*Node {
	var ret []*Node
	for i, addr := range addrs {
		n := NewNode()
		n.Addr = addr
		n.BaseID = uint64(i + 1)
		ret = append(ret, n)
	}
	return ret
}

func addrsOf(nodes []*Node) []string {
	var ret []string
	for _, n := range nodes {
		ret = append(ret, n.Addr)
	}
	return ret
}

func TestAssignAddrs(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "all automatic",
			in:   []string{"", "", ""},
			want: []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"},
		},
		{
			name: "explicit addresses are skipped",
			in:   []string{"", "10.0.0.1", "", "10.0.0.3"},
			want: []string{"10.0.0.2", "10.0.0.1", "10.0.0.4", "10.0.0.3"},
		},
		{
			name: "foreign explicit address",
			in:   []string{"192.168.1.1", ""},
			want: []string{"192.168.1.1", "10.0.0.1"},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			nodes := nodesWithAddrs(test.in...)
			require.NoError(t, assignAddrs(nodes))
			require.Equal(t, test.want, addrsOf(nodes))
		})
	}
}

func TestAssignAddrsDistinct(t *testing.T) {
	nodes := nodesWithAddrs(make([]string, 100)...)
	require.NoError(t, assignAddrs(nodes))
	seen := map[string]bool{}
	for i, n := range nodes {
		require.Equal(t, Addr(i+1), n.Addr)
		require.False(t, seen[n.Addr], "address %s assigned twice", n.Addr)
		seen[n.Addr] = true
	}
}

func TestAssignAddrsDuplicate(t *testing.T) {
	nodes := nodesWithAddrs("10.0.0.5", "", "10.0.0.5")
	err := assignAddrs(nodes)
	require.True(t, IsKind(err, ConfigurationError), "got %v", err)
}

func TestAssignAddrsDuplicateName(t *testing.T) {
	nodes := nodesWithAddrs("", "", "")
	nodes[0].SetName("ap")
	nodes[2].SetName("ap")
	err := assignAddrs(nodes)
	require.True(t, IsKind(err, ConfigurationError), "got %v", err)
	require.EqualError(t, err, "duplicate node name ap")

	// An explicit name may not collide with another node's default.
	nodes = nodesWithAddrs("", "")
	nodes[1].SetName("vnode_10.0.0.1")
	require.EqualError(t, assignAddrs(nodes), "duplicate node name vnode_10.0.0.1")
}

func TestAssignAddrsExhausted(t *testing.T) {
	nodes := nodesWithAddrs(make([]string, maxAddrIndex+1)...)
	err := assignAddrs(nodes)
	require.True(t, IsKind(err, ConfigurationError), "got %v", err)
}

func TestNodeName(t *testing.T) {
	n := NewNode()
	n.Addr = "10.0.0.7"
	require.Equal(t, "vnode_10.0.0.7", n.Name())
	n.SetName("ap")
	require.Equal(t, "ap", n.Name())
	require.Equal(t, DefaultMemoryMiB, n.MemoryMiB)
}

func TestNodeID(t *testing.T) {
	n := &Node{BaseID: 1}
	require.Equal(t, uint64(0x1000010000000000), n.ID(NodeIDControl))

	seen := map[uint64]uint64{}
	for id := uint64(1); id < 1<<20; id += 4099 {
		n := &Node{BaseID: id}
		got := n.ID(NodeIDControl)
		prev, dup := seen[got]
		require.False(t, dup, "base IDs %d and %d share node ID %x", prev, id, got)
		seen[got] = id
	}
	last := &Node{BaseID: 1<<20 - 1}
	require.Equal(t, uint64(1)<<60|uint64(1<<20-1)<<40, last.ID(NodeIDControl))
}
