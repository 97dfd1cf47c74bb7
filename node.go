package vlab

import (
	"fmt"
)

const (
	// DefaultMemoryMiB is the memory given to a node that doesn't
	// ask for a specific amount.
	DefaultMemoryMiB = 128

	// NodeIDControl is the ID kind of a node's own connection to the
	// time controller.
	NodeIDControl = 1

	// maxAddrIndex bounds automatic address assignment to the last
	// usable host of 10.0.0.0/24.
	maxAddrIndex = 254
)

// Addr returns the private network address for a node index.
func Addr(idx int) string {
	return fmt.Sprintf("10.0.0.%d", idx)
}

// Node is the configuration of one virtual machine in the lab.
type Node struct {
	Addr      string
	MemoryMiB int
	RootFS    string

	// Run is the host path of the script the node executes after
	// booting. Set by the lab when the run starts.
	Run string
	// LogDir is the node's log directory. Set by the lab when the
	// run starts.
	LogDir string

	// BaseID is the node's sequence number, starting at 1.
	BaseID uint64

	// Plugins has one slot per loaded plugin, in plugin order.
	Plugins []PluginSlot

	name string
}

// NewNode returns a node with default settings.
func NewNode() *Node {
	return &Node{MemoryMiB: DefaultMemoryMiB}
}

// Name returns the node's hostname, which defaults to one derived
// from its address.
func (n *Node) Name() string {
	if n.name != "" {
		return n.name
	}
	return "vnode_" + n.Addr
}

// SetName overrides the node's hostname.
func (n *Node) SetName(name string) {
	n.name = name
}

// ID returns the node's identifier of the given kind, used to
// namespace the node's share of the time controller.
func (n *Node) ID(kind uint64) uint64 {
	return kind<<60 | n.BaseID<<40
}

// Extensions returns the node's present plugin extensions in plugin
// order.
func (n *Node) Extensions() []NodeExtension {
	var ret []NodeExtension
	for _, slot := range n.Plugins {
		if slot.Ext != nil {
			ret = append(ret, slot.Ext)
		}
	}
	return ret
}

// Extension returns the node's extension for plugin p, or nil.
func (n *Node) Extension(p Plugin) NodeExtension {
	for _, slot := range n.Plugins {
		if slot.Plugin == p {
			return slot.Ext
		}
	}
	return nil
}

// assignAddrs fills in missing node addresses with the lowest unused
// ones, and rejects duplicate explicit addresses and duplicate names.
func assignAddrs(nodes []*Node) error {
	taken := map[string]bool{}
	for _, node := range nodes {
		if node.Addr == "" {
			continue
		}
		if taken[node.Addr] {
			return Failf(ConfigurationError, "duplicate node address %s", node.Addr)
		}
		taken[node.Addr] = true
	}

	idx := 1
	for _, node := range nodes {
		if node.Addr != "" {
			continue
		}
		for taken[Addr(idx)] {
			idx++
		}
		if idx > maxAddrIndex {
			return Failf(ConfigurationError, "no free address for node %d", node.BaseID)
		}
		node.Addr = Addr(idx)
		taken[node.Addr] = true
	}

	// Names key the log directories and the hosts file.
	names := map[string]bool{}
	for _, node := range nodes {
		if names[node.Name()] {
			return Failf(ConfigurationError, "duplicate node name %s", node.Name())
		}
		names[node.Name()] = true
	}
	return nil
}
