// Package hwsim connects nodes' simulated wireless radios to the
// medium simulator.
package hwsim

import (
	"go.universe.tf/vlab"
)

// Key is the node file key that gives a node simulated radios.
const Key = "hwsim"

type node struct {
	vlab.BaseNodeExtension
}

func (*node) WmediumdVhostConnections() int { return 1 }

func (n *node) LinuxCmdline(rt *vlab.RuntimeData) ([]string, error) {
	if !n.Started() {
		return nil, vlab.ErrNotStarted
	}
	// Without a medium simulator the radio has nobody to talk to.
	if rt.WmediumdVhostSock == "" {
		return nil, nil
	}
	return []string{"virtio_uml.device=" + rt.WmediumdVhostSock + ":29"}, nil
}

// Plugin gives every node with a "hwsim" key a vhost-user connection
// to the medium simulator.
type Plugin struct {
	vlab.BasePlugin
}

// New is a vlab.PluginFactory.
func New(vlabDir string, args *vlab.Arguments) (vlab.Plugin, error) {
	return &Plugin{vlab.BasePlugin{VlabDir: vlabDir, Args: args}}, nil
}

func (*Plugin) Name() string { return "hwsim" }

func (*Plugin) ParseNode(_ *vlab.Node, raw map[string]interface{}) (vlab.NodeExtension, error) {
	if _, ok := raw[Key]; !ok {
		return nil, nil
	}
	return &node{}, nil
}
