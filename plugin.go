package vlab

import (
	"errors"
)

// ErrNotStarted is returned by NodeExtension methods that need the
// extension's Start to have run first.
var ErrNotStarted = errors.New("node extension used before start")

// A Plugin adds behavior to every phase of a lab run. One Plugin
// instance exists per run.
//
// The script fragment hooks are concatenated, in plugin order, into
// the shell scripts that the nodes run:
//
//   - EarlyStart runs on every node right after the filesystems are
//     mounted.
//   - NodeStart runs on every node except the first at startup.
//   - CtrlStart runs on the first node before the test command.
//   - NodeStop runs on every node except the first at shutdown.
//   - CtrlStop runs on the first node after the other nodes were told
//     to power off.
type Plugin interface {
	// Name identifies the plugin in logs and error messages.
	Name() string

	EarlyStart(rt *RuntimeData) string
	NodeStart(rt *RuntimeData) string
	CtrlStart(rt *RuntimeData) string
	NodeStop(rt *RuntimeData) string
	CtrlStop(rt *RuntimeData) string

	// Files returns the files to make visible inside the nodes,
	// keyed by absolute path.
	Files(rt *RuntimeData) (map[string][]byte, error)

	// ParseNode inspects a node's raw configuration and returns the
	// plugin's state for that node, or nil if the node doesn't use
	// the plugin.
	ParseNode(node *Node, raw map[string]interface{}) (NodeExtension, error)

	// Validate is called once with every extension ParseNode
	// returned, before anything is started. It should fail with a
	// ValidationError if required binaries or data are missing.
	//
	// Validate is the only hook that may change the plugin's own
	// state, e.g. to remember whether any node uses it. From the first
	// script or Files call on, the plugin is read-only.
	Validate(exts []NodeExtension) error
}

// A NodeExtension is a plugin's state for one node.
type NodeExtension interface {
	// Connections the node makes to the medium simulator's vhost-user
	// and API sockets, and to the time controller.
	WmediumdVhostConnections() int
	WmediumdAPIConnections() int
	TimeSocketConnections() int

	// LinuxCmdline returns extra kernel parameters. Only valid after
	// Start.
	LinuxCmdline(rt *RuntimeData) ([]string, error)

	// Start runs before the node's process is spawned. It may start
	// extra processes through the lab.
	Start(node *Node, lab *Lab, logDir string) error

	// Postrun runs after all processes are gone, whether or not the
	// run succeeded.
	Postrun(node *Node, lab *Lab, logDir string) error
}

// PluginSlot pairs a plugin with one node's extension for it. Ext is
// nil when the node doesn't use the plugin.
type PluginSlot struct {
	Plugin Plugin
	Ext    NodeExtension
}

// PluginFactory constructs a plugin for one run.
type PluginFactory func(vlabDir string, args *Arguments) (Plugin, error)

// LoadPlugins instantiates the given plugin factories into
// args.Plugins. It must be called before the node file is parsed.
func LoadPlugins(vlabDir string, args *Arguments, factories []PluginFactory) error {
	args.Plugins = nil
	for _, factory := range factories {
		p, err := factory(vlabDir, args)
		if err != nil {
			return err
		}
		args.Plugins = append(args.Plugins, p)
	}
	return nil
}

// BasePlugin implements every Plugin hook as a no-op. Embed it and
// override the hooks a plugin needs.
type BasePlugin struct {
	VlabDir string
	Args    *Arguments
}

func (BasePlugin) EarlyStart(*RuntimeData) string { return "" }
func (BasePlugin) NodeStart(*RuntimeData) string  { return "" }
func (BasePlugin) CtrlStart(*RuntimeData) string  { return "" }
func (BasePlugin) NodeStop(*RuntimeData) string   { return "" }
func (BasePlugin) CtrlStop(*RuntimeData) string   { return "" }

func (BasePlugin) Files(*RuntimeData) (map[string][]byte, error) { return nil, nil }

func (BasePlugin) ParseNode(*Node, map[string]interface{}) (NodeExtension, error) {
	return nil, nil
}

func (BasePlugin) Validate([]NodeExtension) error { return nil }

// BaseNodeExtension implements every NodeExtension hook with default
// behavior and tracks whether Start has run. Extensions that override
// Start must call BaseNodeExtension.Start.
type BaseNodeExtension struct {
	started bool
}

func (*BaseNodeExtension) WmediumdVhostConnections() int { return 0 }
func (*BaseNodeExtension) WmediumdAPIConnections() int   { return 0 }
func (*BaseNodeExtension) TimeSocketConnections() int    { return 0 }

func (b *BaseNodeExtension) LinuxCmdline(*RuntimeData) ([]string, error) {
	if !b.started {
		return nil, ErrNotStarted
	}
	return nil, nil
}

func (b *BaseNodeExtension) Start(*Node, *Lab, string) error {
	b.started = true
	return nil
}

func (*BaseNodeExtension) Postrun(*Node, *Lab, string) error { return nil }

// Started reports whether Start has run.
func (b *BaseNodeExtension) Started() bool { return b.started }
