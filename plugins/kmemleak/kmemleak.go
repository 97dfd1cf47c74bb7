// Package kmemleak runs the kernel memory leak detector on the nodes
// and fails the run if it finds leaks.
package kmemleak

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.universe.tf/vlab"
)

// Key is the node file key configuring the leak detector. It is
// either a boolean or a map with an optional "caches" list of extra
// slab caches to exclude from debugging.
const Key = "kmemleak"

// Slab caches that must not be debugged for kmemleak to work well.
var defaultCaches = []string{
	"kmemleak_object",
	"kmemleak_scan_area",
	"names_cache",
	"hostfs_inode_info",
	"ovl_inode",
}

const stopScript = `
test -f /sys/kernel/debug/kmemleak && (
  # writing "scan" returns EPERM if kmemleak has been disabled
  echo scan > /sys/kernel/debug/kmemleak 2> /dev/null || echo "kmemleak is disabled on $HOSTNAME"
  sleep 5 # minimum age for reporting in kmemleak
  echo scan > /sys/kernel/debug/kmemleak 2> /dev/null
  cat /sys/kernel/debug/kmemleak > /tmp/kmemleak
  test -s /tmp/kmemleak && touch $TMPDIR/kmemleak-leaked-$HOSTNAME
  cat /tmp/kmemleak > /dev/console
)
`

type node struct {
	vlab.BaseNodeExtension

	enabled bool
	caches  []string
}

func parseConfig(raw interface{}) (*node, error) {
	ret := &node{}
	switch cfg := raw.(type) {
	case nil:
	case bool:
		ret.enabled = cfg
	case map[string]interface{}:
		ret.enabled = true
		caches, ok := cfg["caches"]
		if !ok {
			break
		}
		list, ok := caches.([]interface{})
		if !ok {
			return nil, errors.New("kmemleak caches must be a list")
		}
		for _, c := range list {
			s, ok := c.(string)
			if !ok {
				return nil, fmt.Errorf("kmemleak cache %v is not a string", c)
			}
			ret.caches = append(ret.caches, s)
		}
	default:
		return nil, fmt.Errorf("invalid kmemleak setting %v", raw)
	}
	return ret, nil
}

// LinuxCmdline always sets kmemleak explicitly, so that the kernel's
// default doesn't matter.
func (n *node) LinuxCmdline(*vlab.RuntimeData) ([]string, error) {
	if !n.Started() {
		return nil, vlab.ErrNotStarted
	}
	if !n.enabled {
		return []string{"kmemleak=off"}, nil
	}
	caches := append(append([]string{}, defaultCaches...), n.caches...)
	return []string{"kmemleak=on", "slub_debug=-," + strings.Join(caches, ",")}, nil
}

// Postrun fails if the node's stop script found leaks.
func (n *node) Postrun(node *vlab.Node, lab *vlab.Lab, _ string) error {
	if !n.enabled {
		return nil
	}
	return checkLeaks(lab.Runtime().TmpDir, node.Name())
}

func checkLeaks(tmpDir, host string) error {
	marker := filepath.Join(tmpDir, "kmemleak-leaked-"+host)
	if _, err := os.Stat(marker); err == nil {
		return vlab.Failf(vlab.RuntimeFailure, "Kernel memory leak detected on hosts: %s", host)
	}
	return nil
}

// Plugin controls kmemleak on every node.
type Plugin struct {
	vlab.BasePlugin
}

// New is a vlab.PluginFactory.
func New(vlabDir string, args *vlab.Arguments) (vlab.Plugin, error) {
	return &Plugin{vlab.BasePlugin{VlabDir: vlabDir, Args: args}}, nil
}

func (*Plugin) Name() string { return "kmemleak" }

func (*Plugin) NodeStop(*vlab.RuntimeData) string { return stopScript }
func (*Plugin) CtrlStop(*vlab.RuntimeData) string { return stopScript }

func (*Plugin) ParseNode(_ *vlab.Node, raw map[string]interface{}) (vlab.NodeExtension, error) {
	n, err := parseConfig(raw[Key])
	if err != nil {
		return nil, err
	}
	return n, nil
}
