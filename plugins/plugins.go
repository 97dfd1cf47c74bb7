// Package plugins lists the plugins built into vlab.
package plugins

import (
	"go.universe.tf/vlab"
	"go.universe.tf/vlab/plugins/coverage"
	"go.universe.tf/vlab/plugins/hwsim"
	"go.universe.tf/vlab/plugins/kmemleak"
	"go.universe.tf/vlab/plugins/sshkeys"
)

// All returns the factories of every built-in plugin, sorted by
// plugin name. Script fragments are concatenated in this order.
func All() []vlab.PluginFactory {
	return []vlab.PluginFactory{
		coverage.New,
		hwsim.New,
		kmemleak.New,
		sshkeys.New,
	}
}
