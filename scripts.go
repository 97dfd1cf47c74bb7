package vlab

import (
	"fmt"
	"strings"
)

// The scripts below are run by the nodes' init. Their layout is relied
// upon by existing guest images, so keep changes to it compatible.

func joinFragments(plugins []Plugin, fragment func(Plugin) string) string {
	parts := make([]string, 0, len(plugins))
	for _, p := range plugins {
		parts = append(parts, fragment(p))
	}
	return strings.Join(parts, "\n")
}

func earlyScript(plugins []Plugin, rt *RuntimeData) string {
	return "#!/bin/sh\n\n" +
		joinFragments(plugins, func(p Plugin) string { return p.EarlyStart(rt) }) + "\n"
}

func nodeStopScript(plugins []Plugin, rt *RuntimeData) string {
	return "#!/bin/sh\n\n" +
		joinFragments(plugins, func(p Plugin) string { return p.NodeStop(rt) }) + "\n"
}

func nodeStartScript(plugins []Plugin, rt *RuntimeData, nodeStop string) string {
	return fmt.Sprintf(`#!/bin/sh

chmod +x /tmp/.host/%s

%s

while true ; do sleep 600 ; done
`, nodeStop, joinFragments(plugins, func(p Plugin) string { return p.NodeStart(rt) }))
}

type ctrlScriptConfig struct {
	plugins  []Plugin
	rt       *RuntimeData
	nodes    []*Node
	command  []string
	cwd      string
	nodeStop string
}

func ctrlScript(cfg *ctrlScriptConfig) string {
	var stops, poweroffs []string
	for _, node := range cfg.nodes[1:] {
		stops = append(stops, fmt.Sprintf("ssh -Fnone -oStrictHostKeyChecking=no %s /tmp/.host/%s", node.Addr, cfg.nodeStop))
		poweroffs = append(poweroffs, fmt.Sprintf("echo power off %s ; ssh -Fnone -oStrictHostKeyChecking=no %s poweroff -f &", node.Addr, node.Addr))
	}
	settle := ""
	if len(cfg.nodes) > 1 {
		settle = "echo waiting 5 seconds for shutdown; sleep 5"
	}

	var b strings.Builder
	b.WriteString("#!/bin/sh\n\n")
	b.WriteString(joinFragments(cfg.plugins, func(p Plugin) string { return p.CtrlStart(cfg.rt) }))
	fmt.Fprintf(&b, "\n\ncd /tmp/.host/%s\n\n", cfg.cwd)
	b.WriteString(strings.Join(cfg.command, " "))
	b.WriteString("\ncode=$?\n\n")
	b.WriteString(`status=$(sed 's/.*status=\([^ ]*\)\( .*\|$\)/\1/;t;d' /proc/cmdline)`)
	b.WriteString("\necho $code > $status\n\n")
	b.WriteString(strings.Join(stops, "\n"))
	b.WriteString("\n\n")
	b.WriteString(strings.Join(poweroffs, "\n"))
	b.WriteString("\n" + settle + "\n\n")
	b.WriteString(joinFragments(cfg.plugins, func(p Plugin) string { return p.CtrlStop(cfg.rt) }))
	b.WriteString("\n\npoweroff -f\n")
	return b.String()
}
