// Package vlab runs tests in a virtual lab of User-Mode Linux nodes.
//
// A Lab is built from Arguments, which carry the parsed node file
// (a Config) and the loaded plugins. Running the lab starts a
// time/network controller, optionally a wireless medium simulator, and
// one kernel process per node. The first node is the primary: it runs
// the test command, records its exit status in a status file, tells
// the other nodes to power off and powers off itself.
//
// Time
//
// By default the nodes run in simulated time. The controller only
// starts the clock once every expected client is connected, so the
// number of clients passed to it must match exactly the number of
// parties that connect: one per node, one for the medium simulator if
// it runs, and whatever plugin extensions ask for. With
// Arguments.Wallclock the nodes use the host clock and the controller
// only switches network frames.
//
// Plugins
//
// Plugins contribute shell fragments to the node scripts, files that
// appear inside the nodes, and per-node extensions. An extension
// declares how many connections its node makes to the helper
// processes, adds kernel parameters, may start helper processes of its
// own through Lab.StartProcess, and gets a Postrun hook once every
// process is gone. Plugins are loaded with LoadPlugins before the node
// file is parsed, since each of them sees every node entry.
//
// Outcome
//
// Lab.Run returns nil if the test command exited with status 0.
// Otherwise it returns a *Failure whose Kind maps to the vlab exit
// code through ExitCode: 3 for a timeout, 2 for everything else.
// Teardown and every extension's Postrun happen no matter how the run
// ended.
//
// Node files
//
// A node file is YAML:
//
//   nodes:
//     - name: ap
//       mem: 256
//       hwsim:
//     - rootfs: sta-root
//       kmemleak: true
//   wmediumd:
//     config: wmediumd.cfg
//   net:
//     delay: 0.005
//   controller:
//     start-time: 1600000000
//
// Nodes without an address get the lowest free one in 10.0.0.0/24,
// starting at 10.0.0.1. Relative paths are resolved against the
// node file's directory.
package vlab
