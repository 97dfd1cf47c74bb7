package vlab

import (
	"path/filepath"
)

// Paths locates vlab's own files and the binaries it runs.
type Paths struct {
	// Vlab is the base directory of the vlab installation.
	Vlab string
	// Linux is the directory holding the "linux" kernel binary.
	Linux      string
	Controller string
	Wmediumd   string
}

// DefaultPaths returns the standard layout below vlabDir.
func DefaultPaths(vlabDir string) Paths {
	return Paths{
		Vlab:       vlabDir,
		Linux:      filepath.Join(vlabDir, "linux"),
		Controller: filepath.Join(vlabDir, "..", "control", "controller"),
		Wmediumd:   filepath.Join(vlabDir, "wmediumd", "wmediumd", "wmediumd"),
	}
}

// Kernel returns the path of the kernel binary.
func (p Paths) Kernel() string {
	return filepath.Join(p.Linux, "linux")
}

// VMRoot returns the directory mounted as the base of every node's
// filesystem.
func (p Paths) VMRoot() string {
	return filepath.Join(p.Vlab, "vm-root")
}

// RuntimeData holds the paths of one run. Empty strings stand for
// sockets that the run doesn't use.
type RuntimeData struct {
	// ID uniquely identifies the run in logs.
	ID      string
	TmpDir  string
	LogDir  string
	Startup string
	// Clock is the time controller socket, only set in simulated
	// time mode.
	Clock string
	Net   string
	// Medium simulator vhost-user and API sockets.
	WmediumdVhostSock string
	WmediumdAPISock   string
}
