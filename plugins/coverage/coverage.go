// Package coverage collects kernel gcov data from the nodes and turns
// it into lcov tracefiles.
package coverage

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"go.uber.org/zap"

	"go.universe.tf/vlab"
)

// CombinedFile is the name of the tracefile, in the run's log
// directory, that merges all nodes' coverage.
const CombinedFile = "linux.cov"

const stopScript = `test -d /sys/kernel/debug/gcov && (\
  covdir=$TMPDIR/cov/$HOSTNAME/
  mkdir -p $covdir
  cp -d -r /sys/kernel/debug/gcov $covdir
)
`

var lcovArgs = []string{"-q", "--rc", "lcov_branch_coverage=1"}

type node struct {
	vlab.BaseNodeExtension
}

// Postrun captures the node's gcov data into <nodelog>/lcov-<node>
// and merges it into the combined tracefile.
func (*node) Postrun(node *vlab.Node, lab *vlab.Lab, logDir string) error {
	rt := lab.Runtime()
	return collect(lab.Logger(), filepath.Join(rt.TmpDir, "cov", node.Name(), "gcov"), logDir, rt.LogDir, node.Name())
}

func collect(log *zap.Logger, gcovDir, logDir, runLogDir, host string) error {
	entries, err := os.ReadDir(gcovDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading gcov data of %s: %w", host, err)
	}
	// A kernel without any coverage data only has the reset file.
	if len(entries) == 1 && entries[0].Name() == "reset" {
		return nil
	}

	machineFile := filepath.Join(logDir, "lcov-"+host)
	if err := lcov(log, "-c", "-d", gcovDir, "-o", machineFile); err != nil {
		return err
	}

	combined := filepath.Join(runLogDir, CombinedFile)
	if _, err := os.Stat(combined); err == nil {
		return lcov(log, "-a", machineFile, "-a", combined, "-o", combined)
	}
	return copyFile(machineFile, combined)
}

// lcovCommand is replaced in tests.
var lcovCommand = "lcov"

func lcov(log *zap.Logger, extra ...string) error {
	args := append(append([]string{}, lcovArgs...), extra...)
	log.Debug("running lcov", zap.Strings("args", args))
	out, err := exec.Command(lcovCommand, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("running lcov: %w\n%s", err, string(out))
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Plugin collects coverage from every node.
type Plugin struct {
	vlab.BasePlugin
}

// New is a vlab.PluginFactory.
func New(vlabDir string, args *vlab.Arguments) (vlab.Plugin, error) {
	return &Plugin{vlab.BasePlugin{VlabDir: vlabDir, Args: args}}, nil
}

func (*Plugin) Name() string { return "coverage" }

func (*Plugin) NodeStop(*vlab.RuntimeData) string { return stopScript }
func (*Plugin) CtrlStop(*vlab.RuntimeData) string { return stopScript }

func (*Plugin) ParseNode(*vlab.Node, map[string]interface{}) (vlab.NodeExtension, error) {
	return &node{}, nil
}
