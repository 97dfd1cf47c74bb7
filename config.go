package vlab

import (
	"fmt"
	"path/filepath"
	"time"

	"go.universe.tf/vlab/internal/config"
)

// DefaultTimeout bounds how long the test command may run.
const DefaultTimeout = 120 * time.Second

// Config is the parsed node file.
type Config struct {
	// Medium simulator configuration, and optional per-node-pair
	// overrides.
	WmediumdConf string
	WmediumdPer  string
	// NetDelay, if set, is a fixed network delay for the controller.
	NetDelay  *float64
	Nodes     []*Node
	StartTime int64
	NoSHM     bool
}

// Arguments holds the settings of one vlab run. They usually come
// from the command line, but can be filled in programmatically.
type Arguments struct {
	Interactive bool
	CaptureAll  bool
	Wallclock   bool
	// Timeout bounds the primary node's run. Zero means no timeout.
	Timeout   time.Duration
	NodesFile string
	// LogPath is used as the log directory if set. Otherwise a new
	// logs/<timestamp> directory is created.
	LogPath string
	// TmpDir is used for temporary files if set. Otherwise a fresh
	// directory is created and removed after the run.
	TmpDir           string
	Debug            bool
	Command          []string
	SigquitOnTimeout bool
	NoSHM            bool

	Plugins []Plugin
	Config  *Config
}

// NewArguments returns arguments with vlab's defaults.
func NewArguments() *Arguments {
	return &Arguments{
		Timeout:   DefaultTimeout,
		NodesFile: "nodes.yaml",
	}
}

// Normalize checks the arguments for conflicts and applies the
// implications between them.
func (a *Arguments) Normalize() error {
	if a.Interactive {
		if len(a.Command) > 0 {
			return Failf(ConfigurationError, "--interactive can only be given without a command")
		}
		if a.CaptureAll {
			return Failf(ConfigurationError, "--capture-all is incompatible with --interactive")
		}
		welcome := "*********** WELCOME ***********"
		exitmsg := "Type 'exit' or press Ctrl-D to exit and shut down!"
		a.Command = []string{fmt.Sprintf("echo \"%s\n%s\" ; bash -i", welcome, exitmsg)}
		a.Wallclock = true
	}

	if a.Wallclock && a.Debug {
		return Failf(ConfigurationError, "--dbg cannot be used with --wallclock or --interactive")
	}

	if a.Timeout < 0 {
		return Failf(ConfigurationError, "negative timeout %v", a.Timeout)
	}
	if a.Debug || a.Interactive {
		a.Timeout = 0
	}
	return nil
}

// ParseConfig reads the node file at path. Plugins must already be
// loaded, since each of them gets to look at every node entry.
func ParseConfig(path string, plugins []Plugin) (*Config, error) {
	f, err := config.Read(path)
	if err != nil {
		return nil, &Failure{Kind: ConfigurationError, Msg: fmt.Sprintf("reading node file %q", path), Err: err}
	}
	return NewConfig(f, filepath.Dir(path), plugins)
}

// NewConfig builds a Config from a parsed node file. Relative paths
// in the file are resolved against cfgDir.
func NewConfig(f *config.File, cfgDir string, plugins []Plugin) (*Config, error) {
	ret := &Config{}

	for i, raw := range f.Nodes {
		node, err := newNode(cfgDir, raw, uint64(i+1), plugins)
		if err != nil {
			return nil, err
		}
		ret.Nodes = append(ret.Nodes, node)
	}
	if len(ret.Nodes) == 0 {
		return nil, Failf(ConfigurationError, "no nodes defined")
	}
	if err := assignAddrs(ret.Nodes); err != nil {
		return nil, err
	}

	if f.Wmediumd != nil {
		if f.Wmediumd.Config != "" {
			ret.WmediumdConf = filepath.Join(cfgDir, f.Wmediumd.Config)
		}
		if f.Wmediumd.Per != "" {
			ret.WmediumdPer = filepath.Join(cfgDir, f.Wmediumd.Per)
		}
	}

	if f.Net != nil && f.Net.Delay != nil {
		delay := *f.Net.Delay
		ret.NetDelay = &delay
	}

	start, err := f.StartTime()
	if err != nil {
		return nil, &Failure{Kind: ConfigurationError, Err: err}
	}
	ret.StartTime = start
	ret.NoSHM = f.NoSHM()

	return ret, nil
}

func newNode(cfgDir string, raw map[string]interface{}, baseID uint64, plugins []Plugin) (*Node, error) {
	cfg, err := config.DecodeNode(raw)
	if err != nil {
		return nil, &Failure{Kind: ConfigurationError, Msg: fmt.Sprintf("node %d", baseID), Err: err}
	}
	if cfg.Mem < 0 {
		return nil, Failf(ConfigurationError, "node %d: invalid memory size %d", baseID, cfg.Mem)
	}

	ret := NewNode()
	ret.Addr = cfg.Addr
	if cfg.Mem != 0 {
		ret.MemoryMiB = cfg.Mem
	}
	if cfg.Name != "" {
		ret.SetName(cfg.Name)
	}
	if cfg.RootFS != "" {
		ret.RootFS = filepath.Join(cfgDir, cfg.RootFS)
	}
	ret.BaseID = baseID

	if raw == nil {
		raw = map[string]interface{}{}
	}
	ret.Plugins = make([]PluginSlot, 0, len(plugins))
	for _, p := range plugins {
		ext, err := p.ParseNode(ret, raw)
		if err != nil {
			return nil, &Failure{
				Kind: ConfigurationError,
				Msg:  fmt.Sprintf("node %d: plugin %s", baseID, p.Name()),
				Err:  err,
			}
		}
		ret.Plugins = append(ret.Plugins, PluginSlot{Plugin: p, Ext: ext})
	}
	return ret, nil
}
