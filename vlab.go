package vlab

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

// State is the phase a Lab is in. A Lab moves through the states in
// order, skipping the medium states when no medium simulator is needed,
// and never goes back.
type State int

const (
	StateInit State = iota
	StateValidated
	StateControllerStarting
	StateControllerReady
	StateMediumStarting
	StateMediumReady
	StateNodesStarting
	StateRunning
	StateFinishing
	StateClassified
)

var stateNames = map[State]string{
	StateInit:               "init",
	StateValidated:          "validated",
	StateControllerStarting: "controller-starting",
	StateControllerReady:    "controller-ready",
	StateMediumStarting:     "medium-starting",
	StateMediumReady:        "medium-ready",
	StateNodesStarting:      "nodes-starting",
	StateRunning:            "running",
	StateFinishing:          "finishing",
	StateClassified:         "classified",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// How long teardown waits for a signaled process to go away before
// moving on to postrun.
const teardownGrace = 5 * time.Second

// Options customizes a Lab. The zero value is usable except for
// Paths.Vlab, which must be set.
type Options struct {
	Paths Paths
	// ExtraRoots are additional host directories made visible to the
	// nodes, after the standard vm-root.
	ExtraRoots []string
	Logger     *zap.Logger
	// Stdin and Stdout are used for the operator prompts of debug and
	// interactive runs. They default to os.Stdin and os.Stdout.
	Stdin  io.Reader
	Stdout io.Writer
	// SocketTimeout bounds each wait for a helper socket. Defaults to
	// DefaultSocketTimeout.
	SocketTimeout time.Duration
}

// Lab runs one test in a virtual lab: it starts the time/network
// controller, the optional medium simulator and the nodes, waits for
// the test to finish, tears everything down and classifies the
// outcome. A Lab can only be run once.
type Lab struct {
	args          *Arguments
	paths         Paths
	extraRoots    []string
	log           *zap.Logger
	stdin         *bufio.Reader
	stdout        io.Writer
	socketTimeout time.Duration

	runtime *RuntimeData
	// Node processes, in start order.
	processes []*Process
	// Infrastructure processes, killed at teardown.
	killProcesses []*Process

	state State
	used  bool
}

// New validates args against the installation and the loaded plugins,
// and returns a Lab ready to run.
func New(args *Arguments, opts *Options) (*Lab, error) {
	if args == nil || args.Config == nil {
		return nil, Failf(ConfigurationError, "no configuration given")
	}
	if len(args.Config.Nodes) == 0 {
		return nil, Failf(ConfigurationError, "no nodes defined")
	}
	if len(args.Command) == 0 {
		return nil, Failf(ConfigurationError, "no command given")
	}
	if opts == nil {
		opts = &Options{}
	}
	if opts.Paths.Vlab == "" {
		return nil, Failf(ConfigurationError, "vlab directory not set")
	}

	ret := &Lab{
		args:          args,
		paths:         opts.Paths,
		extraRoots:    opts.ExtraRoots,
		log:           opts.Logger,
		stdout:        opts.Stdout,
		socketTimeout: opts.SocketTimeout,
		runtime:       &RuntimeData{},
	}
	if ret.log == nil {
		ret.log = zap.NewNop()
	}
	stdin := opts.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}
	ret.stdin = bufio.NewReader(stdin)
	if ret.stdout == nil {
		ret.stdout = os.Stdout
	}
	if ret.socketTimeout == 0 {
		ret.socketTimeout = DefaultSocketTimeout
	}

	if _, err := os.Stat(ret.paths.Kernel()); err != nil {
		return nil, Failf(ValidationError, "Linux binary isn't built - run make")
	}
	if _, err := os.Stat(ret.paths.Controller); err != nil {
		return nil, Failf(ValidationError, "Time controller isn't built - run make")
	}

	for _, p := range args.Plugins {
		var exts []NodeExtension
		for _, node := range args.Config.Nodes {
			if ext := node.Extension(p); ext != nil {
				exts = append(exts, ext)
			}
		}
		if err := p.Validate(exts); err != nil {
			var f *Failure
			if errors.As(err, &f) {
				return nil, err
			}
			return nil, &Failure{Kind: ValidationError, Msg: fmt.Sprintf("plugin %s", p.Name()), Err: err}
		}
	}

	ret.setState(StateValidated)
	return ret, nil
}

// Args returns the arguments the lab runs with.
func (l *Lab) Args() *Arguments { return l.args }

// Paths returns the installation paths the lab uses.
func (l *Lab) Paths() Paths { return l.paths }

// Runtime returns the paths of the current run.
func (l *Lab) Runtime() *RuntimeData { return l.runtime }

// Logger returns the lab's logger.
func (l *Lab) Logger() *zap.Logger { return l.log }

// State returns the lab's current state.
func (l *Lab) State() State { return l.state }

// Processes returns the supervised processes, infrastructure first,
// then nodes in start order.
func (l *Lab) Processes() []*Process {
	ret := make([]*Process, 0, len(l.killProcesses)+len(l.processes))
	ret = append(ret, l.killProcesses...)
	return append(ret, l.processes...)
}

// StartProcess starts a helper process that is killed when the run
// ends. Node extensions use it to run per-node helpers from Start.
func (l *Lab) StartProcess(cfg ProcessConfig) (*Process, error) {
	p, err := StartProcess(cfg)
	if err != nil {
		return nil, err
	}
	l.killProcesses = append(l.killProcesses, p)
	l.log.Info("started process",
		zap.String("process", p.String()),
		zap.Strings("args", cfg.Args),
		zap.String("outFile", cfg.OutFile),
	)
	return p, nil
}

func (l *Lab) setState(s State) {
	l.log.Debug("lab state", zap.Stringer("from", l.state), zap.Stringer("to", s))
	l.state = s
}

// Run runs the lab. The returned error is a *Failure describing why
// the test did not succeed, or nil.
func (l *Lab) Run(ctx context.Context) error {
	if l.used {
		return errors.New("lab already ran")
	}
	l.used = true

	if l.args.TmpDir != "" {
		return l.run(ctx, l.args.TmpDir)
	}
	tmp, err := os.MkdirTemp("", "vlab")
	if err != nil {
		return fmt.Errorf("creating tmpdir: %w", err)
	}
	defer os.RemoveAll(tmp)
	return l.run(ctx, tmp)
}

func (l *Lab) run(ctx context.Context, tmpdir string) (err error) {
	args := l.args
	nodes := args.Config.Nodes

	l.runtime = &RuntimeData{
		ID:      uuid.NewString(),
		TmpDir:  tmpdir,
		Startup: filepath.Join(l.paths.VMRoot(), "tmp", "startup.sh"),
		Net:     filepath.Join(tmpdir, "net"),
	}
	l.processes = nil
	l.killProcesses = nil
	l.log = l.log.With(zap.String("run", l.runtime.ID))

	logDir, err := l.logDir()
	if err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	l.runtime.LogDir = logDir
	for _, node := range nodes {
		node.LogDir = filepath.Join(logDir, node.Name())
	}
	l.log.Info("starting run",
		zap.String("logDir", logDir),
		zap.String("tmpDir", tmpdir),
		zap.Int("nodes", len(nodes)),
	)

	if err := l.writeHostFiles(); err != nil {
		return err
	}
	ctrlPath, nodePath, err := l.writeScripts()
	if err != nil {
		return err
	}

	statusfile := ""
	if !args.Interactive {
		statusfile = filepath.Join(tmpdir, "status")
	}

	d := l.demand()
	if !args.Wallclock {
		l.runtime.Clock = filepath.Join(tmpdir, "clock")
	}

	term := saveTerminal()
	defer func() {
		err = l.finish(err, term, statusfile)
	}()

	l.setState(StateControllerStarting)
	ctrl, err := l.StartProcess(ProcessConfig{
		Args:    l.controllerArgs(d),
		OutFile: filepath.Join(logDir, "controller.log"),
	})
	if err != nil {
		return &Failure{Kind: RuntimeFailure, Msg: "starting time controller", Err: err}
	}
	if err := WaitForSocket(ctx, "clock controller", l.runtime.Clock, l.socketTimeout); err != nil {
		return err
	}
	if err := WaitForSocket(ctx, "ethernet", l.runtime.Net, l.socketTimeout); err != nil {
		return err
	}
	l.setState(StateControllerReady)

	if args.Debug {
		if err := ctrl.Signal(unix.SIGSTOP); err != nil {
			return fmt.Errorf("stopping controller: %w", err)
		}
	}

	if d.medium() {
		l.setState(StateMediumStarting)
		if err := l.startMedium(ctx, d); err != nil {
			return err
		}
		l.setState(StateMediumReady)
	}

	l.setState(StateNodesStarting)
	nodes[0].Run = ctrlPath
	if err := l.startNode(nodes[0], args.CaptureAll, args.Interactive, statusfile); err != nil {
		return err
	}
	for _, node := range nodes[1:] {
		node.Run = nodePath
		if err := l.startNode(node, true, false, ""); err != nil {
			return err
		}
	}

	if args.Debug {
		if err := l.debugPause(ctrl); err != nil {
			return err
		}
	}

	l.setState(StateRunning)
	return l.wait(ctx, term)
}

// logDir returns the run's log directory. Without an explicit log
// path, a new logs/<timestamp> directory is created and logs/current
// is pointed at it.
func (l *Lab) logDir() (string, error) {
	if l.args.LogPath != "" {
		if err := os.MkdirAll(l.args.LogPath, 0755); err != nil {
			return "", err
		}
		return l.args.LogPath, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	base := filepath.Join(cwd, "logs")
	now := time.Now()
	dir := filepath.Join(base, now.Format("2006-01-02_15_04_05")+fmt.Sprintf("_%06d", now.Nanosecond()/1000))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	// Swap the link in with a rename, so that "current" always
	// points somewhere.
	current := filepath.Join(base, "current")
	tmpLink := current + "." + l.runtime.ID
	if err := os.Symlink(dir, tmpLink); err != nil {
		return "", err
	}
	if err := os.Rename(tmpLink, current); err != nil {
		os.Remove(tmpLink)
		return "", err
	}
	return dir, nil
}

// writeHostFiles writes the files the nodes read from the host: the
// PATH snapshot, the hosts table and the plugins' files.
func (l *Lab) writeHostFiles() error {
	rt := l.runtime
	if err := os.WriteFile(filepath.Join(rt.TmpDir, "path"), []byte(os.Getenv("PATH")), 0644); err != nil {
		return fmt.Errorf("writing path file: %w", err)
	}

	var hosts strings.Builder
	hosts.WriteString("127.0.0.1\tlocalhost\n")
	for _, node := range l.args.Config.Nodes {
		fmt.Fprintf(&hosts, "%s\t%s\n", node.Addr, node.Name())
	}
	if err := os.WriteFile(filepath.Join(rt.TmpDir, "hosts"), []byte(hosts.String()), 0644); err != nil {
		return fmt.Errorf("writing hosts file: %w", err)
	}

	// Check every name before writing anything, so that a bad one
	// leaves pluginfiles/ empty.
	files := map[string][]byte{}
	for _, p := range l.args.Plugins {
		pfiles, err := p.Files(rt)
		if err != nil {
			return &Failure{Kind: RuntimeFailure, Msg: fmt.Sprintf("plugin %s files", p.Name()), Err: err}
		}
		for name, content := range pfiles {
			if !path.IsAbs(name) || path.Clean(name) != name || name == "/" {
				return Failf(RuntimeFailure, "plugin %s: invalid file name %q", p.Name(), name)
			}
			files[name] = content
		}
	}
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	root := filepath.Join(rt.TmpDir, "pluginfiles")
	if err := os.MkdirAll(root, 0755); err != nil {
		return fmt.Errorf("creating plugin files directory: %w", err)
	}
	for _, name := range names {
		dst := filepath.Join(root, filepath.FromSlash(name[1:]))
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return fmt.Errorf("creating plugin file directory: %w", err)
		}
		if err := os.WriteFile(dst, files[name], 0644); err != nil {
			return fmt.Errorf("writing plugin file %q: %w", name, err)
		}
	}
	return nil
}

// writeScripts generates the node scripts, and returns the paths of
// the primary's and the other nodes' startup scripts.
func (l *Lab) writeScripts() (ctrl, node string, err error) {
	rt := l.runtime
	plugins := l.args.Plugins

	cwd, err := os.Getwd()
	if err != nil {
		return "", "", err
	}

	early := filepath.Join(rt.TmpDir, "early.sh")
	stop := filepath.Join(rt.TmpDir, "stop.sh")
	node = filepath.Join(rt.TmpDir, "node.sh")
	ctrl = filepath.Join(rt.TmpDir, "ctrl.sh")

	scripts := []struct {
		path    string
		content string
	}{
		{early, earlyScript(plugins, rt)},
		{stop, nodeStopScript(plugins, rt)},
		{node, nodeStartScript(plugins, rt, stop)},
		{ctrl, ctrlScript(&ctrlScriptConfig{
			plugins:  plugins,
			rt:       rt,
			nodes:    l.args.Config.Nodes,
			command:  l.args.Command,
			cwd:      cwd,
			nodeStop: stop,
		})},
	}
	for _, s := range scripts {
		if err := os.WriteFile(s.path, []byte(s.content), 0755); err != nil {
			return "", "", fmt.Errorf("writing %s: %w", filepath.Base(s.path), err)
		}
	}
	return ctrl, node, nil
}

// demand is the number of connections the nodes' extensions will make
// to the helper processes.
type demand struct {
	nodes         int
	wmediumdVhost int
	wmediumdAPI   int
	timeSocket    int
}

func (l *Lab) demand() demand {
	ret := demand{nodes: len(l.args.Config.Nodes)}
	for _, node := range l.args.Config.Nodes {
		for _, ext := range node.Extensions() {
			ret.wmediumdVhost += ext.WmediumdVhostConnections()
			ret.wmediumdAPI += ext.WmediumdAPIConnections()
			ret.timeSocket += ext.TimeSocketConnections()
		}
	}
	return ret
}

// medium reports whether the run needs the medium simulator. A single
// connection can't talk to anyone, so it doesn't count.
func (d demand) medium() bool {
	return d.wmediumdVhost+d.wmediumdAPI > 1
}

// clients returns the number of time controller clients. It must match
// the number of parties that connect to the time socket, or the
// controller never starts the clock.
func (d demand) clients() int {
	ret := d.nodes
	if d.medium() {
		ret++
	}
	return ret + d.timeSocket
}

func (l *Lab) controllerArgs(d demand) []string {
	cfg := l.args.Config
	ret := []string{
		l.paths.Controller,
		"--net=" + l.runtime.Net,
		fmt.Sprintf("--time-at-start=%d", cfg.StartTime),
	}
	if l.args.Debug {
		ret = append(ret, "--debug=3")
	}
	if l.args.NoSHM || cfg.NoSHM {
		ret = append(ret, "--no-shm")
	}
	if cfg.NetDelay != nil {
		ret = append(ret, "--net-delay="+formatDelay(*cfg.NetDelay))
	}
	if l.args.Wallclock {
		ret = append(ret, "--wallclock-network")
	} else {
		ret = append(ret, "--time="+l.runtime.Clock, fmt.Sprintf("--clients=%d", d.clients()))
	}
	return ret
}

func formatDelay(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func (l *Lab) startMedium(ctx context.Context, d demand) error {
	cfg := l.args.Config
	rt := l.runtime

	if cfg.WmediumdConf == "" {
		return Failf(ValidationError, "If wmediumd is used, it must be configured!")
	}

	// wmediumd tries to use netlink unless it has a vhost-user
	// socket, so always give it one.
	rt.WmediumdVhostSock = filepath.Join(rt.TmpDir, "wmediumd-vu")
	args := []string{
		l.paths.Wmediumd,
		"-p", filepath.Join(rt.LogDir, "wmediumd.pcapng"),
		"-u", rt.WmediumdVhostSock,
	}
	if d.wmediumdAPI > 0 {
		rt.WmediumdAPISock = filepath.Join(rt.TmpDir, "wmediumd-us")
		args = append(args, "-a", rt.WmediumdAPISock)
	}
	if rt.Clock != "" {
		args = append(args, "-t", rt.Clock)
	}
	args = append(args, "-c", cfg.WmediumdConf)
	if cfg.WmediumdPer != "" {
		args = append(args, "-x", cfg.WmediumdPer)
	}
	args = append(args, "-l", "7")

	if _, err := l.StartProcess(ProcessConfig{
		Args:    args,
		OutFile: filepath.Join(rt.LogDir, "wmediumd.log"),
	}); err != nil {
		return &Failure{Kind: RuntimeFailure, Msg: "starting wmediumd", Err: err}
	}

	if d.wmediumdVhost > 0 {
		if err := WaitForSocket(ctx, "wmediumd vhost-user", rt.WmediumdVhostSock, l.socketTimeout); err != nil {
			return err
		}
	}
	if d.wmediumdAPI > 0 {
		if err := WaitForSocket(ctx, "wmediumd unix domain", rt.WmediumdAPISock, l.socketTimeout); err != nil {
			return err
		}
	}
	return nil
}

// startNode starts the kernel process for node.
func (l *Lab) startNode(node *Node, logfile, interactive bool, statusfile string) error {
	rt := l.runtime

	if err := os.MkdirAll(node.LogDir, 0755); err != nil {
		return fmt.Errorf("creating log directory for %s: %w", node.Name(), err)
	}

	// Plugins start first, they may contribute to the command line.
	for _, slot := range node.Plugins {
		if slot.Ext == nil {
			continue
		}
		if err := slot.Ext.Start(node, l, node.LogDir); err != nil {
			return &Failure{
				Kind: RuntimeFailure,
				Msg:  fmt.Sprintf("starting plugin %s on %s", slot.Plugin.Name(), node.Name()),
				Err:  err,
			}
		}
	}

	vmroots := append([]string{l.paths.VMRoot()}, l.extraRoots...)
	args := []string{
		l.paths.Kernel(),
		fmt.Sprintf("mem=%dM", node.MemoryMiB),
		"init=" + rt.Startup,
		"root=none", "hostfs=/", "rootfstype=hostfs", "rootflags=/",
		"run=/tmp/.host" + node.Run,
		"virtio_uml.device=" + rt.Net + ":1",
		"addr=" + node.Addr,
		"tmpdir=" + rt.TmpDir,
		"hostname=" + node.Name(),
		"vmroots=" + strings.Join(vmroots, ":"),
		"vlab=" + l.paths.Vlab,
	}
	if node.RootFS != "" {
		args = append(args, "customrootfs="+node.RootFS)
	}
	if rt.Clock != "" {
		args = append(args, fmt.Sprintf("time-travel=ext:0x%x:%s", node.ID(NodeIDControl), rt.Clock))
	}
	if statusfile != "" {
		args = append(args, "status=/tmp/.host"+statusfile)
	}
	for _, slot := range node.Plugins {
		if slot.Ext == nil {
			continue
		}
		extra, err := slot.Ext.LinuxCmdline(rt)
		if err != nil {
			return &Failure{
				Kind: RuntimeFailure,
				Msg:  fmt.Sprintf("plugin %s command line for %s", slot.Plugin.Name(), node.Name()),
				Err:  err,
			}
		}
		args = append(args, extra...)
	}

	cfg := ProcessConfig{
		Args:        args,
		Interactive: interactive,
		Name:        node.Name(),
	}
	if logfile {
		cfg.OutFile = filepath.Join(node.LogDir, "dmesg")
	}
	p, err := StartProcess(cfg)
	if err != nil {
		return &Failure{Kind: RuntimeFailure, Msg: fmt.Sprintf("starting node %s", node.Name()), Err: err}
	}
	l.processes = append(l.processes, p)
	l.log.Info("started node",
		zap.String("node", node.Name()),
		zap.String("addr", node.Addr),
		zap.Int("pid", p.Pid()),
	)
	return nil
}

// debugPause lists every process with the command to attach a
// debugger to it, and waits for the operator before letting the
// controller run.
func (l *Lab) debugPause(ctrl *Process) error {
	var lines []string
	for _, p := range l.Processes() {
		extra := ""
		if p.Name != "" {
			extra = " " + p.Name
		}
		basename := filepath.Base(p.Args[0])
		lines = append(lines, fmt.Sprintf("\npid: %d (%s%s)", p.Pid(), basename, extra))
		gdb := []string{"gdb"}
		if basename == "linux" {
			gdb = append(gdb, fmt.Sprintf(`-ex "source %s"`, filepath.Join(l.paths.Vlab, "linux.gdb")))
		}
		gdb = append(gdb, "--pid", strconv.Itoa(p.Pid()))
		lines = append(lines, "\t"+strings.Join(gdb, " "))
		lines = append(lines, "\tcmd: "+strings.Join(p.Args, " "))
	}

	inventory := strings.Join(lines, "\n")
	fmt.Fprintln(l.stdout, inventory)
	if err := os.WriteFile(filepath.Join(l.runtime.LogDir, "gdb_log.txt"), []byte(inventory), 0644); err != nil {
		return fmt.Errorf("writing gdb log: %w", err)
	}

	fmt.Fprint(l.stdout, "==== press Enter to continue ====\n")
	if _, err := l.stdin.ReadString('\n'); err != nil && err != io.EOF {
		return fmt.Errorf("waiting for operator: %w", err)
	}
	return ctrl.Signal(unix.SIGCONT)
}

// wait waits for the nodes. Only the primary node's exit means the
// test finished; it had the other nodes power off before exiting, so
// they only get a short grace period.
func (l *Lab) wait(ctx context.Context, term *terminal) error {
	for i, p := range l.processes {
		if i == 0 {
			err := p.Wait(ctx, l.args.Timeout)
			if errors.Is(err, ErrWaitTimeout) {
				secs := (l.args.Timeout + time.Second - 1) / time.Second
				return Failf(TimeoutFailure, "Timeout of %d seconds expired!", int(secs))
			}
			if err != nil {
				return &Failure{Kind: RuntimeFailure, Msg: "waiting for primary node", Err: err}
			}
			l.log.Info("primary node exited", zap.String("node", p.Name))
			continue
		}

		err := p.Wait(ctx, time.Second)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrWaitTimeout) {
			return &Failure{Kind: RuntimeFailure, Msg: fmt.Sprintf("waiting for %s", p.Name), Err: err}
		}
		if !l.args.Interactive {
			l.log.Warn("node still running after primary exited", zap.String("node", p.Name))
			return Failf(RuntimeFailure, "Processes didn't exit cleanly")
		}

		if err := term.restore(); err != nil {
			l.log.Warn("restoring terminal", zap.Error(err))
		}
		fmt.Fprintf(l.stdout, "Waiting for process %s\n", p.Args[0])
		fmt.Fprintln(l.stdout, "Press Ctrl-C to cancel")
		if err := p.Wait(ctx, 0); err != nil {
			return &Failure{Kind: RuntimeFailure, Msg: fmt.Sprintf("waiting for %s", p.Name), Err: err}
		}
	}
	return nil
}

// finish tears the run down and classifies its outcome. It runs no
// matter how the run ended.
func (l *Lab) finish(runErr error, term *terminal, statusfile string) error {
	l.setState(StateFinishing)

	l.teardown(IsKind(runErr, TimeoutFailure))
	if err := term.restore(); err != nil {
		l.log.Warn("restoring terminal", zap.Error(err))
	}

	err := combineErrors(runErr, l.postrun())
	if err == nil && !l.args.Interactive {
		err = CheckStatus(statusfile)
	}

	l.setState(StateClassified)
	if err != nil {
		l.log.Info("run failed", zap.Error(err), zap.Int("exitCode", ExitCode(err)))
	} else {
		l.log.Info("run succeeded")
	}
	return err
}

// teardown signals every process that is still running.
func (l *Lab) teardown(timedOut bool) {
	sig := unix.SIGKILL
	if timedOut && l.args.SigquitOnTimeout {
		sig = unix.SIGQUIT
	}

	var signaled []*Process
	for _, p := range l.Processes() {
		if !p.Poll() {
			continue
		}
		l.log.Info("signaling process group",
			zap.String("process", p.String()),
			zap.Stringer("signal", sig),
		)
		if err := p.SignalGroup(sig); err != nil {
			l.log.Warn("signaling process group",
				zap.String("process", p.String()),
				zap.Error(err),
			)
			continue
		}
		signaled = append(signaled, p)
	}
	for _, p := range signaled {
		if err := p.Wait(context.Background(), teardownGrace); err != nil {
			l.log.Warn("process survived signal", zap.String("process", p.String()), zap.Error(err))
		}
	}
}

// postrun runs every node's extensions' Postrun, in node order. A
// failing extension doesn't keep the others from running.
func (l *Lab) postrun() []error {
	var errs []error
	for _, node := range l.args.Config.Nodes {
		for _, slot := range node.Plugins {
			if slot.Ext == nil {
				continue
			}
			if err := slot.Ext.Postrun(node, l, node.LogDir); err != nil {
				l.log.Warn("plugin postrun failed",
					zap.String("plugin", slot.Plugin.Name()),
					zap.String("node", node.Name()),
					zap.Error(err),
				)
				errs = append(errs, err)
			}
		}
	}
	return errs
}

// combineErrors merges the run's error with postrun errors. The kind
// of the run's error wins, so that a timeout stays a timeout.
func combineErrors(runErr error, postErrs []error) error {
	if len(postErrs) == 0 {
		return runErr
	}
	if runErr == nil && len(postErrs) == 1 {
		return postErrs[0]
	}

	kind := RuntimeFailure
	var all []error
	if runErr != nil {
		var f *Failure
		if errors.As(runErr, &f) {
			kind = f.Kind
		}
		all = append(all, runErr)
	}
	all = append(all, postErrs...)
	return &Failure{Kind: kind, Err: utilerrors.NewAggregate(all)}
}
