package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"go.universe.tf/vlab"
	"go.universe.tf/vlab/internal/logger"
	"go.universe.tf/vlab/plugins"
)

// argumentsFromFlags builds vlab arguments from the command line and
// the environment.
func argumentsFromFlags(posArgs []string) (*vlab.Arguments, error) {
	args := vlab.NewArguments()
	args.NodesFile = posArgs[0]
	args.Command = posArgs[1:]
	args.Interactive = v.GetBool("interactive")
	args.CaptureAll = v.GetBool("capture-all")
	args.Wallclock = v.GetBool("wallclock")
	args.Timeout = time.Duration(v.GetInt("timeout")) * time.Second
	args.LogPath = v.GetString("logpath")
	args.TmpDir = v.GetString("tmpdir")
	args.Debug = v.GetBool("dbg")
	args.SigquitOnTimeout = v.GetBool("sigquit-on-timeout")
	args.NoSHM = v.GetBool("no-shm")

	if err := args.Normalize(); err != nil {
		return nil, err
	}
	return args, nil
}

func run(ctx context.Context, posArgs []string) error {
	log, err := logger.New(v.GetString("log-level"), v.GetBool("log-json"))
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer log.Sync()

	args, err := argumentsFromFlags(posArgs)
	if err != nil {
		return err
	}

	vlabDir := v.GetString("vlab-dir")
	if err := vlab.LoadPlugins(vlabDir, args, plugins.All()); err != nil {
		return fmt.Errorf("loading plugins: %w", err)
	}
	cfg, err := vlab.ParseConfig(args.NodesFile, args.Plugins)
	if err != nil {
		return err
	}
	args.Config = cfg

	lab, err := vlab.New(args, &vlab.Options{
		Paths:      vlab.DefaultPaths(vlabDir),
		ExtraRoots: v.GetStringSlice("extra-root"),
		Logger:     log,
	})
	if err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	// ctrl+C cancels the run, which still tears everything down.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("running lab",
		zap.String("nodes", args.NodesFile),
		zap.Strings("command", args.Command),
		zap.Int("numNodes", len(cfg.Nodes)),
	)
	err = lab.Run(ctx)
	printOutcome(err)
	return err
}
