package main

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.universe.tf/vlab"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, err)
		os.Exit(vlab.ExitCode(err))
	}
}

// Every flag can also be set as VLAB_<FLAG>, e.g. VLAB_TIMEOUT=300.
var v = viper.New()

var rootCmd = &cobra.Command{
	Use:   "vlab [flags] <nodes.yaml> [cmd/arg...]",
	Short: "Run a command in a virtual lab of UML nodes",
	Long: `vlab boots the nodes described in the node file, runs the command on the
first of them, shuts everything down and reports whether the command
succeeded. It exits with 2 on failure and 3 on timeout.`,
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, posArgs []string) error {
		return run(cmd.Context(), posArgs)
	},
}

func init() {
	flags := rootCmd.Flags()
	// Everything after the node file belongs to the command.
	flags.SetInterspersed(false)

	flags.Bool("interactive", false, "start in interactive mode, with shell on the first VM")
	flags.Bool("capture-all", false, "capture output from all VMs including the first")
	flags.Bool("wallclock", false, "run in wallclock mode, without time simulation")
	flags.Int("timeout", int(vlab.DefaultTimeout/time.Second), "test timeout [seconds] (0 for inf)")
	flags.String("logpath", "", "path to the test logs. If not given, write to 'logs/<timestamp>/' and update the 'logs/current' symlink")
	flags.String("tmpdir", "", "path for temporary files. If not given, create a new directory")
	flags.Bool("dbg", false, "stop and allow gdb (disables timeout)")
	flags.Bool("sigquit-on-timeout", false, "send SIGQUIT on timeout to get core dumps")
	flags.Bool("no-shm", false, "disable shared memory in controller")
	flags.StringSlice("extra-root", nil, "additional host directory to make visible to the nodes")
	flags.String("vlab-dir", defaultVlabDir(), "vlab installation directory")
	flags.String("log-level", "warn", "vlab's own log level")
	flags.Bool("log-json", false, "write vlab's own logs as JSON")

	if err := v.BindPFlags(flags); err != nil {
		panic(err)
	}
	v.SetEnvPrefix("vlab")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

// defaultVlabDir is the directory the vlab binary lives in.
func defaultVlabDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe)
}

func printOutcome(err error) {
	if err == nil {
		color.New(color.FgGreen, color.Bold).Println("PASS")
		return
	}
	color.New(color.FgRed, color.Bold).Printf("FAIL (exit code %d)\n", vlab.ExitCode(err))
}

