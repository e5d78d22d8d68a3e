// Package cli is the shabench command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/stormycloud/shabench/internal/config"
)

// exit is swapped out in tests.
var exit = os.Exit

// flagBinding ties a persistent flag to its config key.
type flagBinding struct {
	flag  string
	key   string
	usage string
}

var bindings = []flagBinding{
	{"backend", config.KeyBackend, "compute backend: cpu or gpu"},
	{"batch-size", config.KeyBatchSize, "records hashed per iteration"},
	{"input", config.KeyBatchInput, "content of every record"},
	{"reuse", config.KeyBatchReuse, "generate the batch once and reuse it"},
	{"workers", config.KeyCPUWorkers, "CPU pool width, 0 for one per logical CPU"},
	{"gpu-device", config.KeyGPUDevice, `GPU device name substring, or "emulator"`},
	{"group-width", config.KeyGPUGroupWidth, "GPU invocations per work group"},
	{"chunk-size", config.KeyGPUChunkSize, "records hashed by each GPU invocation"},
	{"policy", config.KeyValidatePolicy, "digest validation: first, first-last or all"},
	{"spot-check", config.KeySpotCheck, "check known vectors before the first iteration"},
	{"report-every", config.KeyReportEvery, "iterations between throughput lines"},
	{"unit", config.KeyReportUnit, "rate unit: auto, H/s, kH/s, MH/s or GH/s"},
	{"max-iterations", config.KeyMaxIterations, "stop after this many iterations, 0 to run until interrupted"},
	{"retry-attempts", config.KeyRetryAttempts, "retries of a transient dispatch failure"},
	{"retry-backoff", config.KeyRetryBackoff, "delay before a retry, scaled by the attempt number"},
	{"retry-reset", config.KeyRetryReset, "rebuild the GPU session before retrying"},
	{"log-level", config.KeyLogLevel, "log level, or SUBSYS=level pairs"},
	{"log-file", config.KeyLogFile, "also write logs to this rotated file"},
	{"metrics-addr", config.KeyMetricsAddr, "serve Prometheus metrics on this address"},
}

// env is the state shared by every command of one invocation.
type env struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
}

// NewRootCmd builds the command tree. Each call returns an independent tree
// with its own settings.
func NewRootCmd() *cobra.Command {
	e := &env{v: config.NewViper()}

	root := &cobra.Command{
		Use:   "shabench",
		Short: "SHA-256 throughput benchmark for CPU and GPU backends",
		Long: `shabench hashes a batch of identical records over and over on a CPU
worker pool or a GPU compute kernel, checks the digests and reports the
sustained hash rate.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			closeLogRotator()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.run(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&e.cfgFile, "config", "", "config file (default is shabench.yaml in the user config dir or working dir)")
	for _, b := range bindings {
		addFlag(pf, b)
		if err := e.v.BindPFlag(b.key, pf.Lookup(b.flag)); err != nil {
			panic(err)
		}
	}

	root.AddCommand(
		newRunCmd(e),
		newDevicesCmd(e),
		newVerifyCmd(e),
		newParityCmd(e),
		newInfoCmd(e),
		newGUICmd(e),
		newVersionCmd(e),
		newConfigCmd(e),
	)
	return root
}

// addFlag defines b on fs with the type and default of its config key.
func addFlag(fs *pflag.FlagSet, b flagBinding) {
	switch def := config.Default(b.key).(type) {
	case string:
		fs.String(b.flag, def, b.usage)
	case bool:
		fs.Bool(b.flag, def, b.usage)
	case int:
		fs.Int(b.flag, def, b.usage)
	case time.Duration:
		fs.Duration(b.flag, def, b.usage)
	default:
		panic(fmt.Sprintf("no flag type for %s (%T)", b.key, def))
	}
}

// load merges flags, environment and config file, then sets up logging.
func (e *env) load() error {
	cfg, err := config.Load(e.v, e.cfgFile)
	if err != nil {
		return err
	}
	e.cfg = cfg

	if cfg.Log.File != "" {
		if err := initLogRotator(cfg.Log.File, cfg.Log.MaxSizeKB, cfg.Log.MaxFiles); err != nil {
			return err
		}
	}
	if err := parseAndSetDebugLevels(cfg.Log.Level); err != nil {
		return err
	}
	if cfg.File != "" {
		mainLog.Debugf("Using config file %s", cfg.File)
	}
	return nil
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	defer func() {
		if r := recover(); r != nil {
			closeLogRotator()
			fmt.Fprintf(os.Stderr, "panic: %v\n%s", r, debug.Stack())
			exit(1)
		}
	}()

	ctx := shutdownListener()
	if err := execute(ctx, NewRootCmd()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exit(1)
	}
}

func execute(ctx context.Context, root *cobra.Command) error {
	defer closeLogRotator()
	return root.ExecuteContext(ctx)
}
