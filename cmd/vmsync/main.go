package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/vmsync/internal/infrastructure/config"
	"github.com/GriffinCanCode/vmsync/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/vmsync/internal/logging"
	"github.com/GriffinCanCode/vmsync/internal/runner"
	"github.com/GriffinCanCode/vmsync/internal/scripts"
	"github.com/GriffinCanCode/vmsync/internal/server"
	"github.com/GriffinCanCode/vmsync/internal/vm"
	"github.com/GriffinCanCode/vmsync/internal/wrap"
)

// errScriptsFailed signals that every script ran but some reported an error
var errScriptsFailed = errors.New("one or more scripts failed")

// output is the JSON document printed after a batch run
type output struct {
	Results []*runner.Result    `json:"results"`
	Summary runner.Summary      `json:"summary"`
	Metrics monitoring.Snapshot `json:"metrics"`
}

// Exit codes
const (
	exitOK     = 0
	exitFailed = 1 // some scripts failed
	exitSetup  = 2 // configuration or setup error
)

func main() {
	os.Exit(realMain())
}

// realMain runs the command and returns its exit code, so deferred cleanup
// runs before the process exits
func realMain() int {
	configPath := flag.String("config", "", "TOML or YAML config file layered over the environment")
	sources := flag.String("scripts", "", "Comma-separated globs, directories or URLs of scripts to run")
	concurrency := flag.Int("concurrency", 0, "Scripts run at once (overrides config)")
	serve := flag.Bool("serve", false, "Serve the script API over HTTP instead of running scripts")
	dev := flag.Bool("dev", false, "Development logging")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vmsync: %v\n", err)
		return exitSetup
	}
	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}
	if *concurrency > 0 {
		cfg.Runner.Concurrency = *concurrency
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "vmsync: %v\n", err)
		return exitSetup
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var list []string
	if *sources != "" {
		list = strings.Split(*sources, ",")
	}
	list = append(list, flag.Args()...)

	err = run(ctx, cfg, logger, list, *serve)
	code := exitCode(err)
	switch code {
	case exitFailed:
		logger.Warn("Run finished with failures")
	case exitSetup:
		logger.Error("vmsync failed", zap.Error(err))
	}
	return code
}

// exitCode maps the outcome of run to the process exit code
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errScriptsFailed):
		return exitFailed
	default:
		return exitSetup
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFile(path)
}

func run(ctx context.Context, cfg *config.Config, logger *logging.Logger, sources []string, serve bool) error {
	syncMode := wrap.SyncMode(cfg.Arena.SyncMode)
	if !syncMode.Valid() {
		return fmt.Errorf("invalid arena sync mode %q", cfg.Arena.SyncMode)
	}

	registry := prometheus.NewRegistry()
	var metrics *monitoring.Metrics
	if cfg.Metrics.Enabled {
		metrics = monitoring.NewMetrics(registry)
	}

	pool, err := vm.NewPool(
		vm.Config{
			Timeout:          cfg.VM.Timeout.Std(),
			MaxCallStackSize: cfg.VM.MaxCallStackSize,
		},
		vm.PoolConfig{
			Size:           cfg.Pool.Size,
			AcquireTimeout: cfg.Pool.AcquireTimeout.Std(),
		},
		vm.WithLogger(logger),
		vm.WithMetrics(metrics),
	)
	if err != nil {
		return fmt.Errorf("create context pool: %w", err)
	}
	defer pool.Close()

	r := runner.New(pool, runner.Config{
		EnableConsole:  cfg.Runner.EnableConsole,
		Env:            cfg.Runner.Env,
		SyncMode:       syncMode,
		Concurrency:    cfg.Runner.Concurrency,
		MaxArrayLength: cfg.Arena.MaxArrayLength,
	}, runner.WithLogger(logger), runner.WithMetrics(metrics))

	if serve {
		deps := server.Deps{Pool: pool, Runner: r, Metrics: metrics, Logger: logger}
		if metrics != nil {
			deps.Gatherer = registry
		}
		srv, err := server.NewServer(cfg, deps)
		if err != nil {
			return err
		}
		return srv.Run(ctx)
	}

	if len(sources) == 0 {
		return errors.New("no scripts given: use -scripts or pass sources as arguments")
	}

	loader := scripts.NewLoader(scripts.Config{
		RetryMax:     cfg.Loader.RetryMax,
		RetryWaitMin: cfg.Loader.RetryWaitMin.Std(),
		RetryWaitMax: cfg.Loader.RetryWaitMax.Std(),
		MaxBytes:     cfg.Server.MaxScriptBytes,
	}, logger)
	list, err := loader.Load(ctx, sources...)
	if err != nil {
		return err
	}

	logger.Info("Running scripts",
		zap.Int("count", len(list)),
		zap.Int("concurrency", cfg.Runner.Concurrency),
	)
	results, err := r.RunAll(ctx, list)
	if err != nil {
		return err
	}

	out := output{
		Results: results,
		Summary: runner.Summarize(results),
		Metrics: metrics.Snapshot(),
	}
	data, err := sonic.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	if _, err := os.Stdout.Write(append(data, '\n')); err != nil {
		return err
	}

	logger.Info("Run complete",
		zap.Int("scripts", out.Summary.Scripts),
		zap.Int("failed", out.Summary.Failed),
		zap.Duration("mean", out.Summary.Mean),
		zap.Duration("p95", out.Summary.P95),
	)
	if out.Summary.Failed > 0 {
		return errScriptsFailed
	}
	return nil
}
