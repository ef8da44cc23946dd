package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/nomis52/goinit/cache"
	"github.com/nomis52/goinit/config"
	"github.com/nomis52/goinit/logging"
	"github.com/nomis52/goinit/metrics"
	"github.com/nomis52/goinit/orchestrator"
	"github.com/nomis52/goinit/resilience"
	"github.com/nomis52/goinit/stage"
	"github.com/nomis52/goinit/stages/demo"
)

type Args struct {
	ConfigPath string
	Strategy   string
	Speedup    int
}

func main() {
	if err := doMain(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func doMain() error {
	args := parseArgs()
	if args.ConfigPath == "" {
		return fmt.Errorf("-c or --config flag is required")
	}

	cfg, err := config.LoadConfig(args.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	logger, err := logging.New(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		AddSource: cfg.Logging.AddSource,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	strategy := orchestrator.Strategy(args.Strategy)
	if strategy == "" {
		strategy = orchestrator.Strategy(cfg.Orchestrator.Strategy)
	}
	logger.Info("goinit started", "config_path", args.ConfigPath, "strategy", string(strategy))

	hostname, err := os.Hostname()
	if err != nil {
		return fmt.Errorf("error getting hostname: %w", err)
	}

	catalog, err := cfg.BuildCatalog()
	if err != nil {
		return fmt.Errorf("building stage catalogue: %w", err)
	}
	registry := demo.Registry(logger.Logger, demo.WithSpeedup(args.Speedup))

	opts := []orchestrator.Option{
		orchestrator.WithLogger(logger.Logger),
		orchestrator.WithStageTimeout(cfg.Orchestrator.StageTimeout),
		orchestrator.WithCache(cache.New(cfg.Cache.TTL)),
		orchestrator.WithResilience(resilience.NewManager(resilience.Config{
			FailureThreshold: cfg.Resilience.FailureThreshold,
			RecoveryTimeout:  cfg.Resilience.RecoveryTimeout,
			Retry: resilience.RetryPolicy{
				MaxRetries: cfg.Resilience.MaxRetries,
				BaseDelay:  cfg.Resilience.BaseDelay,
				MaxDelay:   cfg.Resilience.MaxDelay,
			},
		})),
	}

	// When a remote-write endpoint is configured, stage milestones are
	// pushed live during the run and the final summary is pushed as a
	// batch afterward.
	if cfg.Monitoring.VictoriaMetricsURL != "" {
		pushReg := metrics.NewPushRegistry(metrics.PushConfig{
			URL:      cfg.Monitoring.VictoriaMetricsURL,
			Prefix:   cfg.Monitoring.MetricsPrefix,
			Job:      cfg.Monitoring.JobName,
			Instance: hostname,
		})
		observer, err := metrics.NewInitMetrics(pushReg)
		if err != nil {
			return fmt.Errorf("setting up metrics: %w", err)
		}
		opts = append(opts, orchestrator.WithObserver(observer))
	}

	orch, err := orchestrator.New(catalog, registry, opts...)
	if err != nil {
		return err
	}
	defer orch.Dispose()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, runErr := orch.Initialize(ctx, orchestrator.RunOptions{
		Strategy:    strategy,
		Timeout:     cfg.Orchestrator.RunTimeout,
		MaxParallel: cfg.Orchestrator.MaxParallel,
	})

	if result != nil && cfg.Monitoring.VictoriaMetricsURL != "" {
		client := metrics.NewClient(cfg.Monitoring.VictoriaMetricsURL, cfg.Monitoring.MetricsPrefix)
		pushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := client.PushMetrics(pushCtx, metrics.BuildRunMetrics(result)); err != nil {
			logger.Warn("failed to push run metrics", "error", err)
		}
	}

	if result != nil {
		printSummary(result)
	}
	if runErr != nil {
		var abort *orchestrator.RunError
		if errors.As(runErr, &abort) {
			return fmt.Errorf("initialization failed: critical stage %s: %w", abort.Stage, abort.Cause)
		}
		return runErr
	}
	return nil
}

func printSummary(result *orchestrator.Result) {
	fmt.Printf("run %s (%s) finished in %s\n",
		result.RunID, result.Strategy, result.Duration().Round(time.Millisecond))

	names := make([]string, 0, len(result.StageResults))
	for id := range result.StageResults {
		names = append(names, id.String())
	}
	sort.Strings(names)

	for _, name := range names {
		res := result.StageResults[stage.ID(name)]
		line := fmt.Sprintf("  %-20s %-10s %s", name, res.Status, res.Duration().Round(time.Millisecond))
		if res.Attempts > 1 {
			line += fmt.Sprintf(" (%d attempts)", res.Attempts)
		}
		if res.FromCache {
			line += " (cached)"
		}
		if res.Err != nil {
			line += " " + res.Err.Error()
		}
		fmt.Println(line)
	}
	for _, id := range result.Skipped {
		fmt.Printf("  %-20s skipped\n", id)
	}
}

func parseArgs() Args {
	configPath := flag.String("config", "", "Path to config file")
	configPathShort := flag.String("c", "", "Path to config file (shorthand)")
	strategy := flag.String("strategy", "", "Execution strategy (default from config)")
	speedup := flag.Int("speedup", 1, "Divide simulated stage delays by this factor")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nGoinit - Staged Initialization Orchestrator\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --config /etc/goinit/config.yaml\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -c config.yaml --strategy minimal\n", os.Args[0])
	}

	flag.Parse()

	path := *configPath
	if path == "" && *configPathShort != "" {
		path = *configPathShort
	}

	return Args{
		ConfigPath: path,
		Strategy:   *strategy,
		Speedup:    *speedup,
	}
}
