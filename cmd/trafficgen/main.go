// Command trafficgen generates synthetic web traffic with realistic
// source, device, and browsing-behavior distributions.
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

	"github.com/example/trafficgen/internal/catalog"
	"github.com/example/trafficgen/internal/config"
	"github.com/example/trafficgen/internal/logging"
	"github.com/example/trafficgen/internal/metrics"
	"github.com/example/trafficgen/internal/runner"
	"github.com/example/trafficgen/internal/scheduler"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath  string
		numRequests int
		workers     int
		seed        uint64
		verbose     bool
		validate    bool
		list        bool
		dryRun      bool
		initConfig  bool
		promPort    int
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "trafficgen.yaml", "path to the configuration file")
	flag.StringVar(&configPath, "c", "trafficgen.yaml", "path to the configuration file (shorthand)")
	flag.IntVar(&numRequests, "n", -1, "number of sessions to run (overrides config; 0 = until interrupted)")
	flag.IntVar(&workers, "workers", 0, "number of concurrent workers (overrides config)")
	flag.Uint64Var(&seed, "seed", 0, "random seed for a reproducible run (overrides config)")
	flag.BoolVar(&verbose, "verbose", false, "enable debug logging")
	flag.BoolVar(&verbose, "v", false, "enable debug logging (shorthand)")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	flag.BoolVar(&list, "list", false, "list the configured traffic sources and exit")
	flag.BoolVar(&dryRun, "dry-run", false, "print the execution plan without sending traffic")
	flag.BoolVar(&initConfig, "init", false, "write a default configuration file and exit")
	flag.IntVar(&promPort, "prometheus", 0, "enable the Prometheus endpoint on the given port (overrides config)")
	flag.BoolVar(&showVersion, "version", false, "print the version and exit")
	flag.Usage = printUsage
	flag.Parse()

	if showVersion {
		fmt.Printf("trafficgen %s\n", version)
		return 0
	}

	if initConfig {
		if err := config.WriteDefault(configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Printf("Default configuration written to %s\n", configPath)
		return 0
	}

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	applyOverrides(cfg, numRequests, workers, seed, promPort)
	if verbose {
		cfg.Log.Level = "debug"
	}

	if validate {
		fmt.Printf("Configuration %s is valid\n", configPath)
		return 0
	}

	runSeed := cfg.Seed
	if runSeed == 0 {
		runSeed = uint64(time.Now().UnixNano())
	}

	logger := logging.New(cfg.Log)
	r, err := runner.New(cfg, runSeed, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if list {
		printSources(r.Catalog())
		return 0
	}

	printExecutionPlan(cfg, runSeed)
	if dryRun {
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().Uint64("seed", runSeed).Int("workers", cfg.Workers).Msg("starting run")
	summary, err := r.Run(ctx)
	if err != nil && !errors.Is(err, scheduler.ErrCancelled) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if errors.Is(err, scheduler.ErrCancelled) {
		logger.Info().Msg("run interrupted, reporting partial results")
	}

	printSummary(summary)
	return 0
}

// applyOverrides folds command line flags into the loaded configuration.
func applyOverrides(cfg *config.Config, numRequests, workers int, seed uint64, promPort int) {
	if numRequests >= 0 {
		cfg.NumRequests = numRequests
	}
	if workers > 0 {
		cfg.Workers = workers
	}
	if seed != 0 {
		cfg.Seed = seed
	}
	if promPort > 0 {
		cfg.Prometheus.Enabled = true
		cfg.Prometheus.Port = promPort
	}
}

func printExecutionPlan(cfg *config.Config, seed uint64) {
	sessions := fmt.Sprintf("%d", cfg.NumRequests)
	if cfg.NumRequests == 0 {
		sessions = "unbounded (Ctrl-C to stop)"
	}

	fmt.Println("Execution plan:")
	fmt.Printf("  Targets:   %v\n", cfg.TargetURLs)
	fmt.Printf("  Sessions:  %s\n", sessions)
	fmt.Printf("  Workers:   %d\n", cfg.Workers)
	fmt.Printf("  Interval:  %s - %s\n", cfg.RequestInterval.Min, cfg.RequestInterval.Max)
	fmt.Printf("  Seed:      %d\n", seed)
	if cfg.MaxQPS > 0 {
		fmt.Printf("  Max QPS:   %.1f\n", cfg.MaxQPS)
	}
	if cfg.Prometheus.Enabled {
		fmt.Printf("  Metrics:   :%d%s\n", cfg.Prometheus.Port, cfg.Prometheus.Path)
	}
	fmt.Println()
}

func printSources(cat *catalog.Catalog) {
	total := cat.TotalWeight()
	fmt.Println("Configured traffic sources:")
	for _, s := range cat.Sources() {
		share := float64(s.Weight) / float64(total) * 100
		fmt.Printf("  %-14s %-14s weight %3d  (%.1f%%)\n", s.Name, s.Category, s.Weight, share)
	}
}

func printSummary(s metrics.Summary) {
	fmt.Println()
	fmt.Println("┌─────────────────────────────────────────────┐")
	fmt.Println("│                 Run Summary                 │")
	fmt.Println("├─────────────────────────────────────────────┤")
	fmt.Printf("│ Sessions:      %-28d │\n", s.Sessions)
	fmt.Printf("│ Requests:      %-28d │\n", s.Requests)
	fmt.Printf("│ Failures:      %-28d │\n", s.Failures)
	fmt.Printf("│ Bounce rate:   %-28s │\n", fmt.Sprintf("%.1f%%", s.BounceRate))
	fmt.Printf("│ Avg dwell:     %-28s │\n", s.AvgDwell.Round(time.Millisecond))
	fmt.Printf("│ Avg latency:   %-28s │\n", s.AvgLatency.Round(time.Millisecond))
	fmt.Printf("│ Elapsed:       %-28s │\n", s.Elapsed.Round(time.Millisecond))
	fmt.Println("└─────────────────────────────────────────────┘")

	if len(s.ByCategory) > 0 {
		fmt.Println("\nSessions by category:")
		for _, cat := range []string{"search_engine", "social_media", "direct"} {
			if n, ok := s.ByCategory[cat]; ok {
				fmt.Printf("  %-14s %d\n", cat, n)
			}
		}
	}
	if len(s.BySource) > 0 {
		fmt.Println("\nSessions by source:")
		names := make([]string, 0, len(s.BySource))
		for name := range s.BySource {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  %-14s %d\n", name, s.BySource[name])
		}
	}
	if len(s.ByDevice) > 0 {
		fmt.Println("\nSessions by device:")
		for _, dev := range []string{"desktop", "mobile"} {
			if n, ok := s.ByDevice[dev]; ok {
				fmt.Printf("  %-14s %d\n", dev, n)
			}
		}
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `trafficgen - synthetic web traffic generator

Generates HTTP traffic that resembles organic visitors: weighted search,
social, and direct sources, realistic referrers, desktop/mobile split, and
multi-page sessions with dwell pauses.

Usage:
  trafficgen [flags]

Flags:
  -config, -c PATH   Configuration file (default "trafficgen.yaml")
  -n N               Number of sessions (0 = run until interrupted)
  -workers N         Concurrent workers
  -seed N            Random seed for a reproducible run
  -prometheus PORT   Serve Prometheus metrics on PORT
  -validate          Validate the configuration and exit
  -list              List configured traffic sources and exit
  -dry-run           Print the execution plan without sending traffic
  -init              Write a default configuration file and exit
  -verbose, -v       Enable debug logging
  -version           Print the version and exit

Examples:
  trafficgen -init
  trafficgen -c traffic.yaml -n 100 -workers 4
  trafficgen -c traffic.yaml -seed 42 -dry-run
  trafficgen -c traffic.yaml -prometheus 9090
`)
}
