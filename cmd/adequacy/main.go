// Command adequacy runs a sequential Monte Carlo resource-adequacy study
// from a YAML configuration. Workers run in process by default; with
// -serve-gather or -coordinator the run is spread over several processes.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/GoSim-25-26J-441/adequacy-core/pkg/config"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/logger"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/utils"
)

type options struct {
	configPath  string
	logLevel    string
	logFormat   string
	runID       string
	outDir      string
	workerIDs   []int
	worldSize   int
	coordinator string
	serveGather string
	session     string
	noProgress  bool
	metricsAddr string
	timeout     time.Duration
}

func main() {
	var opts options
	var workerIDs string

	flag.StringVar(&opts.configPath, "config", "config/adequacy.yaml", "run configuration file")
	flag.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error); defaults to the config's log_level")
	flag.StringVar(&opts.logFormat, "log-format", "console", "log format (console, text, json)")
	flag.StringVar(&opts.runID, "run-id", "", "run identifier (generated when empty)")
	flag.StringVar(&opts.outDir, "out", "", "override outputs.dir")
	flag.StringVar(&workerIDs, "worker-id", "", "comma separated worker ids hosted by this process (default: all)")
	flag.IntVar(&opts.worldSize, "world-size", 0, "total number of workers (overrides workers)")
	flag.StringVar(&opts.coordinator, "coordinator", "", "gather service address of a distributed run; this process is a remote worker")
	flag.StringVar(&opts.serveGather, "serve-gather", "", "listen address for the gather service of a distributed run")
	flag.StringVar(&opts.session, "session", "adequacy", "gather session shared by every process of a distributed run")
	flag.BoolVar(&opts.noProgress, "no-progress", false, "disable the progress bar")
	flag.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while the run lasts")
	flag.DurationVar(&opts.timeout, "timeout", 0, "abort the run after this long (0 means no limit)")
	flag.Parse()

	ids, err := parseWorkerIDs(workerIDs)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	opts.workerIDs = ids

	cfg, err := config.LoadRunConfig(opts.configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := applyOverrides(cfg, &opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	level := cfg.LogLevel
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	switch opts.logFormat {
	case "json":
		logger.SetDefault(logger.New(level, os.Stderr))
	case "text":
		logger.SetDefault(logger.NewText(level, os.Stderr))
	default:
		logger.SetDefault(logger.NewConsole(level, os.Stderr))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	if err := run(ctx, cfg, opts); err != nil {
		logger.Error("run failed", "error", err)
		stop()
		os.Exit(1)
	}
}

// applyOverrides folds command line settings into cfg
func applyOverrides(cfg *config.RunConfig, opts *options) error {
	if opts.worldSize > 0 {
		cfg.Workers = opts.worldSize
	}
	if opts.outDir != "" {
		cfg.Outputs.Dir = opts.outDir
	}
	if opts.runID == "" {
		opts.runID = utils.GenerateRunID()
	}
	if opts.coordinator != "" && opts.serveGather != "" {
		return fmt.Errorf("-coordinator and -serve-gather are mutually exclusive")
	}
	distributed := opts.coordinator != "" || opts.serveGather != ""
	if !distributed && len(opts.workerIDs) > 0 && len(opts.workerIDs) != cfg.Workers {
		return fmt.Errorf("-worker-id needs -coordinator or -serve-gather unless it lists every worker")
	}
	if opts.coordinator != "" && len(opts.workerIDs) == 0 {
		return fmt.Errorf("-coordinator requires -worker-id")
	}
	if opts.serveGather != "" && len(opts.workerIDs) == 0 {
		opts.workerIDs = []int{0}
	}
	for _, w := range opts.workerIDs {
		if w < 0 || w >= cfg.Workers {
			return fmt.Errorf("worker id %d outside [0, %d)", w, cfg.Workers)
		}
	}
	return nil
}

func parseWorkerIDs(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var ids []int
	seen := make(map[int]bool)
	for _, part := range strings.Split(s, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid worker id %q", part)
		}
		if seen[id] {
			return nil, fmt.Errorf("duplicate worker id %d", id)
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}
