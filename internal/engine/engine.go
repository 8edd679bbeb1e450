// Package engine drives sequential Monte Carlo adequacy runs: every worker
// simulates its own block of samples hour by hour, and worker 0 reduces the
// gathered results into the run indices.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/GoSim-25-26J-441/adequacy-core/internal/cluster"
	"github.com/GoSim-25-26J-441/adequacy-core/internal/convergence"
	"github.com/GoSim-25-26J-441/adequacy-core/internal/indices"
	"github.com/GoSim-25-26J-441/adequacy-core/internal/metrics"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/config"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/logger"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/models"
)

// Coordinator is the worker that reduces results
const Coordinator = 0

// Options controls how a run is executed
type Options struct {
	RunID string
	// Workers lists the worker ids hosted by this process. Empty means all
	// of 0..cfg.Workers-1.
	Workers []int
	// Gatherer connects the workers. Nil means an in-process barrier, which
	// requires this process to host every worker.
	Gatherer cluster.Gatherer
	Metrics  *metrics.Collector
	Logger   *slog.Logger
	// OnSample is called after every finished sample. It may be called
	// concurrently from several workers.
	OnSample func(worker, sample int)
	// OnProgress is called by the coordinator after each convergence round.
	OnProgress func(models.Progress)
}

// Result is the outcome of a run as seen by the coordinator
type Result struct {
	Indices models.Indices
	// SampleIndices holds every sample's indices in global sample order.
	SampleIndices     []models.Indices
	Samples           int
	Hours             int
	HourlyLOLP        []float64
	HeatMap           *models.HeatMap
	DurationHistogram []float64
	Convergence       []convergence.Point
	Converged         bool
	ConvergedReason   string
	// Trace holds the hourly series of the coordinator's last sample.
	Trace *SampleTrace
	Seed  int64
}

// Engine executes one run
type Engine struct {
	cfg      *config.RunConfig
	sim      *Simulator
	opts     Options
	strategy convergence.Strategy
	logger   *slog.Logger
}

// New prepares a run. Configuration errors surface here, before any sample.
func New(cfg *config.RunConfig, opts Options) (*Engine, error) {
	sim, err := NewSimulator(cfg)
	if err != nil {
		return nil, err
	}
	strategy, err := convergence.NewStrategy(cfg.Convergence)
	if err != nil {
		return nil, err
	}
	sim.SetMetrics(opts.Metrics)

	if len(opts.Workers) == 0 {
		for w := 0; w < cfg.Workers; w++ {
			opts.Workers = append(opts.Workers, w)
		}
	}
	for _, w := range opts.Workers {
		if w < 0 || w >= cfg.Workers {
			return nil, fmt.Errorf("%w: worker %d outside [0, %d)", cluster.ErrWorkerMismatch, w, cfg.Workers)
		}
	}
	if opts.Gatherer == nil {
		if len(opts.Workers) != cfg.Workers {
			return nil, fmt.Errorf("%w: an in-process run must host all %d workers", cluster.ErrWorkerMismatch, cfg.Workers)
		}
		opts.Gatherer = cluster.NewLocalGather(cfg.Workers)
	}
	if opts.Gatherer.Size() != cfg.Workers {
		return nil, fmt.Errorf("%w: gatherer has %d workers, run has %d", cluster.ErrWorkerMismatch, opts.Gatherer.Size(), cfg.Workers)
	}

	l := opts.Logger
	if l == nil {
		l = logger.Default
	}
	if opts.RunID != "" {
		l = l.With("run_id", opts.RunID)
	}

	return &Engine{cfg: cfg, sim: sim, opts: opts, strategy: strategy, logger: l}, nil
}

// Seed returns the resolved base seed of the run
func (e *Engine) Seed() int64 { return e.sim.Seed() }

// IsCoordinator reports whether this process hosts the coordinator
func (e *Engine) IsCoordinator() bool {
	for _, w := range e.opts.Workers {
		if w == Coordinator {
			return true
		}
	}
	return false
}

// Run executes every hosted worker and waits for them. The returned Result
// is nil when this process does not host the coordinator. The context is
// checked between samples; the first worker error cancels the others.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	e.logger.Info("starting adequacy run",
		"samples_per_worker", e.cfg.Samples,
		"workers", e.cfg.Workers,
		"hosted_workers", len(e.opts.Workers),
		"sim_hours", e.cfg.SimHours,
		"model", e.cfg.Model,
		"seed", e.sim.Seed())
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	var result *Result
	for _, w := range e.opts.Workers {
		g.Go(func() error {
			res, err := e.runWorker(gctx, w)
			if err != nil {
				return err
			}
			if w == Coordinator {
				result = res
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.logger.Error("adequacy run failed", "error", err)
		return nil, err
	}

	if result != nil {
		e.logger.Info("adequacy run finished",
			"duration", time.Since(start),
			"lolp", result.Indices.LOLP,
			"lole", result.Indices.LOLE,
			"eue", result.Indices.EUE)
	}
	return result, nil
}

func (e *Engine) runWorker(ctx context.Context, w int) (*Result, error) {
	samples, hours := e.cfg.Samples, e.cfg.SimHours
	log := e.logger.With("worker", w)
	acc := indices.NewAccumulator(hours)
	rec := indices.NewRecord(hours)

	var (
		tracker   convergence.Tracker
		trace     *SampleTrace
		converged bool
		reason    string
	)

	for s := 0; s < samples; s++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		global := w*samples + s

		var tr *SampleTrace
		if w == Coordinator && s == samples-1 {
			tr = newSampleTrace(global, e.sim.model.Layout().NS, e.sim.zones, hours)
			trace = tr
		}

		started := time.Now()
		if err := e.sim.RunSample(global, acc, tr); err != nil {
			var se *SampleError
			if errors.As(err, &se) {
				se.Worker = w
			}
			return nil, err
		}
		rec.Add(acc)
		ix := acc.Indices()
		if e.opts.Metrics != nil {
			e.opts.Metrics.ObserveSample(w, time.Since(started), ix)
		}
		if e.opts.OnSample != nil {
			e.opts.OnSample(w, global)
		}
		log.Debug("sample finished", "sample", global, "lolp", ix.LOLP, "eue", ix.EUE)

		if !e.cfg.TrackConvergence {
			continue
		}
		parts, err := e.opts.Gatherer.Gather(ctx, s, w, rec.LOLP())
		if err != nil {
			return nil, fmt.Errorf("convergence round %d: %w", s, err)
		}
		if w != Coordinator {
			continue
		}
		p := tracker.Observe(convergence.Pool(parts))
		e.report(p)
		if !converged {
			if ok, why := e.strategy.Check(tracker.Trace()); ok {
				converged, reason = true, why
				log.Info("estimate converged", "samples", p.Samples, "lolp", p.Mean, "cov", p.CoV, "reason", why)
			}
		}
	}

	parts, err := e.opts.Gatherer.Gather(ctx, samples, w, rec.Pack())
	if err != nil {
		return nil, fmt.Errorf("final gather: %w", err)
	}
	if w != Coordinator {
		return nil, nil
	}

	total := indices.NewRecord(hours)
	for i, p := range parts {
		r, err := indices.Unpack(p)
		if err != nil {
			return nil, fmt.Errorf("worker %d record: %w", i, err)
		}
		if err := total.Merge(r); err != nil {
			return nil, fmt.Errorf("worker %d record: %w", i, err)
		}
	}

	if !e.cfg.TrackConvergence {
		p := tracker.Observe(total.LOLP())
		e.report(p)
		converged, reason = e.strategy.Check(tracker.Trace())
	}

	res := &Result{
		Indices:           total.Final(),
		SampleIndices:     make([]models.Indices, total.Samples()),
		Samples:           total.Samples(),
		Hours:             hours,
		HourlyLOLP:        total.HourlyLOLP(),
		HeatMap:           total.HeatMap(),
		DurationHistogram: total.DurationHistogram(),
		Convergence:       tracker.Trace(),
		Converged:         converged,
		ConvergedReason:   reason,
		Trace:             trace,
		Seed:              e.sim.Seed(),
	}
	for i := range res.SampleIndices {
		res.SampleIndices[i] = total.Sample(i)
	}
	return res, nil
}

func (e *Engine) report(p convergence.Point) {
	if e.opts.Metrics != nil {
		e.opts.Metrics.SetConvergence(e.opts.RunID, p.Mean, p.CoV)
	}
	if e.opts.OnProgress != nil {
		prog := models.Progress{
			CompletedSamples: p.Samples,
			TotalSamples:     e.cfg.Samples * e.cfg.Workers,
			MeanLOLP:         p.Mean,
		}
		if !math.IsNaN(p.CoV) {
			cov := p.CoV
			prog.CoV = &cov
		}
		e.opts.OnProgress(prog)
	}
}
