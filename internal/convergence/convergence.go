// Package convergence tracks the running mean and coefficient of variation of
// per-sample LOLP and reports when the estimate has settled. It never stops a
// run; strategies only produce a signal for progress reporting.
package convergence

import (
	"fmt"
	"math"

	"github.com/GoSim-25-26J-441/adequacy-core/pkg/config"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/utils"
)

// Point is one entry of the convergence trace
type Point struct {
	Samples int     `json:"samples"`
	Mean    float64 `json:"mean"`
	CoV     float64 `json:"cov"`
}

// Stats returns the mean and coefficient of variation of values using the
// population variance. CoV is NaN while the mean is zero.
func Stats(values []float64) (mean, cov float64) {
	if len(values) == 0 {
		return 0, math.NaN()
	}
	mean = utils.Mean(values)
	return mean, utils.CoV(mean, utils.Variance(values))
}

// Pool concatenates per-worker vectors in worker order.
func Pool(parts [][]float64) []float64 {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]float64, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Tracker accumulates the convergence trace of a run.
type Tracker struct {
	trace []Point
}

// Observe records the statistics of the pooled samples so far and returns the new point.
func (t *Tracker) Observe(pooled []float64) Point {
	mean, cov := Stats(pooled)
	p := Point{Samples: len(pooled), Mean: mean, CoV: cov}
	t.trace = append(t.trace, p)
	return p
}

// Trace returns a copy of the recorded points
func (t *Tracker) Trace() []Point {
	return append([]Point(nil), t.trace...)
}

// Strategy decides whether a convergence trace has settled
type Strategy interface {
	// Check reports convergence and a human readable reason
	Check(trace []Point) (bool, string)
	// Name returns the name of the strategy
	Name() string
}

// Defaults used when a ConvergenceConfig field is zero
const (
	DefaultCoVThreshold   = 0.05
	DefaultMinSamples     = 10
	DefaultPlateauSamples = 5
	DefaultTolerance      = 1e-4
)

func withDefaults(cfg config.ConvergenceConfig) config.ConvergenceConfig {
	if cfg.CoVThreshold == 0 {
		cfg.CoVThreshold = DefaultCoVThreshold
	}
	if cfg.MinSamples == 0 {
		cfg.MinSamples = DefaultMinSamples
	}
	if cfg.PlateauSamples == 0 {
		cfg.PlateauSamples = DefaultPlateauSamples
	}
	if cfg.Tolerance == 0 {
		cfg.Tolerance = DefaultTolerance
	}
	return cfg
}

// CoVStrategy converges once the CoV of mean LOLP drops below a threshold.
// A NaN CoV (no loss of load observed yet) never converges.
type CoVStrategy struct {
	cfg config.ConvergenceConfig
}

// NewCoVStrategy creates a CoV threshold strategy
func NewCoVStrategy(cfg config.ConvergenceConfig) *CoVStrategy {
	return &CoVStrategy{cfg: withDefaults(cfg)}
}

func (s *CoVStrategy) Name() string {
	return "cov"
}

func (s *CoVStrategy) Check(trace []Point) (bool, string) {
	if len(trace) == 0 {
		return false, ""
	}
	last := trace[len(trace)-1]
	if last.Samples < s.cfg.MinSamples || math.IsNaN(last.CoV) {
		return false, ""
	}
	if last.CoV <= s.cfg.CoVThreshold {
		return true, fmt.Sprintf("cov %.4f below %.4f after %d samples", last.CoV, s.cfg.CoVThreshold, last.Samples)
	}
	return false, ""
}

// PlateauStrategy converges when the mean stayed within Tolerance over the
// last PlateauSamples points.
type PlateauStrategy struct {
	cfg config.ConvergenceConfig
}

// NewPlateauStrategy creates a plateau strategy
func NewPlateauStrategy(cfg config.ConvergenceConfig) *PlateauStrategy {
	return &PlateauStrategy{cfg: withDefaults(cfg)}
}

func (s *PlateauStrategy) Name() string {
	return "plateau"
}

func (s *PlateauStrategy) Check(trace []Point) (bool, string) {
	if len(trace) < s.cfg.PlateauSamples || len(trace) == 0 {
		return false, ""
	}
	if trace[len(trace)-1].Samples < s.cfg.MinSamples {
		return false, ""
	}

	recent := trace[len(trace)-s.cfg.PlateauSamples:]
	lo, hi := recent[0].Mean, recent[0].Mean
	for _, p := range recent {
		lo = math.Min(lo, p.Mean)
		hi = math.Max(hi, p.Mean)
	}
	if hi-lo <= s.cfg.Tolerance {
		return true, fmt.Sprintf("mean lolp plateaued for %d points (range: %.6f)", s.cfg.PlateauSamples, hi-lo)
	}
	return false, ""
}

// CombinedStrategy converges if any of its strategies does
type CombinedStrategy struct {
	strategies []Strategy
}

// NewCombinedStrategy combines the CoV and plateau strategies
func NewCombinedStrategy(cfg config.ConvergenceConfig) *CombinedStrategy {
	return &CombinedStrategy{
		strategies: []Strategy{NewCoVStrategy(cfg), NewPlateauStrategy(cfg)},
	}
}

func (s *CombinedStrategy) Name() string {
	return "combined"
}

func (s *CombinedStrategy) Check(trace []Point) (bool, string) {
	for _, strategy := range s.strategies {
		if ok, reason := strategy.Check(trace); ok {
			return true, fmt.Sprintf("%s: %s", strategy.Name(), reason)
		}
	}
	return false, ""
}

// NewStrategy returns the strategy named by cfg.Strategy
func NewStrategy(cfg config.ConvergenceConfig) (Strategy, error) {
	switch cfg.Strategy {
	case "", "cov":
		return NewCoVStrategy(cfg), nil
	case "plateau":
		return NewPlateauStrategy(cfg), nil
	case "combined":
		return NewCombinedStrategy(cfg), nil
	}
	return nil, fmt.Errorf("%w: unknown convergence strategy %q", config.ErrInvalid, cfg.Strategy)
}
