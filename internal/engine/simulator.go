package engine

import (
	"fmt"

	"github.com/GoSim-25-26J-441/adequacy-core/internal/dispatch"
	"github.com/GoSim-25-26J-441/adequacy-core/internal/grid"
	"github.com/GoSim-25-26J-441/adequacy-core/internal/indices"
	"github.com/GoSim-25-26J-441/adequacy-core/internal/metrics"
	"github.com/GoSim-25-26J-441/adequacy-core/internal/reliability"
	"github.com/GoSim-25-26J-441/adequacy-core/internal/renewable"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/config"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/utils"
)

// SampleError locates a failure inside a run
type SampleError struct {
	Worker int
	Sample int
	Hour   int
	Err    error
}

func (e *SampleError) Error() string {
	return fmt.Sprintf("worker %d, sample %d, hour %d: %v", e.Worker, e.Sample, e.Hour, e.Err)
}

func (e *SampleError) Unwrap() error { return e.Err }

// SampleTrace keeps the hourly series of one sample for export.
type SampleTrace struct {
	Sample int
	// SOC[i][n] is the state of charge of storage unit i after hour n, in MWh.
	SOC         [][]float64
	Curtailment []float64
	// Wind and Solar are zone x hour outputs in MW.
	Wind  [][]float64
	Solar [][]float64
}

func newSampleTrace(sample, storage, zones, hours int) *SampleTrace {
	matrix := func(rows int) [][]float64 {
		out := make([][]float64, rows)
		for i := range out {
			out[i] = make([]float64, hours)
		}
		return out
	}
	return &SampleTrace{
		Sample:      sample,
		SOC:         matrix(storage),
		Curtailment: make([]float64, hours),
		Wind:        matrix(zones),
		Solar:       matrix(zones),
	}
}

// Simulator runs single samples. It holds only immutable run data and may be
// shared between workers.
type Simulator struct {
	hours      int
	zones      int
	loadFactor float64
	seed       int64
	load       [][]float64
	model      *grid.CapacityModel
	sampler    *reliability.Sampler
	wind       *renewable.Wind
	solar      *renewable.Solar
	dispatcher *dispatch.Dispatcher
	metrics    *metrics.Collector
}

// NewSimulator validates the run's system and prepares every model. A zero
// seed is replaced by a time-based one.
func NewSimulator(cfg *config.RunConfig) (*Simulator, error) {
	if err := config.ValidateRun(cfg); err != nil {
		return nil, err
	}
	if err := config.CheckRunSystem(cfg); err != nil {
		return nil, err
	}
	sys := cfg.System
	inv := &sys.Inventory

	rates, err := grid.NewRates(inv)
	if err != nil {
		return nil, err
	}
	model := grid.NewCapacityModel(inv)

	wind, err := renewable.NewWind(sys.Wind, sys.Zones())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}
	solar, err := renewable.NewSolar(sys.Solar, sys.Zones())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}
	d, err := dispatch.New(inv, dispatch.Options{
		Model:           cfg.Model,
		BaseMVA:         cfg.BaseMVA,
		CurtailmentCost: cfg.CurtailmentCost,
	})
	if err != nil {
		return nil, err
	}

	return &Simulator{
		hours:      cfg.SimHours,
		zones:      sys.Zones(),
		loadFactor: cfg.LoadFactor,
		seed:       utils.ResolveSeed(cfg.Seed),
		load:       sys.Load,
		model:      model,
		sampler:    reliability.NewSampler(model, rates),
		wind:       wind,
		solar:      solar,
		dispatcher: d,
	}, nil
}

// SetMetrics attaches a metrics collector
func (s *Simulator) SetMetrics(c *metrics.Collector) {
	s.metrics = c
}

// Seed returns the resolved base seed
func (s *Simulator) Seed() int64 { return s.seed }

// Hours returns the sample length
func (s *Simulator) Hours() int { return s.hours }

// RunSample simulates sample index into acc, which is reset first. The
// sample's random stream depends only on the base seed and index. When trace
// is not nil it receives the hourly series.
func (s *Simulator) RunSample(index int, acc *indices.Accumulator, trace *SampleTrace) error {
	rng := utils.NewRandSource(utils.SampleSeed(s.seed, index))
	acc.Reset()

	state := s.model.InitialState()
	clock := reliability.NewClock()
	ledger := grid.NewSOCLedger(s.model)
	classes := s.wind.InitialState(rng)
	var sun renewable.SolarState

	netLoad := make([]float64, s.zones)
	for n := 0; n < s.hours; n++ {
		var cur grid.Capacity
		state, cur, clock = s.sampler.Step(state, clock, rng)
		smin, smax := ledger.Bounds(cur)
		soc := ledger.Rescale(cur)

		var windZ, solarZ []float64
		windZ, classes = s.wind.Step(classes, rng)
		solarZ, sun = s.solar.Step(n, sun, rng)
		for z := range netLoad {
			netLoad[z] = s.load[n][z]*s.loadFactor - windZ[z] - solarZ[z]
		}

		res, err := s.dispatcher.Solve(dispatch.Input{
			NetLoad: netLoad,
			Cap:     cur,
			SOC:     soc,
			SOCMin:  smin,
			SOCMax:  smax,
		})
		if s.metrics != nil {
			s.metrics.ObserveDispatch(err != nil)
		}
		if err != nil {
			return &SampleError{Sample: index, Hour: n, Err: err}
		}

		ledger.Commit(res.SOC, cur)
		acc.Add(n, res.Curtailment)

		if trace != nil {
			for i, v := range res.SOC {
				trace.SOC[i][n] = v
			}
			trace.Curtailment[n] = res.Curtailment
			for z := range windZ {
				trace.Wind[z][n] = windZ[z]
				trace.Solar[z][n] = solarZ[z]
			}
		}
	}
	return nil
}
