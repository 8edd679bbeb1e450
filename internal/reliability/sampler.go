// Package reliability samples component outage histories. Components follow
// two-state (or, for multi-unit storage, birth-death) Markov chains whose
// transitions are compressed onto an hourly clock.
package reliability

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/GoSim-25-26J-441/adequacy-core/internal/grid"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/utils"
)

// noRepair is the time assigned to a storage repair candidate when the unit
// is already fully available.
const noRepair = 1e7

// Clock is the countdown to the next component transition.
type Clock struct {
	// Remaining hours until the pending event fires. A value <= 0 forces a
	// fresh draw on the next step.
	Remaining float64
	// Pending indexes the candidate vector: generators and lines first, then
	// one failure slot per storage unit, then one repair slot per storage unit.
	// -1 means nothing is scheduled.
	Pending int
}

// NewClock returns a clock that draws on the first step
func NewClock() Clock {
	return Clock{Pending: -1}
}

// Sampler advances component states by one hour per Step.
type Sampler struct {
	model *grid.CapacityModel
	rates grid.Rates
}

// NewSampler creates a sampler over a fixed component set
func NewSampler(model *grid.CapacityModel, rates grid.Rates) *Sampler {
	return &Sampler{model: model, rates: rates}
}

// Step advances one hour. It never mutates state and all randomness comes
// from rng, so identical inputs and seeds reproduce identical histories.
func (s *Sampler) Step(state []float64, clock Clock, rng *utils.RandSource) ([]float64, grid.Capacity, Clock) {
	next := append([]float64(nil), state...)
	if len(next) == 0 {
		return next, s.model.Apply(next), clock
	}

	if clock.Remaining <= 0 {
		times := s.draw(next, rng)
		clock.Pending = floats.MinIdx(times)
		clock.Remaining = times[clock.Pending]
	}

	clock.Remaining--
	if clock.Remaining <= 0 {
		s.apply(next, clock.Pending)
	}
	return next, s.model.Apply(next), clock
}

// draw returns competing exponential event times in candidate order.
func (s *Sampler) draw(state []float64, rng *utils.RandSource) []float64 {
	layout := s.model.Layout()
	nGL := layout.NG + layout.NL
	ns := layout.NS
	times := make([]float64, nGL+2*ns)

	for id := 0; id < nGL; id++ {
		rate := s.rates.Repair[id]
		if state[id] >= 1 {
			rate = s.rates.Fail[id]
		}
		times[id] = utils.ExpTime(rng.Uniform(), rate)
	}
	for v := 0; v < ns; v++ {
		times[nGL+v] = utils.ExpTime(rng.Uniform(), s.rates.Fail[layout.Storage(v)])
	}
	for v := 0; v < ns; v++ {
		u := rng.Uniform()
		id := layout.Storage(v)
		if state[id] < 1 {
			times[nGL+ns+v] = utils.ExpTime(u, s.rates.Repair[id])
		} else {
			times[nGL+ns+v] = noRepair
		}
	}
	return times
}

// apply fires candidate event in place.
func (s *Sampler) apply(state []float64, event int) {
	layout := s.model.Layout()
	nGL := layout.NG + layout.NL
	ns := layout.NS

	switch {
	case event < 0:
		return
	case event < nGL:
		if state[event] >= 1 {
			state[event] = 0
		} else {
			state[event] = 1
		}
	case event < nGL+ns:
		v := event - nGL
		id := layout.Storage(v)
		units := float64(s.model.Units(v))
		if k := math.Round(state[id] * units); k >= 1 {
			state[id] = (k - 1) / units
		}
	default:
		v := event - nGL - ns
		id := layout.Storage(v)
		units := float64(s.model.Units(v))
		if k := math.Round(state[id] * units); k < units {
			state[id] = (k + 1) / units
		}
	}
}
