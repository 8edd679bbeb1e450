// Package indices turns hourly curtailment into sample-level and run-level
// reliability indices.
package indices

import (
	"github.com/GoSim-25-26J-441/adequacy-core/internal/dispatch"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/models"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/utils"
)

// Accumulator collects the outcome of every hour of one sample.
type Accumulator struct {
	hours       int
	curtailment []float64
	labels      []bool
	days        []bool
	lld         int
	events      int
	durations   []int
	run         int
}

// NewAccumulator creates an accumulator for a sample of the given length.
func NewAccumulator(hours int) *Accumulator {
	return &Accumulator{
		hours:       hours,
		curtailment: make([]float64, hours),
		labels:      make([]bool, hours),
		days:        make([]bool, utils.CeilDiv(hours, utils.HoursPerDay)),
	}
}

// Reset clears the accumulator for the next sample
func (a *Accumulator) Reset() {
	clear(a.curtailment)
	clear(a.labels)
	clear(a.days)
	a.lld, a.events, a.run = 0, 0, 0
	a.durations = a.durations[:0]
}

// Hours returns the sample length
func (a *Accumulator) Hours() int { return a.hours }

// Add records the curtailment of hour n in MW. Hours must be added in order.
func (a *Accumulator) Add(n int, curtailment float64) {
	if curtailment < dispatch.CurtailmentTolerance {
		curtailment = 0
	}
	a.curtailment[n] = curtailment
	loss := curtailment > 0
	a.labels[n] = loss
	if !loss {
		if a.run > 0 {
			a.durations = append(a.durations, a.run)
			a.run = 0
		}
		return
	}

	a.lld++
	a.days[n/utils.HoursPerDay] = true
	// An outage at hour 0 counts as an event.
	if n == 0 || !a.labels[n-1] {
		a.events++
	}
	a.run++
}

// Curtailment returns the hourly curtailment series
func (a *Accumulator) Curtailment() []float64 {
	return append([]float64(nil), a.curtailment...)
}

// Labels returns the hourly loss-of-load flags
func (a *Accumulator) Labels() []bool {
	return append([]bool(nil), a.labels...)
}

// Durations returns the length in hours of every loss-of-load event so far,
// including one still in progress.
func (a *Accumulator) Durations() []int {
	out := append([]int(nil), a.durations...)
	if a.run > 0 {
		out = append(out, a.run)
	}
	return out
}

// Indices computes the sample indices.
func (a *Accumulator) Indices() models.Indices {
	var ix models.Indices
	if a.hours == 0 {
		return ix
	}
	lld := float64(a.lld)
	ix.LOLP = lld / float64(a.hours)
	ix.LOLH = ix.LOLP * float64(a.hours)
	ix.EUE = utils.Sum(a.curtailment)
	if a.lld > 0 {
		ix.EPNS = ix.EUE / lld
	}
	ix.LOLF = float64(a.events)
	if a.events > 0 {
		ix.MDT = lld / float64(a.events)
	}
	for _, d := range a.days {
		if d {
			ix.LOLE++
		}
	}
	return ix
}
