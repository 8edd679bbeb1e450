package grid

import "github.com/GoSim-25-26J-441/adequacy-core/pkg/utils"

// SOCLedger carries storage state of charge between hours of one sample.
// Values are kept at nominal rating so the SOC fraction survives derating:
// the usable SOC of a unit running at current max c is c*ledger/pmax.
type SOCLedger struct {
	layout  Layout
	nominal []float64
	pmax    []float64
	dur     []float64
	socMin  []float64
	socMax  []float64
}

// NewSOCLedger creates a ledger with every unit at half its nominal max SOC.
func NewSOCLedger(m *CapacityModel) *SOCLedger {
	ns := m.layout.NS
	l := &SOCLedger{
		layout:  m.layout,
		nominal: make([]float64, ns),
		pmax:    make([]float64, ns),
		dur:     make([]float64, ns),
		socMin:  make([]float64, ns),
		socMax:  make([]float64, ns),
	}
	for i := 0; i < ns; i++ {
		s := m.Storage(i)
		l.pmax[i] = s.PowerMW
		l.dur[i] = s.DurationH
		l.socMin[i] = s.SOCMin
		l.socMax[i] = s.SOCMax
	}
	l.Reset()
	return l
}

// Reset returns every unit to 50% of nominal max SOC
func (l *SOCLedger) Reset() {
	for i := range l.nominal {
		l.nominal[i] = 0.5 * l.pmax[i] * l.dur[i] * l.socMax[i]
	}
}

// Len returns the number of storage units
func (l *SOCLedger) Len() int { return len(l.nominal) }

// Bounds returns the usable SOC window for the current capacity.
func (l *SOCLedger) Bounds(cur Capacity) (smin, smax []float64) {
	smin = make([]float64, len(l.nominal))
	smax = make([]float64, len(l.nominal))
	for i := range l.nominal {
		c := cur.Max[l.layout.Storage(i)]
		smin[i] = c * l.dur[i] * l.socMin[i]
		smax[i] = c * l.dur[i] * l.socMax[i]
	}
	return smin, smax
}

// Rescale returns the SOC available this hour, clamped into Bounds(cur).
func (l *SOCLedger) Rescale(cur Capacity) []float64 {
	smin, smax := l.Bounds(cur)
	soc := make([]float64, len(l.nominal))
	for i := range l.nominal {
		if l.pmax[i] == 0 {
			continue
		}
		c := cur.Max[l.layout.Storage(i)]
		soc[i] = utils.ClampFloat64(c*l.nominal[i]/l.pmax[i], smin[i], smax[i])
	}
	return soc
}

// Commit stores the post-dispatch SOC. Units with no available capacity keep
// their previous ledger value.
func (l *SOCLedger) Commit(soc []float64, cur Capacity) {
	for i := range l.nominal {
		c := cur.Max[l.layout.Storage(i)]
		if c <= 0 {
			continue
		}
		l.nominal[i] = soc[i] * l.pmax[i] / c
	}
}

// Nominal returns a copy of the ledger at nominal rating
func (l *SOCLedger) Nominal() []float64 {
	return append([]float64(nil), l.nominal...)
}
