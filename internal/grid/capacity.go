package grid

import "github.com/GoSim-25-26J-441/adequacy-core/pkg/models"

// Capacity holds per-component max/min ratings in MW, indexed by Layout.
type Capacity struct {
	Max []float64
	Min []float64
}

// Clone returns a deep copy
func (c Capacity) Clone() Capacity {
	return Capacity{
		Max: append([]float64(nil), c.Max...),
		Min: append([]float64(nil), c.Min...),
	}
}

// CapacityModel holds the static ratings of every component
type CapacityModel struct {
	layout  Layout
	static  Capacity
	units   []int
	storage []models.Storage
}

// NewCapacityModel builds static capacities. Line minimums are zero; flow
// direction is handled by the dispatcher. Storage with zero units counts as one unit.
func NewCapacityModel(inv *models.Inventory) *CapacityModel {
	layout := NewLayout(inv)
	n := layout.Len()
	m := &CapacityModel{
		layout:  layout,
		static:  Capacity{Max: make([]float64, n), Min: make([]float64, n)},
		units:   make([]int, layout.NS),
		storage: append([]models.Storage(nil), inv.Storage...),
	}
	for i, g := range inv.Generators {
		id := layout.Generator(i)
		m.static.Max[id] = g.MaxMW
		m.static.Min[id] = g.MinMW
	}
	for i, l := range inv.Lines {
		m.static.Max[layout.Line(i)] = l.RatingMW
	}
	for i, s := range inv.Storage {
		id := layout.Storage(i)
		m.static.Max[id] = s.PowerMW
		m.static.Min[id] = s.MinMW
		m.units[i] = max(s.Units, 1)
	}
	return m
}

// Layout returns the component layout
func (m *CapacityModel) Layout() Layout { return m.layout }

// Static returns a copy of the rated capacities
func (m *CapacityModel) Static() Capacity { return m.static.Clone() }

// Units returns the sub-unit count of storage unit i
func (m *CapacityModel) Units(i int) int { return m.units[i] }

// Storage returns the parameters of storage unit i
func (m *CapacityModel) Storage(i int) models.Storage { return m.storage[i] }

// InitialState returns an all-up state vector
func (m *CapacityModel) InitialState() []float64 {
	state := make([]float64, m.layout.Len())
	for i := range state {
		state[i] = 1
	}
	return state
}

// Apply returns state ⊙ static capacity. Multiplying a rating of +Inf by a
// zero state yields zero, not NaN.
func (m *CapacityModel) Apply(state []float64) Capacity {
	cur := Capacity{Max: make([]float64, len(state)), Min: make([]float64, len(state))}
	for i, s := range state {
		if s == 0 {
			continue
		}
		cur.Max[i] = s * m.static.Max[i]
		cur.Min[i] = s * m.static.Min[i]
	}
	return cur
}
