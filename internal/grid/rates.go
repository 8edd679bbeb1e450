package grid

import (
	"fmt"

	"github.com/GoSim-25-26J-441/adequacy-core/pkg/config"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/models"
)

// Rates holds failure (1/MTTF) and repair (1/MTTR) rates per component, per hour.
type Rates struct {
	Fail   []float64
	Repair []float64
}

// NewRates converts MTTF/MTTR into rates. A zero or negative mean time is a
// configuration error naming the offending component.
func NewRates(inv *models.Inventory) (Rates, error) {
	layout := NewLayout(inv)
	r := Rates{Fail: make([]float64, layout.Len()), Repair: make([]float64, layout.Len())}

	set := func(id int, mttf, mttr float64) error {
		if mttf <= 0 || mttr <= 0 {
			return fmt.Errorf("%w: %s: mttf and mttr must be positive (got %g, %g)",
				config.ErrInvalid, layout.Describe(inv, id), mttf, mttr)
		}
		r.Fail[id] = 1 / mttf
		r.Repair[id] = 1 / mttr
		return nil
	}

	for i, g := range inv.Generators {
		if err := set(layout.Generator(i), g.MTTF, g.MTTR); err != nil {
			return Rates{}, err
		}
	}
	for i, l := range inv.Lines {
		if err := set(layout.Line(i), l.MTTF, l.MTTR); err != nil {
			return Rates{}, err
		}
	}
	for i, s := range inv.Storage {
		if err := set(layout.Storage(i), s.MTTF, s.MTTR); err != nil {
			return Rates{}, err
		}
	}
	return r, nil
}
