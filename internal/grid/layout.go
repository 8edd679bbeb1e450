// Package grid holds the static description of a power system as seen by the
// simulator: the component layout, rated capacities, reliability rates,
// storage state-of-charge bookkeeping and zone topology.
package grid

import (
	"fmt"

	"github.com/GoSim-25-26J-441/adequacy-core/pkg/models"
)

// Kind tags a slot of the component vector
type Kind int

const (
	KindGenerator Kind = iota
	KindLine
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindGenerator:
		return "generator"
	case KindLine:
		return "line"
	case KindStorage:
		return "storage"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Layout maps component ids onto kinds. Generators occupy [0, NG), lines
// [NG, NG+NL) and storage [NG+NL, NG+NL+NS). Every component-indexed vector
// of a run uses this layout.
type Layout struct {
	NG, NL, NS int
}

// NewLayout derives the layout from an inventory
func NewLayout(inv *models.Inventory) Layout {
	return Layout{NG: len(inv.Generators), NL: len(inv.Lines), NS: len(inv.Storage)}
}

// Len returns the number of components
func (l Layout) Len() int {
	return l.NG + l.NL + l.NS
}

// Generator returns the component id of generator i
func (l Layout) Generator(i int) int { return i }

// Line returns the component id of line i
func (l Layout) Line(i int) int { return l.NG + i }

// Storage returns the component id of storage unit i
func (l Layout) Storage(i int) int { return l.NG + l.NL + i }

// Local splits a component id into its kind and the index within that kind.
func (l Layout) Local(id int) (Kind, int) {
	switch {
	case id < l.NG:
		return KindGenerator, id
	case id < l.NG+l.NL:
		return KindLine, id - l.NG
	default:
		return KindStorage, id - l.NG - l.NL
	}
}

// Kind returns the kind of component id
func (l Layout) Kind(id int) Kind {
	k, _ := l.Local(id)
	return k
}

// Describe names a component for error messages, e.g. "line 2 (north-south)".
func (l Layout) Describe(inv *models.Inventory, id int) string {
	k, i := l.Local(id)
	name := ""
	switch k {
	case KindGenerator:
		name = inv.Generators[i].Name
	case KindLine:
		name = inv.Lines[i].Name
	case KindStorage:
		name = inv.Storage[i].Name
	}
	if name == "" {
		return fmt.Sprintf("%s %d", k, i)
	}
	return fmt.Sprintf("%s %d (%s)", k, i, name)
}
