package grid

import "github.com/GoSim-25-26J-441/adequacy-core/pkg/models"

// Network is the zone topology with 0-based zone indices.
type Network struct {
	Zones       int
	LineFrom    []int
	LineTo      []int
	GenZone     []int
	StorageZone []int
}

// NewNetwork converts the 1-based bus references of the inventory.
func NewNetwork(inv *models.Inventory) *Network {
	n := &Network{
		Zones:       len(inv.Buses),
		LineFrom:    make([]int, len(inv.Lines)),
		LineTo:      make([]int, len(inv.Lines)),
		GenZone:     make([]int, len(inv.Generators)),
		StorageZone: make([]int, len(inv.Storage)),
	}
	for i, l := range inv.Lines {
		n.LineFrom[i] = l.From - 1
		n.LineTo[i] = l.To - 1
	}
	for i, g := range inv.Generators {
		n.GenZone[i] = g.Bus - 1
	}
	for i, s := range inv.Storage {
		n.StorageZone[i] = s.Bus - 1
	}
	return n
}

// Incidence returns +1 if line l leaves zone z, -1 if it enters it and 0 otherwise.
func (n *Network) Incidence(l, z int) float64 {
	switch z {
	case n.LineFrom[l]:
		return 1
	case n.LineTo[l]:
		return -1
	}
	return 0
}
