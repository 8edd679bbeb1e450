// Package dispatch solves the hourly economic dispatch of an adequacy sample:
// given available capacities, net load and storage state of charge it finds
// the least-cost generation, storage schedule and curtailment.
package dispatch

import (
	"errors"
	"fmt"
	"math"

	"github.com/GoSim-25-26J-441/adequacy-core/internal/grid"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/config"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/models"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/utils"
)

// ErrSolverFailed wraps any error returned while solving the dispatch LP.
var ErrSolverFailed = errors.New("dispatch solver failed")

// CurtailmentTolerance is the curtailment in MW below which an hour is
// reported as fully served.
const CurtailmentTolerance = 1e-6

// Options configures a Dispatcher. Zero values take the config defaults.
type Options struct {
	Model           string
	BaseMVA         float64
	CurtailmentCost float64
}

// Input is the state of one hour. NetLoad is per zone in MW, SOC and its
// bounds are per storage unit in MWh.
type Input struct {
	NetLoad []float64
	Cap     grid.Capacity
	SOC     []float64
	SOCMin  []float64
	SOCMax  []float64
}

// Result is the optimal dispatch of one hour in MW (SOC in MWh).
type Result struct {
	// Curtailment is the total unserved load.
	Curtailment float64
	// ZoneCurtailment has one entry per zone for the zonal model and a
	// single system entry for the copper sheet model.
	ZoneCurtailment []float64
	Generation      []float64
	Discharge       []float64
	// Charge is signed, negative while charging.
	Charge []float64
	SOC    []float64
	// Flow is empty for the copper sheet model.
	Flow []float64
	Cost float64
}

// Dispatcher builds and solves the per-hour LP for a fixed inventory.
type Dispatcher struct {
	layout  grid.Layout
	net     *grid.Network
	gens    []models.Generator
	storage []models.Storage
	opts    Options
}

// New creates a dispatcher for inv.
func New(inv *models.Inventory, opts Options) (*Dispatcher, error) {
	if opts.Model == "" {
		opts.Model = config.ModelZonal
	}
	opts.Model = config.NormalizeModel(opts.Model)
	if opts.Model != config.ModelZonal && opts.Model != config.ModelCopperSheet {
		return nil, fmt.Errorf("%w: unknown dispatch model %q", config.ErrInvalid, opts.Model)
	}
	if opts.BaseMVA == 0 {
		opts.BaseMVA = config.DefaultBaseMVA
	}
	if opts.CurtailmentCost == 0 {
		opts.CurtailmentCost = config.DefaultCurtailmentCost
	}
	if opts.BaseMVA < 0 || opts.CurtailmentCost < 0 {
		return nil, fmt.Errorf("%w: base MVA and curtailment cost must be positive", config.ErrInvalid)
	}
	return &Dispatcher{
		layout:  grid.NewLayout(inv),
		net:     grid.NewNetwork(inv),
		gens:    append([]models.Generator(nil), inv.Generators...),
		storage: append([]models.Storage(nil), inv.Storage...),
		opts:    opts,
	}, nil
}

// Model returns the dispatch model in use
func (d *Dispatcher) Model() string { return d.opts.Model }

func (d *Dispatcher) copperSheet() bool {
	return d.opts.Model == config.ModelCopperSheet
}

func (d *Dispatcher) check(in Input) error {
	if len(in.NetLoad) != d.net.Zones {
		return fmt.Errorf("net load has %d zones, expected %d", len(in.NetLoad), d.net.Zones)
	}
	n := d.layout.Len()
	if len(in.Cap.Max) != n || len(in.Cap.Min) != n {
		return fmt.Errorf("capacity has %d components, expected %d", len(in.Cap.Max), n)
	}
	ns := d.layout.NS
	if len(in.SOC) != ns || len(in.SOCMin) != ns || len(in.SOCMax) != ns {
		return fmt.Errorf("soc vectors must have %d entries", ns)
	}
	return nil
}

// Solve dispatches one hour. All quantities are converted to per unit on
// the base MVA before the LP is built.
func (d *Dispatcher) Solve(in Input) (Result, error) {
	if err := d.check(in); err != nil {
		return Result{}, err
	}
	base := d.opts.BaseMVA
	pu := func(v float64) float64 { return v / base }

	var p program
	zones := d.net.Zones

	var flow []int
	if !d.copperSheet() {
		flow = make([]int, d.layout.NL)
		for l := range flow {
			r := pu(in.Cap.Max[d.layout.Line(l)])
			flow[l] = p.addVar(-r, r, 0)
		}
	}

	gen := make([]int, d.layout.NG)
	for i, g := range d.gens {
		id := d.layout.Generator(i)
		gen[i] = p.addVar(pu(in.Cap.Min[id]), pu(in.Cap.Max[id]), g.Cost)
	}

	ns := d.layout.NS
	dis := make([]int, ns)
	chg := make([]int, ns)
	soc := make([]int, ns)
	for i, s := range d.storage {
		id := d.layout.Storage(i)
		lo, hi := pu(in.Cap.Min[id]), pu(in.Cap.Max[id])
		dis[i] = p.addVar(lo, hi, s.DischargeCost)
		chg[i] = p.addVar(-hi, lo, s.ChargeCost)
		soc[i] = p.addVar(pu(in.SOCMin[i]), pu(in.SOCMax[i]), 0)
	}

	nc := zones
	if d.copperSheet() {
		nc = 1
	}
	curt := make([]int, nc)
	for z := range curt {
		curt[z] = p.addVar(0, math.Inf(1), d.opts.CurtailmentCost)
	}

	if d.copperSheet() {
		total := 0.0
		terms := []term{{curt[0], 1}}
		for _, v := range in.NetLoad {
			total += v
		}
		for _, v := range gen {
			terms = append(terms, term{v, 1})
		}
		for i := range d.storage {
			terms = append(terms, term{dis[i], 1}, term{chg[i], 1})
		}
		p.addRow(greaterEq, pu(total), terms...)
	} else {
		for z := 0; z < zones; z++ {
			terms := []term{{curt[z], 1}}
			for l, v := range flow {
				if a := d.net.Incidence(l, z); a != 0 {
					// A line leaving z exports, so it counts against supply.
					terms = append(terms, term{v, -a})
				}
			}
			for i, v := range gen {
				if d.net.GenZone[i] == z {
					terms = append(terms, term{v, 1})
				}
			}
			for i := range d.storage {
				if d.net.StorageZone[i] == z {
					terms = append(terms, term{dis[i], 1}, term{chg[i], 1})
				}
			}
			p.addRow(greaterEq, pu(in.NetLoad[z]), terms...)
		}
	}

	for i, s := range d.storage {
		// soc_new + eff*charge + discharge = soc_old
		p.addRow(equal, pu(in.SOC[i]), term{soc[i], 1}, term{chg[i], s.Efficiency}, term{dis[i], 1})
		// Net throughput is bounded by the derated rating of this hour, not the nameplate.
		p.addRow(lessEq, pu(in.Cap.Max[d.layout.Storage(i)]), term{dis[i], 1}, term{chg[i], -1})
	}

	x, obj, err := p.solve()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrSolverFailed, err)
	}

	res := Result{
		ZoneCurtailment: make([]float64, nc),
		Generation:      make([]float64, len(gen)),
		Discharge:       make([]float64, ns),
		Charge:          make([]float64, ns),
		SOC:             make([]float64, ns),
		Flow:            make([]float64, len(flow)),
		Cost:            obj * base,
	}
	for z, v := range curt {
		mw := x[v] * base
		if mw < CurtailmentTolerance {
			mw = 0
		}
		res.ZoneCurtailment[z] = mw
		res.Curtailment += mw
	}
	for i, v := range gen {
		res.Generation[i] = x[v] * base
	}
	for l, v := range flow {
		res.Flow[l] = x[v] * base
	}
	for i := range d.storage {
		res.Discharge[i] = x[dis[i]] * base
		res.Charge[i] = x[chg[i]] * base
		res.SOC[i] = utils.ClampFloat64(x[soc[i]]*base, in.SOCMin[i], in.SOCMax[i])
	}
	return res, nil
}
