// Package renewable produces hourly wind and solar output per zone.
package renewable

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/GoSim-25-26J-441/adequacy-core/pkg/models"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/utils"
)

// minTransitionProb replaces zero transition probabilities so every target
// class has a finite waiting time.
const minTransitionProb = 1e-10

// Wind moves every site along its wind-speed class chain.
type Wind struct {
	zones   int
	siteZ   []int
	probs   [][][]float64 // site, from class, to class
	output  [][]float64   // site, class -> MW
	classes int
}

// NewWind prepares the class chains. Transition rows are normalized to
// probabilities; negative entries are rejected.
func NewWind(data *models.WindData, zones int) (*Wind, error) {
	w := &Wind{zones: zones}
	if data == nil || len(data.Sites) == 0 {
		return w, nil
	}
	if len(data.PowerCurves) == 0 {
		return nil, fmt.Errorf("wind: no power curves")
	}
	w.classes = len(data.PowerCurves[0])

	for i, site := range data.Sites {
		if site.PowerClass < 0 || site.PowerClass >= len(data.PowerCurves) {
			return nil, fmt.Errorf("wind site %d (%s): power_class %d has no curve", i, site.Name, site.PowerClass)
		}
		if len(site.TransitionRates) != w.classes {
			return nil, fmt.Errorf("wind site %d (%s): transition matrix has %d rows, expected %d", i, site.Name, len(site.TransitionRates), w.classes)
		}

		probs := make([][]float64, w.classes)
		for r, row := range site.TransitionRates {
			if len(row) != w.classes {
				return nil, fmt.Errorf("wind site %d (%s): transition row %d has %d entries, expected %d", i, site.Name, r, len(row), w.classes)
			}
			sum := 0.0
			for _, v := range row {
				if v < 0 {
					return nil, fmt.Errorf("wind site %d (%s): negative transition rate in row %d", i, site.Name, r)
				}
				sum += v
			}
			if sum == 0 {
				return nil, fmt.Errorf("wind site %d (%s): transition row %d is all zero", i, site.Name, r)
			}
			p := make([]float64, w.classes)
			for c, v := range row {
				p[c] = max(v/sum, minTransitionProb)
			}
			probs[r] = p
		}

		curve := data.PowerCurves[site.PowerClass]
		out := make([]float64, w.classes)
		scale := float64(site.TurbineCount()) * site.TurbineRatingMW
		for c := range out {
			out[c] = curve[c] * scale
		}

		w.siteZ = append(w.siteZ, site.Zone-1)
		w.probs = append(w.probs, probs)
		w.output = append(w.output, out)
	}
	return w, nil
}

// Sites returns the number of wind sites
func (w *Wind) Sites() int { return len(w.siteZ) }

// InitialState picks a uniformly random starting class per site
func (w *Wind) InitialState(rng *utils.RandSource) []int {
	state := make([]int, len(w.siteZ))
	for i := range state {
		state[i] = rng.Intn(w.classes)
	}
	return state
}

// Step draws one exponential waiting time per target class from each site's
// current row; the earliest target becomes the new class. It returns the
// zonal output for the hour and the new classes.
func (w *Wind) Step(classes []int, rng *utils.RandSource) ([]float64, []int) {
	zonal := make([]float64, w.zones)
	next := make([]int, len(classes))
	times := make([]float64, w.classes)

	for s, cur := range classes {
		row := w.probs[s][cur]
		for c := range times {
			times[c] = utils.ExpTime(rng.Uniform(), row[c])
		}
		next[s] = floats.MinIdx(times)
		zonal[w.siteZ[s]] += w.output[s][next[s]]
	}
	return zonal, next
}
