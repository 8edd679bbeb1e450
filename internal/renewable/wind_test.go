package renewable

import (
	"math"
	"testing"

	"github.com/GoSim-25-26J-441/adequacy-core/pkg/models"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/utils"
)

func twoSiteWind() *models.WindData {
	return &models.WindData{
		PowerCurves: [][]float64{
			{0, 0.5, 1},
			{0, 0.25, 0.75},
		},
		Sites: []models.WindSite{
			{
				Name: "w1", Zone: 1, PowerClass: 0, MaxMW: 10, TurbineRatingMW: 2,
				TransitionRates: [][]float64{{0.8, 0.2, 0}, {0.1, 0.8, 0.1}, {0, 0.2, 0.8}},
			},
			{
				Name: "w2", Zone: 2, PowerClass: 1, MaxMW: 9, TurbineRatingMW: 2,
				TransitionRates: [][]float64{{2, 2, 0}, {1, 2, 1}, {0, 2, 2}},
			},
		},
	}
}

func TestWindOutputMatchesCurves(t *testing.T) {
	w, err := NewWind(twoSiteWind(), 2)
	if err != nil {
		t.Fatalf("NewWind: %v", err)
	}
	rng := utils.NewRandSource(1)

	classes := w.InitialState(rng)
	for h := 0; h < 1000; h++ {
		var zonal []float64
		zonal, classes = w.Step(classes, rng)
		for s, c := range classes {
			if c < 0 || c > 2 {
				t.Fatalf("hour %d: site %d class %d out of range", h, s, c)
			}
		}
		// site 1: 5 turbines * 2 MW; site 2: ceil(9/2)=5 turbines * 2 MW
		want1 := []float64{0, 5, 10}[classes[0]]
		want2 := []float64{0, 2.5, 7.5}[classes[1]]
		if math.Abs(zonal[0]-want1) > 1e-12 || math.Abs(zonal[1]-want2) > 1e-12 {
			t.Fatalf("hour %d: zonal = %v, want [%f %f]", h, zonal, want1, want2)
		}
	}
}

func TestWindZeroProbabilityIsRare(t *testing.T) {
	w, err := NewWind(twoSiteWind(), 2)
	if err != nil {
		t.Fatalf("NewWind: %v", err)
	}
	rng := utils.NewRandSource(3)

	// Class 0 -> 2 has probability zero (floored to 1e-10): it must not occur
	// in a few thousand draws.
	for i := 0; i < 5000; i++ {
		_, next := w.Step([]int{0, 0}, rng)
		if next[0] == 2 {
			t.Fatalf("draw %d: jumped across a zero-probability transition", i)
		}
	}
}

func TestWindTransitionFrequencies(t *testing.T) {
	// Waiting times -ln(U)/p_c make class c win with probability p_c when the
	// row sums to one.
	w, err := NewWind(twoSiteWind(), 2)
	if err != nil {
		t.Fatalf("NewWind: %v", err)
	}
	rng := utils.NewRandSource(5)

	const draws = 50000
	stay := 0
	for i := 0; i < draws; i++ {
		_, next := w.Step([]int{1, 1}, rng)
		if next[0] == 1 {
			stay++
		}
	}
	if got := float64(stay) / draws; math.Abs(got-0.8) > 0.02 {
		t.Errorf("stay frequency = %f, want about 0.8", got)
	}
}

func TestNewWindRejectsNegativeRates(t *testing.T) {
	data := twoSiteWind()
	data.Sites[0].TransitionRates[1][2] = -0.1
	if _, err := NewWind(data, 2); err == nil {
		t.Error("expected error for negative transition rate")
	}
}

func TestNewWindEmpty(t *testing.T) {
	w, err := NewWind(nil, 3)
	if err != nil {
		t.Fatalf("NewWind(nil): %v", err)
	}
	zonal, next := w.Step(w.InitialState(utils.NewRandSource(1)), utils.NewRandSource(1))
	if len(zonal) != 3 || len(next) != 0 {
		t.Errorf("empty wind: zonal=%v next=%v", zonal, next)
	}
}
