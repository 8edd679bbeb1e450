package renewable

import (
	"math"
	"testing"

	"github.com/GoSim-25-26J-441/adequacy-core/pkg/models"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/utils"
)

func flatDay(v float64, sites int) [][]float64 {
	day := make([][]float64, 24)
	for h := range day {
		day[h] = make([]float64, sites)
		for s := range day[h] {
			day[h][s] = v * float64(h) / 23
		}
	}
	return day
}

func monthly(p float64) []float64 {
	out := make([]float64, 12)
	for i := range out {
		out[i] = p
	}
	return out
}

func TestSolarDailyBlock(t *testing.T) {
	data := &models.SolarData{
		Sites: []models.SolarSite{{Zone: 1, MaxMW: 10}, {Zone: 1, MaxMW: 5}, {Zone: 2, MaxMW: 20}},
		Clusters: []models.SolarCluster{
			{Name: "only", MonthProbability: monthly(1), Days: [][][]float64{flatDay(1, 3)}},
		},
	}
	s, err := NewSolar(data, 2)
	if err != nil {
		t.Fatalf("NewSolar: %v", err)
	}
	rng := utils.NewRandSource(1)

	var st SolarState
	for n := 0; n < 48; n++ {
		var zonal []float64
		zonal, st = s.Step(n, st, rng)
		frac := float64(n%24) / 23
		if math.Abs(zonal[0]-15*frac) > 1e-9 || math.Abs(zonal[1]-20*frac) > 1e-9 {
			t.Fatalf("hour %d: zonal = %v", n, zonal)
		}
	}
}

func TestSolarKeepsDayWithinBlock(t *testing.T) {
	data := &models.SolarData{
		Sites: []models.SolarSite{{Zone: 1, MaxMW: 1}},
		Clusters: []models.SolarCluster{
			{MonthProbability: monthly(0.5), Days: [][][]float64{flatDay(1, 1), flatDay(0.5, 1)}},
			{MonthProbability: monthly(0.5), Days: [][][]float64{flatDay(0.2, 1)}},
		},
	}
	s, err := NewSolar(data, 1)
	if err != nil {
		t.Fatalf("NewSolar: %v", err)
	}
	rng := utils.NewRandSource(9)

	var st SolarState
	for n := 0; n < 24*50; n++ {
		prev := st
		_, st = s.Step(n, st, rng)
		if n%24 != 0 && (st.Cluster != prev.Cluster || st.Day != prev.Day) {
			t.Fatalf("hour %d: day changed mid-block", n)
		}
	}
}

func TestSolarClusterSelectionFollowsMonth(t *testing.T) {
	// Cluster 0 only in January, cluster 1 only afterwards.
	jan := make([]float64, 12)
	jan[0] = 1
	rest := monthly(1)
	rest[0] = 0
	data := &models.SolarData{
		Sites: []models.SolarSite{{Zone: 1, MaxMW: 1}},
		Clusters: []models.SolarCluster{
			{MonthProbability: jan, Days: [][][]float64{flatDay(1, 1)}},
			{MonthProbability: rest, Days: [][][]float64{flatDay(1, 1)}},
		},
	}
	s, err := NewSolar(data, 1)
	if err != nil {
		t.Fatalf("NewSolar: %v", err)
	}
	rng := utils.NewRandSource(4)

	var st SolarState
	for day := 0; day < 60; day++ {
		_, st = s.Step(day*24, st, rng)
		want := 1
		if day < 31 {
			want = 0
		}
		if st.Cluster != want {
			t.Fatalf("day %d: cluster %d, want %d", day, st.Cluster, want)
		}
	}
}

func TestSolarClusterFrequencies(t *testing.T) {
	data := &models.SolarData{
		Sites: []models.SolarSite{{Zone: 1, MaxMW: 1}},
		Clusters: []models.SolarCluster{
			{MonthProbability: monthly(3), Days: [][][]float64{flatDay(1, 1)}},
			{MonthProbability: monthly(1), Days: [][][]float64{flatDay(1, 1)}},
		},
	}
	s, err := NewSolar(data, 1)
	if err != nil {
		t.Fatalf("NewSolar: %v", err)
	}
	rng := utils.NewRandSource(8)

	const days = 20000
	first := 0
	var st SolarState
	for d := 0; d < days; d++ {
		_, st = s.Step(d*24, st, rng)
		if st.Cluster == 0 {
			first++
		}
	}
	if got := float64(first) / days; math.Abs(got-0.75) > 0.02 {
		t.Errorf("cluster 0 frequency = %f, want about 0.75 after normalization", got)
	}
}

func TestNewSolarRejectsEmptyMonth(t *testing.T) {
	probs := monthly(1)
	probs[6] = 0
	data := &models.SolarData{
		Sites:    []models.SolarSite{{Zone: 1, MaxMW: 1}},
		Clusters: []models.SolarCluster{{MonthProbability: probs, Days: [][][]float64{flatDay(1, 1)}}},
	}
	if _, err := NewSolar(data, 1); err == nil {
		t.Error("expected error for month without probability mass")
	}
}
