package models

import (
	"testing"
)

func TestRunStatusIsTerminal(t *testing.T) {
	tests := []struct {
		status   RunStatus
		terminal bool
	}{
		{RunStatusPending, false},
		{RunStatusRunning, false},
		{RunStatusCompleted, true},
		{RunStatusFailed, true},
		{RunStatusCancelled, true},
	}
	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.terminal {
			t.Errorf("%s.IsTerminal() = %v, want %v", tt.status, got, tt.terminal)
		}
	}
}

func TestIndicesVectorRoundTrip(t *testing.T) {
	ix := Indices{LOLP: 0.1, LOLH: 876, EUE: 50, EPNS: 2, LOLF: 3, MDT: 4, LOLE: 5}
	v := ix.Vector()
	if len(v) != len(IndexNames) {
		t.Fatalf("vector length %d, want %d", len(v), len(IndexNames))
	}
	if got := IndicesFromVector(v); got != ix {
		t.Errorf("IndicesFromVector(Vector()) = %+v, want %+v", got, ix)
	}
	if got := IndicesFromVector([]float64{1}); got != (Indices{}) {
		t.Errorf("short vector should give zero indices, got %+v", got)
	}
}

func TestWindSiteTurbineCount(t *testing.T) {
	tests := []struct {
		site WindSite
		want int
	}{
		{WindSite{MaxMW: 100, TurbineRatingMW: 2}, 50},
		{WindSite{MaxMW: 101, TurbineRatingMW: 2}, 51},
		{WindSite{MaxMW: 100, TurbineRatingMW: 2, Turbines: 7}, 7},
		{WindSite{MaxMW: 100}, 0},
	}
	for _, tt := range tests {
		if got := tt.site.TurbineCount(); got != tt.want {
			t.Errorf("TurbineCount(%+v) = %d, want %d", tt.site, got, tt.want)
		}
	}
}

func TestHeatMapMergeAndPercent(t *testing.T) {
	a := &HeatMap{}
	b := &HeatMap{}
	a.Counts[0][5] = 1
	a.Observations[0][5] = 4
	b.Counts[0][5] = 1
	b.Observations[0][5] = 4
	b.Observations[3][0] = 2

	a.Merge(b)
	pct := a.Percent()
	if pct[0][5] != 25 {
		t.Errorf("Percent[0][5] = %f, want 25", pct[0][5])
	}
	if pct[3][0] != 0 {
		t.Errorf("observed cell without loss should be 0, got %f", pct[3][0])
	}
	if pct[11][23] != 0 {
		t.Errorf("unobserved cell should be 0, got %f", pct[11][23])
	}
}

func TestHeatMapFlatten(t *testing.T) {
	h := &HeatMap{}
	h.Counts[2][7] = 3
	h.Observations[11][23] = 9

	flat := h.Flatten()
	if len(flat) != 576 {
		t.Fatalf("flat length %d, want 576", len(flat))
	}
	back := HeatMapFromFlat(flat)
	if back.Counts[2][7] != 3 || back.Observations[11][23] != 9 {
		t.Errorf("HeatMapFromFlat lost data: %+v", back)
	}
}
