package indices

import (
	"errors"
	"math"
	"testing"
)

func fill(acc *Accumulator, curt []float64) {
	acc.Reset()
	for n, c := range curt {
		acc.Add(n, c)
	}
}

func TestAccumulatorIndices(t *testing.T) {
	// 48 hours: event of 2h at hour 0, event of 3h in day 2, and a 1h event at the last hour.
	curt := make([]float64, 48)
	curt[0], curt[1] = 10, 20
	curt[30], curt[31], curt[32] = 5, 5, 5
	curt[47] = 15

	acc := NewAccumulator(48)
	fill(acc, curt)
	ix := acc.Indices()

	if got, want := ix.LOLP, 6.0/48; math.Abs(got-want) > 1e-12 {
		t.Errorf("LOLP = %v, want %v", got, want)
	}
	if ix.LOLH != ix.LOLP*48 {
		t.Errorf("LOLH = %v, want %v", ix.LOLH, ix.LOLP*48)
	}
	if ix.EUE != 60 {
		t.Errorf("EUE = %v, want 60", ix.EUE)
	}
	if ix.EPNS != 10 {
		t.Errorf("EPNS = %v, want 10", ix.EPNS)
	}
	if ix.LOLF != 3 {
		t.Errorf("LOLF = %v, want 3", ix.LOLF)
	}
	if ix.MDT != 2 {
		t.Errorf("MDT = %v, want 2", ix.MDT)
	}
	if ix.LOLE != 2 {
		t.Errorf("LOLE = %v, want 2", ix.LOLE)
	}

	d := acc.Durations()
	want := []int{2, 3, 1}
	if len(d) != len(want) {
		t.Fatalf("Durations() = %v, want %v", d, want)
	}
	for i := range want {
		if d[i] != want[i] {
			t.Fatalf("Durations() = %v, want %v", d, want)
		}
	}
}

func TestAccumulatorNoLoss(t *testing.T) {
	acc := NewAccumulator(24)
	fill(acc, make([]float64, 24))
	ix := acc.Indices()
	if ix.LOLP != 0 || ix.EPNS != 0 || ix.MDT != 0 || ix.LOLF != 0 || ix.LOLE != 0 {
		t.Fatalf("indices = %+v, want zeros", ix)
	}
	if len(acc.Durations()) != 0 {
		t.Fatalf("Durations() = %v, want none", acc.Durations())
	}
}

func TestAccumulatorIgnoresSolverNoise(t *testing.T) {
	acc := NewAccumulator(2)
	fill(acc, []float64{1e-9, 0})
	if ix := acc.Indices(); ix.LOLP != 0 || ix.EUE != 0 {
		t.Fatalf("indices = %+v, want zeros", ix)
	}
}

func TestPartialTrailingDayCounts(t *testing.T) {
	acc := NewAccumulator(30)
	curt := make([]float64, 30)
	curt[29] = 1
	fill(acc, curt)
	if ix := acc.Indices(); ix.LOLE != 1 {
		t.Fatalf("LOLE = %v, want 1", ix.LOLE)
	}
}

func TestLossAtFirstHourCountsAsEvent(t *testing.T) {
	tests := []struct {
		name   string
		curt   []float64
		events float64
	}{
		{"first hour only", []float64{7, 0, 0, 0}, 1},
		{"run from first hour", []float64{7, 7, 7, 0}, 1},
		{"first hour and later", []float64{7, 0, 7, 0}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := NewAccumulator(len(tt.curt))
			fill(acc, tt.curt)
			ix := acc.Indices()
			if ix.LOLF != tt.events {
				t.Fatalf("LOLF = %v, want %v", ix.LOLF, tt.events)
			}
			if want := ix.LOLH / tt.events; math.Abs(ix.MDT-want) > 1e-12 {
				t.Errorf("MDT = %v, want %v", ix.MDT, want)
			}
		})
	}
}

func TestAccumulatorReset(t *testing.T) {
	acc := NewAccumulator(4)
	fill(acc, []float64{1, 1, 1, 1})
	fill(acc, []float64{0, 0, 0, 0})
	if ix := acc.Indices(); ix.LOLP != 0 || ix.LOLF != 0 {
		t.Fatalf("indices after reset = %+v", ix)
	}
}

func TestRecordFinal(t *testing.T) {
	acc := NewAccumulator(10)
	rec := NewRecord(10)

	fill(acc, []float64{0, 5, 0, 0, 0, 0, 0, 0, 0, 0})
	rec.Add(acc)
	fill(acc, []float64{0, 5, 5, 5, 0, 0, 0, 0, 0, 0})
	rec.Add(acc)

	final := rec.Final()
	if math.Abs(final.LOLP-0.2) > 1e-12 {
		t.Errorf("LOLP = %v, want 0.2", final.LOLP)
	}
	if final.LOLH != final.LOLP*10 {
		t.Errorf("LOLH = %v, want LOLP*hours = %v", final.LOLH, final.LOLP*10)
	}
	if math.Abs(final.EUE-10) > 1e-12 {
		t.Errorf("EUE = %v, want 10", final.EUE)
	}

	hourly := rec.HourlyLOLP()
	if hourly[1] != 1 || hourly[2] != 0.5 || hourly[0] != 0 {
		t.Errorf("HourlyLOLP() = %v", hourly)
	}

	heat := rec.HeatMap()
	if heat.Counts[0][1] != 2 || heat.Observations[0][1] != 2 {
		t.Errorf("heat map cell = %v/%v, want 2/2", heat.Counts[0][1], heat.Observations[0][1])
	}
	if pct := heat.Percent(); pct[0][2] != 50 {
		t.Errorf("heat map percent = %v, want 50", pct[0][2])
	}
}

func TestRecordPackRoundTripAndMerge(t *testing.T) {
	acc := NewAccumulator(6)
	a := NewRecord(6)
	fill(acc, []float64{1, 0, 0, 0, 0, 0})
	a.Add(acc)

	b := NewRecord(6)
	fill(acc, []float64{0, 0, 0, 0, 2, 2})
	b.Add(acc)
	fill(acc, []float64{0, 0, 0, 0, 0, 0})
	b.Add(acc)

	got, err := Unpack(b.Pack())
	if err != nil {
		t.Fatalf("Unpack() error = %v", err)
	}
	if got.Samples() != 2 || got.Sample(0) != b.Sample(0) {
		t.Fatalf("unpacked record differs: %+v", got.Sample(0))
	}

	if err := a.Merge(got); err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if a.Samples() != 3 {
		t.Fatalf("Samples() = %d, want 3", a.Samples())
	}
	lolp := a.LOLP()
	want := []float64{1.0 / 6, 2.0 / 6, 0}
	for i := range want {
		if math.Abs(lolp[i]-want[i]) > 1e-12 {
			t.Fatalf("LOLP() = %v, want %v", lolp, want)
		}
	}

	hist := a.DurationHistogram()
	if len(hist) != MaxDurationBin || hist[0] != 1 || hist[1] != 1 {
		t.Fatalf("DurationHistogram() starts %v, want [1 1 ...]", hist[:3])
	}

	if err := a.Merge(NewRecord(5)); !errors.Is(err, ErrMalformed) {
		t.Fatalf("Merge() error = %v, want ErrMalformed", err)
	}
}

func TestUnpackRejectsBadInput(t *testing.T) {
	tests := [][]float64{
		nil,
		{1},
		{2, 1, 0},
		{1.5, 0},
		{-1, 0},
	}
	for _, v := range tests {
		if _, err := Unpack(v); !errors.Is(err, ErrMalformed) {
			t.Errorf("Unpack(%v) error = %v, want ErrMalformed", v, err)
		}
	}
}

func TestDurationHistogramCapsLongEvents(t *testing.T) {
	hours := MaxDurationBin + 10
	acc := NewAccumulator(hours)
	curt := make([]float64, hours)
	for n := range curt {
		curt[n] = 1
	}
	fill(acc, curt)
	rec := NewRecord(hours)
	rec.Add(acc)
	if got := rec.DurationHistogram()[MaxDurationBin-1]; got != 1 {
		t.Fatalf("last bin = %v, want 1", got)
	}
}
