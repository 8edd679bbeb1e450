package reliability

import (
	"math"
	"testing"

	"github.com/GoSim-25-26J-441/adequacy-core/internal/grid"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/models"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/utils"
)

func newSampler(t *testing.T, inv *models.Inventory) (*Sampler, *grid.CapacityModel) {
	t.Helper()
	model := grid.NewCapacityModel(inv)
	rates, err := grid.NewRates(inv)
	if err != nil {
		t.Fatalf("NewRates: %v", err)
	}
	return NewSampler(model, rates), model
}

func mixedInventory() *models.Inventory {
	return &models.Inventory{
		Buses: []models.Bus{{Index: 1}, {Index: 2}},
		Generators: []models.Generator{
			{Bus: 1, MaxMW: 100, MinMW: 5, MTTF: 30, MTTR: 10},
			{Bus: 2, MaxMW: 60, MTTF: 20, MTTR: 15},
		},
		Lines: []models.Line{{From: 1, To: 2, RatingMW: 80, MTTF: 40, MTTR: 5}},
		Storage: []models.Storage{
			{Bus: 2, PowerMW: 30, DurationH: 2, SOCMax: 1, Efficiency: 1, MTTF: 10, MTTR: 10, Units: 3},
		},
	}
}

func TestStepCapacityConsistency(t *testing.T) {
	s, model := newSampler(t, mixedInventory())
	static := model.Static()
	rng := utils.NewRandSource(1)

	state := model.InitialState()
	clock := NewClock()
	for h := 0; h < 5000; h++ {
		var cur grid.Capacity
		state, cur, clock = s.Step(state, clock, rng)
		for i := range state {
			if cur.Max[i] != state[i]*static.Max[i] {
				t.Fatalf("hour %d: cur.Max[%d] = %f, want %f", h, i, cur.Max[i], state[i]*static.Max[i])
			}
			if cur.Min[i] != state[i]*static.Min[i] {
				t.Fatalf("hour %d: cur.Min[%d] = %f, want %f", h, i, cur.Min[i], state[i]*static.Min[i])
			}
			if cur.Max[i] > static.Max[i] {
				t.Fatalf("hour %d: cur.Max[%d] exceeds rating", h, i)
			}
		}
	}
}

func TestStepStorageStaysOnUnitGrid(t *testing.T) {
	s, model := newSampler(t, mixedInventory())
	rng := utils.NewRandSource(7)
	id := model.Layout().Storage(0)
	units := float64(model.Units(0))

	state := model.InitialState()
	clock := NewClock()
	seenPartial := false
	for h := 0; h < 20000; h++ {
		state, _, clock = s.Step(state, clock, rng)
		v := state[id]
		if v < 0 || v > 1 {
			t.Fatalf("hour %d: storage state %f outside [0, 1]", h, v)
		}
		if k := v * units; math.Abs(k-math.Round(k)) > 1e-9 {
			t.Fatalf("hour %d: storage state %f is not a multiple of 1/%v", h, v, units)
		}
		if v > 0 && v < 1 {
			seenPartial = true
		}
		for g := 0; g < 3; g++ {
			if state[g] != 0 && state[g] != 1 {
				t.Fatalf("hour %d: two-state component %d has state %f", h, g, state[g])
			}
		}
	}
	if !seenPartial {
		t.Error("expected storage to visit partial availability")
	}
}

func TestStepDoesNotMutateInput(t *testing.T) {
	s, model := newSampler(t, mixedInventory())
	rng := utils.NewRandSource(3)

	state := model.InitialState()
	clock := Clock{Remaining: 0.5, Pending: 0}
	next, _, _ := s.Step(state, clock, rng)

	if state[0] != 1 {
		t.Error("Step mutated its input state")
	}
	if next[0] != 0 {
		t.Errorf("pending failure of generator 0 should fire, got state %f", next[0])
	}
}

func TestStepDeterministic(t *testing.T) {
	s, model := newSampler(t, mixedInventory())
	run := func() []float64 {
		rng := utils.NewRandSource(99)
		state := model.InitialState()
		clock := NewClock()
		trace := make([]float64, 0, 2000)
		for h := 0; h < 500; h++ {
			state, _, clock = s.Step(state, clock, rng)
			trace = append(trace, state...)
		}
		return trace
	}
	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("trace differs at %d", i)
		}
	}
}

func TestStepFlipFrequency(t *testing.T) {
	// With lambda == mu every draw schedules exactly one flip, and the
	// hourly clock rounds the waiting time up: the flip rate is 1-exp(-lambda).
	const rate = 0.1
	inv := &models.Inventory{
		Buses:      []models.Bus{{Index: 1}},
		Generators: []models.Generator{{Bus: 1, MaxMW: 1, MTTF: 1 / rate, MTTR: 1 / rate}},
	}
	s, model := newSampler(t, inv)
	rng := utils.NewRandSource(2024)

	const hours = 200000
	state := model.InitialState()
	clock := NewClock()
	flips := 0
	for h := 0; h < hours; h++ {
		prev := state[0]
		state, _, clock = s.Step(state, clock, rng)
		if state[0] != prev {
			flips++
		}
	}

	got := float64(flips) / hours
	want := 1 - math.Exp(-rate)
	if math.Abs(got-want)/want > 0.05 {
		t.Errorf("flip frequency = %f, want about %f", got, want)
	}
	if math.Abs(got-rate)/rate > 0.1 {
		t.Errorf("flip frequency %f should be close to the rate %f", got, rate)
	}
}

func TestStepStorageGuards(t *testing.T) {
	inv := &models.Inventory{
		Buses: []models.Bus{{Index: 1}},
		Storage: []models.Storage{
			{Bus: 1, PowerMW: 10, DurationH: 1, SOCMax: 1, Efficiency: 1, MTTF: 5, MTTR: 5, Units: 2},
		},
	}
	s, _ := newSampler(t, inv)
	rng := utils.NewRandSource(5)

	// A failure pending on an empty unit must not drive it negative.
	next, _, _ := s.Step([]float64{0}, Clock{Remaining: 1, Pending: 0}, rng)
	if next[0] != 0 {
		t.Errorf("failed empty unit: state = %f, want 0", next[0])
	}

	// A repair pending on a full unit must not exceed 1.
	next, _, _ = s.Step([]float64{1}, Clock{Remaining: 1, Pending: 1}, rng)
	if next[0] != 1 {
		t.Errorf("repaired full unit: state = %f, want 1", next[0])
	}

	next, _, _ = s.Step([]float64{0.5}, Clock{Remaining: 1, Pending: 1}, rng)
	if next[0] != 1 {
		t.Errorf("repair from half: state = %f, want 1", next[0])
	}
}

func TestStepCountdown(t *testing.T) {
	s, model := newSampler(t, mixedInventory())
	rng := utils.NewRandSource(11)

	state := model.InitialState()
	next, _, clock := s.Step(state, Clock{Remaining: 3.5, Pending: 1}, rng)
	if clock.Remaining != 2.5 || clock.Pending != 1 {
		t.Errorf("clock = %+v, want countdown 2.5 on event 1", clock)
	}
	for i := range next {
		if next[i] != state[i] {
			t.Errorf("state changed before the event fired")
		}
	}
}
