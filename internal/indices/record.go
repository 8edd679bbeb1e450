package indices

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/GoSim-25-26J-441/adequacy-core/pkg/models"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/utils"
)

// ErrMalformed is returned when a packed record cannot be decoded
var ErrMalformed = errors.New("malformed index record")

// MaxDurationBin is the last bin of the outage duration histogram; it counts
// every event of MaxDurationBin hours or longer.
const MaxDurationBin = 168

const heatLen = 2 * utils.MonthsInYear * utils.HoursPerDay

// Record holds the per-sample indices of one worker (or, after Merge, of a
// whole run) together with the hourly LOLP sums and the outage heat map.
type Record struct {
	hours   int
	samples []models.Indices
	hourly  []float64
	heat    models.HeatMap
	// durations[d-1] counts loss-of-load events lasting d hours
	durations []float64
}

// NewRecord creates an empty record for samples of the given length
func NewRecord(hours int) *Record {
	return &Record{
		hours:     hours,
		hourly:    make([]float64, hours),
		durations: make([]float64, MaxDurationBin),
	}
}

// Add appends the indices of a finished sample.
func (r *Record) Add(acc *Accumulator) {
	r.samples = append(r.samples, acc.Indices())
	for n, loss := range acc.labels {
		m, h := utils.MonthOfHour(n), utils.HourOfDay(n)
		r.heat.Observations[m][h]++
		if loss {
			r.hourly[n]++
			r.heat.Counts[m][h]++
		}
	}
	for _, d := range acc.Durations() {
		r.durations[min(d, MaxDurationBin)-1]++
	}
}

// Samples returns the number of recorded samples
func (r *Record) Samples() int { return len(r.samples) }

// Hours returns the sample length
func (r *Record) Hours() int { return r.hours }

// Sample returns the indices of sample i
func (r *Record) Sample(i int) models.Indices { return r.samples[i] }

// Column returns one index across samples, in IndexNames order position k.
func (r *Record) Column(k int) []float64 {
	out := make([]float64, len(r.samples))
	for i, s := range r.samples {
		out[i] = s.Vector()[k]
	}
	return out
}

// LOLP returns the per-sample LOLP vector
func (r *Record) LOLP() []float64 { return r.Column(0) }

// Final returns the run indices: the mean of every per-sample index.
// LOLH is derived from LOLP so LOLH == LOLP*hours holds exactly.
func (r *Record) Final() models.Indices {
	if len(r.samples) == 0 {
		return models.Indices{}
	}
	v := make([]float64, len(models.IndexNames))
	for k := range v {
		v[k] = stat.Mean(r.Column(k), nil)
	}
	ix := models.IndicesFromVector(v)
	ix.LOLH = ix.LOLP * float64(r.hours)
	return ix
}

// HourlyLOLP returns, per hour, the fraction of samples with loss of load.
func (r *Record) HourlyLOLP() []float64 {
	out := make([]float64, r.hours)
	if len(r.samples) == 0 {
		return out
	}
	for n, c := range r.hourly {
		out[n] = c / float64(len(r.samples))
	}
	return out
}

// HeatMap returns a copy of the month x hour-of-day outage counts
func (r *Record) HeatMap() *models.HeatMap {
	h := r.heat
	return &h
}

// DurationHistogram returns the number of loss-of-load events per duration;
// entry d-1 counts events of d hours.
func (r *Record) DurationHistogram() []float64 {
	return append([]float64(nil), r.durations...)
}

// Merge appends other's samples after r's and adds its counts.
func (r *Record) Merge(other *Record) error {
	if other.hours != r.hours {
		return fmt.Errorf("%w: merging %d-hour record into %d-hour record", ErrMalformed, other.hours, r.hours)
	}
	r.samples = append(r.samples, other.samples...)
	for n := range r.hourly {
		r.hourly[n] += other.hourly[n]
	}
	r.heat.Merge(&other.heat)
	for d := range r.durations {
		r.durations[d] += other.durations[d]
	}
	return nil
}

// Pack flattens the record for transport:
// [hours, samples, samples*7 indices..., hourly sums..., heat map..., durations...].
// Records with equal hours and sample counts pack to equal lengths.
func (r *Record) Pack() []float64 {
	out := make([]float64, 0, packedLen(r.hours, len(r.samples)))
	out = append(out, float64(r.hours), float64(len(r.samples)))
	for _, s := range r.samples {
		out = append(out, s.Vector()...)
	}
	out = append(out, r.hourly...)
	out = append(out, r.heat.Flatten()...)
	out = append(out, r.durations...)
	return out
}

func packedLen(hours, samples int) int {
	return 2 + samples*len(models.IndexNames) + hours + heatLen + MaxDurationBin
}

// Unpack is the inverse of Pack
func Unpack(v []float64) (*Record, error) {
	if len(v) < 2 {
		return nil, fmt.Errorf("%w: %d values", ErrMalformed, len(v))
	}
	hours, n := int(v[0]), int(v[1])
	if float64(hours) != v[0] || float64(n) != v[1] || hours < 0 || n < 0 || math.IsNaN(v[0]) {
		return nil, fmt.Errorf("%w: bad header %v %v", ErrMalformed, v[0], v[1])
	}
	k := len(models.IndexNames)
	want := packedLen(hours, n)
	if len(v) != want {
		return nil, fmt.Errorf("%w: %d values, expected %d", ErrMalformed, len(v), want)
	}

	r := NewRecord(hours)
	off := 2
	for i := 0; i < n; i++ {
		r.samples = append(r.samples, models.IndicesFromVector(v[off:off+k]))
		off += k
	}
	copy(r.hourly, v[off:off+hours])
	off += hours
	r.heat = *models.HeatMapFromFlat(v[off : off+heatLen])
	off += heatLen
	copy(r.durations, v[off:])
	return r, nil
}
