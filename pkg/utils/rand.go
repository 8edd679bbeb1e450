package utils

import (
	"math"
	"math/rand"
	"time"
)

// RandSource is a seeded random number generator. It is not safe for
// concurrent use; every worker owns its own source.
type RandSource struct {
	rng  *rand.Rand
	seed int64
}

// NewRandSource creates a new random source with the given seed.
// A zero seed draws one from the wall clock.
func NewRandSource(seed int64) *RandSource {
	seed = ResolveSeed(seed)
	return &RandSource{
		rng:  rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Seed returns the seed the source was created with
func (r *RandSource) Seed() int64 {
	return r.seed
}

// Float64 returns a random float64 in [0.0, 1.0)
func (r *RandSource) Float64() float64 {
	return r.rng.Float64()
}

// Uniform returns a random float64 in (0.0, 1.0]. Safe to pass to math.Log.
func (r *RandSource) Uniform() float64 {
	return 1 - r.rng.Float64()
}

// Intn returns a random int in [0, n)
func (r *RandSource) Intn(n int) int {
	return r.rng.Intn(n)
}

// ExpTime converts a uniform draw u in (0, 1] into an exponential time -ln(u)/rate.
func ExpTime(u, rate float64) float64 {
	if rate <= 0 {
		return math.Inf(1)
	}
	return -math.Log(u) / rate
}

// ResolveSeed returns seed unless it is zero, in which case a time based
// seed is returned. Call it once per run so all workers share the result.
func ResolveSeed(seed int64) int64 {
	if seed != 0 {
		return seed
	}
	s := time.Now().UnixNano()
	if s == 0 {
		s = 1
	}
	return s
}

// SampleSeed derives the seed for one sample from the run's base seed and the
// sample's global index. The mapping does not depend on how samples are
// partitioned across workers.
func SampleSeed(base int64, index int) int64 {
	z := uint64(base) + uint64(index+1)*0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	z ^= z >> 31
	s := int64(z &^ (1 << 63))
	if s == 0 {
		s = 1
	}
	return s
}
