// Package timescale converts between time.Duration and rational clock units
// such as Ogg granule rates.
package timescale

import (
	"math"
	"math/bits"
	"time"
)

// ToScale converts t to units of a clock running at num/den ticks per
// second, rounding to nearest.
func ToScale(t time.Duration, num, den uint64) uint64 {
	if t <= 0 || num == 0 || den == 0 {
		return 0
	}
	return Rescale(uint64(t), num, uint64(time.Second)*den)
}

// FromScale converts v ticks of a num/den ticks-per-second clock to a
// duration. Results that do not fit saturate.
func FromScale(v int64, num, den uint64) time.Duration {
	if v <= 0 || num == 0 {
		return 0
	}
	hi, lo := bits.Mul64(uint64(v), den)
	if hi != 0 {
		// v*den overflowed; scale down first
		r := Rescale(uint64(v), den, num)
		if r > uint64(math.MaxInt64)/uint64(time.Second) {
			return time.Duration(math.MaxInt64)
		}
		return time.Duration(r) * time.Second
	}
	r := Rescale(lo, uint64(time.Second), num)
	if r > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(r)
}

// Rescale returns v*mul/div rounded to nearest, saturating at MaxUint64.
func Rescale(v, mul, div uint64) uint64 {
	if div == 0 {
		return math.MaxUint64
	}
	hi, lo := bits.Mul64(v, mul)
	if hi >= div {
		return math.MaxUint64
	}
	q, rem := bits.Div64(hi, lo, div)
	if rem >= div-rem {
		// round up
		q++
	}
	return q
}
