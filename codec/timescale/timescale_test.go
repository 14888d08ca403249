package timescale

import (
	"math"
	"testing"
	"time"
)

func TestToScale(t *testing.T) {
	values := []struct {
		T   time.Duration
		Num uint64
		Den uint64
		V   uint64
	}{
		{0, 48000, 1, 0},
		{-time.Second, 48000, 1, 0},
		{time.Second, 48000, 1, 48000},
		{20 * time.Millisecond, 48000, 1, 960},
		{time.Second/60 - 1, 90000, 1, 1500},
		{time.Second/60 + 1, 90000, 1, 1500},
		{time.Second, 30000, 1001, 30},
		{time.Second * (1 << 32), 90000, 1, 90000 * (1 << 32)},
	}
	for _, ex := range values {
		n := ToScale(ex.T, ex.Num, ex.Den)
		if n != ex.V {
			t.Errorf("%d (%s) @ %d/%d: expected %d, got %d", ex.T, ex.T, ex.Num, ex.Den, ex.V, n)
		}
	}
}

func TestFromScale(t *testing.T) {
	values := []struct {
		V   int64
		Num uint64
		Den uint64
		T   time.Duration
	}{
		{0, 48000, 1, 0},
		{-5, 48000, 1, 0},
		{48000, 48000, 1, time.Second},
		{960, 48000, 1, 20 * time.Millisecond},
		{1, 44100, 1, 22676 * time.Nanosecond},
		{30, 30000, 1001, 1001 * time.Millisecond},
		{math.MaxInt64, 1, 1, time.Duration(math.MaxInt64)},
	}
	for _, ex := range values {
		d := FromScale(ex.V, ex.Num, ex.Den)
		if d != ex.T {
			t.Errorf("%d @ %d/%d: expected %s, got %s", ex.V, ex.Num, ex.Den, ex.T, d)
		}
	}
}

func TestRescaleSaturates(t *testing.T) {
	if r := Rescale(math.MaxUint64, 2, 1); r != math.MaxUint64 {
		t.Errorf("expected saturation, got %d", r)
	}
	if r := Rescale(10, 1, 0); r != math.MaxUint64 {
		t.Errorf("expected saturation on zero divisor, got %d", r)
	}
}
