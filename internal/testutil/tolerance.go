package testutil

import (
	"math"
	"testing"
)

// RequireNearlyEqual fails t if got and want differ by more than eps
// (absolute tolerance).
func RequireNearlyEqual(t *testing.T, got, want, eps float64) {
	t.Helper()
	diff := math.Abs(got - want)
	if diff > eps {
		t.Fatalf("got %v, want %v (diff %v > eps %v)", got, want, diff, eps)
	}
}

// RequireSliceNearlyEqual fails t if got and want differ in length or if
// any element pair exceeds eps (absolute tolerance).
func RequireSliceNearlyEqual(t *testing.T, got, want []float64, eps float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range got {
		diff := math.Abs(got[i] - want[i])
		if diff > eps {
			t.Fatalf("index %d: got %v, want %v (diff %v > eps %v)", i, got[i], want[i], diff, eps)
		}
	}
}

// RequireSliceCloseRel fails t on the first element pair whose relative
// difference exceeds eps. Atmospheric quantities span many decades, so
// most vector comparisons are relative.
func RequireSliceCloseRel(t *testing.T, got, want []float64, eps float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range got {
		scale := math.Max(math.Abs(want[i]), 1e-300)
		diff := math.Abs(got[i]-want[i]) / scale
		if diff > eps {
			t.Fatalf("index %d: got %v, want %v (rel diff %v > eps %v)", i, got[i], want[i], diff, eps)
		}
	}
}

// RequireIncreasing fails t unless the slice is strictly increasing.
func RequireIncreasing(t *testing.T, data []float64) {
	t.Helper()
	for i := 1; i < len(data); i++ {
		if data[i] <= data[i-1] {
			t.Fatalf("index %d: %v after %v, not strictly increasing", i, data[i], data[i-1])
		}
	}
}

// RequireFinite fails t if any element is NaN or Inf.
func RequireFinite(t *testing.T, data []float64) {
	t.Helper()
	for i, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("index %d: non-finite value %v", i, v)
		}
	}
}

// MaxRelDiff returns the maximum relative difference between two slices of
// equal length.
func MaxRelDiff(a, b []float64) float64 {
	maxDiff := 0.0
	for i := range a {
		scale := math.Max(math.Abs(b[i]), 1e-300)
		if d := math.Abs(a[i]-b[i]) / scale; d > maxDiff {
			maxDiff = d
		}
	}
	return maxDiff
}
