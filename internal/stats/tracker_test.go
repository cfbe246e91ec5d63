package stats

import (
	"math"
	"testing"
)

func TestEmptyTrackerSentinels(t *testing.T) {
	tr := New()
	if tr.Count() != 0 {
		t.Fatalf("expected count 0")
	}
	if tr.Mean() != 0 || tr.Variance() != 0 {
		t.Fatalf("expected mean/variance 0 on empty tracker")
	}
	if !math.IsInf(tr.Min(), 1) || !math.IsInf(tr.Max(), -1) {
		t.Fatalf("expected +inf/-inf sentinels, got min=%v max=%v", tr.Min(), tr.Max())
	}
}

func TestAddSampleBasic(t *testing.T) {
	tr := New()
	for _, x := range []float64{1, 2, 3, 4, 5} {
		tr.Add(x)
	}
	if tr.Count() != 5 {
		t.Fatalf("expected count 5, got %d", tr.Count())
	}
	if tr.Mean() != 3 {
		t.Fatalf("expected mean 3, got %v", tr.Mean())
	}
	if tr.Min() != 1 || tr.Max() != 5 {
		t.Fatalf("expected min=1 max=5, got min=%v max=%v", tr.Min(), tr.Max())
	}
	wantVar := 2.0 // population variance of 1..5
	if math.Abs(tr.Variance()-wantVar) > 1e-9 {
		t.Fatalf("expected variance %v, got %v", wantVar, tr.Variance())
	}
}

func TestMergeEmptyEmpty(t *testing.T) {
	a, b := New(), New()
	a.Merge(b)
	if a.Count() != 0 {
		t.Fatalf("merge of two empties should stay empty")
	}
}

func TestMergeOneSideEmpty(t *testing.T) {
	a := New()
	a.Add(10)
	a.Add(20)
	empty := New()

	merged := a.Clone()
	merged.Merge(empty)
	if merged.Count() != a.Count() || merged.Mean() != a.Mean() {
		t.Fatalf("merge with empty side should return the other side unchanged")
	}

	merged2 := empty.Clone()
	merged2.Merge(a)
	if merged2.Count() != a.Count() || merged2.Mean() != a.Mean() {
		t.Fatalf("merge into empty should adopt the other side's stats")
	}
}

func TestMergeEquivalentToAccumulate(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	whole := New()
	for _, x := range xs {
		whole.Add(x)
	}

	split := len(xs) / 2
	left, right := New(), New()
	for _, x := range xs[:split] {
		left.Add(x)
	}
	for _, x := range xs[split:] {
		right.Add(x)
	}
	left.Merge(right)

	if left.Count() != whole.Count() {
		t.Fatalf("count mismatch: %d vs %d", left.Count(), whole.Count())
	}
	if math.Abs(left.Mean()-whole.Mean()) > 1e-9 {
		t.Fatalf("mean mismatch: %v vs %v", left.Mean(), whole.Mean())
	}
	if math.Abs(left.Variance()-whole.Variance()) > 1e-6 {
		t.Fatalf("variance mismatch: %v vs %v", left.Variance(), whole.Variance())
	}
}

func TestMergeCommutativeAndAssociative(t *testing.T) {
	a, b, c := New(), New(), New()
	for _, x := range []float64{1, 5, 9} {
		a.Add(x)
	}
	for _, x := range []float64{2, 4} {
		b.Add(x)
	}
	for _, x := range []float64{100, 3} {
		c.Add(x)
	}

	ab := a.Clone()
	ab.Merge(b)
	abc1 := ab.Clone()
	abc1.Merge(c)

	bc := b.Clone()
	bc.Merge(c)
	abc2 := a.Clone()
	abc2.Merge(bc)

	if abc1.Count() != abc2.Count() {
		t.Fatalf("associativity broke count")
	}
	if math.Abs(abc1.Mean()-abc2.Mean()) > 1e-9 {
		t.Fatalf("associativity broke mean: %v vs %v", abc1.Mean(), abc2.Mean())
	}

	ba := b.Clone()
	ba.Merge(a)
	if math.Abs(ba.Mean()-ab.Mean()) > 1e-9 {
		t.Fatalf("merge not commutative on mean")
	}
}
