package condition_test

import (
	"testing"

	"github.com/atlas-desktop/strategyforge/pkg/condition"
)

func TestAboveBelow(t *testing.T) {
	in := condition.Input{Shape: condition.ShapeDual, A: []float64{1, 2, 3}, B: []float64{2, 2, 2}}
	res, err := condition.Evaluate(condition.Condition{Kind: condition.Above}, in)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	want := []bool{false, false, true}
	for i, w := range want {
		if res.Signal[i] != w {
			t.Fatalf("signal[%d]: got %v want %v", i, res.Signal[i], w)
		}
	}
}

func TestCrossesAbove(t *testing.T) {
	in := condition.Input{
		Shape: condition.ShapeDual,
		A:     []float64{1, 3, 2, 5},
		B:     []float64{2, 2, 2, 2},
	}
	res, err := condition.Evaluate(condition.Condition{Kind: condition.CrossesAbove}, in)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	want := []bool{false, true, false, true}
	for i, w := range want {
		if res.Signal[i] != w {
			t.Fatalf("signal[%d]: got %v want %v", i, res.Signal[i], w)
		}
	}
}

func TestRisingTrendRequiresStrictIncrease(t *testing.T) {
	in := condition.Input{Shape: condition.ShapeSingle, A: []float64{1, 2, 3, 2, 5}}
	res, err := condition.Evaluate(condition.Condition{Kind: condition.RisingTrend, K: 2}, in)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	// index 2: a[0..2] = 1,2,3 strictly rising over last 2 steps -> true
	if !res.Signal[2] {
		t.Fatal("expected rising trend at index 2")
	}
	// index 3: a[1..3] = 2,3,2 not strictly rising -> false
	if res.Signal[3] {
		t.Fatal("expected no rising trend at index 3")
	}
}

func TestBetween(t *testing.T) {
	in := condition.Input{
		Shape: condition.ShapeRange,
		A:     []float64{5, 15, 25},
		L:     []float64{0, 0, 0},
		U:     []float64{10, 20, 20},
	}
	res, err := condition.Evaluate(condition.Condition{Kind: condition.Between}, in)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	want := []bool{true, true, false}
	for i, w := range want {
		if res.Signal[i] != w {
			t.Fatalf("signal[%d]: got %v want %v", i, res.Signal[i], w)
		}
	}
}

func TestInsufficientData(t *testing.T) {
	in := condition.Input{Shape: condition.ShapeSingle, A: []float64{1}}
	_, err := condition.Evaluate(condition.Condition{Kind: condition.RisingTrend, K: 3}, in)
	if err == nil {
		t.Fatal("expected insufficient data error")
	}
}

func TestIncompatibleShapeRejected(t *testing.T) {
	in := condition.Input{Shape: condition.ShapeSingle, A: []float64{1, 2, 3}}
	_, err := condition.Evaluate(condition.Condition{Kind: condition.Above}, in)
	if err == nil {
		t.Fatal("expected incompatible shape error for Above given Single input")
	}
}

func TestIdempotence(t *testing.T) {
	in := condition.Input{Shape: condition.ShapeDual, A: []float64{1, 2, 3}, B: []float64{2, 2, 2}}
	c := condition.Condition{Kind: condition.Above}
	r1, err1 := condition.Evaluate(c, in)
	r2, err2 := condition.Evaluate(c, in)
	if err1 != nil || err2 != nil {
		t.Fatalf("Evaluate errors: %v / %v", err1, err2)
	}
	for i := range r1.Signal {
		if r1.Signal[i] != r2.Signal[i] || r1.Strength[i] != r2.Strength[i] || r1.Direction[i] != r2.Direction[i] {
			t.Fatalf("non-idempotent result at index %d", i)
		}
	}
}
