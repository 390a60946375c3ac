package oneeuro

import "testing"

func TestFilter_FirstSampleReturnsInputUnchanged(t *testing.T) {
	f := New(1.0, 0.5)
	got := f.Filter(0, 10.0)
	if got != 10.0 {
		t.Errorf("expected first sample to pass through unchanged, got %f", got)
	}
}

func TestFilter_SmoothsStepChange(t *testing.T) {
	f := New(1.0, 0.0)
	f.Filter(0, 0.0)
	got := f.Filter(1.0/30.0, 10.0)
	if got <= 0 || got >= 10.0 {
		t.Errorf("expected smoothed value strictly between 0 and 10, got %f", got)
	}
}

func TestFilter_ConvergesToConstantSignal(t *testing.T) {
	f := New(1.0, 0.5)
	var got float64
	for i := 0; i < 200; i++ {
		got = f.Filter(float64(i)/30.0, 5.0)
	}
	if diff := got - 5.0; diff > 0.01 || diff < -0.01 {
		t.Errorf("expected filter to converge to 5.0, got %f", got)
	}
}

func TestFilter_NonPositiveDtFallsBackToDefault(t *testing.T) {
	f := New(1.0, 0.5)
	f.Filter(1.0, 1.0)
	// Same or earlier timestamp must not panic or divide by zero.
	got := f.Filter(1.0, 2.0)
	if got == 0 {
		t.Error("expected a finite, non-zero result for a repeated timestamp")
	}
}

func TestBank_FiltersIndependentPoints(t *testing.T) {
	b := NewBank(2, 1.0, 0.5)
	xs := []float64{0, 100}
	ys := []float64{0, 100}

	b.Filter(0, xs, ys)
	if xs[0] != 0 || ys[1] != 100 {
		t.Fatalf("expected first-sample passthrough, got xs=%v ys=%v", xs, ys)
	}

	xs2 := []float64{5, 95}
	ys2 := []float64{5, 95}
	b.Filter(1.0/30.0, xs2, ys2)

	if xs2[0] == 5 || xs2[0] == 0 {
		t.Errorf("expected point 0 to move smoothly from 0 toward 5, got %f", xs2[0])
	}
}
