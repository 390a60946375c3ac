package detect

import (
	"errors"
	"testing"

	"gocv.io/x/gocv"
)

type stubAlgorithm struct {
	name   string
	result EyeData
	err    error
	closed bool
}

func (s *stubAlgorithm) Name() string { return s.name }

func (s *stubAlgorithm) Run(frame gocv.Mat, position string) (EyeData, gocv.Mat, error) {
	if s.err != nil {
		return EyeData{}, gocv.NewMat(), s.err
	}
	return s.result, gocv.NewMat(), nil
}

func (s *stubAlgorithm) Close() error {
	s.closed = true
	return nil
}

func TestChain_FallsThroughOnTrackingFailed(t *testing.T) {
	first := &stubAlgorithm{name: "first", err: ErrTrackingFailed}
	second := &stubAlgorithm{name: "second", result: EyeData{X: 0.5, Y: 0.5, Blink: 1}}

	chain := NewChain([]Algorithm{first, second})
	input := gocv.NewMat()
	defer input.Close()
	data, name, annotated, err := chain.Run(input, "left_eye")
	defer annotated.Close()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "second" {
		t.Errorf("expected second algorithm to win, got %q", name)
	}
	if data.X != 0.5 {
		t.Errorf("expected x 0.5, got %f", data.X)
	}
}

func TestChain_AllFailReturnsTrackingFailed(t *testing.T) {
	chain := NewChain([]Algorithm{
		&stubAlgorithm{name: "a", err: ErrTrackingFailed},
		&stubAlgorithm{name: "b", err: ErrTrackingFailed},
	})
	input := gocv.NewMat()
	defer input.Close()
	_, _, annotated, err := chain.Run(input, "left_eye")
	defer annotated.Close()
	if !errors.Is(err, ErrTrackingFailed) {
		t.Errorf("expected ErrTrackingFailed, got %v", err)
	}
}

func TestChain_NonTrackingErrorStopsChain(t *testing.T) {
	boom := errors.New("boom")
	first := &stubAlgorithm{name: "first", err: boom}
	second := &stubAlgorithm{name: "second", result: EyeData{X: 1}}

	chain := NewChain([]Algorithm{first, second})
	input := gocv.NewMat()
	defer input.Close()
	_, name, annotated, err := chain.Run(input, "left_eye")
	defer annotated.Close()
	if !errors.Is(err, boom) {
		t.Errorf("expected boom error to propagate, got %v", err)
	}
	if name != "first" {
		t.Errorf("expected error to be attributed to first algorithm, got %q", name)
	}
}

func TestChain_CloseClosesAll(t *testing.T) {
	a := &stubAlgorithm{name: "a"}
	b := &stubAlgorithm{name: "b"}
	chain := NewChain([]Algorithm{a, b})
	if err := chain.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.closed || !b.closed {
		t.Error("expected both algorithms to be closed")
	}
}
