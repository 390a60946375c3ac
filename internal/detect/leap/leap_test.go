package leap

import (
	"os"
	"testing"

	"github.com/etvr-go/trackingd/internal/detect/oneeuro"
)

func TestBlinkFromLidDistance_TracksRollingExtremes(t *testing.T) {
	d := &Detector{filter: oneeuro.NewBank(landmarkCount, minCutoff, beta)}

	// Establish a history ranging from "closed" (distance ~1) to "open"
	// (distance ~10).
	samples := []float64{1, 3, 5, 7, 10}
	var last float64
	for _, dist := range samples {
		xs := []float64{0, 0, 0, dist, 0, 0, 0}
		ys := []float64{0, 0, 0, 0, 0, 0, 0}
		last = d.blinkFromLidDistance(xs, ys)
	}
	_ = last

	wideOpen := d.blinkFromLidDistance([]float64{0, 0, 0, 10, 0, 0, 0}, []float64{0, 0, 0, 0, 0, 0, 0})
	if wideOpen < 0.9 {
		t.Errorf("expected blink near 1 (open) at the historical max distance, got %f", wideOpen)
	}

	closed := d.blinkFromLidDistance([]float64{0, 0, 0, 1, 0, 0, 0}, []float64{0, 0, 0, 0, 0, 0, 0})
	if closed > 0.1 {
		t.Errorf("expected blink near 0 (closed) at the historical min distance, got %f", closed)
	}
}

func TestNew_RequiresModelFile(t *testing.T) {
	if _, err := os.Stat("models/leap.onnx"); err == nil {
		t.Skip("model file present, skipping missing-model test")
	}
	_, err := New(Params{ModelPath: "models/leap.onnx"})
	if err == nil {
		t.Skip("onnxruntime environment available in this environment; skipping")
	}
}
