package blob

import (
	"image"
	"testing"

	"gocv.io/x/gocv"
)

func TestDetector_FindsDarkBlob(t *testing.T) {
	mat := gocv.NewMatWithSize(100, 100, gocv.MatTypeCV8UC1)
	defer mat.Close()
	mat.SetTo(gocv.NewScalar(220, 0, 0, 0))
	dark := mat.Region(image.Rect(40, 45, 55, 60))
	dark.SetTo(gocv.NewScalar(5, 0, 0, 0))
	dark.Close()

	d := New(Params{Threshold: 100, MinSize: 5, MaxSize: 30})
	data, annotated, err := d.Run(mat, "left_eye")
	defer annotated.Close()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data.X < 0.4 || data.X > 0.55 {
		t.Errorf("expected x near blob center, got %f", data.X)
	}
	if annotated.Empty() {
		t.Error("expected a non-empty annotated frame on success")
	}
}

func TestDetector_NoBlobFailsTracking(t *testing.T) {
	mat := gocv.NewMatWithSize(100, 100, gocv.MatTypeCV8UC1)
	defer mat.Close()
	mat.SetTo(gocv.NewScalar(220, 0, 0, 0))

	d := New(Params{Threshold: 100})
	_, annotated, err := d.Run(mat, "left_eye")
	defer annotated.Close()
	if err == nil {
		t.Error("expected tracking failure on a blank frame")
	}
}
