package hsf

import (
	"image"
	"testing"

	"gocv.io/x/gocv"

	"github.com/etvr-go/trackingd/internal/detect"
)

func TestHaarSurroundFeature_WeightsBalanceToZeroMean(t *testing.T) {
	f := newHaarSurroundFeature(10)
	innerTotal := f.valIn * float64(f.rIn*f.rIn)
	outerTotal := f.valOut * float64(f.rOut*f.rOut-f.rIn*f.rIn)
	if diff := innerTotal + outerTotal; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected inner and outer contributions to cancel for a flat image, got %f", diff)
	}
	if f.valIn <= 0 {
		t.Error("expected a positive inner weight")
	}
	if f.valOut >= 0 {
		t.Error("expected a negative outer weight")
	}
}

func TestAutoRadiusCalc_ConvergesWithinRange(t *testing.T) {
	a := newAutoRadiusCalc()
	responses := map[int]float64{}
	// A synthetic response surface with a single minimum at radius 18.
	for r := autoRadiusMin; r <= autoRadiusMax; r++ {
		d := float64(r - 18)
		responses[r] = d * d
	}

	var last int
	for i := 0; i < 40 && !a.Done(); i++ {
		r := a.GetRadius()
		last = r
		if r < autoRadiusMin || r > autoRadiusMax {
			t.Fatalf("radius %d out of range", r)
		}
		a.AddResponse(r, responses[r])
	}
	if !a.Done() {
		t.Fatal("expected search to converge within 40 iterations")
	}
	if last < autoRadiusMin || last > autoRadiusMax {
		t.Errorf("final radius %d out of range", last)
	}
}

func TestBlinkDetector_DetectsAboveThreshold(t *testing.T) {
	b := newBlinkDetector()
	for _, v := range []float64{10, 11, 12, 11, 10, 12, 11, 50} {
		b.AddResponse(v)
	}
	b.CalcThresh()

	if b.Detect(11) {
		t.Error("expected a typical sample not to register as a blink")
	}
	if !b.Detect(1000) {
		t.Error("expected a far-outlier sample to register as a blink")
	}
}

func TestDetector_CalibratesThenTracks(t *testing.T) {
	mat := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC1)
	defer mat.Close()
	mat.SetTo(gocv.NewScalar(200, 0, 0, 0))
	darkRegion := mat.Region(image.Rect(70, 50, 90, 70))
	darkRegion.SetTo(gocv.NewScalar(10, 0, 0, 0))
	darkRegion.Close()

	d := New("left_eye", Params{BlinkStatFrames: 3})
	defer d.Close()

	var last detect.EyeData
	var lastErr error
	for i := 0; i < 100; i++ {
		data, annotated, err := d.Run(mat, "left_eye")
		last, lastErr = data, err
		annotated.Close()
		if lastErr == nil {
			break
		}
	}
	if lastErr != nil {
		t.Fatalf("expected detector to converge and return a result, last error: %v", lastErr)
	}
	if last.X < 0 || last.X > 1 || last.Y < 0 || last.Y > 1 {
		t.Errorf("expected normalized coordinates in [0,1], got (%f, %f)", last.X, last.Y)
	}
}

func TestDetector_AnnotatesSuccessfulFrame(t *testing.T) {
	mat := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC1)
	defer mat.Close()
	mat.SetTo(gocv.NewScalar(200, 0, 0, 0))
	darkRegion := mat.Region(image.Rect(70, 50, 90, 70))
	darkRegion.SetTo(gocv.NewScalar(10, 0, 0, 0))
	darkRegion.Close()

	d := New("left_eye", Params{BlinkStatFrames: 3})
	defer d.Close()

	annotated := gocv.NewMat()
	var err error
	for i := 0; i < 100; i++ {
		annotated.Close()
		_, annotated, err = d.Run(mat, "left_eye")
		if err == nil {
			break
		}
	}
	defer annotated.Close()
	if err != nil {
		t.Fatalf("expected detector to converge, last error: %v", err)
	}
	if annotated.Empty() {
		t.Error("expected a non-empty annotated frame on success")
	}
	if annotated.Channels() != 3 {
		t.Errorf("expected a 3-channel annotated frame for the overlay dots, got %d channels", annotated.Channels())
	}
}
