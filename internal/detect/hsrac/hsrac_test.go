package hsrac

import (
	"testing"

	"gocv.io/x/gocv"

	"github.com/etvr-go/trackingd/internal/detect"
)

func TestDetector_AlwaysFails(t *testing.T) {
	d := New()
	input := gocv.NewMat()
	defer input.Close()
	_, annotated, err := d.Run(input, "left_eye")
	defer annotated.Close()
	if err != detect.ErrTrackingFailed {
		t.Errorf("expected ErrTrackingFailed, got %v", err)
	}
}
