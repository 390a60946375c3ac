// Package blob implements the simplest pupil detector: threshold the frame
// to isolate dark regions, then pick the largest contour within a
// plausible pupil size range and report the center of its bounding box
// (not the area-weighted centroid of the contour).
package blob

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/etvr-go/trackingd/internal/detect"
)

// Params configures the detector.
type Params struct {
	Threshold int
	MinSize   int
	MaxSize   int
}

// Detector implements detect.Algorithm.
type Detector struct {
	params Params
}

func New(params Params) *Detector {
	if params.MinSize <= 0 {
		params.MinSize = 2
	}
	if params.MaxSize <= 0 {
		params.MaxSize = 25
	}
	return &Detector{params: params}
}

func (d *Detector) Name() string { return "BLOB" }
func (d *Detector) Close() error { return nil }

func (d *Detector) Run(frame gocv.Mat, position string) (detect.EyeData, gocv.Mat, error) {
	gray := gocv.NewMat()
	defer gray.Close()
	if frame.Channels() > 1 {
		gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}
	if gray.Empty() {
		return detect.EyeData{}, gocv.NewMat(), detect.ErrTrackingFailed
	}

	binary := gocv.NewMat()
	defer binary.Close()
	gocv.Threshold(gray, &binary, float32(d.params.Threshold), 255, gocv.ThresholdBinaryInv)

	contours := gocv.FindContours(binary, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()
	if contours.Size() == 0 {
		return detect.EyeData{}, gocv.NewMat(), detect.ErrTrackingFailed
	}

	bestArea := -1.0
	var bestRect image.Rectangle
	found := false
	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		rect := gocv.BoundingRect(contour)
		size := maxDim(rect)
		if size < d.params.MinSize || size > d.params.MaxSize {
			continue
		}
		area := gocv.ContourArea(contour)
		if area > bestArea {
			bestArea = area
			bestRect = rect
			found = true
		}
	}
	if !found {
		return detect.EyeData{}, gocv.NewMat(), detect.ErrTrackingFailed
	}

	cx := bestRect.Min.X + bestRect.Dx()/2
	cy := bestRect.Min.Y + bestRect.Dy()/2

	annotated := gocv.NewMat()
	gocv.CvtColor(gray, &annotated, gocv.ColorGrayToBGR)
	gocv.Circle(&annotated, image.Pt(cx, cy), 2, color.RGBA{B: 255, A: 255}, 2)

	return detect.EyeData{
		X:        float64(cx) / float64(gray.Cols()),
		Y:        float64(cy) / float64(gray.Rows()),
		Blink:    1,
		Position: position,
	}, annotated, nil
}

func maxDim(r image.Rectangle) int {
	if r.Dx() > r.Dy() {
		return r.Dx()
	}
	return r.Dy()
}
