// Package ahsf implements an adaptive variant of the Haar Surround
// Feature search: a coarse center estimate from the surround-feature
// sweep is refined by fitting an ellipse to the Canny edges found in the
// region around it, after subtracting out bright specular reflections.
package ahsf

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/etvr-go/trackingd/internal/detect"
	"github.com/etvr-go/trackingd/internal/detect/hsf"
)

// Params configures the detector: the coarse search shares HSF's
// tunables, plus how far past the coarse radius to expand the edge-fit
// search box.
type Params struct {
	HSF            hsf.Params
	ExpansionRatio float64
}

// Detector implements detect.Algorithm.
type Detector struct {
	coarse *hsf.Detector
	params Params
}

func New(position string, params Params) *Detector {
	if params.ExpansionRatio <= 0 {
		params.ExpansionRatio = 1.2
	}
	return &Detector{
		coarse: hsf.New(position, params.HSF),
		params: params,
	}
}

func (d *Detector) Name() string { return "AHSF" }

func (d *Detector) Close() error {
	return d.coarse.Close()
}

func (d *Detector) Run(frame gocv.Mat, position string) (detect.EyeData, gocv.Mat, error) {
	coarseResult, coarseAnnotated, err := d.coarse.Run(frame, position)
	coarseAnnotated.Close()
	if err != nil {
		return detect.EyeData{}, gocv.NewMat(), err
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if frame.Channels() > 1 {
		gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	cx := int(coarseResult.X * float64(gray.Cols()))
	cy := int(coarseResult.Y * float64(gray.Rows()))
	boxRadius := int(float64(d.params.HSF.Radius) * d.params.ExpansionRatio * 3)
	if boxRadius <= 0 {
		boxRadius = 60
	}

	roiRect := clampRect(image.Rect(cx-boxRadius, cy-boxRadius, cx+boxRadius, cy+boxRadius), gray.Cols(), gray.Rows())
	if roiRect.Dx() <= 0 || roiRect.Dy() <= 0 {
		return coarseResult, frame.Clone(), nil
	}
	roi := gray.Region(roiRect)
	defer roi.Close()

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(roi, &blurred, image.Pt(5, 5), 0, 0, gocv.BorderDefault)

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(blurred, &edges, 40, 80)

	bright := gocv.NewMat()
	defer bright.Close()
	gocv.Threshold(blurred, &bright, 220, 255, gocv.ThresholdBinary)
	gocv.Subtract(edges, bright, &edges)

	contours := gocv.FindContours(edges, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	best := -1
	bestLen := 0
	for i := 0; i < contours.Size(); i++ {
		c := contours.At(i)
		if c.Size() < 5 {
			continue // cv2.fitEllipse requires at least 5 points
		}
		if c.Size() > bestLen {
			bestLen = c.Size()
			best = i
		}
	}
	if best < 0 {
		return coarseResult, frame.Clone(), nil
	}

	ellipse := gocv.FitEllipse(contours.At(best))
	refinedX := float64(roiRect.Min.X+int(ellipse.Center.X)) / float64(gray.Cols())
	refinedY := float64(roiRect.Min.Y+int(ellipse.Center.Y)) / float64(gray.Rows())

	annotated := gocv.NewMat()
	gocv.CvtColor(gray, &annotated, gocv.ColorGrayToBGR)
	center := image.Pt(roiRect.Min.X+int(ellipse.Center.X), roiRect.Min.Y+int(ellipse.Center.Y))
	gocv.Circle(&annotated, center, 2, color.RGBA{B: 255, A: 255}, 2)

	return detect.EyeData{
		X:        refinedX,
		Y:        refinedY,
		Blink:    coarseResult.Blink,
		Position: position,
	}, annotated, nil
}

func clampRect(r image.Rectangle, w, h int) image.Rectangle {
	if r.Min.X < 0 {
		r.Min.X = 0
	}
	if r.Min.Y < 0 {
		r.Min.Y = 0
	}
	if r.Max.X > w {
		r.Max.X = w
	}
	if r.Max.Y > h {
		r.Max.Y = h
	}
	return r
}
