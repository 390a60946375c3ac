// Package hsf implements the Haar Surround Feature pupil detector: an
// integral-image convolution that scores every candidate center by how
// much darker its interior is than the ring immediately surrounding it,
// refined by a four-state calibration sequence (find the best search
// radius, calibrate a blink threshold, then track).
package hsf

import (
	"image"
	"image/color"
	"math"
	"sort"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/stat"

	"github.com/etvr-go/trackingd/internal/detect"
)

// mode is the detector's place in its calibration sequence.
type mode int

const (
	modeFirstFrame mode = iota
	modeRadiusAdjust
	modeBlinkAdjust
	modeNormal
)

// Params configures the detector. Zero-value StepX/StepY are treated as 5.
type Params struct {
	Radius             int
	StepX, StepY       int
	SkipAutoRadius     bool
	SkipBlinkDetection bool
	BlinkStatFrames    int
}

// Detector implements detect.Algorithm using the Haar Surround Feature
// search.
type Detector struct {
	position string
	params   Params

	mode       mode
	radius     int
	feature    *haarSurroundFeature
	autoRadius *autoRadiusCalc
	blink      *blinkDetector
	centerQ1   *blinkDetector
	correct    *centerCorrection

	blinkSamples int
}

// New creates an HSF detector for one tracker position.
func New(position string, params Params) *Detector {
	if params.StepX == 0 {
		params.StepX = 5
	}
	if params.StepY == 0 {
		params.StepY = 5
	}
	if params.Radius == 0 {
		params.Radius = 20
	}
	if params.BlinkStatFrames == 0 {
		params.BlinkStatFrames = 60
	}

	d := &Detector{
		position:   position,
		params:     params,
		mode:       modeFirstFrame,
		radius:     params.Radius,
		autoRadius: newAutoRadiusCalc(),
		blink:      newBlinkDetector(),
		centerQ1:   newBlinkDetector(),
		correct:    newCenterCorrection(),
	}
	d.feature = newHaarSurroundFeature(d.radius)
	if params.SkipAutoRadius {
		d.mode = modeBlinkAdjust
		if params.SkipBlinkDetection {
			d.mode = modeNormal
		}
	}
	return d
}

func (d *Detector) Name() string { return "HSF" }

func (d *Detector) Close() error {
	d.correct.Close()
	return nil
}

// Run executes one detection pass. frame must be a single-channel (gray)
// or 3-channel image; color input is converted to gray internally. On a
// successful modeNormal pass it returns an annotated copy of frame with the
// uncorrected center marked in red and the corrected center in blue; every
// other return path carries a valid, empty Mat.
func (d *Detector) Run(frame gocv.Mat, position string) (detect.EyeData, gocv.Mat, error) {
	gray, ownsGray := toGray(frame)
	if ownsGray {
		defer gray.Close()
	}
	if gray.Empty() {
		return detect.EyeData{}, gocv.NewMat(), detect.ErrTrackingFailed
	}

	switch d.mode {
	case modeRadiusAdjust:
		d.radius = d.autoRadius.GetRadius()
		d.feature = newHaarSurroundFeature(d.radius)
	}

	minLoc, minResponse, err := d.sweep(gray)
	if err != nil {
		return detect.EyeData{}, gocv.NewMat(), detect.ErrTrackingFailed
	}

	switch d.mode {
	case modeFirstFrame:
		d.autoRadius.AddResponse(d.radius, minResponse)
		d.mode = modeRadiusAdjust
		return detect.EyeData{}, gocv.NewMat(), detect.ErrTrackingFailed

	case modeRadiusAdjust:
		d.autoRadius.AddResponse(d.radius, minResponse)
		if d.autoRadius.Done() {
			if d.params.SkipBlinkDetection {
				d.mode = modeNormal
			} else {
				d.mode = modeBlinkAdjust
			}
		}
		return detect.EyeData{}, gocv.NewMat(), detect.ErrTrackingFailed
	}

	cropRadius := d.radius
	tight := cropRegion(gray, minLoc, cropRadius)
	defer tight.Close()

	if d.mode == modeBlinkAdjust {
		expanded := cropRegion(gray, minLoc, maxInt(20, d.radius))
		defer expanded.Close()

		d.blink.AddResponse(meanIntensity(tight))
		d.centerQ1.AddResponse(meanIntensity(expanded))
		d.blinkSamples++

		if d.blinkSamples >= d.params.BlinkStatFrames {
			d.blink.CalcThresh()
			d.centerQ1.CalcThresh()
			expandedMeans := append([]float64(nil), d.centerQ1.responses...)
			sort.Float64s(expandedMeans)
			d.correct.SetQuartile1(stat.Quantile(0.25, stat.Empirical, expandedMeans, nil))
			d.mode = modeNormal
		}
		return detect.EyeData{}, gocv.NewMat(), detect.ErrTrackingFailed
	}

	// modeNormal
	blinkValue := 1.0
	rawX, rawY := minLoc.X, minLoc.Y
	centerX, centerY := rawX, rawY
	if d.blink.Detect(meanIntensity(tight)) {
		blinkValue = 0.0
	} else {
		centerX, centerY = d.correct.Correct(gray, minLoc.X, minLoc.Y)
	}

	annotated := gocv.NewMat()
	gocv.CvtColor(gray, &annotated, gocv.ColorGrayToBGR)
	gocv.Circle(&annotated, image.Pt(rawX, rawY), 2, color.RGBA{R: 255, A: 255}, 2)
	gocv.Circle(&annotated, image.Pt(centerX, centerY), 2, color.RGBA{B: 255, A: 255}, 2)

	return detect.EyeData{
		X:        float64(centerX) / float64(gray.Cols()),
		Y:        float64(centerY) / float64(gray.Rows()),
		Blink:    blinkValue,
		Position: position,
	}, annotated, nil
}

// sweep runs the integral-image convolution over the full frame at the
// configured step and returns the location and value of the minimum
// (darkest-interior) response.
func (d *Detector) sweep(gray gocv.Mat) (image.Point, float64, error) {
	pad := d.feature.rOut
	bordered := gocv.NewMat()
	defer bordered.Close()
	gocv.CopyMakeBorder(gray, &bordered, pad, pad, pad, pad, gocv.BorderConstant, color.RGBA{})

	integral := gocv.NewMat()
	defer integral.Close()
	sq := gocv.NewMat()
	defer sq.Close()
	tilted := gocv.NewMat()
	defer tilted.Close()
	gocv.Integral(bordered, &integral, &sq, &tilted)

	width, height := gray.Cols(), gray.Rows()
	stepX, stepY := d.params.StepX, d.params.StepY
	if stepX <= 0 {
		stepX = 1
	}
	if stepY <= 0 {
		stepY = 1
	}

	best := math.MaxFloat64
	var bestLoc image.Point
	found := false

	for y := 0; y < height; y += stepY {
		for x := 0; x < width; x += stepX {
			response := d.response(integral, x+pad, y+pad)
			if response < best {
				best = response
				bestLoc = image.Pt(x, y)
				found = true
			}
		}
	}
	if !found {
		return image.Point{}, 0, detect.ErrTrackingFailed
	}
	return bestLoc, best, nil
}

// response computes val_in*innerSum + val_out*outerSum for the square
// annulus centered at (cx, cy) in the padded integral image ii.
func (d *Detector) response(ii gocv.Mat, cx, cy int) float64 {
	inner := rectSum(ii, cx-d.feature.rIn, cy-d.feature.rIn, cx+d.feature.rIn, cy+d.feature.rIn)
	outerFull := rectSum(ii, cx-d.feature.rOut, cy-d.feature.rOut, cx+d.feature.rOut, cy+d.feature.rOut)
	outer := outerFull - inner
	return d.feature.valIn*inner + d.feature.valOut*outer
}

// rectSum reads the sum over [x1,x2) x [y1,y2) from an OpenCV-style
// integral image (one row/col larger than the source, ii[0,*]=ii[*,0]=0).
func rectSum(ii gocv.Mat, x1, y1, x2, y2 int) float64 {
	a := ii.GetDoubleAt(y1, x1)
	b := ii.GetDoubleAt(y1, x2)
	c := ii.GetDoubleAt(y2, x1)
	e := ii.GetDoubleAt(y2, x2)
	return e - b - c + a
}

func cropRegion(gray gocv.Mat, center image.Point, radius int) gocv.Mat {
	x1 := clamp(center.X-radius, gray.Cols())
	y1 := clamp(center.Y-radius, gray.Rows())
	x2 := clamp(center.X+radius, gray.Cols())
	y2 := clamp(center.Y+radius, gray.Rows())
	if x2 <= x1 || y2 <= y1 {
		return gray.Clone()
	}
	return gray.Region(image.Rect(x1, y1, x2, y2)).Clone()
}

func meanIntensity(m gocv.Mat) float64 {
	if m.Empty() {
		return 0
	}
	mean := m.Mean()
	return mean.Val1
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func toGray(frame gocv.Mat) (gocv.Mat, bool) {
	if frame.Channels() == 1 {
		return frame, false
	}
	gray := gocv.NewMat()
	gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)
	return gray, true
}
