package hsf

import (
	"image"
	"math"

	"gocv.io/x/gocv"
)

const (
	centerCorrectionKernelSize = 7
	centerCorrectionHistThresh = 4.0 // percent of total pixel mass
)

// centerCorrection refines the coarse grid-resolution center the Haar
// surround sweep produces into a sub-region-accurate one: it picks a
// conservative intensity threshold from the crop's own histogram, isolates
// the darkest connected blob near the coarse center, and only accepts the
// correction if the corrected location is itself still plausibly dark
// (below the calibrated quartile1 threshold).
type centerCorrection struct {
	morphKernel gocv.Mat
	quartile1   float64
}

func newCenterCorrection() *centerCorrection {
	return &centerCorrection{
		morphKernel: gocv.GetStructuringElement(gocv.MorphRect, image.Pt(centerCorrectionKernelSize, centerCorrectionKernelSize)),
	}
}

func (c *centerCorrection) SetQuartile1(q float64) {
	c.quartile1 = q
}

func (c *centerCorrection) Close() {
	c.morphKernel.Close()
}

// Correct refines (origX, origY) within gray (the 8-bit single-channel
// frame the coarse sweep ran on). The histogram threshold and the blob
// search both cover all of gray; no window around the coarse center is
// cropped first. It returns the original point unchanged whenever the
// refinement cannot be trusted.
func (c *centerCorrection) Correct(gray gocv.Mat, origX, origY int) (int, int) {
	if gray.Empty() {
		return origX, origY
	}

	thresh := c.histogramThreshold(gray)

	binary := gocv.NewMat()
	defer binary.Close()
	gocv.Threshold(gray, &binary, float32(thresh), 255, gocv.ThresholdBinaryInv)

	closed := gocv.NewMat()
	defer closed.Close()
	gocv.MorphologyEx(binary, &closed, gocv.MorphClose, c.morphKernel)

	opened := gocv.NewMat()
	defer opened.Close()
	gocv.MorphologyEx(closed, &opened, gocv.MorphOpen, c.morphKernel)

	contours := gocv.FindContours(opened, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()
	if contours.Size() == 0 {
		return origX, origY
	}

	best := -1
	bestDist := math.MaxFloat64
	base := image.Pt(origX, origY)
	for i := 0; i < contours.Size(); i++ {
		rect := gocv.BoundingRect(contours.At(i))
		center := image.Pt(rect.Min.X+rect.Dx()/2, rect.Min.Y+rect.Dy()/2)
		d := distance(center, base)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	if best < 0 {
		return origX, origY
	}

	rect := gocv.BoundingRect(contours.At(best))
	candX := rect.Min.X + rect.Dx()/2
	candY := rect.Min.Y + rect.Dy()/2

	if !c.patchIsDarkEnough(gray, candX, candY) {
		return origX, origY
	}
	return candX, candY
}

// histogramThreshold returns the intensity value at which the cumulative
// histogram mass first reaches centerCorrectionHistThresh percent,
// i.e. a threshold conservative enough to isolate only the darkest pixels
// (the pupil) rather than the iris or sclera.
func (c *centerCorrection) histogramThreshold(gray gocv.Mat) float64 {
	hist := gocv.NewMat()
	defer hist.Close()
	mask := gocv.NewMat()
	defer mask.Close()
	gocv.CalcHist([]gocv.Mat{gray}, []int{0}, mask, &hist, []int{256}, []float64{0, 256}, false)

	total := float64(gray.Rows() * gray.Cols())
	if total == 0 {
		return 0
	}

	cumulative := 0.0
	for bin := 0; bin < 256; bin++ {
		count := float64(hist.GetFloatAt(bin, 0))
		cumulative += (count / total) * 100.0
		if cumulative >= centerCorrectionHistThresh {
			return float64(bin)
		}
	}
	return 255
}

func (c *centerCorrection) patchIsDarkEnough(gray gocv.Mat, x, y int) bool {
	const half = 5
	minX, maxX := clamp(x-half, gray.Cols()), clamp(x+half, gray.Cols())
	minY, maxY := clamp(y-half, gray.Rows()), clamp(y+half, gray.Rows())
	if minX >= maxX || minY >= maxY {
		return false
	}

	roi := gray.Region(image.Rect(minX, minY, maxX, maxY))
	defer roi.Close()

	minVal, _, _, _ := gocv.MinMaxLoc(roi)
	return float64(minVal) < c.quartile1
}

func clamp(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

func distance(a, b image.Point) float64 {
	dx := float64(a.X - b.X)
	dy := float64(a.Y - b.Y)
	return math.Sqrt(dx*dx + dy*dy)
}
