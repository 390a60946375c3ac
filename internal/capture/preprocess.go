package capture

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// GeometryParams describes the per-tracker geometric corrections applied
// to every captured frame before it reaches detection.
type GeometryParams struct {
	FlipX, FlipY bool
	RotationDeg  float64
	ROIX, ROIY   int
	ROIW, ROIH   int
}

// applyGeometry mutates mat in place: flips, then rotates about center
// (padding the now-exposed corners with white, matching how the source
// frame's border is expected to read), then crops to the configured ROI.
// The ROI crop is skipped entirely if any ROI dimension is zero, so a
// tracker with no ROI configured sees the full frame.
func applyGeometry(mat *gocv.Mat, p GeometryParams) {
	if p.FlipX && p.FlipY {
		gocv.Flip(*mat, mat, -1)
	} else if p.FlipX {
		gocv.Flip(*mat, mat, 1)
	} else if p.FlipY {
		gocv.Flip(*mat, mat, 0)
	}

	if p.RotationDeg != 0 {
		center := image.Pt(mat.Cols()/2, mat.Rows()/2)
		rotMat := gocv.GetRotationMatrix2D(center, p.RotationDeg, 1.0)
		defer rotMat.Close()
		rotated := gocv.NewMat()
		gocv.WarpAffineWithParams(*mat, &rotated, rotMat, image.Pt(mat.Cols(), mat.Rows()),
			gocv.InterpolationLinear, gocv.BorderConstant, color.RGBA{R: 255, G: 255, B: 255, A: 255})
		mat.Close()
		*mat = rotated
	}

	if p.ROIW > 0 && p.ROIH > 0 {
		bounds := image.Rect(p.ROIX, p.ROIY, p.ROIX+p.ROIW, p.ROIY+p.ROIH)
		bounds = bounds.Intersect(image.Rect(0, 0, mat.Cols(), mat.Rows()))
		if bounds.Dx() > 0 && bounds.Dy() > 0 {
			cropped := mat.Region(bounds).Clone()
			mat.Close()
			*mat = cropped
		}
	}
}
