// Package ransac is a placeholder registration for the RANSAC algorithm
// slot: it is not implemented and always reports tracking failure, so an
// algorithm_order entry naming it behaves as a documented no-op rather
// than an unknown-algorithm validation error.
package ransac

import (
	"gocv.io/x/gocv"

	"github.com/etvr-go/trackingd/internal/detect"
)

// Detector implements detect.Algorithm as an always-failing stub.
type Detector struct{}

func New() *Detector { return &Detector{} }

func (d *Detector) Name() string { return "RANSAC" }
func (d *Detector) Close() error { return nil }

func (d *Detector) Run(frame gocv.Mat, position string) (detect.EyeData, gocv.Mat, error) {
	return detect.EyeData{}, gocv.NewMat(), detect.ErrTrackingFailed
}
