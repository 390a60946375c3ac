// Package detect defines the pupil-detection algorithm interface shared by
// every concrete detector (HSF, AHSF, Blob, LEAP, HSRAC, RANSAC) and the
// ordered-chain dispatcher that runs them with fallback.
package detect

import (
	"errors"

	"gocv.io/x/gocv"
)

// ErrTrackingFailed is returned by an Algorithm's Run when it could not
// locate the pupil in the given frame. The chain dispatcher treats this as
// "try the next algorithm", not a fatal error.
var ErrTrackingFailed = errors.New("tracking failed")

// EyeData is the normalized result of a single detection pass: X and Y are
// in [0, 1] relative to frame width/height, Blink is 1 for an open eye and
// 0 for closed (continuous values in between are permitted and left
// uninterpreted by downstream consumers).
type EyeData struct {
	X        float64
	Y        float64
	Blink    float64
	Position string
}

// Algorithm is a single pupil-detection strategy. Implementations must be
// safe to call repeatedly from one goroutine only (no internal
// synchronization) and must tolerate the input frame's dimensions changing
// between calls.
type Algorithm interface {
	// Name identifies the algorithm for logging and algorithm_order matching.
	Name() string
	// Run attempts to locate the pupil in frame, returning ErrTrackingFailed
	// if it cannot. On success it also returns an annotated copy of frame
	// (e.g. with the detected center marked) for the preview feed; the
	// caller owns the returned Mat and must Close it. On failure the
	// returned Mat is a valid, empty Mat (safe to Close, carries no pixels).
	Run(frame gocv.Mat, position string) (EyeData, gocv.Mat, error)
	// Close releases any resources (ONNX sessions, scratch buffers) held by
	// the algorithm.
	Close() error
}

// Chain runs a fixed, ordered list of algorithms against a frame, falling
// through to the next one whenever the current one reports
// ErrTrackingFailed. It is not safe for concurrent use; a detector worker
// owns exactly one Chain.
type Chain struct {
	algorithms []Algorithm
}

// NewChain builds a chain from algorithms in the given order. The slice is
// used as given (not sorted); the caller controls priority by ordering it.
func NewChain(algorithms []Algorithm) *Chain {
	return &Chain{algorithms: algorithms}
}

// Run tries each algorithm in order and returns the first successful
// result along with its annotated frame. If every algorithm fails, it
// returns ErrTrackingFailed and a plain (un-annotated) clone of frame, so a
// caller feeding a visualization queue always has something to push.
func (c *Chain) Run(frame gocv.Mat, position string) (EyeData, string, gocv.Mat, error) {
	for _, alg := range c.algorithms {
		data, annotated, err := alg.Run(frame, position)
		if err == nil {
			return data, alg.Name(), annotated, nil
		}
		annotated.Close()
		if !errors.Is(err, ErrTrackingFailed) {
			return EyeData{}, alg.Name(), frame.Clone(), err
		}
	}
	return EyeData{}, "", frame.Clone(), ErrTrackingFailed
}

// Close releases every algorithm in the chain, returning the first error
// encountered (if any) after attempting to close them all.
func (c *Chain) Close() error {
	var first error
	for _, alg := range c.algorithms {
		if err := alg.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
