// Package capture reads frames from a camera or serial-attached JPEG
// source, applies geometric preprocessing (flip, rotation, ROI crop), and
// feeds the result into the capture-to-detector queue. It owns a small
// connection state machine so a worker can reconnect after a dropped
// camera or serial link without tearing down the whole tracker.
package capture

import (
	"context"

	"gocv.io/x/gocv"
)

// State is the capture worker's connection lifecycle.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Source abstracts a single capture source: a local/network camera via
// OpenCV or a serial-attached JPEG stream.
type Source interface {
	// Open connects to the source. It may block up to an
	// implementation-defined timeout.
	Open(ctx context.Context) error
	// Read returns the next frame. The caller owns the returned Mat.
	Read(ctx context.Context) (gocv.Mat, error)
	// Close releases the source's resources. Safe to call multiple times.
	Close() error
}
