// Package oneeuro implements the One-Euro low-pass filter for smoothing a
// noisy, irregularly-sampled signal with low lag at high speed and strong
// smoothing at low speed.
package oneeuro

import "math"

// Filter smooths a single scalar channel. Zero value is not ready to use;
// call New.
type Filter struct {
	minCutoff float64
	beta      float64
	dCutoff   float64

	initialized bool
	xPrev       float64
	dxPrev      float64
	tPrev       float64
}

// New creates a Filter. minCutoff sets the baseline cutoff frequency (lower
// values mean more smoothing at low speed); beta scales how much the
// cutoff increases with signal speed (higher values reduce lag at high
// speed at the cost of more jitter at low speed).
func New(minCutoff, beta float64) *Filter {
	return &Filter{minCutoff: minCutoff, beta: beta, dCutoff: 1.0}
}

func alpha(cutoff, dt float64) float64 {
	tau := 1.0 / (2 * math.Pi * cutoff)
	return 1.0 / (1.0 + tau/dt)
}

func lowPass(a, x, xPrev float64) float64 {
	return a*x + (1-a)*xPrev
}

// Filter returns the smoothed value of x, sampled at time t (seconds).
func (f *Filter) Filter(t, x float64) float64 {
	if !f.initialized {
		f.initialized = true
		f.xPrev = x
		f.dxPrev = 0
		f.tPrev = t
		return x
	}

	dt := t - f.tPrev
	if dt <= 0 {
		dt = 1.0 / 60.0
	}
	f.tPrev = t

	dx := (x - f.xPrev) / dt
	aD := alpha(f.dCutoff, dt)
	dxHat := lowPass(aD, dx, f.dxPrev)
	f.dxPrev = dxHat

	cutoff := f.minCutoff + f.beta*math.Abs(dxHat)
	a := alpha(cutoff, dt)
	xHat := lowPass(a, x, f.xPrev)
	f.xPrev = xHat

	return xHat
}

// Vector2D smooths an independent pair of channels (e.g. a landmark's x,y
// coordinates) with shared min_cutoff/beta parameters.
type Vector2D struct {
	x, y *Filter
}

func NewVector2D(minCutoff, beta float64) *Vector2D {
	return &Vector2D{x: New(minCutoff, beta), y: New(minCutoff, beta)}
}

func (v *Vector2D) Filter(t, x, y float64) (float64, float64) {
	return v.x.Filter(t, x), v.y.Filter(t, y)
}

// Bank smooths N independent 2D points sharing one set of parameters, used
// for the per-landmark smoothing of a detector's output array.
type Bank struct {
	minCutoff, beta float64
	points          []*Vector2D
}

func NewBank(n int, minCutoff, beta float64) *Bank {
	points := make([]*Vector2D, n)
	for i := range points {
		points[i] = NewVector2D(minCutoff, beta)
	}
	return &Bank{minCutoff: minCutoff, beta: beta, points: points}
}

// Filter smooths xs/ys in place at time t. len(xs) must equal len(ys) and
// the bank's point count.
func (b *Bank) Filter(t float64, xs, ys []float64) {
	for i := range b.points {
		xs[i], ys[i] = b.points[i].Filter(t, xs[i], ys[i])
	}
}
