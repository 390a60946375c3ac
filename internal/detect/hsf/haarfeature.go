package hsf

// haarSurroundFeature holds the per-pixel weights for a dark-inner,
// bright-outer square annulus of the given inner radius: the response at
// a candidate center is val_in*(sum over the inner square) +
// val_out*(sum over the surrounding ring), and a true pupil center
// produces the most negative response since the pupil is dark and the
// sclera/iris boundary around it is comparatively bright.
type haarSurroundFeature struct {
	rIn, rOut      int
	valIn, valOut  float64
}

// newHaarSurroundFeature builds the feature weights for rInner, with the
// outer radius defaulting to 3x the inner radius.
func newHaarSurroundFeature(rInner int) *haarSurroundFeature {
	rOuter := rInner * 3
	countInner := rInner * rInner
	countOuter := rOuter*rOuter - countInner

	valIn := 1.0 / float64(countInner)
	valOut := -valIn * float64(countInner) / float64(countOuter)

	return &haarSurroundFeature{rIn: rInner, rOut: rOuter, valIn: valIn, valOut: valOut}
}
