package hsf

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// blinkDetector accumulates a sample of per-frame response/intensity
// values during the calibration pass and derives an upper threshold from
// their interquartile range: responses beyond quartile3 + 1.5*IQR are
// classified as a blink.
type blinkDetector struct {
	responses []float64
	threshold float64
	ready     bool
}

func newBlinkDetector() *blinkDetector {
	return &blinkDetector{}
}

// AddResponse records one calibration sample.
func (b *blinkDetector) AddResponse(v float64) {
	b.responses = append(b.responses, v)
}

// Len returns the number of calibration samples recorded so far.
func (b *blinkDetector) Len() int { return len(b.responses) }

// CalcThresh derives the detection threshold from the recorded samples.
// It sorts a copy of the samples ascending first, since gonum's Quantile
// function expects sorted input.
func (b *blinkDetector) CalcThresh() {
	if len(b.responses) == 0 {
		b.ready = true
		return
	}
	sorted := append([]float64(nil), b.responses...)
	sort.Float64s(sorted)

	q1 := stat.Quantile(0.25, stat.Empirical, sorted, nil)
	q3 := stat.Quantile(0.75, stat.Empirical, sorted, nil)
	iqr := q3 - q1
	b.threshold = q3 + 1.5*iqr
	b.ready = true
}

// Detect reports whether the given response indicates a blink (eye
// closed): true when the response exceeds the calibrated threshold.
func (b *blinkDetector) Detect(response float64) bool {
	if !b.ready {
		return false
	}
	return response > b.threshold
}
