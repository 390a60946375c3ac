// Package frame defines the shared image handle that flows through the
// capture -> detector -> transmitter pipeline.
package frame

import (
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Frame is a single 8-bit grayscale (or, before reduction, color) image plus
// the bookkeeping the pipeline needs to carry alongside it. It wraps a
// gocv.Mat handle rather than copying pixel data, so passing a Frame through
// a channel costs a pointer copy, not an image copy.
type Frame struct {
	Mat   gocv.Mat
	FPS   float64
	Seq   uint64
	Stamp time.Time
}

// New wraps an existing Mat. Ownership of mat transfers to the Frame; call
// Close to release it.
func New(mat gocv.Mat, seq uint64) *Frame {
	return &Frame{Mat: mat, Seq: seq, Stamp: time.Now()}
}

// Clone returns a deep copy of the frame, safe to hand to a second consumer
// (e.g. the visualization queue) while the original continues downstream.
func (f *Frame) Clone() *Frame {
	return &Frame{
		Mat:   f.Mat.Clone(),
		FPS:   f.FPS,
		Seq:   f.Seq,
		Stamp: f.Stamp,
	}
}

// Close releases the underlying Mat.
func (f *Frame) Close() {
	if f == nil {
		return
	}
	_ = f.Mat.Close()
}

// Empty reports whether the frame carries no pixel data.
func (f *Frame) Empty() bool {
	return f == nil || f.Mat.Empty()
}

// ShapeKey identifies the (width, height) a per-shape scratch buffer was
// built for, so algorithms can detect a frame-shape change and reinitialize
// their scratch state instead of assuming a fixed resolution.
type ShapeKey struct {
	Width, Height int
}

func KeyOf(f *Frame) ShapeKey {
	if f.Empty() {
		return ShapeKey{}
	}
	return ShapeKey{Width: f.Mat.Cols(), Height: f.Mat.Rows()}
}

// Pool is a small LRU-ish pool of reusable scratch Mats keyed by shape, so
// steady-state frame processing at a fixed resolution performs zero net new
// Mat allocations per frame, with bounded manual eviction when the shape
// changes repeatedly (e.g. during camera reconnect).
type Pool struct {
	mu       sync.Mutex
	cap      int
	order    []ShapeKey
	entries  map[ShapeKey]gocv.Mat
}

func NewPool(capacity int) *Pool {
	if capacity <= 0 {
		capacity = 8
	}
	return &Pool{cap: capacity, entries: make(map[ShapeKey]gocv.Mat)}
}

// Get returns the scratch Mat for key, creating it via alloc if absent.
func (p *Pool) Get(key ShapeKey, alloc func() gocv.Mat) gocv.Mat {
	p.mu.Lock()
	defer p.mu.Unlock()

	if m, ok := p.entries[key]; ok {
		p.touch(key)
		return m
	}

	m := alloc()
	p.entries[key] = m
	p.order = append(p.order, key)
	if len(p.order) > p.cap {
		evict := p.order[0]
		p.order = p.order[1:]
		if old, ok := p.entries[evict]; ok {
			old.Close()
			delete(p.entries, evict)
		}
	}
	return m
}

func (p *Pool) touch(key ShapeKey) {
	for i, k := range p.order {
		if k == key {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	p.order = append(p.order, key)
}

// Close releases every scratch Mat held by the pool.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range p.entries {
		m.Close()
	}
	p.entries = make(map[ShapeKey]gocv.Mat)
	p.order = nil
}
