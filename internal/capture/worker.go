package capture

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/etvr-go/trackingd/internal/frame"
	"github.com/etvr-go/trackingd/internal/framequeue"
)

// reconnectBackoff is the pause between failed (re)connection attempts.
const reconnectBackoff = 500 * time.Millisecond

// Worker owns one capture source and pushes preprocessed frames onto an
// output queue until stopped. It reconnects automatically whenever the
// source errors out, cycling disconnected -> connecting -> connected.
type Worker struct {
	name     string
	source   Source
	geometry GeometryParams
	out      *framequeue.Queue
	log      zerolog.Logger

	state atomic.Int32
	seq   atomic.Uint64
	fps   *fpsEstimator

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewWorker builds a capture worker. isSerial controls whether a rolling
// FPS estimate is derived from inter-frame arrival time (serial sources
// don't report a configured frame rate).
func NewWorker(name string, source Source, geometry GeometryParams, out *framequeue.Queue, isSerial bool, log zerolog.Logger) *Worker {
	w := &Worker{
		name:     name,
		source:   source,
		geometry: geometry,
		out:      out,
		log:      log.With().Str("component", "capture").Str("tracker", name).Logger(),
	}
	if isSerial {
		w.fps = newFPSEstimator(10)
	}
	return w
}

// State returns the worker's current connection state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
}

// Start runs the capture loop in a background goroutine. It returns
// immediately; call Stop to terminate it.
func (w *Worker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Stop terminates the capture loop and waits for it to exit, then closes
// the underlying source.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.source.Close()
	w.setState(StateDisconnected)
}

func (w *Worker) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		w.setState(StateConnecting)
		if err := w.source.Open(ctx); err != nil {
			w.log.Warn().Err(err).Msg("capture source open failed, retrying")
			w.setState(StateDisconnected)
			if !sleepOrDone(ctx, reconnectBackoff) {
				return
			}
			continue
		}
		w.setState(StateConnected)
		w.log.Info().Msg("capture source connected")

		w.readLoop(ctx)

		w.source.Close()
		w.setState(StateDisconnected)
		w.log.Warn().Msg("capture source disconnected, will retry")
		if !sleepOrDone(ctx, reconnectBackoff) {
			return
		}
	}
}

func (w *Worker) readLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		mat, err := w.source.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				mat.Close()
				return
			}
			w.log.Warn().Err(err).Msg("capture read failed")
			mat.Close()
			return
		}

		applyGeometry(&mat, w.geometry)

		fps := 0.0
		if w.fps != nil {
			fps = w.fps.Tick(time.Now())
		}

		f := frame.New(mat, w.seq.Add(1))
		f.FPS = fps
		w.out.Push(f)
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
