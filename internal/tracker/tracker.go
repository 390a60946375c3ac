// Package tracker composes one capture worker, one detector worker, and
// one transmitter worker into the unit of work for a single tracker
// configuration entry (one physical camera/eye), connected by four
// bounded queues: frames (capture -> detector), osc (detector ->
// transmitter), and the camera and annotated preview queues (detector ->
// preview consumers).
package tracker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/etvr-go/trackingd/internal/capture"
	"github.com/etvr-go/trackingd/internal/config"
	"github.com/etvr-go/trackingd/internal/detect"
	"github.com/etvr-go/trackingd/internal/frame"
	"github.com/etvr-go/trackingd/internal/framequeue"
	"github.com/etvr-go/trackingd/internal/oscpipe"
	"github.com/etvr-go/trackingd/internal/worker"
)

const (
	frameQueueCapacity = 60
	frameQueueFlushAt  = 50
	oscQueueCapacity   = 60
	vizQueueCapacity   = 15
)

// VizFrame pairs a preview image with which stream it came from.
type VizFrame struct {
	Frame      *frame.Frame
	Annotated  bool
	Detections detect.EyeData
}

// Tracker owns every live resource for one TrackerConfig entry.
type Tracker struct {
	uuid string
	log  zerolog.Logger

	mu  sync.RWMutex
	cfg config.TrackerConfig

	chain atomic.Pointer[detect.Chain]

	captureWorker *capture.Worker
	frameQueue    *framequeue.Queue
	oscQueue      *dropOldestQueue[detect.EyeData]
	camQueue      *silentDropQueue[*frame.Frame]
	vizQueue      *silentDropQueue[*frame.Frame]

	transmitter *oscpipe.Transmitter

	detectorLifecycle *worker.Lifecycle
	transmitLifecycle *worker.Lifecycle
}

// New builds a Tracker for cfg. The transmitter is owned by the caller
// (orchestrator) and shared across every tracker, since OSC endpoints are
// a single destination regardless of how many trackers feed it.
func New(cfg config.TrackerConfig, transmitter *oscpipe.Transmitter, log zerolog.Logger) (*Tracker, error) {
	log = log.With().Str("component", "tracker").Str("tracker", cfg.Name).Str("uuid", cfg.UUID).Logger()

	chain, err := buildChain(string(cfg.Position), cfg.Algorithm)
	if err != nil {
		return nil, fmt.Errorf("tracker %s: %w", cfg.Name, err)
	}

	source, isSerial, err := newCaptureSource(cfg.Camera)
	if err != nil {
		return nil, fmt.Errorf("tracker %s: %w", cfg.Name, err)
	}

	geometry := capture.GeometryParams{
		FlipX:       cfg.Camera.FlipX,
		FlipY:       cfg.Camera.FlipY,
		RotationDeg: cfg.Camera.Rotation,
		ROIX:        cfg.Camera.ROIX,
		ROIY:        cfg.Camera.ROIY,
		ROIW:        cfg.Camera.ROIW,
		ROIH:        cfg.Camera.ROIH,
	}

	frameQueue := framequeue.New(cfg.Name, frameQueueCapacity, frameQueueFlushAt, log)
	captureWorker := capture.NewWorker(cfg.Name, source, geometry, frameQueue, isSerial, log)

	t := &Tracker{
		uuid:          cfg.UUID,
		log:           log,
		cfg:           cfg,
		captureWorker: captureWorker,
		frameQueue:    frameQueue,
		oscQueue:      newDropOldestQueue[detect.EyeData](oscQueueCapacity),
		camQueue:      newSilentDropQueue[*frame.Frame](vizQueueCapacity, func(f *frame.Frame) { f.Close() }),
		vizQueue:      newSilentDropQueue[*frame.Frame](vizQueueCapacity, func(f *frame.Frame) { f.Close() }),
		transmitter:   transmitter,
	}
	t.chain.Store(chain)

	t.detectorLifecycle = worker.New(cfg.Name+".detector", t.detectLoop, log)
	t.transmitLifecycle = worker.New(cfg.Name+".transmitter", t.transmitLoop, log)
	return t, nil
}

func newCaptureSource(cam config.CameraConfig) (capture.Source, bool, error) {
	if config.IsSerialSource(cam.CaptureSource) {
		onOverflow := func(dropped int) {}
		return capture.NewSerialSource(cam.CaptureSource, onOverflow), true, nil
	}
	fps := 60
	return capture.NewVideoSource(cam.CaptureSource, 0, 0, fps), false, nil
}

// Start launches the detector, transmitter, and capture stages. Starting
// an already-running tracker returns the detector Lifecycle's wrapped
// ErrAlreadyRunning and leaves every stage as it was: the capture worker
// is started only after both lifecycles have accepted the Start.
func (t *Tracker) Start(ctx context.Context) error {
	if err := t.detectorLifecycle.Start(ctx); err != nil {
		return fmt.Errorf("tracker %s: starting detector: %w", t.cfg.Name, err)
	}
	if err := t.transmitLifecycle.Start(ctx); err != nil {
		return fmt.Errorf("tracker %s: starting transmitter: %w", t.cfg.Name, err)
	}
	t.captureWorker.Start(ctx)
	return nil
}

// Stop halts every stage and drains the four queues so buffered frames
// and their Mats are released rather than leaked.
func (t *Tracker) Stop(timeout time.Duration) error {
	t.captureWorker.Stop()
	_ = t.detectorLifecycle.Stop(timeout)
	_ = t.transmitLifecycle.Stop(timeout)

	t.frameQueue.Close()
	t.oscQueue.Close()
	t.camQueue.Close()
	t.vizQueue.Close()
	return nil
}

// Restart stops and starts every stage, rebuilding the queues so a fresh
// start doesn't replay stale buffered frames from before the stop.
func (t *Tracker) Restart(ctx context.Context, timeout time.Duration) error {
	if err := t.Stop(timeout); err != nil {
		return err
	}

	t.mu.Lock()
	cfg := t.cfg
	t.mu.Unlock()

	t.frameQueue = framequeue.New(cfg.Name, frameQueueCapacity, frameQueueFlushAt, t.log)
	t.oscQueue = newDropOldestQueue[detect.EyeData](oscQueueCapacity)
	t.camQueue = newSilentDropQueue[*frame.Frame](vizQueueCapacity, func(f *frame.Frame) { f.Close() })
	t.vizQueue = newSilentDropQueue[*frame.Frame](vizQueueCapacity, func(f *frame.Frame) { f.Close() })

	source, isSerial, err := newCaptureSource(cfg.Camera)
	if err != nil {
		return fmt.Errorf("tracker %s: %w", cfg.Name, err)
	}
	geometry := capture.GeometryParams{
		FlipX:       cfg.Camera.FlipX,
		FlipY:       cfg.Camera.FlipY,
		RotationDeg: cfg.Camera.Rotation,
		ROIX:        cfg.Camera.ROIX,
		ROIY:        cfg.Camera.ROIY,
		ROIW:        cfg.Camera.ROIW,
		ROIH:        cfg.Camera.ROIH,
	}
	t.captureWorker = capture.NewWorker(cfg.Name, source, geometry, t.frameQueue, isSerial, t.log)

	return t.Start(ctx)
}

// UUID returns the tracker's stable identifier.
func (t *Tracker) UUID() string { return t.uuid }

// OnTrackerConfigUpdate rebuilds the detection chain in place when this
// tracker's own configuration changes, without interrupting capture or
// transmission. Changes to camera geometry or capture_source still
// require a Restart, since those are owned by the (already-started)
// capture worker.
func (t *Tracker) OnTrackerConfigUpdate(next config.TrackerConfig) {
	t.mu.Lock()
	t.cfg = next
	t.mu.Unlock()

	chain, err := buildChain(string(next.Position), next.Algorithm)
	if err != nil {
		t.log.Error().Err(err).Msg("rejecting algorithm chain rebuild")
		return
	}
	old := t.chain.Swap(chain)
	if old != nil {
		if err := old.Close(); err != nil {
			t.log.Warn().Err(err).Msg("closing superseded algorithm chain")
		}
	}
}

// Viz returns the two preview streams: camera (pre-detection) and
// annotated (post-detection).
func (t *Tracker) Viz() (cam, annotated *silentDropQueue[*frame.Frame]) {
	return t.camQueue, t.vizQueue
}

func (t *Tracker) detectLoop(ctx context.Context) error {
	done := ctx.Done()
	for {
		f, ok := t.frameQueue.Pop(done)
		if !ok {
			return nil
		}

		if preview := f.Clone(); !t.camQueue.TryPush(preview) {
			preview.Close()
		}

		position := string(t.currentPosition())
		chain := t.chain.Load()
		data, _, annotated, err := chain.Run(f.Mat, position)
		data.Position = position
		f.Close()
		if err != nil {
			t.log.Debug().Err(err).Msg("detection failed for every configured algorithm")
		}

		viz := &frame.Frame{Mat: annotated, FPS: f.FPS, Seq: f.Seq, Stamp: f.Stamp}
		if !t.vizQueue.TryPush(viz) {
			viz.Close()
		}
		t.oscQueue.Push(data)
	}
}

func (t *Tracker) transmitLoop(ctx context.Context) error {
	done := ctx.Done()
	for {
		data, ok := t.oscQueue.Pop(done)
		if !ok {
			return nil
		}
		if t.transmitter == nil {
			continue
		}
		if err := t.transmitter.Send(data); err != nil {
			t.log.Warn().Err(err).Msg("sending OSC message")
		}
	}
}

func (t *Tracker) currentPosition() config.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cfg.Position
}
