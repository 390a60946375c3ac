// Package orchestrator owns the config store, the per-tracker pipelines,
// and the shared OSC transmitter/command listener, and exposes the
// top-level start/stop/restart/status surface the REST control plane and
// the CLI entry point drive.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/etvr-go/trackingd/internal/config"
	"github.com/etvr-go/trackingd/internal/oscpipe"
	"github.com/etvr-go/trackingd/internal/tracker"
	"github.com/etvr-go/trackingd/internal/worker"
)

// ErrRunning is returned by operations that require the orchestrator to
// be stopped first (rebuilding trackers from a changed configuration).
var ErrRunning = errors.New("orchestrator: already running")

const stopTimeout = 5 * time.Second

// Orchestrator owns N tracker pipelines (one per enabled tracker config),
// the config store driving them, and the shared OSC transmitter/listener.
type Orchestrator struct {
	store *config.Store
	log   zerolog.Logger

	mu          sync.Mutex
	running     bool
	trackers    map[string]*tracker.Tracker
	transmitter *oscpipe.Transmitter
	listener    *oscpipe.Listener

	watchCancel context.CancelFunc
}

// New builds an Orchestrator bound to store. Trackers are not built until
// the first Start (or an explicit RebuildTrackers) call.
func New(store *config.Store, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		store: store,
		log:   log.With().Str("component", "orchestrator").Logger(),
	}
}

// Status reports whether the orchestrator's workers are currently running.
func (o *Orchestrator) Status() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// RebuildTrackers tears down and recreates every tracker pipeline from
// the store's current configuration. It is only permitted while stopped,
// matching the source's "setup_trackers only while not running" rule, so
// a rebuild never races against a tracker that's mid-frame.
func (o *Orchestrator) RebuildTrackers() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return ErrRunning
	}
	return o.rebuildLocked()
}

func (o *Orchestrator) rebuildLocked() error {
	root := o.store.Current()

	if o.transmitter != nil {
		o.transmitter.Close()
		o.transmitter = nil
	}
	if root.OSC.EnableSending {
		tx, err := oscpipe.NewTransmitter(root.OSC.Address, root.OSC.SendingPort, oscpipe.TransmitterParams{
			Endpoints:  root.OSC.Endpoints,
			MirrorEyes: root.OSC.MirrorEyes,
		})
		if err != nil {
			return fmt.Errorf("orchestrator: building transmitter: %w", err)
		}
		o.transmitter = tx
	}

	if o.listener != nil {
		o.listener.Close()
		o.listener = nil
	}
	if root.OSC.EnableReceiving {
		l, err := oscpipe.NewListener(root.OSC.Address, root.OSC.ReceiverPort,
			root.OSC.Endpoints.Recenter, root.OSC.Endpoints.Recalibrate, root.OSC.Endpoints.SyncBlink,
			oscpipe.Commands{
				Recenter:    func() { o.log.Info().Msg("recenter command received") },
				Recalibrate: func() { o.log.Info().Msg("recalibrate command received") },
				SyncBlink: func(value float32) {
					if o.transmitter != nil {
						o.transmitter.SendSyncBlink(float64(value))
					}
				},
			}, o.log)
		if err != nil {
			return fmt.Errorf("orchestrator: building command listener: %w", err)
		}
		o.listener = l
	}

	trackers := make(map[string]*tracker.Tracker, len(root.Trackers))
	for _, tc := range root.Trackers {
		if !tc.Enabled {
			continue
		}
		tr, err := tracker.New(tc, o.transmitter, o.log)
		if err != nil {
			o.log.Error().Err(err).Str("tracker", tc.Name).Msg("skipping tracker that failed to build")
			continue
		}
		trackers[tc.UUID] = tr
	}
	o.trackers = trackers
	return nil
}

// Start builds trackers from the current configuration (if not already
// built) and launches every stage, plus the config-change watcher and
// the command listener, if configured.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return fmt.Errorf("orchestrator: %w", worker.ErrAlreadyRunning)
	}
	if o.trackers == nil {
		if err := o.rebuildLocked(); err != nil {
			return err
		}
	}

	watchCtx, cancel := context.WithCancel(ctx)
	o.watchCancel = cancel
	for id, tr := range o.trackers {
		if err := tr.Start(ctx); err != nil {
			return fmt.Errorf("orchestrator: starting tracker %s: %w", id, err)
		}
		go worker.WatchConfig(watchCtx, o.store, worker.ConfigCallbacks{
			TrackerUUID:     id,
			OnTrackerUpdate: tr.OnTrackerConfigUpdate,
		})
	}

	if o.listener != nil {
		go o.listener.Serve(watchCtx)
	}

	o.running = true
	return nil
}

// Stop halts every tracker, the command listener, and the config watcher.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running {
		return fmt.Errorf("orchestrator: %w", worker.ErrNotRunning)
	}

	if o.watchCancel != nil {
		o.watchCancel()
	}

	var errs []error
	for id, tr := range o.trackers {
		if err := tr.Stop(stopTimeout); err != nil {
			errs = append(errs, fmt.Errorf("stopping tracker %s: %w", id, err))
		}
	}

	o.running = false
	if len(errs) > 0 {
		return fmt.Errorf("orchestrator: %v", errs)
	}
	return nil
}

// Restart stops then starts the orchestrator.
func (o *Orchestrator) Restart(ctx context.Context) error {
	if o.Status() {
		if err := o.Stop(); err != nil {
			return err
		}
	}
	return o.Start(ctx)
}

// Store exposes the underlying config store for the REST control plane.
func (o *Orchestrator) Store() *config.Store {
	return o.store
}

// Tracker returns the live tracker pipeline for uuid, if one is built and
// running. Used by the feed endpoints to reach a tracker's preview queues.
func (o *Orchestrator) Tracker(uuid string) (*tracker.Tracker, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	tr, ok := o.trackers[uuid]
	return tr, ok
}
