package worker

import (
	"context"

	"github.com/etvr-go/trackingd/internal/config"
	"github.com/google/go-cmp/cmp"
)

// ConfigCallbacks mirrors the on_config_update / on_tracker_config_update
// hooks every tracker component reacts to: a broad callback for any root
// document change, and a narrow one that only fires when the named
// tracker's own configuration actually changed.
type ConfigCallbacks struct {
	TrackerUUID     string
	OnConfigUpdate  func(next *config.RootConfig)
	OnTrackerUpdate func(next config.TrackerConfig)
}

// WatchConfig subscribes to store and dispatches callbacks until ctx is
// canceled. It is meant to be run in its own goroutine alongside a
// worker's main loop.
func WatchConfig(ctx context.Context, store *config.Store, cb ConfigCallbacks) {
	ch := store.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-ch:
			if !ok {
				return
			}
			if cb.OnConfigUpdate != nil {
				cb.OnConfigUpdate(snap.New)
			}
			if cb.OnTrackerUpdate == nil || cb.TrackerUUID == "" {
				continue
			}
			next := findTracker(snap.New, cb.TrackerUUID)
			if next == nil {
				continue
			}
			prev := findTracker(snap.Old, cb.TrackerUUID)
			if prev != nil && trackerEqual(*prev, *next) {
				continue
			}
			cb.OnTrackerUpdate(*next)
		}
	}
}

func findTracker(root *config.RootConfig, uuid string) *config.TrackerConfig {
	if root == nil {
		return nil
	}
	for i := range root.Trackers {
		if root.Trackers[i].UUID == uuid {
			return &root.Trackers[i]
		}
	}
	return nil
}

func trackerEqual(a, b config.TrackerConfig) bool {
	return cmp.Equal(a, b)
}
