// Package worker provides the shared start/stop/restart lifecycle that
// the tracker's detection and transmission stages are built on top of;
// the capture worker manages its own goroutine.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Common lifecycle errors.
var (
	ErrAlreadyRunning = errors.New("worker: already running")
	ErrNotRunning     = errors.New("worker: not running")
	ErrStopTimeout    = errors.New("worker: stop timed out")
)

// State is the lifecycle state of a Lifecycle.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// RunFunc is the body of a worker's main loop. It must return promptly
// once ctx is canceled.
type RunFunc func(ctx context.Context) error

// Lifecycle gives a component Start/Stop/Restart semantics on top of a
// single background goroutine: Start returns ErrAlreadyRunning if already
// running, Stop returns ErrNotRunning if not running, and Stop with a
// positive timeout never blocks longer than it even if the run function
// wedges.
type Lifecycle struct {
	name string
	log  zerolog.Logger
	run  RunFunc

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
	runErr error
}

// New builds a Lifecycle wrapping run, identified by name in log output.
func New(name string, run RunFunc, log zerolog.Logger) *Lifecycle {
	return &Lifecycle{
		name: name,
		run:  run,
		log:  log.With().Str("worker", name).Logger(),
	}
}

// Name returns the worker's identifying name.
func (l *Lifecycle) Name() string {
	return l.name
}

// State returns the current lifecycle state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Start launches the run function in a background goroutine. Calling
// Start while already running returns ErrAlreadyRunning rather than
// starting a second goroutine.
func (l *Lifecycle) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateIdle {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	l.state = StateRunning
	l.runErr = nil

	done := l.done
	l.log.Info().Msg("starting")
	go func() {
		defer close(done)
		if err := l.run(runCtx); err != nil && runCtx.Err() == nil {
			l.mu.Lock()
			l.runErr = err
			l.mu.Unlock()
			l.log.Error().Err(err).Msg("worker exited with error")
		}
	}()
	return nil
}

// Stop requests cancellation and waits up to timeout for the run
// function to return. Stopping an idle worker returns ErrNotRunning.
// A timeout <= 0 waits indefinitely.
func (l *Lifecycle) Stop(timeout time.Duration) error {
	l.mu.Lock()
	if l.state != StateRunning {
		l.mu.Unlock()
		return ErrNotRunning
	}
	l.state = StateStopping
	cancel := l.cancel
	done := l.done
	l.mu.Unlock()

	l.log.Info().Msg("stopping")
	cancel()

	if timeout > 0 {
		select {
		case <-done:
		case <-time.After(timeout):
			l.mu.Lock()
			l.state = StateIdle
			l.mu.Unlock()
			return fmt.Errorf("%w: %s did not stop within %s", ErrStopTimeout, l.name, timeout)
		}
	} else {
		<-done
	}

	l.mu.Lock()
	l.state = StateIdle
	runErr := l.runErr
	l.mu.Unlock()
	return runErr
}

// Restart stops (if running) and starts the worker again.
func (l *Lifecycle) Restart(ctx context.Context, timeout time.Duration) error {
	if l.State() == StateRunning {
		if err := l.Stop(timeout); err != nil && !errors.Is(err, ErrStopTimeout) {
			return err
		}
	}
	return l.Start(ctx)
}
