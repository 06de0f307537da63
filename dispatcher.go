package streamplayout

import (
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/e7canasta/stream-playout/engine"
)

// dispatcherClaimed is the process-wide one-shot sentinel.
var dispatcherClaimed atomic.Bool

const dispatcherQuitEvery = 10 * time.Millisecond

var dispatcherStopTimeout = 3 * time.Second

// Dispatcher runs the process event loop that delivers bus watches and, with
// the GStreamer engine, the appsink callbacks.
//
// At most one Dispatcher exists per process. The claim is released by Stop.
type Dispatcher struct {
	loop engine.Loop

	ran      atomic.Bool
	done     chan struct{}
	stopOnce sync.Once
}

// NewDispatcher claims the process dispatcher. Returns ErrDispatcherExists
// while another dispatcher is alive.
func NewDispatcher(loop engine.Loop) (*Dispatcher, error) {
	if !dispatcherClaimed.CompareAndSwap(false, true) {
		return nil, ErrDispatcherExists
	}
	return &Dispatcher{
		loop: loop,
		done: make(chan struct{}),
	}, nil
}

// Run blocks on the loop until Stop. The calling goroutine is locked to its OS
// thread for the duration. A dispatcher runs at most once.
func (d *Dispatcher) Run() error {
	if !d.ran.CompareAndSwap(false, true) {
		return ErrDispatcherRunning
	}
	d.run()
	return nil
}

// Start runs the loop on a dedicated goroutine and returns immediately.
func (d *Dispatcher) Start() error {
	if !d.ran.CompareAndSwap(false, true) {
		return ErrDispatcherRunning
	}
	go d.run()
	return nil
}

func (d *Dispatcher) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(d.done)

	slog.Debug("stream-playout: dispatcher loop running")
	d.loop.Run()
	slog.Debug("stream-playout: dispatcher loop returned")
}

// Stop quits the loop, waits for Run to return (timeout 3s) and releases the
// process claim. If the loop outlives the timeout the claim is kept until it
// returns. Idempotent.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		if !d.ran.Load() {
			dispatcherClaimed.Store(false)
			return
		}

		// Quit is lost if it lands before the loop is actually running,
		// so keep asking until Run returns.
		d.loop.Quit()
		ticker := time.NewTicker(dispatcherQuitEvery)
		defer ticker.Stop()
		timeout := time.After(dispatcherStopTimeout)

		for {
			select {
			case <-d.done:
				slog.Debug("stream-playout: dispatcher stopped cleanly")
				dispatcherClaimed.Store(false)
				return
			case <-ticker.C:
				d.loop.Quit()
			case <-timeout:
				slog.Warn("stream-playout: dispatcher stop timeout exceeded, loop may still be running")
				go func() {
					<-d.done
					dispatcherClaimed.Store(false)
				}()
				return
			}
		}
	})
}
