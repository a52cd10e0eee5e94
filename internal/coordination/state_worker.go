package coordination

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// fatalExit terminates the process. It is a package variable, following
// the teacher's logFatal indirection, so tests can substitute a
// non-exiting hook and still observe that the worker attempted to die.
var fatalExit = func() {
	os.Exit(1)
}

// stateWorker is the single goroutine that consumes transport state
// events, debounces rapid flapping, and drives the connected/epoch
// condition every other component reads. It owns connected and epoch
// exclusively; nothing else in this package ever mutates them.
type stateWorker struct {
	logger *zap.SugaredLogger

	mu        sync.RWMutex
	connected bool
	epoch     uint64

	// autojoinParties returns a snapshot of currently registered parties
	// to re-autojoin on every CONNECTED transition. Reading a snapshot
	// rather than the live registry avoids racing with concurrent
	// NewParty calls (see §9 of the design notes: parties registered by
	// reference).
	autojoinParties func() []*Party
	ensurePrefix    func(ctx context.Context) error
	onConnect       func()
	onDisconnect    func()

	events <-chan State
	stop   chan struct{}
	wg     sync.WaitGroup
}

func newStateWorker(logger *zap.SugaredLogger, events <-chan State) *stateWorker {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &stateWorker{
		logger: logger,
		events: events,
		stop:   make(chan struct{}),
	}
}

// start launches the worker loop. It must only be called once.
func (w *stateWorker) start() {
	w.wg.Add(1)
	go w.run()
}

// shutdown requests the worker loop to exit and waits for it to finish.
func (w *stateWorker) shutdown() {
	close(w.stop)
	w.wg.Wait()
}

func (w *stateWorker) run() {
	defer w.wg.Done()

	oldState := StateUnknown

	for {
		select {
		case <-w.stop:
			return
		case s, ok := <-w.events:
			if !ok {
				// The transport closed its event channel out from under
				// us without an orderly shutdown; the coordination
				// layer's correctness depends on this worker running,
				// so the process must not silently continue believing
				// it is still connected.
				w.logger.Errorw("state worker: event channel closed unexpectedly")
				fatalExit()
				return
			}

			// Debounce: drop a CONNECTED event if a later transition is
			// already queued behind it.
			if s == StateConnected && len(w.events) > 0 {
				w.logger.Debugw("state worker: dropping stale CONNECTED, newer event pending")
				continue
			}
			if s == oldState {
				w.logger.Debugw("state worker: dropping duplicate state", "state", s.String())
				continue
			}
			oldState = s
			w.dispatch(s)
		}
	}
}

func (w *stateWorker) dispatch(s State) {
	// The epoch advances on every observed transition, not just CONNECTED:
	// it marks "the world may have changed since the last time this
	// instance checked", which is just as true of a SUSPENDED or LOST
	// transition as of a CONNECTED one.
	w.mu.Lock()
	w.epoch++
	epoch := w.epoch
	w.mu.Unlock()

	switch s {
	case StateConnected:
		if w.ensurePrefix != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := w.ensurePrefix(ctx); err != nil {
				w.logger.Warnw("state worker: failed to ensure service prefix on connect", "error", err)
			}
			cancel()
		}

		if w.autojoinParties != nil {
			for _, p := range w.autojoinParties() {
				p.autojoin()
			}
		}

		w.mu.Lock()
		w.connected = true
		w.mu.Unlock()

		w.logger.Infow("coordination connected", "epoch", epoch)
		if w.onConnect != nil {
			w.onConnect()
		}

	case StateSuspended:
		w.mu.Lock()
		w.connected = false
		w.mu.Unlock()
		w.logger.Infow("coordination suspended", "epoch", epoch)
		if w.onDisconnect != nil {
			w.onDisconnect()
		}

	case StateLost:
		w.mu.Lock()
		w.connected = false
		w.mu.Unlock()
		w.logger.Infow("coordination session lost", "epoch", epoch)
		if w.onDisconnect != nil {
			w.onDisconnect()
		}
	}
}

// snapshot returns the current (connected, epoch) pair atomically.
func (w *stateWorker) snapshot() (bool, uint64) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected, w.epoch
}

// waitConnected blocks until connected is true, ctx is done, or timeout
// elapses, logging progress at most once every 10 seconds while it waits.
func (w *stateWorker) waitConnected(ctx context.Context) error {
	if connected, _ := w.snapshot(); connected {
		return nil
	}

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	poll := time.NewTicker(20 * time.Millisecond)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return ErrNoConnection
		case <-ticker.C:
			w.logger.Infow("still waiting for coordination connection")
		case <-poll.C:
			if connected, _ := w.snapshot(); connected {
				return nil
			}
		}
	}
}
