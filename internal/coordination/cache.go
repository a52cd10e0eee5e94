package coordination

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SharedCache is a best-effort, eventually-consistent set of named
// payloads under a fixed store path (§4.5). Writers call Store; a
// maintainer instance (often but not necessarily the same process) calls
// Process periodically to discover new entries and deliver them to a
// handler, and Expire periodically to age out entries past a TTL.
type SharedCache struct {
	client  *Client
	path    string
	handler func([][]byte) error
	logger  *zap.SugaredLogger

	// clock is overridable in tests so the literal-timing scenarios in
	// SPEC_FULL.md §8 (store at t=0, t=5, expire at t=6) can be expressed
	// without real sleeps.
	clock func() time.Time

	fifoMu sync.Mutex
	fifo   []cacheWrite

	mu      sync.Mutex
	entries map[string]time.Time
}

type cacheWrite struct {
	name string
	ts   time.Time
}

func newSharedCache(c *Client, path string, handler func([][]byte) error) *SharedCache {
	return &SharedCache{
		client:  c,
		path:    path,
		handler: handler,
		logger:  c.logger,
		clock:   time.Now,
		entries: make(map[string]time.Time),
	}
}

// Store writes name/value, creating the entry if it doesn't exist. A
// concurrent creator winning the race is treated as success: the entry
// exists with whichever value wins at the store, and only the winner
// records a local first-seen timestamp.
func (s *SharedCache) Store(ctx context.Context, name string, value []byte) error {
	if !s.client.Connected() {
		return ErrNoConnection
	}
	full := s.path + "/" + name

	err := s.client.transport.Set(ctx, full, value)
	if err == nil {
		s.pushFifo(name)
		return nil
	}
	if !isNoNode(err) {
		return wrapTransportErr(err)
	}

	_, err = s.client.transport.Create(ctx, full, value, ModePersistent, true)
	if err == nil {
		s.pushFifo(name)
		return nil
	}
	if isNodeExists(err) {
		s.logger.Debugw("shared cache: lost create race, treating as success", "path", full)
		return nil
	}
	return wrapTransportErr(err)
}

func (s *SharedCache) pushFifo(name string) {
	s.fifoMu.Lock()
	s.fifo = append(s.fifo, cacheWrite{name: name, ts: s.clock()})
	s.fifoMu.Unlock()
}

// Process drains the writer FIFO into the timestamp map (oldest
// first-seen wins), reconciles the timestamp map against the store's
// current children, fetches any newly discovered entries, and delivers
// the batch to the handler exactly once (even if the batch is empty).
func (s *SharedCache) Process(ctx context.Context) error {
	if !s.client.Connected() {
		return ErrNoConnection
	}

	s.fifoMu.Lock()
	drained := s.fifo
	s.fifo = nil
	s.fifoMu.Unlock()

	s.mu.Lock()
	for _, w := range drained {
		if _, exists := s.entries[w.name]; !exists {
			s.entries[w.name] = w.ts
		}
	}
	previous := make(map[string]struct{}, len(s.entries))
	for name := range s.entries {
		previous[name] = struct{}{}
	}
	s.mu.Unlock()

	current, err := s.client.transport.Children(ctx, s.path)
	if err != nil {
		return wrapTransportErr(err)
	}
	currentSet := make(map[string]struct{}, len(current))
	for _, name := range current {
		currentSet[name] = struct{}{}
	}

	s.mu.Lock()
	for name := range previous {
		if _, ok := currentSet[name]; !ok {
			delete(s.entries, name)
		}
	}
	s.mu.Unlock()

	var fresh []string
	for name := range currentSet {
		if _, ok := previous[name]; !ok {
			fresh = append(fresh, name)
		}
	}

	var batch [][]byte
	for _, name := range fresh {
		data, err := s.client.transport.Get(ctx, s.path+"/"+name)
		if err != nil {
			if isNoNode(err) {
				s.logger.Debugw("shared cache: entry vanished before fetch", "name", name)
				continue
			}
			// NoConnection aborts the rest of this batch; names not yet
			// fetched are retried on the next Process call because they
			// were never added to s.entries.
			s.logger.Debugw("shared cache: aborting batch on connection loss", "error", err)
			break
		}
		s.mu.Lock()
		s.entries[name] = s.clock()
		s.mu.Unlock()
		batch = append(batch, data)
	}

	if s.handler != nil {
		if err := s.handler(batch); err != nil {
			s.logger.Warnw("shared cache: handler returned error, batch still considered delivered", "error", err)
		}
	}
	return nil
}

// Expire deletes every tracked entry older than ttl. A NoNode while
// deleting a tracked entry is surfaced (it indicates the timestamp map
// and the store have drifted, which should not happen); a NoConnection
// aborts the sweep, leaving remaining expirations for the next call.
func (s *SharedCache) Expire(ctx context.Context, ttl time.Duration) error {
	if !s.client.Connected() {
		return ErrNoConnection
	}

	now := s.clock()
	s.mu.Lock()
	var expired []string
	for name, ts := range s.entries {
		if now.Sub(ts) > ttl {
			expired = append(expired, name)
		}
	}
	s.mu.Unlock()

	for _, name := range expired {
		err := s.client.transport.Delete(ctx, s.path+"/"+name)
		if err != nil {
			if isNoNode(err) {
				return ErrNoNode
			}
			return wrapTransportErr(err)
		}
		s.mu.Lock()
		delete(s.entries, name)
		s.mu.Unlock()
	}
	return nil
}

// firstSeen returns the locally recorded first-seen timestamp for name,
// for use by tests asserting the TTL lower-bound invariant.
func (s *SharedCache) firstSeen(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.entries[name]
	return ts, ok
}
