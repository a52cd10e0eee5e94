package coordination

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config holds the values an operator supplies to stand up a Client. It is
// never read from the environment by this package — see SPEC_FULL.md §6:
// no CLI surface and no environment variables are owned by the
// coordination layer itself. cmd/zkctl is the one binary that loads these
// from the environment and passes the result in.
type Config struct {
	// SessionTimeout is the transport session timeout. Defaults to 1s if
	// zero.
	SessionTimeout time.Duration
	// Hosts is the coordination store ensemble, "host:port" entries.
	Hosts []string
}

// EffectiveSessionTimeout returns SessionTimeout, or 1s if unset.
func (c Config) EffectiveSessionTimeout() time.Duration {
	if c.SessionTimeout <= 0 {
		return time.Second
	}
	return c.SessionTimeout
}

// Client is the coordination client adapter (§4.1): it owns the transport
// session, the state worker that turns raw state events into the
// connected/epoch condition, and factories for locks, parties, and shared
// caches bound to that session.
type Client struct {
	identity  Identity
	transport transport
	logger    *zap.SugaredLogger
	worker    *stateWorker

	partiesMu sync.RWMutex
	parties   []*Party

	onConnectHook    func()
	onDisconnectHook func()
}

// NewClient constructs a Client bound to tr and starts its state worker.
// The returned Client owns tr: Close() closes it.
func NewClient(id Identity, cfg Config, tr transport, logger *zap.SugaredLogger) *Client {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	c := &Client{
		identity:  id,
		transport: tr,
		logger:    logger,
	}
	c.worker = newStateWorker(logger, tr.Events())
	c.worker.ensurePrefix = func(ctx context.Context) error {
		// Called from the state worker before it flips connected to true,
		// so this must go straight to the transport rather than through
		// EnsurePath, which gates on Connected() (see party.go's autojoin,
		// which has the same requirement).
		return wrapTransportErr(c.transport.EnsurePath(ctx, c.identity.Prefix()))
	}
	c.worker.autojoinParties = c.snapshotParties
	c.worker.onConnect = func() {
		if c.onConnectHook != nil {
			c.onConnectHook()
		}
	}
	c.worker.onDisconnect = func() {
		if c.onDisconnectHook != nil {
			c.onDisconnectHook()
		}
	}
	c.worker.start()
	return c
}

// OnConnect registers a hook invoked on the state worker's goroutine every
// time a CONNECTED transition is dispatched (after the prefix is ensured
// and parties are re-joined).
func (c *Client) OnConnect(hook func()) { c.onConnectHook = hook }

// OnDisconnect registers a hook invoked on the state worker's goroutine on
// every SUSPENDED or LOST transition.
func (c *Client) OnDisconnect(hook func()) { c.onDisconnectHook = hook }

// Identity returns this client's service identity.
func (c *Client) Identity() Identity { return c.identity }

// Connected reports the current connected condition. Like any such flag in
// a concurrent system, the result may be stale by the time the caller acts
// on it.
func (c *Client) Connected() bool {
	connected, _ := c.worker.snapshot()
	return connected
}

// Epoch returns the current connection epoch.
func (c *Client) Epoch() uint64 {
	_, epoch := c.worker.snapshot()
	return epoch
}

// WaitConnected blocks until the client is connected or ctx is done.
func (c *Client) WaitConnected(ctx context.Context) error {
	return c.worker.waitConnected(ctx)
}

// EnsurePath idempotently creates every path segment up to and including
// p. A relative path is resolved against the service prefix unless
// absolute is true.
func (c *Client) EnsurePath(ctx context.Context, p string, absolute bool) error {
	if !c.Connected() {
		return ErrNoConnection
	}
	full := c.identity.Prefix()
	if p != "" {
		full = c.identity.resolvePath(p, absolute)
	}
	return wrapTransportErr(c.transport.EnsurePath(ctx, full))
}

// Create creates a node at the (prefix-resolved) path p.
func (c *Client) Create(ctx context.Context, p string, value []byte, mode CreateMode, makePath bool) (string, error) {
	if !c.Connected() {
		return "", ErrNoConnection
	}
	full := c.identity.resolvePath(p, false)
	created, err := c.transport.Create(ctx, full, value, mode, makePath)
	if err != nil {
		return "", wrapTransportErr(err)
	}
	return created, nil
}

// Set overwrites the value at an existing node.
func (c *Client) Set(ctx context.Context, p string, value []byte) error {
	if !c.Connected() {
		return ErrNoConnection
	}
	return wrapTransportErr(c.transport.Set(ctx, c.identity.resolvePath(p, false), value))
}

// Get returns the payload at p.
func (c *Client) Get(ctx context.Context, p string) ([]byte, error) {
	if !c.Connected() {
		return nil, ErrNoConnection
	}
	v, err := c.transport.Get(ctx, c.identity.resolvePath(p, false))
	if err != nil {
		return nil, wrapTransportErr(err)
	}
	return v, nil
}

// GetChildren returns the child names of p.
func (c *Client) GetChildren(ctx context.Context, p string) ([]string, error) {
	if !c.Connected() {
		return nil, ErrNoConnection
	}
	children, err := c.transport.Children(ctx, c.identity.resolvePath(p, false))
	if err != nil {
		return nil, wrapTransportErr(err)
	}
	return children, nil
}

// Delete removes the node at p.
func (c *Client) Delete(ctx context.Context, p string) error {
	if !c.Connected() {
		return ErrNoConnection
	}
	return wrapTransportErr(c.transport.Delete(ctx, c.identity.resolvePath(p, false)))
}

// NewLock returns a distributed lock bound to "<prefix>/lock/<name>" (or
// just "<prefix>/lock" when name is empty, matching §6's single lock
// directory per service prefix).
func (c *Client) NewLock(name string) *Lock {
	path := c.identity.Prefix() + "/lock"
	if name != "" {
		path += "/" + name
	}
	return newLock(c, path)
}

// NewParty returns a party bound to "<prefix>/party" (or
// "<prefix>/party/<name>" when name is non-empty, for deployments that run
// more than one named group). memberID identifies this instance among the
// party's members; callers typically pass their Identity.String().
func (c *Client) NewParty(name, memberID string, autojoin bool) *Party {
	path := c.identity.Prefix() + "/party"
	if name != "" {
		path += "/" + name
	}
	p := newParty(c, path, memberID, autojoin)

	c.partiesMu.Lock()
	c.parties = append(c.parties, p)
	c.partiesMu.Unlock()

	return p
}

// NewSharedCache returns a shared cache bound to "<prefix>/<name>", with
// handler invoked by Process with each batch of newly discovered payloads.
func (c *Client) NewSharedCache(name string, handler func([][]byte) error) *SharedCache {
	return newSharedCache(c, c.identity.Prefix()+"/"+name, handler)
}

func (c *Client) snapshotParties() []*Party {
	c.partiesMu.RLock()
	defer c.partiesMu.RUnlock()
	out := make([]*Party, len(c.parties))
	copy(out, c.parties)
	return out
}

// Close shuts down the state worker and the underlying transport.
func (c *Client) Close() error {
	c.worker.shutdown()
	return c.transport.Close()
}
