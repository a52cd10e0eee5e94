package coordination

import "context"

// State is one of the three connection states the state worker reacts to.
// The zero value is StateUnknown and is never delivered on the Events
// channel; it exists only as the worker's pre-startup sentinel.
type State int

const (
	StateUnknown State = iota
	// StateConnected means the session is live and usable.
	StateConnected
	// StateSuspended means the transport link is down but the session may
	// still resume without losing ephemeral nodes.
	StateSuspended
	// StateLost means the session itself is gone; every ephemeral node
	// this instance created has been (or will shortly be) removed by the
	// store.
	StateLost
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "CONNECTED"
	case StateSuspended:
		return "SUSPENDED"
	case StateLost:
		return "LOST"
	default:
		return "UNKNOWN"
	}
}

// CreateMode selects the lifetime and naming behaviour of a created node.
type CreateMode int

const (
	// ModePersistent nodes survive session loss; used for shared-cache
	// entries.
	ModePersistent CreateMode = iota
	// ModeEphemeral nodes are removed automatically when the owning
	// session ends; used for party membership.
	ModeEphemeral
	// ModeEphemeralSequential nodes are ephemeral and have a monotonic
	// sequence number appended by the store; used for lock contenders.
	ModeEphemeralSequential
)

// transport is the contract the coordination client needs from the
// underlying store. It is satisfied by zkadapter.Adapter against a real
// ZooKeeper ensemble and by fake.Transport for tests.
//
// Implementations MUST NOT block the goroutine that delivers state events;
// Events() is drained by a dedicated worker (see stateWorker) precisely so
// transport callbacks never wait on application code.
type transport interface {
	// Events returns a channel of connection-state notifications. The
	// channel is never closed while the transport is open.
	Events() <-chan State

	// EnsurePath idempotently creates every path segment up to and
	// including path, as persistent empty nodes where absent.
	EnsurePath(ctx context.Context, path string) error

	// Create creates a node at path with the given value and mode. For
	// ModeEphemeralSequential, the returned string is the actual created
	// path (the store appends a sequence suffix). If makePath is true,
	// missing parent segments are created first. Returns ErrNodeExists if
	// a node already exists at path (non-sequential modes only).
	Create(ctx context.Context, path string, value []byte, mode CreateMode, makePath bool) (string, error)

	// Set overwrites the value at an existing node. Returns ErrNoNode if
	// path does not exist.
	Set(ctx context.Context, path string, value []byte) error

	// Get returns the payload at path. Returns ErrNoNode if absent.
	Get(ctx context.Context, path string) ([]byte, error)

	// Children returns the direct child names of path, in the store's
	// native order. Returns an empty slice, not an error, if path itself
	// does not exist.
	Children(ctx context.Context, path string) ([]string, error)

	// Delete removes the node at path. Returns ErrNoNode if absent.
	Delete(ctx context.Context, path string) error

	// Close tears down the session. Idempotent.
	Close() error
}
