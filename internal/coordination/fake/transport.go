// Package fake provides an in-memory coordination-store transport for
// tests, modeled as a miniature Zookeeper: a hierarchical node tree with
// ephemeral and sequential children, plus a controllable connection-state
// event stream.
//
// It is not a general-purpose key-value store: callers drive its fake
// connection state explicitly via SetState, so tests can script exact
// scenarios (two clients racing a lock, a forced session loss, and so on)
// without timing-dependent flakiness.
package fake

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/scionproto/zkcoord/internal/coordination"
)

// Re-exported aliases so callers of this package don't need to import
// coordination separately just to spell out a CreateMode or State value.
type (
	State      = coordination.State
	CreateMode = coordination.CreateMode
)

const (
	StateUnknown   = coordination.StateUnknown
	StateConnected = coordination.StateConnected
	StateSuspended = coordination.StateSuspended
	StateLost      = coordination.StateLost

	ModePersistent          = coordination.ModePersistent
	ModeEphemeral           = coordination.ModeEphemeral
	ModeEphemeralSequential = coordination.ModeEphemeralSequential
)

var (
	ErrNoNode     = coordination.ErrNoNode
	ErrNodeExists = coordination.ErrNodeExists
)

type node struct {
	value     []byte
	ephemeral bool
	// children preserves insertion order, matching Zookeeper's
	// getChildren ordering for non-sequential nodes and numeric ordering
	// for sequential ones.
	children []string
	seq      int
}

// Transport is a goroutine-safe, in-memory coordination store.
type Transport struct {
	mu     sync.Mutex
	nodes  map[string]*node
	events chan State
	closed bool
}

// New returns an empty Transport rooted at "/", with an event channel
// buffered to 16 slots so SetState does not block a test goroutine while
// fewer than 16 events are pending.
func New() *Transport {
	t := &Transport{
		nodes:  map[string]*node{"/": {}},
		events: make(chan State, 16),
	}
	return t
}

// SetState pushes a connection-state transition onto the event stream, as
// if the underlying transport had observed it. Tests use this to script
// CONNECTED / SUSPENDED / LOST sequences.
func (t *Transport) SetState(s State) {
	t.events <- s
}

func (t *Transport) Events() <-chan State {
	return t.events
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.events)
	return nil
}

func parent(path string) string {
	i := strings.LastIndex(path, "/")
	if i <= 0 {
		return "/"
	}
	return path[:i]
}

func (t *Transport) ensurePathLocked(path string) {
	if path == "/" {
		return
	}
	if _, ok := t.nodes[path]; ok {
		return
	}
	t.ensurePathLocked(parent(path))
	t.nodes[path] = &node{}
	p := t.nodes[parent(path)]
	p.children = append(p.children, path[strings.LastIndex(path, "/")+1:])
}

func (t *Transport) EnsurePath(ctx context.Context, path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensurePathLocked(path)
	return nil
}

func (t *Transport) Create(ctx context.Context, path string, value []byte, mode CreateMode, makePath bool) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	par := parent(path)
	if makePath {
		t.ensurePathLocked(par)
	} else if _, ok := t.nodes[par]; !ok {
		return "", errors.Wrapf(ErrNoNode, "parent of %s does not exist", path)
	}

	created := path
	name := path[strings.LastIndex(path, "/")+1:]

	if mode == ModeEphemeralSequential {
		parentNode := t.nodes[par]
		parentNode.seq++
		name = fmt.Sprintf("%s%010d", name, parentNode.seq)
		created = par + "/" + name
	} else if _, exists := t.nodes[path]; exists {
		return "", errors.Wrapf(ErrNodeExists, "node %s already exists", path)
	}

	t.nodes[created] = &node{value: append([]byte(nil), value...), ephemeral: mode != ModePersistent}
	parentNode := t.nodes[par]
	parentNode.children = append(parentNode.children, name)
	return created, nil
}

func (t *Transport) Set(ctx context.Context, path string, value []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[path]
	if !ok {
		return errors.Wrapf(ErrNoNode, "set: %s does not exist", path)
	}
	n.value = append([]byte(nil), value...)
	return nil
}

func (t *Transport) Get(ctx context.Context, path string) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[path]
	if !ok {
		return nil, errors.Wrapf(ErrNoNode, "get: %s does not exist", path)
	}
	return append([]byte(nil), n.value...), nil
}

func (t *Transport) Children(ctx context.Context, path string) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[path]
	if !ok {
		return []string{}, nil
	}
	out := append([]string(nil), n.children...)
	sort.Strings(out)
	return out, nil
}

func (t *Transport) Delete(ctx context.Context, path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.nodes[path]; !ok {
		return errors.Wrapf(ErrNoNode, "delete: %s does not exist", path)
	}
	delete(t.nodes, path)
	par := parent(path)
	name := path[strings.LastIndex(path, "/")+1:]
	if p, ok := t.nodes[par]; ok {
		filtered := p.children[:0]
		for _, c := range p.children {
			if c != name {
				filtered = append(filtered, c)
			}
		}
		p.children = filtered
	}
	return nil
}

// ExpireSession simulates a ZK session expiry: every ephemeral node is
// removed (as the real store would do) and a LOST event is emitted.
func (t *Transport) ExpireSession() {
	t.mu.Lock()
	for path, n := range t.nodes {
		if n.ephemeral {
			delete(t.nodes, path)
			par := parent(path)
			name := path[strings.LastIndex(path, "/")+1:]
			if p, ok := t.nodes[par]; ok {
				filtered := p.children[:0]
				for _, c := range p.children {
					if c != name {
						filtered = append(filtered, c)
					}
				}
				p.children = filtered
			}
		}
	}
	t.mu.Unlock()
	t.SetState(StateLost)
}

// SequenceOf extracts the numeric suffix appended to an
// ephemeral-sequential node's name, for tests that need to assert
// contender ordering directly.
func SequenceOf(createdPath string) (int, error) {
	name := createdPath[strings.LastIndex(createdPath, "/")+1:]
	if len(name) < 10 {
		return 0, errors.Newf("path %q has no sequence suffix", createdPath)
	}
	return strconv.Atoi(name[len(name)-10:])
}
