// Package zkadapter binds the coordination client's transport contract to
// a real Zookeeper ensemble via github.com/go-zookeeper/zk.
package zkadapter

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-zookeeper/zk"
	"go.uber.org/zap"

	"github.com/scionproto/zkcoord/internal/coordination"
)

// Adapter implements the transport contract consumed by
// coordination.Client against a real *zk.Conn.
type Adapter struct {
	conn   *zk.Conn
	events chan coordination.State
	logger *zap.SugaredLogger
	done   chan struct{}
}

// Dial opens a session to the given ensemble and starts the goroutine that
// drains zk's event channel into the coordination-level state channel.
// The drain goroutine never blocks on a full channel — it drops and logs
// at DEBUG instead — so it can never become the thing that blocks the
// transport thread, satisfying §4.1's non-blocking-listener requirement.
func Dial(hosts []string, sessionTimeout time.Duration, logger *zap.SugaredLogger) (*Adapter, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	conn, zkEvents, err := zk.Connect(hosts, sessionTimeout)
	if err != nil {
		return nil, errors.Wrap(err, "zkadapter: failed to dial ensemble")
	}

	a := &Adapter{
		conn:   conn,
		events: make(chan coordination.State, 16),
		logger: logger,
		done:   make(chan struct{}),
	}
	go a.drain(zkEvents)
	return a, nil
}

func (a *Adapter) drain(zkEvents <-chan zk.Event) {
	for {
		select {
		case <-a.done:
			return
		case ev, ok := <-zkEvents:
			if !ok {
				return
			}
			s, recognized := translateState(ev.State)
			if !recognized {
				continue
			}
			select {
			case a.events <- s:
			default:
				a.logger.Debugw("zkadapter: dropped state event, worker queue full", "state", s.String())
			}
		}
	}
}

// translateState maps zk's connection states onto the three-state
// taxonomy the coordination layer reasons about (§6).
func translateState(s zk.State) (coordination.State, bool) {
	switch s {
	case zk.StateHasSession, zk.StateConnected:
		return coordination.StateConnected, true
	case zk.StateConnecting, zk.StateDisconnected:
		return coordination.StateSuspended, true
	case zk.StateExpired:
		return coordination.StateLost, true
	default:
		return coordination.StateUnknown, false
	}
}

func (a *Adapter) Events() <-chan coordination.State { return a.events }

func (a *Adapter) EnsurePath(ctx context.Context, path string) error {
	if path == "" || path == "/" {
		return nil
	}
	var built string
	for _, segment := range splitPath(path) {
		built += "/" + segment
		exists, _, err := a.conn.Exists(built)
		if err != nil {
			return errors.Wrapf(err, "zkadapter: exists %s", built)
		}
		if exists {
			continue
		}
		_, err = a.conn.Create(built, nil, 0, zk.WorldACL(zk.PermAll))
		if err != nil && !errors.Is(err, zk.ErrNodeExists) {
			return errors.Wrapf(err, "zkadapter: create %s", built)
		}
	}
	return nil
}

func splitPath(path string) []string {
	var segments []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			if i > start {
				segments = append(segments, path[start:i])
			}
			start = i + 1
		}
	}
	if start < len(path) {
		segments = append(segments, path[start:])
	}
	return segments
}

func (a *Adapter) Create(ctx context.Context, path string, value []byte, mode coordination.CreateMode, makePath bool) (string, error) {
	if makePath {
		if err := a.EnsurePath(ctx, parentOf(path)); err != nil {
			return "", err
		}
	}

	var flags int32
	switch mode {
	case coordination.ModeEphemeral:
		flags = zk.FlagEphemeral
	case coordination.ModeEphemeralSequential:
		flags = zk.FlagEphemeral | zk.FlagSequence
	}

	created, err := a.conn.Create(path, value, flags, zk.WorldACL(zk.PermAll))
	if err != nil {
		if errors.Is(err, zk.ErrNodeExists) {
			return "", coordination.ErrNodeExists
		}
		return "", errors.Wrapf(err, "zkadapter: create %s", path)
	}
	return created, nil
}

func (a *Adapter) Set(ctx context.Context, path string, value []byte) error {
	_, stat, err := a.conn.Get(path)
	if err != nil {
		if errors.Is(err, zk.ErrNoNode) {
			return coordination.ErrNoNode
		}
		return errors.Wrapf(err, "zkadapter: get for set %s", path)
	}
	_, err = a.conn.Set(path, value, stat.Version)
	if err != nil {
		if errors.Is(err, zk.ErrNoNode) {
			return coordination.ErrNoNode
		}
		return errors.Wrapf(err, "zkadapter: set %s", path)
	}
	return nil
}

func (a *Adapter) Get(ctx context.Context, path string) ([]byte, error) {
	data, _, err := a.conn.Get(path)
	if err != nil {
		if errors.Is(err, zk.ErrNoNode) {
			return nil, coordination.ErrNoNode
		}
		return nil, errors.Wrapf(err, "zkadapter: get %s", path)
	}
	return data, nil
}

func (a *Adapter) Children(ctx context.Context, path string) ([]string, error) {
	children, _, err := a.conn.Children(path)
	if err != nil {
		if errors.Is(err, zk.ErrNoNode) {
			return []string{}, nil
		}
		return nil, errors.Wrapf(err, "zkadapter: children %s", path)
	}
	return children, nil
}

func (a *Adapter) Delete(ctx context.Context, path string) error {
	err := a.conn.Delete(path, -1)
	if err != nil {
		if errors.Is(err, zk.ErrNoNode) {
			return coordination.ErrNoNode
		}
		return errors.Wrapf(err, "zkadapter: delete %s", path)
	}
	return nil
}

func (a *Adapter) Close() error {
	select {
	case <-a.done:
	default:
		close(a.done)
	}
	a.conn.Close()
	return nil
}

func parentOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			if i == 0 {
				return "/"
			}
			return path[:i]
		}
	}
	return "/"
}
