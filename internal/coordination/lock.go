package coordination

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"
)

// Lock is a split-brain-safe distributed mutual-exclusion primitive (§4.3).
// A lock is considered held only while connected, acquired, and the epoch
// recorded at acquisition still matches the client's current epoch; any
// observed connection flap invalidates a held lock even if the session
// technically survived, per the conservative Open-Question resolution
// recorded in DESIGN.md.
type Lock struct {
	client  *Client
	path    string
	address string
	logger  *zap.SugaredLogger

	mu            sync.Mutex
	acquired      bool
	epoch         uint64
	contenderPath string
}

func newLock(c *Client, path string) *Lock {
	return &Lock{
		client:  c,
		path:    path,
		address: c.identity.String(),
		logger:  c.logger,
	}
}

// TryAcquire attempts to become the sole holder of the lock. It returns
// true immediately if this Lock already holds it. Otherwise it waits up to
// connTimeout for the client to be connected, records the client's current
// epoch, then contends for the lowest-sequence contender node for up to
// lockTimeout (or indefinitely if lockTimeout <= 0).
func (l *Lock) TryAcquire(ctx context.Context, lockTimeout, connTimeout time.Duration) (bool, error) {
	// HaveLock re-validates connected && acquired && epoch == current
	// epoch, and self-demotes on failure — so this fast path never claims
	// to hold the lock across a connection flap that invalidated it.
	if l.HaveLock() {
		return true, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, connTimeout)
	err := l.client.WaitConnected(waitCtx)
	cancel()
	if err != nil {
		return false, ErrNoConnection
	}

	epoch := l.client.Epoch()

	acquireCtx := ctx
	var acquireCancel context.CancelFunc
	if lockTimeout > 0 {
		acquireCtx, acquireCancel = context.WithTimeout(ctx, lockTimeout)
		defer acquireCancel()
	}

	created, err := l.client.transport.Create(acquireCtx, l.path+"/c-", nil, ModeEphemeralSequential, true)
	if err != nil {
		if acquireCtx.Err() != nil {
			return false, nil
		}
		return false, wrapTransportErr(err)
	}

	seq, parseErr := parseSequence(created)
	if parseErr != nil {
		return false, wrapTransportErr(parseErr)
	}
	contenderID := l.client.identity.InstanceID + "\x00" + strconv.Itoa(seq) + "\x00" + l.address
	if err := l.client.transport.Set(acquireCtx, created, []byte(contenderID)); err != nil {
		return false, wrapTransportErr(err)
	}

	for {
		children, err := l.client.transport.Children(acquireCtx, l.path)
		if err != nil {
			return false, wrapTransportErr(err)
		}
		sortContenders(children)

		if len(children) == 0 {
			return false, ErrNoConnection
		}
		if l.path+"/"+children[0] == created {
			l.mu.Lock()
			l.acquired = true
			l.epoch = epoch
			l.contenderPath = created
			l.mu.Unlock()
			l.logger.Infow("lock acquired", "path", l.path, "epoch", epoch)
			return true, nil
		}

		select {
		case <-acquireCtx.Done():
			_ = l.client.transport.Delete(context.Background(), created)
			return false, nil
		case <-time.After(20 * time.Millisecond):
		}
	}
}

// Release clears the acquired bit locally first (so HaveLock reflects
// reality immediately even if the subsequent store delete is slow or
// fails) and then best-effort deletes the contender node. A NoNode error
// during the store delete is swallowed: the ephemeral node may already
// have been cleaned up by a session loss.
func (l *Lock) Release(ctx context.Context) error {
	l.mu.Lock()
	contenderPath := l.contenderPath
	l.acquired = false
	l.contenderPath = ""
	l.mu.Unlock()

	if contenderPath == "" {
		return nil
	}
	if !l.client.Connected() {
		return nil
	}
	err := l.client.transport.Delete(ctx, contenderPath)
	if err != nil && !isNoNode(err) {
		return wrapTransportErr(err)
	}
	return nil
}

// HaveLock evaluates the held-lock invariant: connected && acquired &&
// epoch == current epoch. If the invariant does not hold, it runs the
// local side of Release (clearing the acquired bit) so a stale holder
// self-demotes the instant it is asked, rather than waiting for its next
// explicit Release call. This is the mechanism that prevents split-brain
// after a session flap.
func (l *Lock) HaveLock() bool {
	l.mu.Lock()
	acquired := l.acquired
	lockEpoch := l.epoch
	l.mu.Unlock()

	if acquired && l.client.Connected() && lockEpoch == l.client.Epoch() {
		return true
	}

	l.mu.Lock()
	wasAcquired := l.acquired
	l.acquired = false
	contenderPath := l.contenderPath
	l.contenderPath = ""
	l.mu.Unlock()

	if wasAcquired {
		l.logger.Infow("lock: epoch invalidated, self-demoting", "path", l.path)
		_ = contenderPath
	}
	return false
}

// Holder returns the address of the current lock holder, or "" if there
// are no contenders.
func (l *Lock) Holder(ctx context.Context) (string, error) {
	children, err := l.client.transport.Children(ctx, l.path)
	if err != nil {
		return "", wrapTransportErr(err)
	}
	if len(children) == 0 {
		return "", nil
	}
	sortContenders(children)

	data, err := l.client.transport.Get(ctx, l.path+"/"+children[0])
	if err != nil {
		return "", wrapTransportErr(err)
	}
	fields := strings.Split(string(data), "\x00")
	if len(fields) != 3 {
		return "", nil
	}
	return fields[2], nil
}

func parseSequence(createdPath string) (int, error) {
	name := createdPath[strings.LastIndex(createdPath, "/")+1:]
	if len(name) < 10 {
		return 0, ErrNoNode
	}
	return strconv.Atoi(name[len(name)-10:])
}

// sortContenders orders contender node names by their numeric sequence
// suffix, ascending — the store's own insertion order for sequential
// nodes, made explicit so callers don't rely on lexical string sort
// (which breaks once sequence numbers exceed the zero-padding width).
func sortContenders(names []string) {
	slices.SortFunc(names, func(a, b string) int {
		return sequenceSuffix(a) - sequenceSuffix(b)
	})
}

func sequenceSuffix(name string) int {
	if len(name) < 10 {
		return 0
	}
	n, err := strconv.Atoi(name[len(name)-10:])
	if err != nil {
		return 0
	}
	return n
}
