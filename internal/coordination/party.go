package coordination

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Party is an ephemeral membership set at a fixed store path. Construction
// optionally joins immediately; afterward the owning client's state worker
// re-invokes autojoin on every CONNECTED transition, so a party that
// survived a reconnect (or one whose ephemeral member node was dropped by
// a session loss) is always re-asserted once the client is usable again.
type Party struct {
	client   *Client
	path     string
	memberID string
	autoJoin bool
	logger   *zap.SugaredLogger

	mu      sync.Mutex
	joined  bool
	memberN string // actual created node name, once joined
}

func newParty(c *Client, path, memberID string, autojoin bool) *Party {
	p := &Party{
		client:   c,
		path:     path,
		memberID: memberID,
		autoJoin: autojoin,
		logger:   c.logger,
	}
	if autojoin {
		p.autojoin()
	}
	return p
}

// autojoin asserts membership if this party was constructed with
// autojoin=true. It is idempotent: calling it while already joined is a
// no-op, and calling it after a prior ephemeral member was dropped
// re-creates it. It never blocks on the connected condition — it is only
// ever called either at construction time or from the state worker's own
// goroutine on a CONNECTED transition, and both contexts require a
// best-effort, non-blocking attempt.
func (p *Party) autojoin() {
	if !p.autoJoin {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	created, err := p.client.transport.Create(ctx, p.path+"/"+p.memberID, nil, ModeEphemeral, true)
	if err != nil {
		if isNodeExists(err) {
			// Another session already holds our member name (a
			// just-expired session's ephemeral hasn't been reaped yet).
			// Idempotent re-join treats this as already-joined.
			p.joined = true
			p.memberN = p.path + "/" + p.memberID
			return
		}
		p.logger.Warnw("party: autojoin failed", "path", p.path, "member", p.memberID, "error", err)
		return
	}
	p.joined = true
	p.memberN = created
	p.logger.Infow("party: joined", "path", p.path, "member", p.memberID)
}

// Join explicitly asserts membership, regardless of the autojoin flag.
// Safe to call repeatedly.
func (p *Party) Join(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	created, err := p.client.transport.Create(ctx, p.path+"/"+p.memberID, nil, ModeEphemeral, true)
	if err != nil {
		if isNodeExists(err) {
			p.joined = true
			p.memberN = p.path + "/" + p.memberID
			return nil
		}
		return wrapTransportErr(err)
	}
	p.joined = true
	p.memberN = created
	return nil
}

// List returns the current set of member identifiers. It is a pure read
// against the store and carries no local caching: two calls in a row may
// observe different membership as peers join and leave.
func (p *Party) List(ctx context.Context) ([]string, error) {
	children, err := p.client.transport.Children(ctx, p.path)
	if err != nil {
		return nil, wrapTransportErr(err)
	}
	return children, nil
}
