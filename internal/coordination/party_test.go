package coordination

import (
	"context"
	"testing"
	"time"

	"github.com/scionproto/zkcoord/internal/coordination/fake"
)

func TestAutojoinIdempotence(t *testing.T) {
	c, tr := newTestClient(t)

	tr.SetState(fake.StateConnected)
	waitFor(t, time.Second, c.Connected)

	p := c.NewParty("", c.Identity().String(), true)

	members, err := p.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("members = %v, want exactly one", members)
	}

	// Multiple CONNECTED transitions (flapping) must not duplicate the
	// member entry.
	for i := 0; i < 3; i++ {
		tr.SetState(fake.StateSuspended)
		waitFor(t, time.Second, func() bool { return !c.Connected() })
		tr.SetState(fake.StateConnected)
		waitFor(t, time.Second, c.Connected)
	}

	members, err = p.List(context.Background())
	if err != nil {
		t.Fatalf("List after flapping: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("members after flapping = %v, want exactly one", members)
	}
	if members[0] != p.memberID {
		t.Fatalf("member = %q, want %q", members[0], p.memberID)
	}
}

func TestAutojoinAfterSessionLoss(t *testing.T) {
	c, tr := newTestClient(t)

	tr.SetState(fake.StateConnected)
	waitFor(t, time.Second, c.Connected)

	p := c.NewParty("", c.Identity().String(), true)
	waitFor(t, time.Second, func() bool {
		members, _ := p.List(context.Background())
		return len(members) == 1
	})

	// Session lost: ephemeral member node is reaped by the store.
	tr.ExpireSession()
	waitFor(t, time.Second, func() bool { return !c.Connected() })

	members, _ := p.List(context.Background())
	if len(members) != 0 {
		t.Fatalf("members after session loss = %v, want none", members)
	}

	// Reconnect: autojoin must re-assert membership exactly once.
	tr.SetState(fake.StateConnected)
	waitFor(t, time.Second, func() bool {
		members, _ := p.List(context.Background())
		return len(members) == 1
	})
}
