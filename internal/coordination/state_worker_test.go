package coordination

import (
	"context"
	"testing"
	"time"

	"github.com/scionproto/zkcoord/internal/coordination/fake"
)

func testIdentity() Identity {
	return Identity{ISDAS: "1-ff00:0:110", ServiceType: "test_server", InstanceID: "t1"}
}

func newTestClient(t *testing.T) (*Client, *fake.Transport) {
	t.Helper()
	tr := fake.New()
	c := NewClient(testIdentity(), Config{}, tr, nil)
	t.Cleanup(func() { _ = c.Close() })
	return c, tr
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

// TestEpochMonotonicity covers §8.1: the epoch after N observed transitions
// equals N, counting every dispatched transition (CONNECTED, SUSPENDED, and
// LOST alike), not just CONNECTED ones.
func TestEpochMonotonicity(t *testing.T) {
	c, tr := newTestClient(t)

	for i := 1; i <= 5; i++ {
		tr.SetState(fake.StateConnected)
		waitFor(t, time.Second, func() bool { return c.Epoch() == uint64(2*i-1) })
		tr.SetState(fake.StateSuspended)
		waitFor(t, time.Second, func() bool { return c.Epoch() == uint64(2*i) && !c.Connected() })
	}
}

func TestConnectedClearedOnSuspendAndLost(t *testing.T) {
	c, tr := newTestClient(t)

	tr.SetState(fake.StateConnected)
	waitFor(t, time.Second, c.Connected)

	tr.SetState(fake.StateSuspended)
	waitFor(t, time.Second, func() bool { return !c.Connected() })

	tr.SetState(fake.StateConnected)
	waitFor(t, time.Second, c.Connected)

	tr.SetState(fake.StateLost)
	waitFor(t, time.Second, func() bool { return !c.Connected() })
}

func TestWaitConnectedRespectsContextTimeout(t *testing.T) {
	c, _ := newTestClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.WaitConnected(ctx)
	if err != ErrNoConnection {
		t.Fatalf("WaitConnected() = %v, want ErrNoConnection", err)
	}
}

func TestDuplicateStateIsDropped(t *testing.T) {
	c, tr := newTestClient(t)

	tr.SetState(fake.StateConnected)
	waitFor(t, time.Second, func() bool { return c.Epoch() == 1 })

	// A second CONNECTED in a row (no intervening SUSPEND/LOST) must not
	// bump the epoch again.
	tr.SetState(fake.StateConnected)
	time.Sleep(50 * time.Millisecond)
	if c.Epoch() != 1 {
		t.Fatalf("epoch = %d, want 1 (duplicate CONNECTED should be dropped)", c.Epoch())
	}
}
