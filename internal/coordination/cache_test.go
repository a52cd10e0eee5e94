package coordination

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/scionproto/zkcoord/internal/coordination/fake"
)

func newConnectedCache(t *testing.T, handler func([][]byte) error) (*Client, *SharedCache, *fake.Transport) {
	t.Helper()
	c, tr := newTestClient(t)
	tr.SetState(fake.StateConnected)
	waitFor(t, time.Second, c.Connected)
	cache := c.NewSharedCache("cache", handler)
	return c, cache, tr
}

// TestCacheStoreThenProcessDeliversOnce covers the round-trip law: a
// single Store by a writer handle followed by Process on a separate reader
// handle for the same cache path delivers the entry exactly once, and a
// second Process with no new writes delivers nothing. (A handle's own
// writes are recorded from its FIFO before the store is listed, so they
// are not delivered to its own handler.)
func TestCacheStoreThenProcessDeliversOnce(t *testing.T) {
	var delivered [][]byte
	c, cache, _ := newConnectedCache(t, func(batch [][]byte) error {
		delivered = append(delivered, batch...)
		return nil
	})
	writer := c.NewSharedCache("cache", nil)

	if err := writer.Store(context.Background(), "entry", []byte("v1")); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := cache.Process(context.Background()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(delivered) != 1 || string(delivered[0]) != "v1" {
		t.Fatalf("delivered = %v, want [v1]", delivered)
	}

	if err := cache.Process(context.Background()); err != nil {
		t.Fatalf("second Process: %v", err)
	}
	if len(delivered) != 1 {
		t.Fatalf("delivered after second Process = %v, want unchanged", delivered)
	}
}

// TestCacheOverwriteKeepsFirstSeenTimestamp covers the invariant that a
// second Store to an existing name updates the payload but must not reset
// the entry's first-seen timestamp (it is only set once, on discovery).
func TestCacheOverwriteKeepsFirstSeenTimestamp(t *testing.T) {
	base := time.Unix(1000, 0)
	now := base
	_, cache, _ := newConnectedCache(t, nil)
	cache.clock = func() time.Time { return now }

	if err := cache.Store(context.Background(), "entry", []byte("v1")); err != nil {
		t.Fatalf("Store v1: %v", err)
	}
	if err := cache.Process(context.Background()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	ts1, ok := cache.firstSeen("entry")
	if !ok {
		t.Fatalf("entry not tracked after first Process")
	}

	now = base.Add(5 * time.Second)
	if err := cache.Store(context.Background(), "entry", []byte("v2")); err != nil {
		t.Fatalf("Store v2: %v", err)
	}
	if err := cache.Process(context.Background()); err != nil {
		t.Fatalf("second Process: %v", err)
	}
	ts2, ok := cache.firstSeen("entry")
	if !ok {
		t.Fatalf("entry not tracked after second Process")
	}
	if !ts1.Equal(ts2) {
		t.Fatalf("first-seen timestamp changed on overwrite: %v -> %v", ts1, ts2)
	}

	got, err := cache.client.transport.Get(context.Background(), cache.path+"/entry")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "v2" {
		t.Fatalf("stored payload = %q, want v2 (overwrite must still take effect)", got)
	}
}

// TestCacheExpiryLiteralTiming implements the exact t=0/t=5/t=6 scenario
// from SPEC_FULL.md §8: "old" stored at t=0, "new" stored at t=5, Expire
// called at t=6 with ttl=3s must remove "old" but keep "new".
func TestCacheExpiryLiteralTiming(t *testing.T) {
	base := time.Unix(2000, 0)
	now := base
	_, cache, _ := newConnectedCache(t, nil)
	cache.clock = func() time.Time { return now }

	if err := cache.Store(context.Background(), "old", []byte("o")); err != nil {
		t.Fatalf("Store old: %v", err)
	}
	if err := cache.Process(context.Background()); err != nil {
		t.Fatalf("Process at t=0: %v", err)
	}

	now = base.Add(5 * time.Second)
	if err := cache.Store(context.Background(), "new", []byte("n")); err != nil {
		t.Fatalf("Store new: %v", err)
	}
	if err := cache.Process(context.Background()); err != nil {
		t.Fatalf("Process at t=5: %v", err)
	}

	now = base.Add(6 * time.Second)
	if err := cache.Expire(context.Background(), 3*time.Second); err != nil {
		t.Fatalf("Expire at t=6: %v", err)
	}

	if _, err := cache.client.transport.Get(context.Background(), cache.path+"/old"); !isNoNode(err) {
		t.Fatalf("old entry still present after expiry, err=%v", err)
	}
	if _, err := cache.client.transport.Get(context.Background(), cache.path+"/new"); err != nil {
		t.Fatalf("new entry removed too early: %v", err)
	}
}

// TestCacheSetDifferenceDiscoversAndPrunes covers the core Process
// invariant: entries added out-of-band (written directly to the store, as
// another maintainer instance would) are discovered, and entries removed
// out-of-band are pruned from the local timestamp map.
func TestCacheSetDifferenceDiscoversAndPrunes(t *testing.T) {
	var delivered [][]byte
	_, cache, tr := newConnectedCache(t, func(batch [][]byte) error {
		delivered = append(delivered, batch...)
		return nil
	})

	if err := cache.client.EnsurePath(context.Background(), "cache", false); err != nil {
		t.Fatalf("EnsurePath: %v", err)
	}
	if _, err := tr.Create(context.Background(), cache.path+"/external", []byte("ext"), ModePersistent, true); err != nil {
		t.Fatalf("Create external: %v", err)
	}

	if err := cache.Process(context.Background()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(delivered) != 1 || string(delivered[0]) != "ext" {
		t.Fatalf("delivered = %v, want [ext]", delivered)
	}
	if _, ok := cache.firstSeen("external"); !ok {
		t.Fatalf("external entry not tracked after discovery")
	}

	if err := tr.Delete(context.Background(), cache.path+"/external"); err != nil {
		t.Fatalf("Delete external: %v", err)
	}
	if err := cache.Process(context.Background()); err != nil {
		t.Fatalf("Process after external delete: %v", err)
	}
	if _, ok := cache.firstSeen("external"); ok {
		t.Fatalf("external entry still tracked after being removed from the store")
	}
}

// TestCacheConcurrentStoreRace covers the "race on creation" scenario:
// two concurrent Store calls to the same new name must both succeed, with
// exactly one value surviving at the store.
func TestCacheConcurrentStoreRace(t *testing.T) {
	_, cache, _ := newConnectedCache(t, nil)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs[0] = cache.Store(context.Background(), "dup", []byte("from-a"))
	}()
	go func() {
		defer wg.Done()
		errs[1] = cache.Store(context.Background(), "dup", []byte("from-b"))
	}()
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("Store[%d]: %v", i, err)
		}
	}

	got, err := cache.client.transport.Get(context.Background(), cache.path+"/dup")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "from-a" && string(got) != "from-b" {
		t.Fatalf("stored value = %q, want one of the two writers' payloads", got)
	}
}
