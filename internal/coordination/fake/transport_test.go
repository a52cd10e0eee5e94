package fake

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
)

func TestCreateGetRoundTrip(t *testing.T) {
	tr := New()
	defer tr.Close()

	if err := tr.EnsurePath(context.Background(), "/a/b"); err != nil {
		t.Fatalf("EnsurePath: %v", err)
	}
	path, err := tr.Create(context.Background(), "/a/b/node", []byte("hello"), ModePersistent, false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if path != "/a/b/node" {
		t.Fatalf("Create path = %q, want /a/b/node", path)
	}

	got, err := tr.Get(context.Background(), "/a/b/node")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("Get = %q, want hello", got)
	}
}

func TestCreateDuplicatePersistentFails(t *testing.T) {
	tr := New()
	defer tr.Close()

	if _, err := tr.Create(context.Background(), "/x", []byte("1"), ModePersistent, true); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if _, err := tr.Create(context.Background(), "/x", []byte("2"), ModePersistent, true); !errIsNodeExists(err) {
		t.Fatalf("second Create err = %v, want NodeExists", err)
	}
}

func TestEphemeralSequentialOrdering(t *testing.T) {
	tr := New()
	defer tr.Close()

	if err := tr.EnsurePath(context.Background(), "/lock"); err != nil {
		t.Fatalf("EnsurePath: %v", err)
	}

	var created []string
	for i := 0; i < 3; i++ {
		path, err := tr.Create(context.Background(), "/lock/c-", nil, ModeEphemeralSequential, false)
		if err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
		created = append(created, path)
	}

	for i := 1; i < len(created); i++ {
		seqPrev, err := SequenceOf(created[i-1])
		if err != nil {
			t.Fatalf("SequenceOf: %v", err)
		}
		seqNext, err := SequenceOf(created[i])
		if err != nil {
			t.Fatalf("SequenceOf: %v", err)
		}
		if seqNext <= seqPrev {
			t.Fatalf("sequence did not increase monotonically: %d then %d", seqPrev, seqNext)
		}
	}

	children, err := tr.Children(context.Background(), "/lock")
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	if len(children) != 3 {
		t.Fatalf("children = %v, want 3 entries", children)
	}
}

func TestDeleteRemovesFromParentChildren(t *testing.T) {
	tr := New()
	defer tr.Close()

	if _, err := tr.Create(context.Background(), "/x", []byte("1"), ModePersistent, true); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := tr.Delete(context.Background(), "/x"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := tr.Get(context.Background(), "/x"); !errIsNoNode(err) {
		t.Fatalf("Get after delete err = %v, want NoNode", err)
	}
	children, err := tr.Children(context.Background(), "/")
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	for _, c := range children {
		if c == "x" {
			t.Fatalf("deleted node %q still listed among /'s children", c)
		}
	}
}

func TestExpireSessionRemovesEphemeralsAndEmitsLost(t *testing.T) {
	tr := New()
	defer tr.Close()

	if _, err := tr.Create(context.Background(), "/persist", []byte("1"), ModePersistent, true); err != nil {
		t.Fatalf("Create persistent: %v", err)
	}
	if _, err := tr.Create(context.Background(), "/eph", []byte("1"), ModeEphemeral, true); err != nil {
		t.Fatalf("Create ephemeral: %v", err)
	}

	tr.ExpireSession()

	if _, err := tr.Get(context.Background(), "/persist"); err != nil {
		t.Fatalf("persistent node removed by session expiry: %v", err)
	}
	if _, err := tr.Get(context.Background(), "/eph"); !errIsNoNode(err) {
		t.Fatalf("ephemeral node survived session expiry: err=%v", err)
	}

	select {
	case s := <-tr.Events():
		if s != StateLost {
			t.Fatalf("event = %v, want StateLost", s)
		}
	default:
		t.Fatalf("no event emitted by ExpireSession")
	}
}

func errIsNodeExists(err error) bool {
	return errors.Is(err, ErrNodeExists)
}

func errIsNoNode(err error) bool {
	return errors.Is(err, ErrNoNode)
}
