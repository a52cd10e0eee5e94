// Package coordination implements the distributed coordination layer shared
// by every service instance in a deployment: membership parties, a
// split-brain-safe distributed lock, and a gossip-style shared cache with
// per-entry TTL expiry, all built on a Zookeeper-like hierarchical store.
//
// # Architecture
//
//	   ┌─────────────────────────────────────────────────────────┐
//	   │                     transport (interface)                │
//	   │      zkadapter.Adapter (real)  /  fake.Transport (test)  │
//	   └──────────────────────────┬────────────────────────────────┘
//	                              │ state events
//	                              ▼
//	                    ┌───────────────────┐
//	                    │   stateWorker     │  debounces flaps,
//	                    │  (own goroutine)  │  bumps epoch, fires hooks
//	                    └─────────┬─────────┘
//	                              │ connected / epoch
//	           ┌──────────────────┼──────────────────┐
//	           ▼                  ▼                  ▼
//	        Lock               Party              SharedCache
//	   (epoch-checked        (autojoin on        (store / process /
//	    mutual exclusion)     reconnect)           expire)
//
// The client is the single owner of the transport session. Every other type
// in this package (Lock, Party, SharedCache) is a thin, epoch-aware view
// over that session and is safe to keep around for the lifetime of the
// client — none of them reconnect on their own.
//
// Callers that only need "run this operation once I'm connected, retrying
// on transient connection loss" should use Retry instead of composing
// WaitConnected loops by hand.
package coordination
