// Package shadow implements the shadow synchronization engine.
//
// A shadow is a remote, eventually-consistent mirror of one device's state,
// split into a reported sub-document (device-asserted) and a desired
// sub-document (caller-asserted intent). The shadow is reachable only over
// an asynchronous publish/subscribe transport; this package turns it into a
// synchronous-looking local object that consumers can read and mutate.
//
// # Components
//
//   - Merge: pure recursive merge of a partial change document into a base.
//   - Registry: one-shot correlation of request tokens to pending waiters.
//   - Session: bridges one transport attachment's event stream into the
//     cached merged document, processing events strictly in arrival order.
//   - Serializer: funnels all outbound mutations through a single worker so
//     at most one update is in flight per device, in submission order.
//   - Device: the public facade combining the above with a broadcast stream
//     of the merged document.
//
// # Concurrency
//
// All cache mutation happens inside the Session's single processing loop;
// the cached document is replaced wholesale on every publish, never mutated
// in place. The Serializer's worker goroutine makes the one-in-flight
// invariant structural: submission N+1 is not read from the queue until
// submission N has reached a terminal outcome (acknowledged, failed, or
// timed out).
//
// # Usage
//
//	dev, err := shadow.NewDevice(shadow.Identity{ThingID: "tap-kitchen"}, conn, opts)
//	doc, err := dev.CurrentState(ctx)          // suspends until first snapshot
//	result := <-dev.Update(shadow.Document{...}) // queued, serialized
package shadow
