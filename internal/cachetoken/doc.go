// Package cachetoken implements the federation's cache coherence marker:
// one opaque, monotonically increasing token that every successful store
// mutation advances, and that readers of cached aggregate data compare
// against to decide whether to discard their cache.
//
// # Design
//
// The token is deliberately coarse. It is derived from wall-clock time,
// concurrent invalidations are last-write-wins, and there is no promise
// that readers learn about an invalidation promptly. Staleness windows
// persist until a reader's next natural refresh. That trade-off is cheap
// and accepted; the token is a liveness signal, not a correctness-
// critical ordering primitive.
//
// Two State implementations exist behind one injectable accessor:
//
//	ProcessState  in-memory, single registry process (default)
//	RedisState    shared via Redis for multi-process registries
//
// Tests substitute ProcessState (or miniredis behind RedisState) for the
// process-wide instance.
//
// # Invalidation Path
//
// A store service mutation never blocks on coherence. Invalidator.Notify
// launches a background call to the registry's invalidateCache action
// with its own timeout; failure is logged and dropped, never retried,
// never surfaced to the mutating caller.
package cachetoken
