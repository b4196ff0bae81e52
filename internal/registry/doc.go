// Package registry implements the central directory of the Bazar
// federation, mapping logical tenant identifiers to the remote store
// service endpoints that own their data.
//
// # Overview
//
// Every tenant (a category or business) runs its own store service. The
// registry is the only component that knows where they all live: it
// resolves a tenant id to one endpoint for direct proxying, and hands
// the full registration-ordered endpoint set to the aggregator for
// fan-out reads.
//
// # Components
//
// Directory: the endpoint descriptor table
//   - Registration-ordered; the order is the aggregator's merge order
//   - Upsert by tenant id, operator-driven, never auto-deleted
//   - Persisted through a rowstore with the fixed schema
//     {id, name, storeRef, endpointURL, imageURL}
//   - No concurrency control beyond an RWMutex: writes are rare and
//     overwrite in place by key
//
// HealthMonitor: advisory endpoint probing
//   - Probes each endpoint's /health on a configurable interval
//   - Marks an endpoint unhealthy after 3 consecutive failures and
//     fires a one-shot callback on the transition
//   - Advisory only: the aggregator still dispatches to unhealthy
//     endpoints and lets its per-call timeout absorb the failure
//
// # Failure Handling
//
// Resolution misses are NotFound tagged errors; registration without an
// id or URL is a Validation error. Probe failures never remove a
// descriptor; only operators mutate the directory.
//
// # See Also
//
// Related packages:
//   - internal/aggregate: fan-out over the directory's endpoint set
//   - internal/federation: the shared descriptor and error types
package registry
