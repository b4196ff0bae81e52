// Package aggregate implements the federation's fan-out read path:
// querying every registered store service concurrently and merging the
// results while tolerating partial failure.
//
// # Contract
//
// One sub-request is issued per endpoint, each on its own goroutine with
// its own timeout derived from the caller's context. An endpoint that
// errors, times out, or returns a malformed payload contributes an empty
// partial result and is marked failed in the per-endpoint status slice;
// it never aborts the overall call. The call completes once every
// sub-request has settled, so total latency is bounded by the
// per-endpoint timeout, not by the slowest endpoint indefinitely, and
// never by the sum of timeouts.
//
// Two call shapes exist:
//
//	List    merge = concatenation of row arrays, in endpoint order:
//	        not sorted, not deduplicated
//	Scalar  merge = one {tenantId, value, available} per endpoint, a
//	        failed endpoint keeping a distinguishable unavailable
//	        marker rather than a coerced zero
//
// # Schema Divergence
//
// Tenant stores of different categories spell the display-name column
// differently (itemName, productName, title). The merge folds the first
// non-empty of the precedence list {name, itemName, productName, title}
// into the canonical "name" key and stamps each row with the owning
// tenant's id. Nothing else is reconciled.
//
// # Ownership
//
// The aggregator owns no persistent state; it is a pure orchestration
// layer over the remote stores and the registry's endpoint order.
package aggregate
