// Package federation defines the shared vocabulary of the Bazar federation:
// the wire types exchanged between the registry and tenant store services,
// the uniform JSON response envelope, the tagged error taxonomy, and the
// HTTP helpers every component uses for outbound calls.
//
// # Overview
//
// Bazar is a coordinator-based federation. A central registry maps tenant
// identifiers to independently deployed store services and fans read
// requests out across them. This package holds everything both sides of
// that boundary must agree on, and nothing else: no component state lives
// here.
//
// # Architecture
//
//	              ┌──────────────┐
//	              │   Registry   │
//	              │              │
//	              │ - Directory  │
//	              │ - Aggregator │
//	              │ - Slug dir   │
//	              └──────┬───────┘
//	                     │
//	      ┌──────────────┼──────────────┐
//	      │              │              │
//	┌─────▼─────┐  ┌─────▼─────┐  ┌─────▼─────┐
//	│ Store T1  │  │ Store T2  │  │ Store T3  │
//	│ items     │  │ items     │  │ items     │
//	│ orders    │  │ orders    │  │ orders    │
//	└───────────┘  └───────────┘  └───────────┘
//
// # Wire Protocol
//
// All traffic is HTTP/JSON. Read-only operations are GETs carrying an
// "action" query parameter; mutating and complex read operations are POSTs
// with a Request body of the form {"action": ..., "data": ...}. Every
// response is an envelope with status "success" or "error" plus a data or
// error payload:
//
//	{"status":"success","data":[...]}
//	{"status":"error","error":"item i-42 not found"}
//
// # Error Taxonomy
//
// Failures crossing a component boundary are tagged with a Kind so that
// callers branch on the case rather than match message text:
//
//	Validation  - missing required field on create
//	NotFound    - unknown id, tenant, alias, or category
//	Conflict    - alias already owned by another tenant
//	TimeoutBusy - store lock not acquired within its bounded wait
//	Upstream    - federation target unreachable or unparseable
//	Internal    - unexpected fault
//
// WriteError translates a tagged error to its HTTP status and envelope at
// the boundary; no handler surfaces a raw panic or bare status line.
//
// # Propagation Policy
//
// Upstream errors encountered during aggregation are absorbed per endpoint
// and reported in the per-endpoint status (see internal/aggregate).
// Upstream errors on a direct single-target proxy are forwarded verbatim.
// TimeoutBusy aborts the single request with no automatic retry anywhere
// in this layer.
//
// # See Also
//
// Related packages:
//   - internal/registry: endpoint directory and health monitoring
//   - internal/aggregate: parallel fan-out and merge
//   - internal/rowstore: the per-tenant row collection
package federation
