// Package slugdir implements the alias directory: short human-readable
// slugs mapped to tenant identifiers, with per-alias visit counting and
// time-bucketed statistics.
//
// The directory is a thin layer over two rowstore stores sharing the
// row-store primitive with the rest of the federation:
//
//	slugs   {businessId, slug, createdAt, visits}   keyed by tenant
//	visits  {eventId, businessId, timestamp}        append-only
//
// Alias uniqueness holds only among currently active bindings: a tenant
// rebinding its alias overwrites the binding in place, the old alias
// value is lost, and the visit count carries forward. Resolving an alias
// increments the counter and appends one visit event; statistics are
// derived purely from the event log, seven zero-initialized calendar-day
// buckets at a time.
//
// Visit-count increments are ordered only within one directory instance.
// Parallel instances resolving the same alias can lose an increment;
// that looseness is accepted, the event log remains complete either way.
package slugdir
