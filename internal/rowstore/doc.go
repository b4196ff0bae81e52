// Package rowstore implements the per-tenant row collection underlying
// every Bazar store service: an ordered sequence of records sharing one
// header-defined schema, with append, update-by-id, delete-by-id, and
// filtered scan, and with all mutating operations serialized per store.
//
// # Overview
//
// Each tenant service owns one or more stores (catalog items, orders,
// slug bindings, visit events). A store's schema is a static, ordered
// table of field descriptors; appending a record fills known fields,
// applies declared defaults for omitted ones, and drops anything the
// schema does not name. Records are plain field-keyed maps so the same
// primitive serves every tenant category without per-category types.
//
// # Identifier Generation
//
// Append returns a generated identifier. Two modes exist:
//
//	random:     prefix + "-" + 8-char UUID suffix   (items, slugs, events)
//	sequential: prefix + zero-padded row count + 1  (orders)
//
// Sequential identifiers are derived from the record count observed at
// the start of the append. That count-then-append sequence is non-atomic
// under concurrent callers, so every mutating operation runs under a
// store-scoped lock with a bounded wait (default 30s). Exceeding the wait
// fails the request with TimeoutBusy rather than proceeding with a
// potentially colliding identifier. Updates and deletes take the same
// lock, which also rules out lost updates between concurrent partial
// updates of one record.
//
// # Concurrency Model
//
//	┌────────────────────────────────────────────┐
//	│                  Store                     │
//	├────────────────────────────────────────────┤
//	│ sem  chan struct{}  serializes mutations,  │
//	│                     bounded wait           │
//	│ mu   sync.RWMutex   guards the record      │
//	│                     slice for readers      │
//	├────────────────────────────────────────────┤
//	│ Append/Update/Delete: sem then mu.Lock     │
//	│ Get/List/Count:       mu.RLock only        │
//	└────────────────────────────────────────────┘
//
// Reads never wait on the mutation lock; they see either the state before
// or after any in-flight mutation, never a torn one.
//
// # Persistence
//
// The Tape interface abstracts the durable layer. The persisted layout
// mirrors the wire contract of the original services: the first persisted
// record is the header (ordered field-name list), each subsequent record
// is one row's values in header order. FileTape implements this as
// line-delimited JSON arrays with atomic rewrite via rename. A nil tape
// keeps the store purely in memory, which tests use.
//
// # Error Contract
//
// All failures carry the federation error taxonomy: NotFound for a
// missing identifier, TimeoutBusy for lock expiry, Internal for
// persistence faults. There are no sentinel errors to compare against;
// callers branch on federation.KindOf.
//
// # Usage Example
//
//	items, err := rowstore.Open(rowstore.Options{
//	    Name:     "items",
//	    Schema:   rowstore.MustSchema("itemId",
//	        rowstore.FieldDef{Name: "itemId", Default: ""},
//	        rowstore.FieldDef{Name: "itemName", Default: ""},
//	        rowstore.FieldDef{Name: "price", Default: 0},
//	    ),
//	    IDPrefix: "itm",
//	    Tape:     tape,
//	})
//	id, err := items.Append(rowstore.Record{"itemName": "Mug", "price": 12})
//
// # See Also
//
// Related packages:
//   - internal/slugdir: alias directory built on two rowstore stores
//   - internal/registry: endpoint directory persisted through a rowstore
package rowstore
