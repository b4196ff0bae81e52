// Package registry implements the federation's central directory: the
// mapping from tenant identifiers to remote store service endpoints.
// See doc.go for complete package documentation.
package registry

import (
	"sync"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"

	"github.com/dreamware/bazar/internal/federation"
	"github.com/dreamware/bazar/internal/rowstore"
)

// EndpointSchema is the directory's own persisted store layout. The
// schema is fixed: {id, name, storeRef, endpointURL, imageURL}.
var EndpointSchema = rowstore.MustSchema("id",
	rowstore.FieldDef{Name: "id", Default: ""},
	rowstore.FieldDef{Name: "name", Default: ""},
	rowstore.FieldDef{Name: "storeRef", Default: ""},
	rowstore.FieldDef{Name: "endpointURL", Default: ""},
	rowstore.FieldDef{Name: "imageURL", Default: ""},
)

// Directory holds the registered endpoint descriptors in registration
// order. The order is significant: it is the merge order the fan-out
// aggregator preserves.
//
// Writes are rare and operator-driven; descriptors are created at
// onboarding, mutated only by operator edits, and never auto-deleted.
// A register for an existing tenant id overwrites the descriptor in
// place without disturbing its position.
//
// Thread safety: all methods are safe for concurrent use. Reads take a
// shared lock and return copies; no lock is held during store I/O beyond
// what the rowstore itself takes.
type Directory struct {
	mu        sync.RWMutex
	endpoints []federation.EndpointDescriptor
	store     *rowstore.Store
	log       *zap.Logger
}

// NewDirectory builds a directory backed by the given store, replaying
// any persisted descriptors in their original registration order.
// A nil store keeps the directory purely in memory.
func NewDirectory(store *rowstore.Store, log *zap.Logger) *Directory {
	d := &Directory{store: store, log: log}
	if store == nil {
		return d
	}
	for _, rec := range store.List("", "") {
		d.endpoints = append(d.endpoints, descriptorFromRecord(rec))
	}
	if len(d.endpoints) > 0 {
		log.Info("endpoint directory loaded", zap.Int("endpoints", len(d.endpoints)))
	}
	return d
}

// List returns all registered descriptors in registration order.
func (d *Directory) List() []federation.EndpointDescriptor {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]federation.EndpointDescriptor, len(d.endpoints))
	copy(out, d.endpoints)
	return out
}

// Resolve returns the descriptor for a tenant id, or NotFound.
func (d *Directory) Resolve(tenantID string) (federation.EndpointDescriptor, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	idx := slices.IndexFunc(d.endpoints, func(e federation.EndpointDescriptor) bool {
		return e.TenantID == tenantID
	})
	if idx < 0 {
		return federation.EndpointDescriptor{}, federation.Errf(federation.KindNotFound,
			"no endpoint registered for tenant %s", tenantID)
	}
	return d.endpoints[idx], nil
}

// Register adds a descriptor or overwrites the existing one with the
// same tenant id. There is no uniqueness check beyond the tenant id
// being the key.
func (d *Directory) Register(desc federation.EndpointDescriptor) error {
	if desc.TenantID == "" || desc.EndpointURL == "" {
		return federation.Errf(federation.KindValidation,
			"endpoint registration requires id and endpointURL")
	}

	d.mu.Lock()
	idx := slices.IndexFunc(d.endpoints, func(e federation.EndpointDescriptor) bool {
		return e.TenantID == desc.TenantID
	})
	existing := idx >= 0
	if existing {
		d.endpoints[idx] = desc
	} else {
		d.endpoints = append(d.endpoints, desc)
	}
	d.mu.Unlock()

	if d.store != nil {
		var err error
		if existing {
			err = d.store.Update(desc.TenantID, recordFromDescriptor(desc))
		} else {
			_, err = d.store.Append(recordFromDescriptor(desc))
		}
		if err != nil {
			return err
		}
	}

	d.log.Info("endpoint registered",
		zap.String("tenant", desc.TenantID),
		zap.String("endpoint", desc.EndpointURL),
		zap.Bool("overwrite", existing))
	return nil
}

func descriptorFromRecord(rec rowstore.Record) federation.EndpointDescriptor {
	str := func(k string) string { s, _ := rec[k].(string); return s }
	return federation.EndpointDescriptor{
		TenantID:    str("id"),
		DisplayName: str("name"),
		StoreRef:    str("storeRef"),
		EndpointURL: str("endpointURL"),
		ImageURL:    str("imageURL"),
	}
}

func recordFromDescriptor(desc federation.EndpointDescriptor) rowstore.Record {
	return rowstore.Record{
		"id":          desc.TenantID,
		"name":        desc.DisplayName,
		"storeRef":    desc.StoreRef,
		"endpointURL": desc.EndpointURL,
		"imageURL":    desc.ImageURL,
	}
}
