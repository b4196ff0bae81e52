package slugdir

import (
	"sync"
	"time"

	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"github.com/dreamware/bazar/internal/federation"
	"github.com/dreamware/bazar/internal/rowstore"
)

// SlugSchema is the binding store header. Bindings are keyed by tenant:
// each tenant holds at most one alias, and rebinding overwrites the alias
// in place while the visit count carries forward.
var SlugSchema = rowstore.MustSchema("businessId",
	rowstore.FieldDef{Name: "businessId", Default: ""},
	rowstore.FieldDef{Name: "slug", Default: ""},
	rowstore.FieldDef{Name: "createdAt", Default: ""},
	rowstore.FieldDef{Name: "visits", Default: 0},
)

// VisitSchema is the append-only visit event store header.
var VisitSchema = rowstore.MustSchema("eventId",
	rowstore.FieldDef{Name: "eventId", Default: ""},
	rowstore.FieldDef{Name: "businessId", Default: ""},
	rowstore.FieldDef{Name: "timestamp", Default: ""},
)

// Binding is one alias -> tenant mapping.
type Binding struct {
	Alias     string `json:"slug"`
	TenantID  string `json:"businessId"`
	CreatedAt string `json:"createdAt"`
	Visits    int    `json:"visits"`
}

// Stats is the 7-day visit histogram: one label and one count per
// calendar day, oldest first, days without visits held at zero.
type Stats struct {
	Labels []string `json:"labels"`
	Counts []int    `json:"counts"`
}

// Directory resolves human-readable aliases to tenant identifiers and
// keeps per-alias visit statistics. It sits beside the row-store layer
// and uses the same storage primitive with its own schemas.
type Directory struct {
	slugs  *rowstore.Store
	visits *rowstore.Store
	log    *zap.Logger
	now    func() time.Time

	// mu serializes the read-modify-write sequences over the slug
	// store: the conflict check in SetSlug and the visit increment in
	// Resolve span several store calls and must be one critical section
	// within this instance.
	mu sync.Mutex
}

func New(slugs, visits *rowstore.Store, log *zap.Logger) *Directory {
	return &Directory{slugs: slugs, visits: visits, log: log, now: time.Now}
}

// SetSlug normalizes rawAlias and binds it to the tenant. The normalized
// alias is lowercase [a-z0-9-]; anything else collapses into dashes.
//
// Fails with Conflict when another tenant already holds the normalized
// alias, and with Validation when normalization leaves nothing. A tenant
// that already has a binding gets it rewritten in place: the old alias
// value is lost and the visit count is preserved.
func (d *Directory) SetSlug(tenantID, rawAlias string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if tenantID == "" {
		return "", federation.Errf(federation.KindValidation, "tenant id required")
	}
	clean := slug.Make(rawAlias)
	if clean == "" {
		return "", federation.Errf(federation.KindValidation,
			"alias %q normalizes to nothing", rawAlias)
	}

	for _, b := range d.slugs.List("slug", clean) {
		if owner, _ := b["businessId"].(string); owner != tenantID {
			return "", federation.Errf(federation.KindConflict,
				"slug %q already taken by another business", clean)
		}
	}

	if _, err := d.slugs.Get(tenantID); err == nil {
		if err := d.slugs.Update(tenantID, rowstore.Record{"slug": clean}); err != nil {
			return "", err
		}
		d.log.Info("slug rebound",
			zap.String("tenant", tenantID), zap.String("slug", clean))
		return clean, nil
	}

	_, err := d.slugs.Append(rowstore.Record{
		"businessId": tenantID,
		"slug":       clean,
		"createdAt":  d.now().UTC().Format(time.RFC3339),
		"visits":     0,
	})
	if err != nil {
		return "", err
	}
	d.log.Info("slug bound",
		zap.String("tenant", tenantID), zap.String("slug", clean))
	return clean, nil
}

// GetSlug returns the tenant's current binding, or NotFound.
func (d *Directory) GetSlug(tenantID string) (Binding, error) {
	rec, err := d.slugs.Get(tenantID)
	if err != nil {
		return Binding{}, federation.Errf(federation.KindNotFound,
			"business %s has no slug", tenantID)
	}
	return bindingFromRecord(rec), nil
}

// Resolve maps an alias to its tenant id by exact match. A hit increments
// the binding's visit counter and appends one visit event; a miss is
// NotFound.
//
// Concurrent resolves of one alias from several directory instances may
// lose an increment; within one instance the directory mutex makes the
// lookup and increment a single critical section, so no visit is lost.
func (d *Directory) Resolve(alias string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	matches := d.slugs.List("slug", alias)
	if len(matches) == 0 {
		return "", federation.Errf(federation.KindNotFound, "slug %q not found", alias)
	}
	b := bindingFromRecord(matches[0])

	if err := d.slugs.Update(b.TenantID, rowstore.Record{"visits": b.Visits + 1}); err != nil {
		return "", err
	}
	if _, err := d.visits.Append(rowstore.Record{
		"businessId": b.TenantID,
		"timestamp":  d.now().UTC().Format(time.RFC3339),
	}); err != nil {
		return "", err
	}
	return b.TenantID, nil
}

// VisitStats builds the tenant's calendar-day visit histogram for the
// last `days` days ending today, oldest bucket first. Buckets with no
// events stay zero; events with malformed timestamps are skipped.
func (d *Directory) VisitStats(tenantID string, days int) (Stats, error) {
	if days <= 0 {
		days = 7
	}
	today := d.now().UTC().Truncate(24 * time.Hour)
	start := today.AddDate(0, 0, -(days - 1))

	stats := Stats{
		Labels: make([]string, days),
		Counts: make([]int, days),
	}
	for i := 0; i < days; i++ {
		stats.Labels[i] = start.AddDate(0, 0, i).Format("2006-01-02")
	}

	for _, ev := range d.visits.List("businessId", tenantID) {
		raw, _ := ev["timestamp"].(string)
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			d.log.Debug("skipping malformed visit timestamp",
				zap.String("tenant", tenantID), zap.String("timestamp", raw))
			continue
		}
		day := ts.UTC().Truncate(24 * time.Hour)
		if day.Before(start) || day.After(today) {
			continue
		}
		stats.Counts[int(day.Sub(start).Hours()/24)]++
	}
	return stats, nil
}

func bindingFromRecord(rec rowstore.Record) Binding {
	alias, _ := rec["slug"].(string)
	tenant, _ := rec["businessId"].(string)
	created, _ := rec["createdAt"].(string)
	return Binding{
		Alias:     alias,
		TenantID:  tenant,
		CreatedAt: created,
		Visits:    asInt(rec["visits"]),
	}
}

// asInt tolerates the number widening a JSON tape round trip causes.
func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
