package rowstore

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dreamware/bazar/internal/federation"
)

// DefaultLockWait bounds how long a mutating operation waits for the
// store's serialization lock before failing with TimeoutBusy.
const DefaultLockWait = 30 * time.Second

// Options configures a Store.
type Options struct {
	// Name identifies the store in errors and logs, e.g. "items", "orders".
	Name string

	// Schema is the ordered header shared by every record.
	Schema Schema

	// IDPrefix is prepended to generated identifiers, e.g. "itm", "ord".
	IDPrefix string

	// SequentialIDs switches identifier generation from a random suffix to
	// a count-derived sequence number. Order stores use this; it is the
	// reason every mutation runs under the store lock.
	SequentialIDs bool

	// LockWait bounds the wait for the serialization lock.
	// Zero means DefaultLockWait.
	LockWait time.Duration

	// Tape is the durable backing. Nil means in-memory only.
	Tape Tape
}

// Store is an ordered collection of records sharing one schema, with all
// mutating operations serialized through a single bounded-wait lock.
//
// The lock exists because sequential identifiers are derived from the
// record count observed at the start of an append; the count-then-append
// sequence is non-atomic under concurrent callers unless serialized.
// Updates and deletes take the same lock so that concurrent partial
// updates of one record cannot lose writes.
//
// Concurrency model:
//   - sem serializes mutations with a bounded wait (TimeoutBusy on expiry)
//   - mu guards the records slice so reads never observe a torn mutation
//   - reads take only mu.RLock and never wait on sem
type Store struct {
	name     string
	schema   Schema
	idPrefix string
	seq      bool
	lockWait time.Duration
	tape     Tape

	sem chan struct{}
	mu  sync.RWMutex
	rec []Record

	stats OperationStats
}

// OperationStats tracks operation counts for a store.
type OperationStats struct {
	Appends uint64 `json:"appends"`
	Updates uint64 `json:"updates"`
	Deletes uint64 `json:"deletes"`
	Lists   uint64 `json:"lists"`
}

// Info is the store metadata reported on the service's info endpoint.
type Info struct {
	Name    string         `json:"name"`
	Fields  []string       `json:"fields"`
	Records int            `json:"records"`
	Ops     OperationStats `json:"operations"`
}

// Open creates a store and, when a tape is configured, replays its
// persisted records. The tape's header must match the configured schema.
func Open(opts Options) (*Store, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("rowstore: store name required")
	}
	if len(opts.Schema.fields) == 0 {
		return nil, fmt.Errorf("rowstore: store %q has no schema", opts.Name)
	}
	wait := opts.LockWait
	if wait <= 0 {
		wait = DefaultLockWait
	}
	s := &Store{
		name:     opts.Name,
		schema:   opts.Schema,
		idPrefix: opts.IDPrefix,
		seq:      opts.SequentialIDs,
		lockWait: wait,
		tape:     opts.Tape,
		sem:      make(chan struct{}, 1),
	}
	if s.tape != nil {
		records, err := s.tape.Load(s.schema)
		if err != nil {
			return nil, fmt.Errorf("rowstore: load %q: %w", opts.Name, err)
		}
		s.rec = records
	}
	return s, nil
}

// Name returns the store's name.
func (s *Store) Name() string { return s.name }

// Schema returns the store's schema.
func (s *Store) Schema() Schema { return s.schema }

// acquire takes the serialization lock, waiting at most lockWait.
// Exceeding the wait is a terminal failure for the request; the caller
// must not proceed with a potentially colliding identifier.
func (s *Store) acquire() error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-time.After(s.lockWait):
		return federation.Errf(federation.KindTimeoutBusy,
			"store %s: busy, lock not acquired within %s", s.name, s.lockWait)
	}
}

func (s *Store) release() { <-s.sem }

// Append normalizes the record against the schema, generates an
// identifier when the caller supplied none, and appends. Returns the
// record's identifier.
//
// Identifier generation:
//   - sequential stores: prefix + zero-padded (count+1), read under the
//     lock, skipping past any surviving higher id left by a delete
//   - other stores: prefix + "-" + random 8-char suffix
//
// Identifier uniqueness is established by construction: the count is read
// and the row appended inside one lock hold, deletes cannot make the
// sequence step backwards, and random suffixes come from a v4 UUID.
func (s *Store) Append(in Record) (string, error) {
	if err := s.acquire(); err != nil {
		return "", err
	}
	defer s.release()

	row := s.schema.Normalize(in)
	id, _ := row[s.schema.idField].(string)
	if id == "" {
		if s.seq {
			s.mu.RLock()
			n := len(s.rec)
			// A delete can leave a surviving id above the count; the
			// sequence must skip past it, never reissue it.
			for _, r := range s.rec {
				v, _ := r[s.schema.idField].(string)
				if k, err := strconv.Atoi(strings.TrimPrefix(v, s.idPrefix)); err == nil && k > n {
					n = k
				}
			}
			s.mu.RUnlock()
			id = fmt.Sprintf("%s%06d", s.idPrefix, n+1)
		} else {
			id = s.idPrefix + "-" + strings.SplitN(uuid.NewString(), "-", 2)[0]
		}
		row[s.schema.idField] = id
	}

	s.mu.Lock()
	s.rec = append(s.rec, row)
	s.mu.Unlock()
	atomic.AddUint64(&s.stats.Appends, 1)

	if s.tape != nil {
		if err := s.tape.Append(s.schema, row); err != nil {
			// Drop the row again so memory and tape stay in step; a
			// failed append must not be visible to readers.
			s.mu.Lock()
			s.rec = s.rec[:len(s.rec)-1]
			s.mu.Unlock()
			return "", federation.Errf(federation.KindInternal,
				"store %s: persist append: %v", s.name, err)
		}
	}
	return id, nil
}

// Update overwrites only the fields named in partial on the record whose
// identifier equals id, leaving every other field untouched. Fields not
// present in the schema are dropped; the identifier field cannot be
// reassigned. Fails with NotFound if no record matches.
func (s *Store) Update(id string, partial Record) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()

	s.mu.Lock()
	idx := s.indexOfLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return federation.Errf(federation.KindNotFound,
			"store %s: record %s not found", s.name, id)
	}
	for name, v := range partial {
		if name == s.schema.idField || !s.schema.Has(name) {
			continue
		}
		s.rec[idx][name] = v
	}
	s.mu.Unlock()
	atomic.AddUint64(&s.stats.Updates, 1)

	return s.rewriteTape()
}

// Delete physically removes the record whose identifier equals id;
// subsequent records shift down. Fails with NotFound if no record matches.
func (s *Store) Delete(id string) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()

	s.mu.Lock()
	idx := s.indexOfLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return federation.Errf(federation.KindNotFound,
			"store %s: record %s not found", s.name, id)
	}
	s.rec = append(s.rec[:idx], s.rec[idx+1:]...)
	s.mu.Unlock()
	atomic.AddUint64(&s.stats.Deletes, 1)

	return s.rewriteTape()
}

// Get returns a copy of the record whose identifier equals id, or
// NotFound.
func (s *Store) Get(id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.indexOfLocked(id)
	if idx < 0 {
		return nil, federation.Errf(federation.KindNotFound,
			"store %s: record %s not found", s.name, id)
	}
	return copyRecord(s.rec[idx]), nil
}

// List returns copies of all records in append order, optionally filtered
// on one column's exact value. An empty filterField disables filtering.
func (s *Store) List(filterField, filterValue string) []Record {
	atomic.AddUint64(&s.stats.Lists, 1)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.rec))
	for _, r := range s.rec {
		if filterField != "" {
			v, _ := r[filterField].(string)
			if v != filterValue {
				continue
			}
		}
		out = append(out, copyRecord(r))
	}
	return out
}

// Count returns the current record count.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rec)
}

// Info returns store metadata and operation counters.
func (s *Store) Info() Info {
	s.mu.RLock()
	n := len(s.rec)
	s.mu.RUnlock()
	return Info{
		Name:    s.name,
		Fields:  s.schema.FieldNames(),
		Records: n,
		Ops: OperationStats{
			Appends: atomic.LoadUint64(&s.stats.Appends),
			Updates: atomic.LoadUint64(&s.stats.Updates),
			Deletes: atomic.LoadUint64(&s.stats.Deletes),
			Lists:   atomic.LoadUint64(&s.stats.Lists),
		},
	}
}

// indexOfLocked scans for the record with the given identifier.
// Callers hold mu.
func (s *Store) indexOfLocked(id string) int {
	for i, r := range s.rec {
		if v, _ := r[s.schema.idField].(string); v == id {
			return i
		}
	}
	return -1
}

func (s *Store) rewriteTape() error {
	if s.tape == nil {
		return nil
	}
	s.mu.RLock()
	snapshot := make([]Record, len(s.rec))
	for i, r := range s.rec {
		snapshot[i] = copyRecord(r)
	}
	s.mu.RUnlock()
	if err := s.tape.Rewrite(s.schema, snapshot); err != nil {
		return federation.Errf(federation.KindInternal,
			"store %s: persist rewrite: %v", s.name, err)
	}
	return nil
}

func copyRecord(r Record) Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
