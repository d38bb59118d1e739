package bridge

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Retention bounds the session records. A zero Retention keeps every record
// for the life of the process.
type Retention struct {
	TTL        time.Duration
	MaxEntries int
}

func (r Retention) unbounded() bool { return r.TTL <= 0 && r.MaxEntries <= 0 }

// records is the storage behind Store. Implementations synchronise themselves.
type records interface {
	put(identity, resource string)
	get(identity string) (string, bool)
	size() int
}

// Store maps identity to the last assigned resource. Writes are only possible
// from inside this package, so the inbound consumer is the single writer.
type Store struct {
	recs records
}

func NewStore(r Retention) *Store {
	if r.unbounded() {
		return &Store{recs: &mapRecords{m: make(map[string]string)}}
	}
	return &Store{recs: newLRURecords(r)}
}

// recordAssignment overwrites any previous resource for identity.
func (s *Store) recordAssignment(identity, resource string) {
	s.recs.put(identity, resource)
}

// Lookup returns the current resource for identity, if any.
func (s *Store) Lookup(identity string) (string, bool) {
	return s.recs.get(identity)
}

// Len returns the number of live records.
func (s *Store) Len() int { return s.recs.size() }

type mapRecords struct {
	mu sync.RWMutex
	m  map[string]string
}

func (r *mapRecords) put(identity, resource string) {
	r.mu.Lock()
	r.m[identity] = resource
	r.mu.Unlock()
}

func (r *mapRecords) get(identity string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.m[identity]
	return v, ok
}

func (r *mapRecords) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}

// lruRecords evicts the least recently used identity once MaxEntries is
// reached, and any record older than TTL.
type lruRecords struct {
	c *expirable.LRU[string, string]
}

func newLRURecords(r Retention) *lruRecords {
	// expirable treats size 0 as unlimited and ttl <= 0 as no expiry.
	return &lruRecords{c: expirable.NewLRU[string, string](r.MaxEntries, nil, r.TTL)}
}

func (r *lruRecords) put(identity, resource string) { r.c.Add(identity, resource) }

func (r *lruRecords) get(identity string) (string, bool) { return r.c.Get(identity) }

func (r *lruRecords) size() int { return r.c.Len() }
