// Package memory provides the in-memory keyspace for Cardinal.
//
// The keyspace is a fixed set of 16 independent key/value namespaces
// with per-key optional TTL, guarded by a single reader-writer lock
// covering the whole collection. Expired entries are removed lazily,
// when next observed by a read.
package memory

import (
	"errors"
	"sync"
	"time"

	"github.com/cardinalkv/cardinal/internal/core/domain"
	"github.com/cardinalkv/cardinal/internal/storage/rdb"
)

// NumDatabases is the number of logical database namespaces.
const NumDatabases = 16

// ErrDatabaseNotFound is returned by Keys for a database index outside
// the fixed range. Get and Set against such an index are silent no-ops
// instead; the asymmetry is inherited from the wire behavior.
var ErrDatabaseNotFound = errors.New("memory: database doesn't exist")

// entry owns a value and an optional absolute expiration instant. An
// entry with no expiration never expires.
type entry struct {
	value     domain.Value
	expiresAt time.Time
	hasExpiry bool
}

// expired reports whether the entry is logically absent at now. An
// expired entry may still physically exist until eviction removes it.
func (e entry) expired(now time.Time) bool {
	return e.hasExpiry && !now.Before(e.expiresAt)
}

// Store is the concurrent, TTL-aware key-value map, namespaced by
// logical database id 0-15.
type Store struct {
	mu  sync.RWMutex
	dbs [NumDatabases]map[string]entry
	now func() time.Time
}

// Option configures the Store.
type Option func(*Store)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a store with all 16 namespaces pre-allocated.
func New(opts ...Option) *Store {
	s := &Store{now: time.Now}
	for i := range s.dbs {
		s.dbs[i] = make(map[string]entry)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get looks up key in the given database. Expired entries read as
// absent and are scheduled for removal.
//
// The read is two-phase: the lookup runs under shared access, and only
// when an expired entry is observed does Get re-acquire exclusive
// access to remove it. Two concurrent reads of the same expired key may
// both attempt the removal; deleting an absent key is a no-op.
func (s *Store) Get(db int, key string) (domain.Value, bool) {
	if db < 0 || db >= NumDatabases {
		return domain.Value{}, false
	}

	s.mu.RLock()
	e, ok := s.dbs[db][key]
	expired := ok && e.expired(s.now())
	s.mu.RUnlock()

	if !ok {
		return domain.Value{}, false
	}
	if expired {
		s.mu.Lock()
		delete(s.dbs[db], key)
		s.mu.Unlock()
		return domain.Value{}, false
	}
	return e.value, true
}

// Set stores value under key with no expiration, unconditionally
// overwriting any existing entry. Any prior TTL on the key is cleared.
func (s *Store) Set(db int, key string, value domain.Value) {
	s.put(db, key, entry{value: value})
}

// SetWithTTL stores value under key, expiring ttl from now. A zero ttl
// produces an entry that is already expired.
func (s *Store) SetWithTTL(db int, key string, value domain.Value, ttl time.Duration) {
	s.put(db, key, entry{
		value:     value,
		expiresAt: s.now().Add(ttl),
		hasExpiry: true,
	})
}

func (s *Store) put(db int, key string, e entry) {
	if db < 0 || db >= NumDatabases {
		return
	}
	s.mu.Lock()
	s.dbs[db][key] = e
	s.mu.Unlock()
}

// Keys returns every key currently stored in the database, including
// expired entries that have not been evicted yet.
func (s *Store) Keys(db int) ([]string, error) {
	if db < 0 || db >= NumDatabases {
		return nil, ErrDatabaseNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.dbs[db]))
	for k := range s.dbs[db] {
		keys = append(keys, k)
	}
	return keys, nil
}

// Len returns the number of entries in the database, evicted or not.
// Out-of-range indices count zero.
func (s *Store) Len(db int) int {
	if db < 0 || db >= NumDatabases {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.dbs[db])
}

// TotalKeys returns the number of entries across all databases.
func (s *Store) TotalKeys() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for i := range s.dbs {
		total += len(s.dbs[i])
	}
	return total
}

// LoadSnapshot replaces the entire store with the contents of the
// snapshot at path. The file is parsed fully before any state changes,
// so a parse error leaves the prior contents untouched. The
// clear-then-repopulate sequence runs under one continuously held
// write lock; no reader observes a partially cleared store.
func (s *Store) LoadSnapshot(path string) error {
	f, err := rdb.ReadFile(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.dbs {
		s.dbs[i] = make(map[string]entry)
	}
	for id, keys := range f.Databases {
		if id < 0 || id >= NumDatabases {
			continue
		}
		for key, value := range keys {
			e := entry{value: value}
			if expiry, ok := f.Expiries[id][key]; ok {
				e.expiresAt = expiry
				e.hasExpiry = true
			}
			s.dbs[id][key] = e
		}
	}
	return nil
}
