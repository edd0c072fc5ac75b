package nonblock

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"
)

// ErrKeyNotFound is returned by Get when the key is absent.
var ErrKeyNotFound = errors.New("nonblock: key not found")

// Map is a lock-free concurrent hash map.
//
// Core properties:
//   - No locks: every read and write is a short sequence of atomic loads
//     and compare-and-swaps on a single open-addressing table
//   - Incremental resize: a full table installs a successor, and every
//     goroutine that touches the map during migration copies a chunk of
//     slots before finishing its own operation
//   - Operations on the same key are linearizable, also while a resize is
//     in flight
//   - Zero-value ready with lazy initialization
//
// Usage recommendations:
//   - Direct declaration: var m Map[string, int]
//   - Pre-allocate capacity: NewMap[string, int](WithCapacity(1000))
//
// Notes:
//   - Map must not be copied after first use.
//   - Count is exact only when no writer is running.
type Map[K comparable, V any] struct {
	_     noCopy
	table atomic.Pointer[table[K, V]]
}

// NewMap creates a new Map instance. Direct initialization is also
// supported.
//
// Parameters:
//   - options: configuration options (WithCapacity, WithKeyHasher, etc.)
func NewMap[K comparable, V any](
	options ...func(*MapConfig),
) *Map[K, V] {
	var cfg MapConfig
	for _, o := range options {
		o(noEscape(&cfg))
	}
	m := &Map[K, V]{}
	meta := newMapMeta[K, V](&cfg)
	m.table.Store(newTable(meta, new(Counter), meta.minLen))
	return m
}

// newMapMeta resolves the configuration.
//
// Configuration Priority (highest to lowest):
//   - Explicit With* functions (WithKeyHasher, WithKeyEqual, WithValueEqual)
//   - Interface implementations (IHashFunc, IEqualFunc)
//   - Default built-in implementations
func newMapMeta[K comparable, V any](cfg *MapConfig) *mapMeta[K, V] {
	keyHash, keyEqual := parseKeyInterface[K]()
	if cfg.keyHash != nil {
		keyHash = cfg.keyHash
	}
	if keyHash == nil {
		keyHash = defaultHasher[K]()
	}
	if cfg.keyEqual != nil {
		keyEqual = cfg.keyEqual
	}
	valEqual := cfg.valEqual
	if valEqual == nil {
		valEqual = parseValueInterface[V]()
	}
	if valEqual == nil {
		valEqual = defaultValueEqual[V]()
	}
	logger := cfg.logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &mapMeta[K, V]{
		keyHash:   keyHash,
		keyEqual:  keyEqual,
		valEqual:  valEqual,
		seed:      uintptr(rand.Uint64()),
		minLen:    calcTableLen(cfg.capacity),
		logger:    logger,
		tombstone: &valueBox[V]{kind: kindTombstone},
		moved:     &valueBox[V]{kind: kindMoved},
		vacated:   &valueBox[V]{kind: kindMoved},
		sealed:    &keyBox[K]{sealed: true},
	}
}

// slowInit initializes a zero-value Map. Racing initializers all build a
// table; one CAS wins and the rest adopt it.
//
//go:noinline
func (m *Map[K, V]) slowInit() *table[K, V] {
	var cfg MapConfig
	meta := newMapMeta[K, V](&cfg)
	t := newTable(meta, new(Counter), meta.minLen)
	if m.table.CompareAndSwap(nil, t) {
		return t
	}
	return m.table.Load()
}

func (m *Map[K, V]) root() *table[K, V] {
	if t := m.table.Load(); t != nil {
		return t
	}
	return m.slowInit()
}

// Get returns the value stored for key, or an error wrapping
// ErrKeyNotFound.
func (m *Map[K, V]) Get(key K) (V, error) {
	if v, ok := m.TryGetValue(key); ok {
		return v, nil
	}
	return *new(V), fmt.Errorf("%w: %v", ErrKeyNotFound, key)
}

// TryGetValue returns the value stored for key and whether it was present.
func (m *Map[K, V]) TryGetValue(key K) (value V, ok bool) {
	t := m.table.Load()
	if t == nil {
		return *new(V), false
	}
	if vb := m.get(t, &key, t.hashOf(&key)); vb != nil {
		return vb.v, true
	}
	return *new(V), false
}

// ContainsKey reports whether key is present.
func (m *Map[K, V]) ContainsKey(key K) bool {
	_, ok := m.TryGetValue(key)
	return ok
}

// TryAdd stores value for key if the key is absent. It reports false,
// leaving the map unchanged, when a value is already present.
func (m *Map[K, V]) TryAdd(key K, value V) bool {
	t := m.root()
	_, ok := m.putIfMatch(t, &key, t.hashOf(&key), nil,
		&valueBox[V]{v: value, kind: kindValue},
		match[V]{kind: matchAbsent},
	)
	return ok
}

// Set stores value for key, inserting or replacing.
func (m *Map[K, V]) Set(key K, value V) {
	t := m.root()
	m.putIfMatch(t, &key, t.hashOf(&key), nil,
		&valueBox[V]{v: value, kind: kindValue},
		match[V]{kind: matchAlways},
	)
}

// Swap stores value for key and returns the previous value if any.
func (m *Map[K, V]) Swap(key K, value V) (previous V, loaded bool) {
	t := m.root()
	prev, _ := m.putIfMatch(t, &key, t.hashOf(&key), nil,
		&valueBox[V]{v: value, kind: kindValue},
		match[V]{kind: matchAlways},
	)
	if prev.live() {
		return prev.v, true
	}
	return *new(V), false
}

// GetOrAdd returns the value stored for key, or stores and returns the
// result of factory(key) when the key is absent. The loaded result is true
// if the value was already present.
//
// factory runs outside of any atomic step. Under contention several
// goroutines may each run it for the same key; exactly one result is
// stored, and every caller returns that stored value. A panicking factory
// leaves the map unchanged.
func (m *Map[K, V]) GetOrAdd(
	key K,
	factory func(key K) V,
) (actual V, loaded bool) {
	t := m.root()
	hash := t.hashOf(&key)
	if vb := m.get(t, &key, hash); vb != nil {
		return vb.v, true
	}
	return m.addOrGet(&key, hash, factory(key))
}

// GetOrAddValue is GetOrAdd with a precomputed value.
func (m *Map[K, V]) GetOrAddValue(key K, value V) (actual V, loaded bool) {
	t := m.root()
	hash := t.hashOf(&key)
	if vb := m.get(t, &key, hash); vb != nil {
		return vb.v, true
	}
	return m.addOrGet(&key, hash, value)
}

// TryGetOrAdd is GetOrAdd with a fallible factory. A factory error is
// returned as is and nothing is stored, so a later call may retry.
func (m *Map[K, V]) TryGetOrAdd(
	key K,
	factory func(key K) (V, error),
) (actual V, loaded bool, err error) {
	t := m.root()
	hash := t.hashOf(&key)
	if vb := m.get(t, &key, hash); vb != nil {
		return vb.v, true, nil
	}
	value, err := factory(key)
	if err != nil {
		return *new(V), false, err
	}
	actual, loaded = m.addOrGet(&key, hash, value)
	return actual, loaded, nil
}

func (m *Map[K, V]) addOrGet(key *K, hash uintptr, value V) (V, bool) {
	prev, ok := m.putIfMatch(m.root(), key, hash, nil,
		&valueBox[V]{v: value, kind: kindValue},
		match[V]{kind: matchAbsent},
	)
	if ok {
		return value, false
	}
	// matchAbsent only fails against a live value.
	return prev.v, true
}

// TryUpdate replaces the value for key with newValue if the current value
// equals comparisonValue. It reports false when the key is absent or the
// values differ.
//
// Values are compared with WithValueEqual, IEqualFunc or ==, in that
// order; TryUpdate panics for non-comparable value types without one.
func (m *Map[K, V]) TryUpdate(key K, newValue V, comparisonValue V) bool {
	t := m.table.Load()
	if t == nil {
		return false
	}
	if t.meta.valEqual == nil {
		panic("nonblock: called TryUpdate when value is not of comparable type")
	}
	_, ok := m.putIfMatch(t, &key, t.hashOf(&key), nil,
		&valueBox[V]{v: newValue, kind: kindValue},
		match[V]{kind: matchValue, value: &comparisonValue},
	)
	return ok
}

// TryRemove removes key and returns the value it held. It reports false
// when the key was absent.
//
// Removal leaves a tombstone; the slot is reclaimed by a later resize.
func (m *Map[K, V]) TryRemove(key K) (value V, ok bool) {
	t := m.table.Load()
	if t == nil {
		return *new(V), false
	}
	prev, ok := m.putIfMatch(t, &key, t.hashOf(&key), nil,
		t.meta.tombstone,
		match[V]{kind: matchPresent},
	)
	if ok {
		return prev.v, true
	}
	return *new(V), false
}

// TryRemoveValue removes key only if its current value equals value.
func (m *Map[K, V]) TryRemoveValue(key K, value V) bool {
	t := m.table.Load()
	if t == nil {
		return false
	}
	if t.meta.valEqual == nil {
		panic("nonblock: called TryRemoveValue when value is not of comparable type")
	}
	_, ok := m.putIfMatch(t, &key, t.hashOf(&key), nil,
		t.meta.tombstone,
		match[V]{kind: matchValue, value: &value},
	)
	return ok
}

// AddOrUpdate stores addValue when key is absent, or replaces the present
// value v with update(key, v). It returns the value stored.
//
// update may run several times under contention; only the result that
// wins its compare-and-swap is stored. It works for any value type.
func (m *Map[K, V]) AddOrUpdate(
	key K,
	addValue V,
	update func(key K, value V) V,
) V {
	t := m.root()
	hash := t.hashOf(&key)
	for {
		cur := m.get(m.root(), &key, hash)
		if cur == nil {
			if _, ok := m.putIfMatch(m.root(), &key, hash, nil,
				&valueBox[V]{v: addValue, kind: kindValue},
				match[V]{kind: matchAbsent},
			); ok {
				return addValue
			}
			continue
		}
		newValue := update(key, cur.v)
		if _, ok := m.putIfMatch(m.root(), &key, hash, nil,
			&valueBox[V]{v: newValue, kind: kindValue},
			match[V]{kind: matchBox, box: cur},
		); ok {
			return newValue
		}
	}
}

// Count returns the number of entries. It sums a striped counter and is
// exact only when no writer is running.
func (m *Map[K, V]) Count() int {
	t := m.table.Load()
	if t == nil {
		return 0
	}
	return int(t.size.Value())
}

// IsEmpty reports whether Count is zero.
func (m *Map[K, V]) IsEmpty() bool {
	return m.Count() == 0
}

// Capacity returns the slot count of the current root table.
func (m *Map[K, V]) Capacity() int {
	t := m.table.Load()
	if t == nil {
		return 0
	}
	return len(t.slots)
}

// Clear removes all entries by installing a fresh table of the configured
// minimum capacity.
//
// Clear is not atomic with respect to writers that are already running
// against the old table; their effects may be dropped.
func (m *Map[K, V]) Clear() {
	for {
		t := m.table.Load()
		if t == nil {
			return
		}
		fresh := newTable(t.meta, new(Counter), t.meta.minLen)
		if m.table.CompareAndSwap(t, fresh) {
			return
		}
	}
}
