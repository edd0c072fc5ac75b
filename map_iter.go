package nonblock

// All returns an iterator over the map's entries, for use with
// range-over-func.
//
// Iteration is lazy and weakly consistent: it reflects some state between
// the start and the end of the traversal, is not a snapshot, and has no
// ordering. An entry present and unmodified for the whole traversal is
// yielded exactly once. Each call starts a fresh traversal.
func (m *Map[K, V]) All() func(yield func(K, V) bool) {
	return m.Range
}

// Keys returns an iterator over the map's keys with the consistency of All.
func (m *Map[K, V]) Keys() func(yield func(K) bool) {
	return func(yield func(K) bool) {
		m.Range(func(k K, _ V) bool {
			return yield(k)
		})
	}
}

// Values returns an iterator over the map's values with the consistency
// of All.
func (m *Map[K, V]) Values() func(yield func(V) bool) {
	return func(yield func(V) bool) {
		m.Range(func(_ K, v V) bool {
			return yield(v)
		})
	}
}

// Range calls yield for each entry until yield returns false.
func (m *Map[K, V]) Range(yield func(key K, value V) bool) {
	t := m.settledTable()
	if t == nil {
		return
	}
	for i := range t.slots {
		s := &t.slots[i]
		kb := s.key.Load()
		if kb == nil || kb.sealed {
			continue
		}
		cur := s.val.Load()
		if cur.frozen() {
			// A resize started after the traversal did; the entry now
			// lives further down the chain.
			cur = m.get(m.root(), &kb.key, kb.hash)
		}
		if !cur.live() {
			continue
		}
		if !yield(kb.key, cur.v) {
			return
		}
	}
}

// settledTable finishes any migration in progress and returns a root
// table without a successor.
func (m *Map[K, V]) settledTable() *table[K, V] {
	for {
		t := m.table.Load()
		if t == nil || t.next.Load() == nil {
			return t
		}
		m.helpCopyChunks(t, true)
	}
}

// ToMap collects up to limit entries into a map[K]V, limit <= 0 means no
// limit.
func (m *Map[K, V]) ToMap(limit ...int) map[K]V {
	l := maxInt
	if len(limit) != 0 && limit[0] > 0 {
		l = limit[0]
	}
	a := make(map[K]V, min(m.Count(), l))
	m.Range(func(k K, v V) bool {
		a[k] = v
		l--
		return l > 0
	})
	return a
}
