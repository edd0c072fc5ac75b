package nonblock

import (
	"runtime"
	"time"
	"unsafe"
)

// resize returns t's successor, allocating and installing one if needed.
// Only one successor is ever installed; racing callers adopt the winner.
func (m *Map[K, V]) resize(t *table[K, V], reprobeLimited bool) *table[K, V] {
	if next := t.next.Load(); next != nil {
		return next
	}

	oldLen := len(t.slots)
	live := int(t.size.Estimate())
	used := int(t.used.Estimate())
	newLen := live
	if live >= oldLen>>2 {
		newLen = oldLen << 1
		if live >= oldLen>>1+oldLen>>2 {
			newLen = oldLen << 2
		}
	}
	// Dead keys dominate and we resized moments ago: copying into a table
	// of the same size would just fill up with tombstones again.
	if newLen <= oldLen && used >= live<<1 && t.lastResizeRecent() {
		newLen = oldLen << 1
	}
	// A reprobe-limited insert hit a cluster of at least R keys. A
	// same-size copy would rebuild the same cluster.
	if newLen <= oldLen && reprobeLimited {
		newLen = oldLen << 1
	}
	newLen = max(nextPowOf2(newLen), oldLen, t.meta.minLen)

	// Limit the number of goroutines allocating large candidate tables.
	r := t.resizers.Add(1)
	if r >= 2 && newLen*int(unsafe.Sizeof(slot[K, V]{})) >= largeTableBytes {
		if next := t.next.Load(); next != nil {
			return next
		}
		runtime.Gosched()
	}
	if next := t.next.Load(); next != nil {
		return next
	}

	newT := newTable(t.meta, t.size, newLen)
	if !t.next.CompareAndSwap(nil, newT) {
		return t.next.Load()
	}

	if newLen > oldLen {
		t.meta.growths.Add(1)
	} else {
		t.meta.reclaims.Add(1)
	}
	if log := t.meta.logger; log.IsDebug() {
		log.Debug("resizing table",
			"old_capacity", oldLen,
			"new_capacity", newLen,
			"live", live,
			"claimed", used,
			"reprobe_limited", reprobeLimited,
		)
	}
	return newT
}

// helpCopy advances the migration of the root table, if any, by one chunk
// and returns helper unchanged. Writers call it before retrying in a
// successor so that migration progresses with the write load.
func (m *Map[K, V]) helpCopy(helper *table[K, V]) *table[K, V] {
	top := m.table.Load()
	if top.next.Load() == nil {
		return helper
	}
	m.helpCopyChunks(top, false)
	return helper
}

// helpCopyChunks claims chunks of t's slots from the migration cursor and
// copies them into t's successor. Without copyAll it returns after one
// chunk, or, once every chunk has been handed out, after one sweep over
// the whole table. Slots a stalled helper made terminal but has not yet
// counted are left for that helper to post. With copyAll it keeps
// sweeping until the table is drained.
func (m *Map[K, V]) helpCopyChunks(t *table[K, V], copyAll bool) {
	next := t.next.Load()
	oldLen := int64(len(t.slots))
	work := min(oldLen, copyChunk)
	sweeping := false
	var copyIdx, swept int64

	for t.copyDone.Load() < oldLen {
		if !sweeping {
			copyIdx = t.copyIdx.Add(work) - work
			// The cursor runs to twice the length so that chunks claimed
			// by stalled helpers get a second chance before sweeping.
			if copyIdx >= oldLen<<1 {
				sweeping = true
			}
		}
		done := 0
		for i := range work {
			if m.copySlot(t, int((copyIdx+i)&(oldLen-1)), next) {
				done++
			}
		}
		if done > 0 {
			m.copyCheckAndPromote(t, done)
		}
		copyIdx += work
		if !sweeping {
			if !copyAll {
				return
			}
			continue
		}
		if swept += work; swept >= oldLen {
			if !copyAll {
				break
			}
			swept = 0
			runtime.Gosched()
		}
	}
	// The table may have been drained by others while the root still
	// points at it.
	m.copyCheckAndPromote(t, 0)
}

// copySlotAndCheck copies slot idx of t into its successor and returns
// the successor, after helping the root migration when help is set.
func (m *Map[K, V]) copySlotAndCheck(
	t *table[K, V],
	idx int,
	help bool,
) *table[K, V] {
	next := t.next.Load()
	if m.copySlot(t, idx, next) {
		m.copyCheckAndPromote(t, 1)
	}
	if help {
		return m.helpCopy(next)
	}
	return next
}

// copyCheckAndPromote records done copied slots of t and, when t is fully
// drained and still the root, advances the root to t's successor.
func (m *Map[K, V]) copyCheckAndPromote(t *table[K, V], done int) {
	oldLen := int64(len(t.slots))
	copied := t.copyDone.Load()
	if done > 0 {
		copied = t.copyDone.Add(int64(done))
	}
	if copied != oldLen || m.table.Load() != t {
		return
	}
	next := t.next.Load()
	if m.table.CompareAndSwap(t, next) {
		t.meta.lastResize.Store(time.Now().UnixNano())
		if log := t.meta.logger; log.IsTrace() {
			log.Trace("promoted successor table",
				"capacity", len(next.slots),
				"count", next.size.Value(),
			)
		}
	}
}

// copySlot freezes slot idx of t and replays its value into next. It
// returns true for exactly one caller per slot: the one that made the
// slot terminal.
func (m *Map[K, V]) copySlot(t *table[K, V], idx int, next *table[K, V]) bool {
	s := &t.slots[idx]
	meta := t.meta

	// Seal unused key slots so no new key lands in this table.
	kb := s.key.Load()
	for kb == nil {
		s.key.CompareAndSwap(nil, meta.sealed)
		kb = s.key.Load()
	}

	// Freeze the value.
	cur := s.val.Load()
	for !cur.frozen() {
		var box *valueBox[V]
		switch {
		case cur == nil:
			box = meta.vacated
		case cur.live():
			box = &valueBox[V]{v: cur.v, kind: kindForwarding}
		default:
			box = meta.moved
		}
		if s.val.CompareAndSwap(cur, box) {
			if box.kind == kindMoved {
				// Nothing to copy.
				return true
			}
			cur = box
			break
		}
		cur = s.val.Load()
	}
	if cur.kind == kindMoved {
		return false
	}

	// Copy only into an empty successor slot: any state already there was
	// written after the freeze and supersedes ours. The same holds further
	// down the chain, so the replay stops at the first table where the
	// key left a trace, even if that state has since migrated on.
	m.putIfMatch(next, &kb.key, kb.hash, kb,
		&valueBox[V]{v: cur.v, kind: kindValue},
		match[V]{kind: matchEmpty},
	)

	for cur.kind != kindMoved {
		if s.val.CompareAndSwap(cur, meta.moved) {
			return true
		}
		cur = s.val.Load()
	}
	return false
}
