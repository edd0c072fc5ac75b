package nonblock

import (
	"math/bits"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/hashicorp/go-hclog"
)

// ============================================================================
// Slot state
// ============================================================================

// valueKind tags a valueBox. A nil *valueBox is the Empty state.
type valueKind uint8

const (
	// kindValue holds a live value.
	kindValue valueKind = iota + 1
	// kindTombstone marks a key as logically removed.
	kindTombstone
	// kindForwarding freezes a value while it is copied to the successor.
	kindForwarding
	// kindMoved is terminal: the slot lives on in the successor, or had
	// nothing worth copying.
	kindMoved
)

// valueBox is the value-state of a slot. Boxes are immutable once
// published; every state change installs a different box by CAS.
type valueBox[V any] struct {
	v    V
	kind valueKind
}

// live reports whether b holds a value visible to readers.
//
//go:nosplit
func (b *valueBox[V]) live() bool {
	return b != nil && b.kind == kindValue
}

// frozen reports whether b belongs to a table being migrated.
//
//go:nosplit
func (b *valueBox[V]) frozen() bool {
	return b != nil && b.kind >= kindForwarding
}

// keyBox is the write-once key of a slot. The hash is kept alongside so
// probes and migration never rehash.
type keyBox[K comparable] struct {
	key    K
	hash   uintptr
	sealed bool // closes an unused slot of a migrating table
}

type slot[K comparable, V any] struct {
	key atomic.Pointer[keyBox[K]]
	val atomic.Pointer[valueBox[V]]
}

// ============================================================================
// Shared map state
// ============================================================================

// mapMeta is the configuration and bookkeeping shared by every table of a
// Map, including tables installed by Clear.
type mapMeta[K comparable, V any] struct {
	keyHash  HashFunc
	keyEqual EqualFunc
	valEqual EqualFunc
	seed     uintptr
	minLen   int
	logger   hclog.Logger

	tombstone *valueBox[V]
	moved     *valueBox[V]

	// vacated is the Moved state of a slot that was Empty when frozen: no
	// write for its key ever landed in that table.
	vacated *valueBox[V]
	sealed  *keyBox[K]

	growths    atomic.Uint32
	reclaims   atomic.Uint32
	lastResize atomic.Int64 // unix nanoseconds
}

// table is a fixed-capacity open-addressing array of slots plus an
// optional successor it is being migrated into.
type table[K comparable, V any] struct {
	slots    []slot[K, V]
	mask     int
	shift    uint
	reprobes int
	meta     *mapMeta[K, V]

	// size counts live entries. It is shared by a table and all of its
	// successors, so migration never touches it.
	size *Counter
	// used counts keys claimed in this table, dead or alive.
	used Counter

	next     atomic.Pointer[table[K, V]]
	copyIdx  atomic.Int64
	copyDone atomic.Int64
	resizers atomic.Int32
}

func newTable[K comparable, V any](
	meta *mapMeta[K, V],
	size *Counter,
	tableLen int,
) *table[K, V] {
	return &table[K, V]{
		slots:    make([]slot[K, V], tableLen),
		mask:     tableLen - 1,
		shift:    uint(64 - (bits.Len(uint(tableLen)) - 1)),
		reprobes: calcReprobeLimit(tableLen),
		meta:     meta,
		size:     size,
	}
}

//go:nosplit
func (t *table[K, V]) hashOf(key *K) uintptr {
	return t.meta.keyHash(noescape(unsafe.Pointer(key)), t.meta.seed)
}

// index returns the first probe position of hash: the top bits of a
// fibonacci product, so weak custom hashers still spread.
//
//go:nosplit
func (t *table[K, V]) index(hash uintptr) int {
	return int((uint64(hash) * fibMul) >> t.shift)
}

//go:nosplit
func (t *table[K, V]) keyEqual(kb *keyBox[K], key *K, hash uintptr) bool {
	if kb.sealed || kb.hash != hash {
		return false
	}
	if t.meta.keyEqual != nil {
		return t.meta.keyEqual(
			noescape(unsafe.Pointer(&kb.key)),
			noescape(unsafe.Pointer(key)),
		)
	}
	return kb.key == *key
}

// ============================================================================
// Matching
// ============================================================================

type matchKind uint8

const (
	// matchAlways replaces whatever is there.
	matchAlways matchKind = iota
	// matchAbsent requires Empty or Tombstone.
	matchAbsent
	// matchPresent requires a live value.
	matchPresent
	// matchValue requires a live value equal to match.value.
	matchValue
	// matchBox requires exactly the state match.box.
	matchBox
	// matchEmpty requires Empty. Only migration uses it: anything already
	// in the successor is newer than the value being copied.
	matchEmpty
)

type match[V any] struct {
	kind  matchKind
	value *V
	box   *valueBox[V]
}

//go:nosplit
func (t *table[K, V]) matches(cur *valueBox[V], mt *match[V]) bool {
	switch mt.kind {
	case matchAlways:
		return true
	case matchAbsent:
		return !cur.live()
	case matchPresent:
		return cur.live()
	case matchValue:
		return cur.live() && t.meta.valEqual(
			noescape(unsafe.Pointer(&cur.v)),
			noescape(unsafe.Pointer(mt.value)),
		)
	case matchBox:
		return cur == mt.box
	default:
		// matchEmpty
		return cur == nil
	}
}

// ============================================================================
// Operations
// ============================================================================

// get returns the live box for key, or nil. It follows the successor
// chain and helps migration when it meets a frozen slot.
func (m *Map[K, V]) get(t *table[K, V], key *K, hash uintptr) *valueBox[V] {
retry:
	for {
		idx := t.index(hash)
		for reprobes := 1; ; reprobes++ {
			s := &t.slots[idx]
			kb := s.key.Load()
			if kb == nil {
				// Never-claimed slot: the key is not in this table, and
				// since this slot was unclaimed it was never forwarded.
				return nil
			}
			vb := s.val.Load()
			next := t.next.Load()
			if t.keyEqual(kb, key, hash) {
				if !vb.frozen() {
					if vb.live() {
						return vb
					}
					return nil
				}
				t = m.copySlotAndCheck(t, idx, true)
				continue retry
			}
			if reprobes >= t.reprobes || kb.sealed {
				if next == nil {
					return nil
				}
				t = m.helpCopy(next)
				continue retry
			}
			idx = (idx + 1) & t.mask
		}
	}
}

// putIfMatch installs put for key when the current state satisfies mt.
// put is either a kindValue box or the tombstone. It returns the state it
// observed last and whether the install happened. A nil or tombstone
// result means the key was absent.
//
// kb, when non-nil, is a prebuilt key box for key; migration passes the
// predecessor's box so that copying allocates no keys.
func (m *Map[K, V]) putIfMatch(
	t *table[K, V],
	key *K,
	hash uintptr,
	kb *keyBox[K],
	put *valueBox[V],
	mt match[V],
) (*valueBox[V], bool) {
	copying := mt.kind == matchEmpty
retry:
	for {
		idx := t.index(hash)
		reprobes := 0
		var (
			s    *slot[K, V]
			cur  *valueBox[V]
			next *table[K, V]
		)
		for {
			s = &t.slots[idx]
			cur = s.val.Load()
			k := s.key.Load()
			if k == nil {
				// The key has never been in this table.
				if put.kind == kindTombstone {
					return nil, false
				}
				switch mt.kind {
				case matchPresent, matchValue, matchBox:
					return nil, false
				}
				if kb == nil {
					kb = &keyBox[K]{key: *key, hash: hash}
				}
				if s.key.CompareAndSwap(nil, kb) {
					t.used.Increment()
					break
				}
				// Lost the race; fall through with the winner.
				k = s.key.Load()
			}
			next = t.next.Load()
			if t.keyEqual(k, key, hash) {
				break
			}
			reprobes++
			if reprobes >= t.reprobes || k.sealed {
				// Out of room here, or the table is closed to new keys.
				next = m.resize(t, reprobes >= t.reprobes)
				if !copying {
					m.helpCopy(next)
				}
				t = next
				continue retry
			}
			idx = (idx + 1) & t.mask
		}

		// Key slot found.
		if copying && cur.frozen() && cur != t.meta.vacated {
			// The key had a state here that has since moved on. Whatever
			// it was, it is newer than the value being replayed, and the
			// key's later history lives down the chain.
			return cur, false
		}
		if next == nil && (cur == nil && put.live() && t.tableFull(reprobes) || cur.frozen()) {
			next = m.resize(t, false)
		}
		if next != nil {
			t = m.copySlotAndCheck(t, idx, !copying)
			continue retry
		}

		for {
			if !t.matches(cur, &mt) {
				return cur, false
			}
			if s.val.CompareAndSwap(cur, put) {
				if !copying {
					if wasLive, isLive := cur.live(), put.live(); !wasLive && isLive {
						t.size.Increment()
					} else if wasLive && !isLive {
						t.size.Decrement()
					}
				}
				return cur, true
			}
			cur = s.val.Load()
			if cur.frozen() {
				t = m.copySlotAndCheck(t, idx, !copying)
				continue retry
			}
		}
	}
}

// tableFull reports whether an insert that needed reprobes probes should
// move the map to a new table instead of claiming a fresh key here.
func (t *table[K, V]) tableFull(reprobes int) bool {
	if reprobes < minReprobes {
		return false
	}
	if reprobes >= t.reprobes {
		return true
	}
	tableLen := int64(len(t.slots))
	used := t.used.Estimate()
	if used >= tableLen>>1+tableLen>>2 {
		return true
	}
	// Dead keys still occupy probe chains; reclaim them.
	return used-t.size.Estimate() >= tableLen>>1
}

// lastResizeRecent reports whether the map resized within the storm
// window.
func (t *table[K, V]) lastResizeRecent() bool {
	last := t.meta.lastResize.Load()
	return last != 0 && time.Now().UnixNano()-last <= resizeStormWindow
}
