package benchmark

import (
	"sync"

	"github.com/Snawoot/lfmap"
	"github.com/alphadose/haxmap"
	"github.com/fufuok/cmap"
	"github.com/llxisdsh/nonblock"
	"github.com/llxisdsh/pb"
	csmap "github.com/mhmtszr/concurrent-swiss-map"
	orcaman_map "github.com/orcaman/concurrent-map/v2"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/zhangyunhao116/skipmap"
)

// ============================================================================
// Map Adapters
// ============================================================================

// intMap is the operation set every contender is measured on.
type intMap interface {
	Store(key, value int)
	Load(key int) (int, bool)
	LoadOrStore(key, value int)
	Delete(key int)
}

type contender struct {
	name string
	make func() intMap
}

// contenders lists the maps under comparison, this module's map first.
var contenders = []contender{
	{"nonblock.Map", func() intMap { return &nonblockAdapter{nonblock.NewMap[int, int]()} }},
	{"nonblock.Map/murmur3", func() intMap { return &nonblockAdapter{newMurmurMap()} }},
	{"pb.MapOf", func() intMap { return &pbAdapter{} }},
	{"xsync.Map", func() intMap { return &xsyncAdapter{xsync.NewMap[int, int]()} }},
	{"sync.Map", func() intMap { return &syncMapAdapter{} }},
	{"haxmap", newHaxmap},
	{"skipmap", newSkipmap},
	{"fufuok.cmap", newFufuokCmap},
	{"swiss.csmap", newSwissCsmap},
	{"orcaman.cmap", newOrcamanCmap},
	{"lfmap", newLfmap},
}

// murmurSeed fixes the hash seed of newMurmurMap.
const murmurSeed = 42

// newMurmurMap hashes the decimal form of the key with a fixed seed, a
// stable hash for comparing probe layouts across runs.
func newMurmurMap() *nonblock.Map[int, int] {
	return nonblock.NewMap[int, int](nonblock.WithKeyHasher(func(k int, _ uintptr) uintptr {
		var buf [20]byte
		n := len(buf)
		for u := uint64(k); ; u /= 10 {
			n--
			buf[n] = byte('0' + u%10)
			if u < 10 {
				break
			}
		}
		return nonblock.Murmur3Hasher(string(buf[n:]), murmurSeed)
	}))
}

type nonblockAdapter struct{ m *nonblock.Map[int, int] }

func (a *nonblockAdapter) Store(k, v int)         { a.m.Set(k, v) }
func (a *nonblockAdapter) Load(k int) (int, bool) { return a.m.TryGetValue(k) }
func (a *nonblockAdapter) LoadOrStore(k, v int)   { a.m.GetOrAddValue(k, v) }
func (a *nonblockAdapter) Delete(k int)           { a.m.TryRemove(k) }

type pbAdapter struct{ m pb.MapOf[int, int] }

func (a *pbAdapter) Store(k, v int)         { a.m.Store(k, v) }
func (a *pbAdapter) Load(k int) (int, bool) { return a.m.Load(k) }
func (a *pbAdapter) LoadOrStore(k, v int)   { a.m.LoadOrStore(k, v) }
func (a *pbAdapter) Delete(k int)           { a.m.Delete(k) }

type xsyncAdapter struct{ m *xsync.Map[int, int] }

func (a *xsyncAdapter) Store(k, v int)         { a.m.Store(k, v) }
func (a *xsyncAdapter) Load(k int) (int, bool) { return a.m.Load(k) }
func (a *xsyncAdapter) LoadOrStore(k, v int)   { a.m.LoadOrStore(k, v) }
func (a *xsyncAdapter) Delete(k int)           { a.m.Delete(k) }

type syncMapAdapter struct{ m sync.Map }

func (a *syncMapAdapter) Store(k, v int) { a.m.Store(k, v) }
func (a *syncMapAdapter) Load(k int) (int, bool) {
	v, ok := a.m.Load(k)
	if ok {
		return v.(int), true
	}
	return 0, false
}
func (a *syncMapAdapter) LoadOrStore(k, v int) { a.m.LoadOrStore(k, v) }
func (a *syncMapAdapter) Delete(k int)         { a.m.Delete(k) }

// funcMap adapts maps through closures, so contenders whose exported
// types differ between releases need no type names here.
type funcMap struct {
	store       func(k, v int)
	load        func(k int) (int, bool)
	loadOrStore func(k, v int)
	del         func(k int)
}

func (a *funcMap) Store(k, v int)         { a.store(k, v) }
func (a *funcMap) Load(k int) (int, bool) { return a.load(k) }
func (a *funcMap) LoadOrStore(k, v int)   { a.loadOrStore(k, v) }
func (a *funcMap) Delete(k int)           { a.del(k) }

func newHaxmap() intMap {
	m := haxmap.New[int, int]()
	return &funcMap{
		store:       func(k, v int) { m.Set(k, v) },
		load:        func(k int) (int, bool) { return m.Get(k) },
		loadOrStore: func(k, v int) { m.GetOrSet(k, v) },
		del:         func(k int) { m.Del(k) },
	}
}

func newSkipmap() intMap {
	m := skipmap.New[int, int]()
	return &funcMap{
		store:       func(k, v int) { m.Store(k, v) },
		load:        func(k int) (int, bool) { return m.Load(k) },
		loadOrStore: func(k, v int) { m.LoadOrStore(k, v) },
		del:         func(k int) { m.Delete(k) },
	}
}

func newFufuokCmap() intMap {
	m := cmap.NewOf[int, int]()
	return &funcMap{
		store:       func(k, v int) { m.Set(k, v) },
		load:        func(k int) (int, bool) { return m.Get(k) },
		loadOrStore: func(k, v int) { m.SetIfAbsent(k, v) },
		del:         func(k int) { m.Remove(k) },
	}
}

func newSwissCsmap() intMap {
	m := csmap.New(csmap.WithShardCount[int, int](32))
	return &funcMap{
		store:       func(k, v int) { m.Store(k, v) },
		load:        func(k int) (int, bool) { return m.Load(k) },
		loadOrStore: func(k, v int) { m.SetIfAbsent(k, v) },
		del:         func(k int) { m.Delete(k) },
	}
}

func newOrcamanCmap() intMap {
	m := orcaman_map.NewWithCustomShardingFunction[int, int](
		func(key int) uint32 { return uint32(key) },
	)
	return &funcMap{
		store:       func(k, v int) { m.Set(k, v) },
		load:        func(k int) (int, bool) { return m.Get(k) },
		loadOrStore: func(k, v int) { m.SetIfAbsent(k, v) },
		del:         func(k int) { m.Remove(k) },
	}
}

func newLfmap() intMap {
	m := lfmap.New[int, int]()
	return &funcMap{
		store: func(k, v int) { m.Set(k, v) },
		load:  func(k int) (int, bool) { return m.Get(k) },
		loadOrStore: func(k, v int) {
			// lfmap has no atomic insert-if-absent.
			if _, ok := m.Get(k); !ok {
				m.Set(k, v)
			}
		},
		del: func(k int) { m.Delete(k) },
	}
}
