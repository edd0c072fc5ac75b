package nonblock

import (
	"hash/maphash"
	"math/bits"
	"reflect"
	"unsafe"
)

// ============================================================================
// Private Constants
// ============================================================================

// Table sizing and migration tuning. See DESIGN.md for how these were
// chosen.
const (
	// minTableLen: smallest table capacity, must be a power of 2
	minTableLen = 16
	// minReprobes: probes below this count never consult the counters
	minReprobes = 10
	// reprobesPerLog2: reprobe limit growth per doubling of capacity
	reprobesPerLog2 = 4
	// copyChunk: slots claimed per migration helper step
	copyChunk = 1024
	// resizeStormWindow: a tombstone-only resize this soon after the
	// previous one doubles instead
	resizeStormWindow = int64(10e9)
	// largeTableBytes: beyond this, concurrent resizers yield before
	// allocating their own candidate table
	largeTableBytes = 1 << 20
)

const (
	intSize = 32 << (^uint(0) >> 63) // 32 or 64
	maxInt  = 1<<(intSize-1) - 1     // MaxInt32 or MaxInt64 depending on intSize.
)

// fibonacci multiplier, 2^64/φ
const fibMul = 0x9e3779b97f4a7c15

// ============================================================================
// Utility Functions
// ============================================================================

// calcTableLen computes the slot count needed to hold capacity entries
// below the load trigger. The return value is a power of 2.
//
//go:nosplit
func calcTableLen(capacity int) int {
	if capacity <= 0 {
		return minTableLen
	}
	return max(minTableLen, nextPowOf2(capacity+capacity/3+1))
}

// calcReprobeLimit returns R for a table of tableLen slots.
//
//go:nosplit
func calcReprobeLimit(tableLen int) int {
	log2 := bits.Len(uint(tableLen)) - 1
	return min(tableLen, minReprobes+reprobesPerLog2*log2)
}

// nextPowOf2 calculates the smallest power of 2 that is greater than or equal
// to n.
// Compatible with both 32-bit and 64-bit systems.
//
//go:nosplit
func nextPowOf2(n int) int {
	if n <= 0 {
		return 1
	}
	v := n - 1
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	if intSize == 64 {
		v |= v >> 32
	}
	return v + 1
}

// noescape hides a pointer from escape analysis. noescape is
// the identity function, but escape analysis doesn't think the
// output depends on the input.  noescape is inlined and currently
// compiles down to zero instructions.
// USE CAREFULLY!
//
//go:nosplit
//go:nocheckptr
func noescape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	//nolint:all
	//goland:noinspection ALL
	return unsafe.Pointer(x ^ 0)
}

//go:nosplit
//go:nocheckptr
func noEscape[T any](p *T) *T {
	return (*T)(noescape(unsafe.Pointer(p)))
}

// noCopy may be added to structs which must not be copied
// after the first use.
//
// See https://golang.org/issues/8005#issuecomment-190753527
// for details.
//
// Note that it must not be embedded, due to the Lock and Unlock methods.
type noCopy struct{}

// Lock is a no-op used by -copylocks checker from `go vet`.
func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// ============================================================================
// Hash Utilities
// ============================================================================

type (
	// HashFunc is the function to hash a value of type K.
	HashFunc func(ptr unsafe.Pointer, seed uintptr) uintptr
	// EqualFunc is the function to compare two values of the same type.
	EqualFunc func(ptr unsafe.Pointer, other unsafe.Pointer) bool
)

// defaultHasher returns a hash function over the key using the runtime's
// map hash under a fresh maphash.Seed, so every map gets its own hash
// function and keys colliding in one map are unrelated in another. The
// uintptr seed is unused. Like a built-in map, it panics for interface
// keys holding non-comparable dynamic values.
func defaultHasher[K comparable]() HashFunc {
	seed := maphash.MakeSeed()
	return func(ptr unsafe.Pointer, _ uintptr) uintptr {
		return uintptr(maphash.Comparable(seed, *(*K)(ptr)))
	}
}

// defaultValueEqual returns == over V, or nil when V is not comparable.
func defaultValueEqual[V any]() EqualFunc {
	vType := reflect.TypeFor[V]()
	if vType != nil && !vType.Comparable() {
		return nil
	}
	return func(ptr unsafe.Pointer, other unsafe.Pointer) bool {
		return any(*(*V)(ptr)) == any(*(*V)(other))
	}
}
