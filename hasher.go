package nonblock

import (
	"unsafe"

	"github.com/spaolacci/murmur3"
)

// Murmur3Hasher hashes string-like keys with 64-bit MurmurHash3. The
// output depends only on the key and seed, so it is stable across
// processes.
func Murmur3Hasher[K ~string](key K, seed uintptr) uintptr {
	s := string(key)
	b := unsafe.Slice(unsafe.StringData(s), len(s))
	return uintptr(murmur3.Sum64WithSeed(b, uint32(seed)))
}

// WithMurmur3Hasher configures a string-keyed Map to use Murmur3Hasher
// with a fixed seed in place of the map's random one. Maps built with the
// same seed and capacity lay out the same keys in the same slots, which
// keeps probe layouts reproducible across runs.
//
// Usage:
//
//	m := NewMap[string, int](WithMurmur3Hasher[string](42))
func WithMurmur3Hasher[K ~string](seed uint32) func(*MapConfig) {
	return func(c *MapConfig) {
		c.keyHash = func(ptr unsafe.Pointer, _ uintptr) uintptr {
			return Murmur3Hasher(*(*K)(ptr), uintptr(seed))
		}
	}
}
