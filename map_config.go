package nonblock

import (
	"unsafe"

	"github.com/hashicorp/go-hclog"
)

// ============================================================================
// Configuration
// ============================================================================

// MapConfig defines configurable options for Map initialization.
// This structure contains all the configuration parameters that can be used
// to customize the behavior of a Map instance.
type MapConfig struct {
	// keyHash specifies a custom hash function for keys.
	// If nil, the built-in seeded hash function will be used.
	keyHash HashFunc

	// keyEqual specifies a custom equality function for keys.
	// If nil, keys are compared with ==. A custom equality must agree
	// with keyHash: equal keys must hash equally.
	keyEqual EqualFunc

	// valEqual specifies a custom equality function for values.
	// It backs TryUpdate and TryRemoveValue. If nil, == is used for
	// comparable value types; for other value types those methods panic.
	valEqual EqualFunc

	// capacity provides an estimate of the expected number of entries.
	// It is a hint only: the initial table is sized so that capacity
	// entries fit below the load trigger. If zero or negative, the
	// default minimum capacity will be used.
	capacity int

	// logger receives resize and promotion events.
	logger hclog.Logger
}

// WithCapacity configures a new Map with room for about cap entries before
// its first resize. The table never shrinks below this size on Clear.
// If cap is zero or negative, the value is ignored.
func WithCapacity(cap int) func(*MapConfig) {
	return func(c *MapConfig) {
		c.capacity = cap
	}
}

// WithKeyHasher sets a custom key hashing function for the map.
//
// Usage:
//
//	m := NewMap[string, int](WithKeyHasher(func(s string, seed uintptr) uintptr {
//		return uintptr(len(s)) ^ seed
//	}))
func WithKeyHasher[K comparable](
	keyHash func(key K, seed uintptr) uintptr,
) func(*MapConfig) {
	return func(c *MapConfig) {
		if keyHash != nil {
			c.keyHash = func(ptr unsafe.Pointer, seed uintptr) uintptr {
				return keyHash(*(*K)(ptr), seed)
			}
		}
	}
}

// WithKeyHasherUnsafe sets a low-level unsafe key hashing function that
// operates directly on a pointer to the key.
//
// Notes:
//   - You must correctly cast unsafe.Pointer to the actual key type
//   - Incorrect pointer operations will cause crashes or memory corruption
func WithKeyHasherUnsafe(hs HashFunc) func(*MapConfig) {
	return func(c *MapConfig) {
		c.keyHash = hs
	}
}

// WithKeyEqual sets a custom key equality function, e.g. for
// case-insensitive string keys. It must be consistent with the key hasher.
func WithKeyEqual[K comparable](
	keyEqual func(key, other K) bool,
) func(*MapConfig) {
	return func(c *MapConfig) {
		if keyEqual != nil {
			c.keyEqual = func(ptr unsafe.Pointer, other unsafe.Pointer) bool {
				return keyEqual(*(*K)(ptr), *(*K)(other))
			}
		}
	}
}

// WithValueEqual sets a custom value equality function for the map.
// This is required by TryUpdate and TryRemoveValue when the value type is
// not comparable.
//
// Usage:
//
//	m := NewMap[string, []int](WithValueEqual(slices.Equal[[]int]))
func WithValueEqual[V any](
	valEqual func(val, val2 V) bool,
) func(*MapConfig) {
	return func(c *MapConfig) {
		if valEqual != nil {
			c.valEqual = func(val unsafe.Pointer, val2 unsafe.Pointer) bool {
				return valEqual(*(*V)(val), *(*V)(val2))
			}
		}
	}
}

// WithValueEqualUnsafe sets a low-level unsafe value equality function.
//
// Notes:
//   - Both pointers point to value data of the map's value type
//   - Incorrect pointer operations will cause crashes or memory corruption
func WithValueEqualUnsafe(eq EqualFunc) func(*MapConfig) {
	return func(c *MapConfig) {
		c.valEqual = eq
	}
}

// WithBuiltInHasher explicitly selects the runtime's seeded hash for the
// key type, overriding any IHashFunc implementation on the key.
//
// Usage:
//
//	m := NewMap[string, int](WithBuiltInHasher[string]())
func WithBuiltInHasher[K comparable]() func(*MapConfig) {
	return func(c *MapConfig) {
		c.keyHash = defaultHasher[K]()
	}
}

// WithLogger routes resize and migration events to logger. By default the
// map logs nothing.
func WithLogger(logger hclog.Logger) func(*MapConfig) {
	return func(c *MapConfig) {
		c.logger = logger
	}
}

// IHashFunc defines a custom hash function interface for key types.
// Key types implementing this interface can provide their own hash
// computation, serving as an alternative to WithKeyHasher.
//
// This interface is automatically detected during Map initialization and
// takes precedence over the default built-in hasher but is overridden by
// explicit WithKeyHasher configuration.
//
// Usage:
//
//	type UserID struct {
//		ID int64
//		Tenant string
//	}
//
//	func (u *UserID) HashFunc(seed uintptr) uintptr {
//		return uintptr(u.ID) ^ seed
//	}
type IHashFunc interface {
	HashFunc(seed uintptr) uintptr
}

// IEqualFunc defines a custom equality comparison interface. Key types
// implementing it replace == for key matching (pair it with IHashFunc);
// value types implementing it back TryUpdate and TryRemoveValue.
//
// Usage:
//
//	type UserProfile struct {
//		Name string
//		Tags []string // slice makes this non-comparable
//	}
//
//	func (u *UserProfile) EqualFunc(other UserProfile) bool {
//		return u.Name == other.Name && slices.Equal(u.Tags, other.Tags)
//	}
type IEqualFunc[T any] interface {
	EqualFunc(other T) bool
}

func parseKeyInterface[K comparable]() (keyHash HashFunc, keyEqual EqualFunc) {
	var k *K
	if _, ok := any(k).(IHashFunc); ok {
		keyHash = func(ptr unsafe.Pointer, seed uintptr) uintptr {
			return any((*K)(ptr)).(IHashFunc).HashFunc(seed)
		}
	}
	if _, ok := any(k).(IEqualFunc[K]); ok {
		keyEqual = func(ptr unsafe.Pointer, other unsafe.Pointer) bool {
			return any((*K)(ptr)).(IEqualFunc[K]).EqualFunc(*(*K)(other))
		}
	}
	return
}

func parseValueInterface[V any]() (valEqual EqualFunc) {
	var v *V
	if _, ok := any(v).(IEqualFunc[V]); ok {
		valEqual = func(ptr unsafe.Pointer, other unsafe.Pointer) bool {
			return any((*V)(ptr)).(IEqualFunc[V]).EqualFunc(*(*V)(other))
		}
	}
	return
}
