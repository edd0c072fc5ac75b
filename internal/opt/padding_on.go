//go:build !(amd64 || 386 || arm || mips || mipsle || wasm) || nonblock_enable_padding

package opt

import (
	"sync/atomic"
	"unsafe"
)

const Padded_ = true

// CounterCell_ is one stripe of a striped counter, padded to a full cache
// line so that neighbouring cells never share one.
//
// Enabled for: arm64, s390x, ppc64, ppc64le, riscv64, loong64, mips64,
// mips64le, etc. Use -tags=nonblock_enable_padding to force it elsewhere.
type CounterCell_ struct {
	V atomic.Int64
	_ [(CacheLineSize_ - unsafe.Sizeof(atomic.Int64{})%CacheLineSize_) % CacheLineSize_]byte
}
