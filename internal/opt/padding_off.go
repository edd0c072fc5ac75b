//go:build (amd64 || 386 || arm || mips || mipsle || wasm) && !nonblock_enable_padding

package opt

import "sync/atomic"

const Padded_ = false

// CounterCell_ is one stripe of a striped counter.
// Padding is disabled by default for:
// - amd64
// - 32-bit architectures (386, arm, mips, mipsle, wasm)
type CounterCell_ struct {
	V atomic.Int64
}
