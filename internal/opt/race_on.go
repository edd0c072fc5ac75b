//go:build race

package opt

// Race_ reports whether the race detector is enabled. Stress tests scale
// their workloads down under it.
const Race_ = true
