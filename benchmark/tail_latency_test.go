package benchmark

import (
	"cmp"
	"fmt"
	"runtime"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

// ============================================================================
// Global Configuration
// ============================================================================

// Test parameters - adjust for stability vs speed tradeoff
const (
	defaultOpsPerWorker = 50000 // Operations per worker
	defaultKeys         = 10000 // Number of keys
	warmupRounds        = 3     // Warmup iterations before measurement
	measureRounds       = 5     // Measurement rounds to average
)

// ============================================================================
// Latency Result
// ============================================================================

type latencyResult struct {
	name       string
	throughput float64
	p50        time.Duration
	p99        time.Duration
	p999       time.Duration
	max        time.Duration
	slowRate   float64 // % of ops > 1ms
}

func us(d time.Duration) string {
	return fmt.Sprintf("%.2fµs", float64(d.Nanoseconds())/float64(time.Microsecond))
}

// runLatencyTest starts from an empty map so that every contender pays
// for its own growth while being measured: one write in five.
func runLatencyTest(workers, keys, opsPerWorker int, m intMap) latencyResult {
	samples := make([]int64, workers*opsPerWorker)
	var slowOps atomic.Int64

	var g errgroup.Group
	start := time.Now()
	for w := range workers {
		g.Go(func() error {
			base := w * opsPerWorker
			own := samples[base : base+opsPerWorker]
			for i := range own {
				key := (base + i) % keys
				opStart := time.Now()
				if i%5 == 0 {
					m.Store(key, w)
				} else {
					_, _ = m.Load(key)
				}
				d := time.Since(opStart).Nanoseconds()
				if d > int64(time.Millisecond) {
					slowOps.Add(1)
				}
				own[i] = d
			}
			return nil
		})
	}
	_ = g.Wait()
	elapsed := time.Since(start)

	slices.Sort(samples)
	n := len(samples)
	return latencyResult{
		throughput: float64(n) / elapsed.Seconds(),
		p50:        time.Duration(samples[n/2]),
		p99:        time.Duration(samples[n*99/100]),
		p999:       time.Duration(samples[(n-1)*999/1000]),
		max:        time.Duration(samples[n-1]),
		slowRate:   float64(slowOps.Load()) / float64(n) * 100,
	}
}

// runWithWarmup runs warmup rounds then measurement rounds and returns
// averaged result.
func runWithWarmup(workers, keys, ops int, makeMap func() intMap) latencyResult {
	for range warmupRounds {
		_ = runLatencyTest(workers, keys, ops/10, makeMap())
	}
	runtime.GC()

	var avg latencyResult
	for range measureRounds {
		r := runLatencyTest(workers, keys, ops, makeMap())
		avg.throughput += r.throughput
		avg.p50 += r.p50
		avg.p99 += r.p99
		avg.p999 += r.p999
		avg.max += r.max
		avg.slowRate += r.slowRate
		runtime.GC()
	}
	avg.throughput /= measureRounds
	avg.p50 /= measureRounds
	avg.p99 /= measureRounds
	avg.p999 /= measureRounds
	avg.max /= measureRounds
	avg.slowRate /= measureRounds
	return avg
}

// ============================================================================
// Main Test
// ============================================================================

func TestLatencySummary(t *testing.T) {
	if testing.Short() {
		t.Skip("latency summary is slow")
	}
	numCPU := runtime.GOMAXPROCS(0)
	workers := numCPU * 2
	t.Logf("CPUs: %d, Workers: %d, Keys: %d, Ops/Worker: %d",
		numCPU, workers, defaultKeys, defaultOpsPerWorker)

	results := make([]latencyResult, 0, len(contenders))
	for _, c := range contenders {
		r := runWithWarmup(workers, defaultKeys, defaultOpsPerWorker, c.make)
		r.name = c.name
		results = append(results, r)
	}

	slices.SortFunc(results, func(a, b latencyResult) int {
		return cmp.Compare(a.p999, b.p999)
	})

	t.Logf("%-4s | %-22s | %12s | %10s | %10s | %10s | %8s",
		"Rank", "Implementation", "Throughput", "p99", "p999", "max", "slow%")
	for i, r := range results {
		t.Logf("%-4d | %-22s | %10.0f/s | %10s | %10s | %10s | %6.4f%%",
			i+1, r.name, r.throughput, us(r.p99), us(r.p999), us(r.max), r.slowRate)
	}
}

func TestLatencyQuick(t *testing.T) {
	workers := runtime.GOMAXPROCS(0)
	for _, c := range contenders {
		r := runLatencyTest(workers, 100, 2000, c.make())
		t.Logf("%-22s | %10.0f/s | p999 %10s | max %10s",
			c.name, r.throughput, us(r.p999), us(r.max))
	}
}

// The maps of this module must hold every write of a concurrent run; a
// latency figure is worthless for a map that loses writes.
func TestNonblockKeepsWrites(t *testing.T) {
	const keys = 5000
	for _, c := range contenders {
		if !strings.HasPrefix(c.name, "nonblock.") {
			continue
		}
		m := c.make()
		var g errgroup.Group
		for w := range 4 {
			g.Go(func() error {
				for k := w; k < keys; k += 4 {
					m.Store(k, k*2)
				}
				return nil
			})
		}
		_ = g.Wait()
		for k := range keys {
			if v, ok := m.Load(k); !ok || v != k*2 {
				t.Fatalf("%s: key %d = %d,%v", c.name, k, v, ok)
			}
		}
	}
}
