package nonblock

import (
	"fmt"
	"strings"
)

// MapStats is Map statistics.
//
// Notes:
//   - map statistics are intended to be used for diagnostic
//     purposes, not for production code. This means that breaking changes
//     may be introduced into this struct even between minor releases.
type MapStats struct {
	// Capacity is the number of slots of the root table.
	Capacity int
	// ReprobeLimit is the probe bound of the root table.
	ReprobeLimit int
	// Chain is the number of tables reachable from the root, 1 when no
	// resize is in flight.
	Chain int
	// Size is the number of live entries found by scanning the root
	// table. Entries already moved to a successor are not counted.
	Size int
	// Counter is the number of entries according to the striped counter.
	// Under concurrent modification it may differ from Size.
	Counter int
	// CounterLen is the number of counter stripes in use.
	CounterLen int
	// Claimed is the number of keys claimed in the root table, dead or
	// alive.
	Claimed int
	// Tombstones is the number of removed keys still occupying slots.
	Tombstones int
	// Sealed is the number of slots closed by a migration.
	Sealed int
	// Moved is the number of slots frozen or copied by a migration.
	Moved int
	// TotalGrowths is the number of resizes that grew the table.
	TotalGrowths uint32
	// TotalReclaims is the number of same-size resizes that only dropped
	// tombstones.
	TotalReclaims uint32
}

// String returns string representation of map stats.
func (s *MapStats) String() string {
	var sb strings.Builder
	sb.WriteString("MapStats{\n")
	sb.WriteString(fmt.Sprintf("Capacity:      %d\n", s.Capacity))
	sb.WriteString(fmt.Sprintf("ReprobeLimit:  %d\n", s.ReprobeLimit))
	sb.WriteString(fmt.Sprintf("Chain:         %d\n", s.Chain))
	sb.WriteString(fmt.Sprintf("Size:          %d\n", s.Size))
	sb.WriteString(fmt.Sprintf("Counter:       %d\n", s.Counter))
	sb.WriteString(fmt.Sprintf("CounterLen:    %d\n", s.CounterLen))
	sb.WriteString(fmt.Sprintf("Claimed:       %d\n", s.Claimed))
	sb.WriteString(fmt.Sprintf("Tombstones:    %d\n", s.Tombstones))
	sb.WriteString(fmt.Sprintf("Sealed:        %d\n", s.Sealed))
	sb.WriteString(fmt.Sprintf("Moved:         %d\n", s.Moved))
	sb.WriteString(fmt.Sprintf("TotalGrowths:  %d\n", s.TotalGrowths))
	sb.WriteString(fmt.Sprintf("TotalReclaims: %d\n", s.TotalReclaims))
	sb.WriteString("}\n")
	return sb.String()
}

// Stats returns statistics for the Map. Just like other map
// methods, this one is thread-safe. Yet it's an O(N) operation,
// so it should be used only for diagnostics or debugging purposes.
func (m *Map[K, V]) Stats() *MapStats {
	stats := &MapStats{}
	t := m.table.Load()
	if t == nil {
		return stats
	}
	stats.Capacity = len(t.slots)
	stats.ReprobeLimit = t.reprobes
	stats.Counter = int(t.size.Value())
	stats.CounterLen = t.size.Cells()
	stats.TotalGrowths = t.meta.growths.Load()
	stats.TotalReclaims = t.meta.reclaims.Load()
	for n := t; n != nil; n = n.next.Load() {
		stats.Chain++
	}
	for i := range t.slots {
		s := &t.slots[i]
		kb := s.key.Load()
		if kb == nil {
			continue
		}
		if kb.sealed {
			stats.Sealed++
			continue
		}
		stats.Claimed++
		vb := s.val.Load()
		switch {
		case vb.live():
			stats.Size++
		case vb == nil:
		case vb.kind == kindTombstone:
			stats.Tombstones++
		case vb.frozen():
			stats.Moved++
		}
	}
	return stats
}
