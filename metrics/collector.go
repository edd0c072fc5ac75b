// Package metrics exports nonblock map statistics to Prometheus.
//
// A Collector reads MapStats on every scrape, so it costs one scan of the
// root table per scrape and nothing on the map's hot paths.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/llxisdsh/nonblock"
)

// StatsSource is satisfied by every *nonblock.Map instantiation.
type StatsSource interface {
	Stats() *nonblock.MapStats
}

// Collector implements prometheus.Collector over a set of named maps.
type Collector struct {
	maps map[string]StatsSource

	capacity   *prometheus.Desc
	entries    *prometheus.Desc
	claimed    *prometheus.Desc
	tombstones *prometheus.Desc
	chain      *prometheus.Desc
	stripes    *prometheus.Desc
	resizes    *prometheus.Desc
}

// NewCollector creates a collector for maps keyed by a label value. The
// label is exported as "map".
func NewCollector(namespace string, maps map[string]StatsSource) *Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "map", name),
			help,
			append([]string{"map"}, labels...),
			nil,
		)
	}
	return &Collector{
		maps:       maps,
		capacity:   desc("capacity_slots", "Slots in the root table."),
		entries:    desc("entries", "Live entries according to the striped counter."),
		claimed:    desc("claimed_slots", "Keys claimed in the root table, dead or alive."),
		tombstones: desc("tombstones", "Removed keys still occupying slots."),
		chain:      desc("table_chain", "Tables reachable from the root, above 1 while resizing."),
		stripes:    desc("counter_stripes", "Cells of the entry counter."),
		resizes:    desc("resizes_total", "Completed resize installs by kind.", "kind"),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.capacity
	ch <- c.entries
	ch <- c.claimed
	ch <- c.tombstones
	ch <- c.chain
	ch <- c.stripes
	ch <- c.resizes
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for name, m := range c.maps {
		s := m.Stats()
		ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(s.Capacity), name)
		ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(s.Counter), name)
		ch <- prometheus.MustNewConstMetric(c.claimed, prometheus.GaugeValue, float64(s.Claimed), name)
		ch <- prometheus.MustNewConstMetric(c.tombstones, prometheus.GaugeValue, float64(s.Tombstones), name)
		ch <- prometheus.MustNewConstMetric(c.chain, prometheus.GaugeValue, float64(s.Chain), name)
		ch <- prometheus.MustNewConstMetric(c.stripes, prometheus.GaugeValue, float64(s.CounterLen), name)
		ch <- prometheus.MustNewConstMetric(c.resizes, prometheus.CounterValue, float64(s.TotalGrowths), name, "grow")
		ch <- prometheus.MustNewConstMetric(c.resizes, prometheus.CounterValue, float64(s.TotalReclaims), name, "reclaim")
	}
}

// Register creates a collector for maps and registers it with reg.
func Register(reg prometheus.Registerer, namespace string, maps map[string]StatsSource) (*Collector, error) {
	c := NewCollector(namespace, maps)
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	return c, nil
}
