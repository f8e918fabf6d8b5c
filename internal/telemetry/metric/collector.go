// Package metric provides Prometheus metrics for Cardinal.
package metric

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// KeyspaceStats reports per-database key counts. *memory.Store
// satisfies it.
type KeyspaceStats interface {
	Len(db int) int
}

// KeyspaceCollector exports the current key count of every database,
// sampled at scrape time.
type KeyspaceCollector struct {
	stats     KeyspaceStats
	databases int
	desc      *prometheus.Desc
}

// NewKeyspaceCollector creates a collector over the given stats source
// covering database indices [0, databases).
func NewKeyspaceCollector(stats KeyspaceStats, databases int) *KeyspaceCollector {
	return &KeyspaceCollector{
		stats:     stats,
		databases: databases,
		desc: prometheus.NewDesc(
			"cardinal_db_keys",
			"Number of keys currently stored, by database index.",
			[]string{"db"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *KeyspaceCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

// Collect implements prometheus.Collector.
func (c *KeyspaceCollector) Collect(ch chan<- prometheus.Metric) {
	for db := 0; db < c.databases; db++ {
		ch <- prometheus.MustNewConstMetric(
			c.desc,
			prometheus.GaugeValue,
			float64(c.stats.Len(db)),
			strconv.Itoa(db),
		)
	}
}

// RegisterKeyspace attaches a keyspace collector for the given stats
// source to the registry.
func (r *Registry) RegisterKeyspace(stats KeyspaceStats, databases int) {
	r.reg.MustRegister(NewKeyspaceCollector(stats, databases))
}
