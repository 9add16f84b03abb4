package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SideSnapshot is the subset of a bearer.Snapshot the live Collector needs,
// kept as a plain struct so this package doesn't import kernel/bearer.
type SideSnapshot struct {
	LossRate    float64
	ReorderRate float64
	JitterMs    float64
	GoodputBps  float64
}

// StatsProvider is implemented by the runner: it supplies the current
// rolling-rate snapshot per direction so Collect can read it at scrape time,
// the same provider-interface shape flowpbx-flowpbx/internal/metrics.Collector
// uses for its ActiveCallsProvider/RTPStatsProvider dependencies.
type StatsProvider interface {
	Snapshot(dir string) SideSnapshot
}

// Collector is a prometheus.Collector exposing DryBox's rolling-rate
// metrics live, for an embedding process to scrape. It is purely additive:
// nothing in the kernel reads it back, so it cannot perturb metrics.csv,
// events.jsonl, or capture.dbxcap determinism.
type Collector struct {
	stats StatsProvider

	lossRate    *prometheus.Desc
	reorderRate *prometheus.Desc
	jitterMs    *prometheus.Desc
	goodputBps  *prometheus.Desc
}

// NewCollector builds a Collector backed by stats.
func NewCollector(stats StatsProvider) *Collector {
	return &Collector{
		stats: stats,
		lossRate: prometheus.NewDesc(
			"drybox_bearer_loss_rate", "Rolling bearer loss rate.", []string{"direction"}, nil),
		reorderRate: prometheus.NewDesc(
			"drybox_bearer_reorder_rate", "Rolling bearer reorder rate.", []string{"direction"}, nil),
		jitterMs: prometheus.NewDesc(
			"drybox_bearer_jitter_ms", "Rolling estimate of one-way delay jitter.", []string{"direction"}, nil),
		goodputBps: prometheus.NewDesc(
			"drybox_bearer_goodput_bps", "Rolling delivered goodput.", []string{"direction"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.lossRate
	ch <- c.reorderRate
	ch <- c.jitterMs
	ch <- c.goodputBps
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, dir := range []string{"L->R", "R->L"} {
		s := c.stats.Snapshot(dir)
		ch <- prometheus.MustNewConstMetric(c.lossRate, prometheus.GaugeValue, s.LossRate, dir)
		ch <- prometheus.MustNewConstMetric(c.reorderRate, prometheus.GaugeValue, s.ReorderRate, dir)
		ch <- prometheus.MustNewConstMetric(c.jitterMs, prometheus.GaugeValue, s.JitterMs, dir)
		ch <- prometheus.MustNewConstMetric(c.goodputBps, prometheus.GaugeValue, s.GoodputBps, dir)
	}
}
