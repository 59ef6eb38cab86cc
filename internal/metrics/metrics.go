// Package metrics collects and exposes Prometheus metrics for the core
// components (§2.1), following internal/metrics.Collector's
// registration pattern: one struct holding pre-built collectors,
// registered once in NewCollector and updated via small Record*/Set*
// methods called from the hot paths they describe.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds every metric this node publishes.
type Collector struct {
	checkoutsTotal     *prometheus.CounterVec
	checkoutWaitSecs   prometheus.Histogram
	walFsyncSecs       prometheus.Histogram
	discoveryNodes     prometheus.Gauge
	raftTerm           *prometheus.GaugeVec
	remoteConnections  prometheus.Gauge
}

// NewCollector builds and registers the collector set.
func NewCollector() *Collector {
	c := &Collector{
		checkoutsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xapiand_checkouts_total",
			Help: "Total database pool checkouts, by outcome.",
		}, []string{"outcome"}),
		checkoutWaitSecs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "xapiand_checkout_wait_seconds",
			Help:    "Time spent waiting for a database pool checkout.",
			Buckets: prometheus.DefBuckets,
		}),
		walFsyncSecs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "xapiand_wal_fsync_seconds",
			Help:    "Time spent fsyncing a WAL group-commit batch.",
			Buckets: prometheus.DefBuckets,
		}),
		discoveryNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "xapiand_discovery_nodes",
			Help: "Number of peers currently known to the membership table.",
		}),
		raftTerm: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "xapiand_raft_term",
			Help: "Current raft term, by region.",
		}, []string{"region"}),
		remoteConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "xapiand_remote_connections",
			Help: "Number of open remote-protocol connections.",
		}),
	}

	prometheus.MustRegister(c.checkoutsTotal)
	prometheus.MustRegister(c.checkoutWaitSecs)
	prometheus.MustRegister(c.walFsyncSecs)
	prometheus.MustRegister(c.discoveryNodes)
	prometheus.MustRegister(c.raftTerm)
	prometheus.MustRegister(c.remoteConnections)

	return c
}

// RecordCheckout records the outcome of one database pool checkout
// ("ok", "timeout", or "error") and, for a successful one, how long the
// caller waited.
func (c *Collector) RecordCheckout(outcome string, waitSeconds float64) {
	c.checkoutsTotal.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		c.checkoutWaitSecs.Observe(waitSeconds)
	}
}

// RecordWALFsync records one group-commit fsync's duration.
func (c *Collector) RecordWALFsync(seconds float64) {
	c.walFsyncSecs.Observe(seconds)
}

// SetDiscoveryNodes sets the current membership table size.
func (c *Collector) SetDiscoveryNodes(n int) {
	c.discoveryNodes.Set(float64(n))
}

// SetRaftTerm sets the current term for one region.
func (c *Collector) SetRaftTerm(region int32, term int64) {
	c.raftTerm.WithLabelValues(fmt.Sprintf("%d", region)).Set(float64(term))
}

// SetRemoteConnections sets the current remote-protocol connection count.
func (c *Collector) SetRemoteConnections(n int) {
	c.remoteConnections.Set(float64(n))
}

// StartServer serves /metrics on addr until the process exits or the
// listener fails; callers run it in its own goroutine.
func StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
