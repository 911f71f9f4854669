// Package metrics exports sync activity to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c0deZ3R0/go-merkle-sync/synckit"
)

// Collector implements synckit.MetricsCollector with Prometheus vectors.
type Collector struct {
	syncDuration *prometheus.HistogramVec
	messages     *prometheus.CounterVec
	rounds       prometheus.Histogram
	syncErrors   *prometheus.CounterVec
}

var _ synckit.MetricsCollector = (*Collector)(nil)

// NewCollector creates the collectors and registers them with reg. A nil
// reg skips registration.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		syncDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "merklesync_operation_duration_seconds",
			Help:    "Duration of sync and respond operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "merklesync_messages_total",
			Help: "Messages exchanged, by operation and direction",
		}, []string{"operation", "direction"}),
		rounds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "merklesync_sync_rounds",
			Help:    "Request/response rounds needed per sync",
			Buckets: prometheus.LinearBuckets(1, 1, 8),
		}),
		syncErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "merklesync_errors_total",
			Help: "Failed operations by error code",
		}, []string{"operation", "code"}),
	}

	if reg != nil {
		reg.MustRegister(c.syncDuration, c.messages, c.rounds, c.syncErrors)
	}
	return c
}

func (c *Collector) RecordSyncDuration(operation string, duration time.Duration) {
	c.syncDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (c *Collector) RecordMessages(operation string, sent, received int) {
	c.messages.WithLabelValues(operation, "sent").Add(float64(sent))
	c.messages.WithLabelValues(operation, "received").Add(float64(received))
}

func (c *Collector) RecordRounds(rounds int) {
	if rounds > 0 {
		c.rounds.Observe(float64(rounds))
	}
}

func (c *Collector) RecordSyncError(operation string, code string) {
	c.syncErrors.WithLabelValues(operation, code).Inc()
}
