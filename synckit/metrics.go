package synckit

import "time"

// MetricsCollector provides hooks for collecting sync operation metrics
type MetricsCollector interface {
	// RecordSyncDuration records how long a sync or respond operation took
	RecordSyncDuration(operation string, duration time.Duration)

	// RecordMessages records the number of messages sent and received
	RecordMessages(operation string, sent, received int)

	// RecordRounds records how many request/response rounds a sync took
	RecordRounds(rounds int)

	// RecordSyncError records a failed operation by error code
	RecordSyncError(operation string, code string)
}

// NoOpMetricsCollector is a default implementation that does nothing
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) RecordSyncDuration(operation string, duration time.Duration) {}
func (n *NoOpMetricsCollector) RecordMessages(operation string, sent, received int)         {}
func (n *NoOpMetricsCollector) RecordRounds(rounds int)                                     {}
func (n *NoOpMetricsCollector) RecordSyncError(operation string, code string)               {}
