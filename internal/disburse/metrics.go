package disburse

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the disbursement pipeline collectors. All fields are
// optional; a nil collector disables that metric.
type Metrics struct {
	// Submissions counts initiate attempts by result
	// (submitted, rejected, failed).
	Submissions *prometheus.CounterVec

	// Reconciliations counts processed callbacks by outcome
	// (paid, errored, duplicate, unknown).
	Reconciliations *prometheus.CounterVec

	// GatewayLatency observes end-to-end gateway submission time by
	// outcome (ok, error).
	GatewayLatency *prometheus.HistogramVec
}

func (m *Metrics) countSubmission(result string) {
	if m == nil || m.Submissions == nil {
		return
	}
	m.Submissions.WithLabelValues(result).Inc()
}

func (m *Metrics) countReconciliation(outcome string) {
	if m == nil || m.Reconciliations == nil {
		return
	}
	m.Reconciliations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeGateway(outcome string, elapsed time.Duration) {
	if m == nil || m.GatewayLatency == nil {
		return
	}
	m.GatewayLatency.WithLabelValues(outcome).Observe(elapsed.Seconds())
}
