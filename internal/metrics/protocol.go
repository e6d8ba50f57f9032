package ribdmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const protocolSubsystem = "protocol"

// Label names for the shared link-state/decision-pipeline metrics.
const (
	labelProtocol = "protocol"
	labelInstance = "instance"
)

// ProtocolCollector holds the Prometheus instrumentation shared by the
// link-state engines (internal/isis, internal/ospf) and the policy-
// decision pipeline (internal/bgp, internal/rip): adjacency state
// transitions, LSDB size and purge counts, SPF run counts and
// duration, decision-process run counts and duration, and per-instance
// update-queue depth. It follows the same registration shape as
// Collector, just with a different metric set for the non-BFD
// protocol families.
type ProtocolCollector struct {
	AdjacencyTransitions *prometheus.CounterVec
	LSDBRecords          *prometheus.GaugeVec
	LSDBPurges           *prometheus.CounterVec
	SPFRuns              *prometheus.CounterVec
	SPFDuration          *prometheus.HistogramVec
	DecisionRuns         *prometheus.CounterVec
	DecisionDuration     *prometheus.HistogramVec
	QueueDepth           *prometheus.GaugeVec
}

// NewProtocolCollector creates a ProtocolCollector with all metrics
// registered against reg. If reg is nil, prometheus.DefaultRegisterer
// is used.
func NewProtocolCollector(reg prometheus.Registerer) *ProtocolCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newProtocolMetrics()

	reg.MustRegister(
		c.AdjacencyTransitions,
		c.LSDBRecords,
		c.LSDBPurges,
		c.SPFRuns,
		c.SPFDuration,
		c.DecisionRuns,
		c.DecisionDuration,
		c.QueueDepth,
	)

	return c
}

func newProtocolMetrics() *ProtocolCollector {
	instanceLabels := []string{labelProtocol, labelInstance}
	transitionLabels := []string{labelProtocol, labelInstance, labelFromState, labelToState}

	return &ProtocolCollector{
		AdjacencyTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: protocolSubsystem,
			Name:      "adjacency_transitions_total",
			Help:      "Total link-state adjacency FSM state transitions.",
		}, transitionLabels),

		LSDBRecords: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: protocolSubsystem,
			Name:      "lsdb_records",
			Help:      "Current number of records held in an instance's link-state database.",
		}, instanceLabels),

		LSDBPurges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: protocolSubsystem,
			Name:      "lsdb_purges_total",
			Help:      "Total link-state database records purged for reaching MaxAge.",
		}, instanceLabels),

		SPFRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: protocolSubsystem,
			Name:      "spf_runs_total",
			Help:      "Total shortest-path computations run by the SPF delay FSM.",
		}, instanceLabels),

		SPFDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: protocolSubsystem,
			Name:      "spf_duration_seconds",
			Help:      "Shortest-path computation duration.",
			Buckets:   prometheus.DefBuckets,
		}, instanceLabels),

		DecisionRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: protocolSubsystem,
			Name:      "decision_runs_total",
			Help:      "Total policy decision-process runs.",
		}, instanceLabels),

		DecisionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: protocolSubsystem,
			Name:      "decision_duration_seconds",
			Help:      "Policy decision-process run duration.",
			Buckets:   prometheus.DefBuckets,
		}, instanceLabels),

		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: protocolSubsystem,
			Name:      "update_queue_depth",
			Help:      "Current number of pending entries in a decision instance's update queue.",
		}, instanceLabels),
	}
}

// RecordAdjacencyTransition increments the transition counter for one
// instance's adjacency FSM.
func (c *ProtocolCollector) RecordAdjacencyTransition(protocol, instance, from, to string) {
	c.AdjacencyTransitions.WithLabelValues(protocol, instance, from, to).Inc()
}

// SetLSDBRecords sets the current LSDB size gauge for one instance.
func (c *ProtocolCollector) SetLSDBRecords(protocol, instance string, n int) {
	c.LSDBRecords.WithLabelValues(protocol, instance).Set(float64(n))
}

// AddLSDBPurges increments the LSDB purge counter by n.
func (c *ProtocolCollector) AddLSDBPurges(protocol, instance string, n int) {
	if n <= 0 {
		return
	}
	c.LSDBPurges.WithLabelValues(protocol, instance).Add(float64(n))
}

// RecordSPFRun increments the SPF run counter and observes its
// duration.
func (c *ProtocolCollector) RecordSPFRun(protocol, instance string, d time.Duration) {
	c.SPFRuns.WithLabelValues(protocol, instance).Inc()
	c.SPFDuration.WithLabelValues(protocol, instance).Observe(d.Seconds())
}

// RecordDecisionRun increments the decision-process run counter and
// observes its duration.
func (c *ProtocolCollector) RecordDecisionRun(protocol, instance string, d time.Duration) {
	c.DecisionRuns.WithLabelValues(protocol, instance).Inc()
	c.DecisionDuration.WithLabelValues(protocol, instance).Observe(d.Seconds())
}

// SetQueueDepth sets the update-queue depth gauge for one instance.
func (c *ProtocolCollector) SetQueueDepth(protocol, instance string, n int) {
	c.QueueDepth.WithLabelValues(protocol, instance).Set(float64(n))
}
