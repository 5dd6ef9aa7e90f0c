package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	attributionOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coach",
		Subsystem: "attribution",
		Name:      "outcomes_total",
		Help:      "Resolver outcomes for logged sessions, labelled by outcome and trigger.",
	}, []string{"outcome", "trigger"})
	sessionTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coach",
		Subsystem: "attribution",
		Name:      "transitions_total",
		Help:      "Applied session state transitions.",
	}, []string{"from", "event", "to"})
	rejectedTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coach",
		Subsystem: "attribution",
		Name:      "rejected_transitions_total",
		Help:      "Events rejected by the session state table.",
	}, []string{"from", "event"})
	storeDegraded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coach",
		Subsystem: "store",
		Name:      "degraded_total",
		Help:      "Store reads that failed or timed out and degraded to an empty result.",
	}, []string{"store"})
	planDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "coach",
		Subsystem: "planner",
		Name:      "generate_duration_seconds",
		Help:      "Time spent generating a multi-day plan.",
		Buckets:   prometheus.DefBuckets,
	})
	planRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coach",
		Subsystem: "planner",
		Name:      "rejections_total",
		Help:      "Session types excluded by hard constraints, labelled by constraint.",
	}, []string{"constraint"})
	signalGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "coach",
		Subsystem: "signals",
		Name:      "last_signal_ingested_timestamp_seconds",
		Help:      "Unix timestamp of the most recent recovery or soreness signal persisted.",
	})
)

func init() {
	prometheus.MustRegister(
		attributionOutcomes,
		sessionTransitions,
		rejectedTransitions,
		storeDegraded,
		planDuration,
		planRejections,
		signalGauge,
	)
}

// RecordOutcome counts a resolver outcome. trigger is log, retry, clarify or rematch.
func RecordOutcome(outcome, trigger string) {
	attributionOutcomes.WithLabelValues(outcome, trigger).Inc()
}

// RecordTransition counts an applied state transition.
func RecordTransition(from, event, to string) {
	sessionTransitions.WithLabelValues(from, event, to).Inc()
}

// RecordRejectedTransition counts an event the state table refused.
func RecordRejectedTransition(from, event string) {
	rejectedTransitions.WithLabelValues(from, event).Inc()
}

// RecordStoreDegraded counts a store read that fell back to an empty result.
func RecordStoreDegraded(store string) {
	storeDegraded.WithLabelValues(store).Inc()
}

// ObservePlanDuration records how long a plan took to build.
func ObservePlanDuration(d time.Duration) {
	planDuration.Observe(d.Seconds())
}

// RecordPlanRejection counts a hard-constraint exclusion.
func RecordPlanRejection(constraint string) {
	planRejections.WithLabelValues(constraint).Inc()
}

// RecordSignalIngested updates the signal watermark gauge.
func RecordSignalIngested(ts time.Time) {
	if ts.IsZero() {
		return
	}
	signalGauge.Set(float64(ts.Unix()))
}
