package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// DLQ entry outcomes.
const (
	dlqRequeued    = "requeued"
	dlqRescheduled = "rescheduled"
	dlqQuarantined = "quarantined"
)

var (
	dlqEntriesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coach",
		Subsystem: "dlq",
		Name:      "entries_handled_total",
		Help:      "DLQ entries handled by the replay job, labeled by topic, event type and outcome.",
	}, []string{"topic", "event_type", "outcome"})

	dlqBacklogGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "coach",
		Subsystem: "dlq",
		Name:      "queued_messages",
		Help:      "Entries remaining in the DLQ that are not quarantined.",
	})
)

func init() {
	prometheus.MustRegister(dlqEntriesCounter, dlqBacklogGauge)
}

func recordDLQOutcome(entry dlqEntry, outcome string) {
	dlqEntriesCounter.WithLabelValues(entry.Topic, entry.EventType, outcome).Inc()
}

func updateBacklogGauge(ctx context.Context, pool *pgxpool.Pool) {
	var count int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq WHERE quarantined_at IS NULL`).Scan(&count); err != nil {
		return
	}
	dlqBacklogGauge.Set(float64(count))
}
