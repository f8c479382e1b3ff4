package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/notifyhub/notification-scheduler/internal/domain"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	CyclesTotal      *prometheus.CounterVec
	CycleDuration    prometheus.Histogram
	DrainedTotal     *prometheus.CounterVec
	OutcomesTotal    *prometheus.CounterVec
	IngestionErrors  prometheus.Counter
	EmissionFailures prometheus.Counter
	SweepActions     *prometheus.CounterVec
	LaneDepth        *prometheus.GaugeVec
	IngestedTotal    *prometheus.CounterVec
	RejectedTotal    prometheus.Counter
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_cycles_total",
			Help: "Scheduling cycles run, by result.",
		}, []string{"result"}),

		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scheduler_cycle_seconds",
			Help:    "Wall time of one scheduling cycle including the sweep.",
			Buckets: prometheus.DefBuckets,
		}),

		DrainedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_drained_total",
			Help: "Notifications popped from each pending lane.",
		}, []string{"lane"}),

		OutcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_notifications_total",
			Help: "Drained notifications by what the cycle did with them.",
		}, []string{"outcome"}),

		IngestionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_ingestion_errors_total",
			Help: "Malformed records dropped while draining.",
		}),

		EmissionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_emission_failures_total",
			Help: "Outbound batches whose retries were exhausted.",
		}),

		SweepActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_sweep_actions_total",
			Help: "Cleanup actions taken by the sweeper.",
		}, []string{"action"}),

		LaneDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scheduler_lane_depth",
			Help: "Current number of pending notifications per lane.",
		}, []string{"lane"}),

		IngestedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_ingested_total",
			Help: "Records accepted by the ingestion API, by lane.",
		}, []string{"lane"}),

		RejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_ingest_rejected_total",
			Help: "Records rejected by the ingestion API.",
		}),
	}

	reg.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.DrainedTotal,
		m.OutcomesTotal,
		m.IngestionErrors,
		m.EmissionFailures,
		m.SweepActions,
		m.LaneDepth,
		m.IngestedTotal,
		m.RejectedTotal,
	)

	return m
}

// CycleHook returns the callback the cycle worker invokes after each cycle.
func (m *Metrics) CycleHook() func(domain.CycleReport) {
	return func(r domain.CycleReport) {
		result := "ok"
		if r.Failed() {
			result = "failed"
		}
		m.CyclesTotal.WithLabelValues(result).Inc()
		m.CycleDuration.Observe(r.FinishedAt.Sub(r.StartedAt).Seconds())

		m.DrainedTotal.WithLabelValues(string(domain.LanePriority)).Add(float64(r.PriorityDrained))
		m.DrainedTotal.WithLabelValues(string(domain.LaneRegular)).Add(float64(r.RegularDrained))
		m.DrainedTotal.WithLabelValues(string(domain.LaneDeferred)).Add(float64(r.DeferredDrained))

		m.OutcomesTotal.WithLabelValues("dispatched").Add(float64(r.Dispatched))
		m.OutcomesTotal.WithLabelValues("deferred").Add(float64(r.Deferred))
		m.OutcomesTotal.WithLabelValues("requeued").Add(float64(r.Requeued))
		m.OutcomesTotal.WithLabelValues("lost").Add(float64(r.Lost))

		m.IngestionErrors.Add(float64(r.IngestionErrors))
		m.EmissionFailures.Add(float64(r.BatchesFailed))

		s := r.Sweep
		m.SweepActions.WithLabelValues("counter_deleted").Add(float64(s.CountersDeleted))
		m.SweepActions.WithLabelValues("index_pruned").Add(float64(s.IndexPruned))
		m.SweepActions.WithLabelValues("history_trimmed").Add(float64(s.HistoriesTrimmed))
		m.SweepActions.WithLabelValues("history_expired").Add(float64(s.HistoriesExpired))
		m.SweepActions.WithLabelValues("ephemeral_expired").Add(float64(s.EphemeralsExpired))
		m.SweepActions.WithLabelValues("failed").Add(float64(s.Failures))
	}
}

// DepthHook returns the callback the depth worker invokes with lane lengths.
func (m *Metrics) DepthHook() func(map[domain.Lane]int64) {
	return func(depths map[domain.Lane]int64) {
		for lane, n := range depths {
			m.LaneDepth.WithLabelValues(string(lane)).Set(float64(n))
		}
	}
}

// IngestHooks returns the callbacks the ingestion service invokes per record.
func (m *Metrics) IngestHooks() (onAccepted func(domain.Lane), onRejected func()) {
	onAccepted = func(lane domain.Lane) {
		m.IngestedTotal.WithLabelValues(string(lane)).Inc()
	}
	onRejected = func() {
		m.RejectedTotal.Inc()
	}
	return
}
