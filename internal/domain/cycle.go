package domain

import "time"

// Phase names one step of a scheduling cycle.
type Phase string

const (
	PhaseDrainPriority Phase = "drain_priority"
	PhaseDrainRegular  Phase = "drain_regular"
	PhaseAdmit         Phase = "admit"
	PhaseBatch         Phase = "batch"
	PhaseEmit          Phase = "emit"
	PhaseSweep         Phase = "sweep"
	PhaseDone          Phase = "done"
)

// Phases lists the cycle phases in execution order.
var Phases = []Phase{
	PhaseDrainPriority,
	PhaseDrainRegular,
	PhaseAdmit,
	PhaseBatch,
	PhaseEmit,
	PhaseSweep,
}

// PhaseReport carries the granular outcome of one phase.
type PhaseReport struct {
	Phase     Phase  `json:"phase"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Error     string `json:"error,omitempty"`
}

// SweepReport summarises one cleanup pass.
type SweepReport struct {
	CountersScanned   int `json:"counters_scanned"`
	CountersDeleted   int `json:"counters_deleted"`
	IndexPruned       int `json:"index_pruned"`
	HistoriesTrimmed  int `json:"histories_trimmed"`
	HistoriesExpired  int `json:"histories_expired"`
	EphemeralsExpired int `json:"ephemerals_expired"`
	Failures          int `json:"failures"`
}

// CycleReport is the outcome of a single scheduling cycle.
type CycleReport struct {
	ID         string        `json:"id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Phases     []PhaseReport `json:"phases"`

	PriorityDrained  int `json:"priority_drained"`
	RegularDrained   int `json:"regular_drained"`
	DeferredDrained  int `json:"deferred_drained"`
	IngestionErrors  int `json:"ingestion_errors"`
	RateLimiterCalls int `json:"rate_limiter_calls"`
	Admitted         int `json:"admitted"`
	Deferred         int `json:"deferred"`
	BatchesEmitted   int `json:"batches_emitted"`
	BatchesFailed    int `json:"batches_failed"`
	Dispatched       int `json:"dispatched"`
	Requeued         int `json:"requeued"`
	Lost             int `json:"lost"`

	Sweep SweepReport `json:"sweep"`
}

// Phase returns the report of phase p, or the zero value if it did not run.
func (r *CycleReport) Phase(p Phase) PhaseReport {
	for _, pr := range r.Phases {
		if pr.Phase == p {
			return pr
		}
	}
	return PhaseReport{Phase: p}
}

// Failed reports whether any phase recorded a failure.
func (r *CycleReport) Failed() bool {
	for _, pr := range r.Phases {
		if pr.Failed > 0 || pr.Error != "" {
			return true
		}
	}
	return false
}
