package domain

import (
	"encoding/json"
	"time"
)

// Lane partitions pending notifications by urgency and admission state.
type Lane string

const (
	LanePriority Lane = "priority"
	LaneRegular  Lane = "regular"
	LaneDeferred Lane = "deferred"
)

// IsValid reports whether l is one of the three pending lanes.
func (l Lane) IsValid() bool {
	switch l {
	case LanePriority, LaneRegular, LaneDeferred:
		return true
	}
	return false
}

// IsIngestible reports whether producers may target l directly.
// The deferred lane is only ever written by the rate limiter path.
func (l Lane) IsIngestible() bool {
	return l == LanePriority || l == LaneRegular
}

// Lanes lists every pending lane in drain order.
var Lanes = []Lane{LanePriority, LaneDeferred, LaneRegular}

// Record is the inbound notification record as producers enqueue it.
// Unknown fields are preserved because the stored payload is the raw record.
type Record struct {
	ID         string          `json:"id,omitempty"`
	UserID     string          `json:"user_id"`
	Type       string          `json:"type,omitempty"`
	Title      string          `json:"title,omitempty"`
	Content    string          `json:"content,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Lane       Lane            `json:"lane,omitempty"`
	EnqueuedAt json.RawMessage `json:"enqueued_at,omitempty"`
}

// Validate checks the fields the scheduler depends on.
// An empty lane is accepted and means regular.
func (r *Record) Validate() error {
	if r.UserID == "" {
		return ErrMissingUserID
	}
	if r.Lane != "" && !r.Lane.IsIngestible() {
		return ErrInvalidLane
	}
	return nil
}

// Notification is the unit of work moved between lanes and outbound batches.
type Notification struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	Lane       Lane            `json:"lane"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`

	// Source is the lane the notification was popped from in the current
	// cycle. It is never serialised into the stored record.
	Source Lane `json:"-"`
}

// Entry is one outbound message. GroupKey and DedupKey are only set for
// ordered (priority) batches.
type Entry struct {
	ID       string          `json:"id"`
	Body     json.RawMessage `json:"body"`
	GroupKey string          `json:"group_key,omitempty"`
	DedupKey string          `json:"dedup_key,omitempty"`
}

// Batch is a bounded group of entries bound for one outbound lane.
type Batch struct {
	Lane    Lane    `json:"lane"`
	Ordered bool    `json:"ordered"`
	Entries []Entry `json:"entries"`

	// Notifications backs Entries one-to-one so a failed batch can be
	// returned to the lane it was drained from.
	Notifications []Notification `json:"-"`
}

// IngestRequest wraps a slice of inbound records.
type IngestRequest struct {
	Notifications []json.RawMessage `json:"notifications"`
}

// IngestResult is the per-record outcome of a batch ingestion.
type IngestResult struct {
	Index int    `json:"index"`
	ID    string `json:"id,omitempty"`
	Lane  Lane   `json:"lane,omitempty"`
	Error string `json:"error,omitempty"`
}
