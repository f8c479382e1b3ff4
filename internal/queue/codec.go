package queue

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/notifyhub/notification-scheduler/internal/domain"
)

// Decode parses a raw inbound record into a Notification bound for lane.
//
// Records without an id or enqueued_at are stamped with fresh values and the
// stamped record becomes the payload, so the identity survives deferral and
// requeueing. All other fields are carried through untouched. enqueued_at is
// informational: a value that cannot be read as a time is kept in the payload
// and now is reported instead.
func Decode(raw []byte, lane domain.Lane, now time.Time) (domain.Notification, error) {
	var rec domain.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.Notification{}, fmt.Errorf("%w: %v", domain.ErrMalformedRecord, err)
	}
	if err := rec.Validate(); err != nil {
		return domain.Notification{}, err
	}

	// The deferred lane holds regular notifications waiting for admission.
	if lane == domain.LaneDeferred {
		lane = domain.LaneRegular
	}

	n := domain.Notification{
		ID:      rec.ID,
		UserID:  rec.UserID,
		Lane:    lane,
		Payload: json.RawMessage(raw),
	}
	stamp := len(rec.EnqueuedAt) == 0 || string(rec.EnqueuedAt) == "null"
	if !stamp {
		t, ok := parseEnqueuedAt(rec.EnqueuedAt)
		if !ok {
			t = now
		}
		n.EnqueuedAt = t.UTC()
	}

	if n.ID != "" && !stamp {
		return n, nil
	}

	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return domain.Notification{}, fmt.Errorf("%w: %v", domain.ErrMalformedRecord, err)
	}
	if n.ID == "" {
		n.ID = uuid.New().String()
		fields["id"], _ = json.Marshal(n.ID)
	}
	if stamp {
		n.EnqueuedAt = now.UTC()
		fields["enqueued_at"], _ = json.Marshal(n.EnqueuedAt)
	}

	stamped, err := json.Marshal(fields)
	if err != nil {
		return domain.Notification{}, fmt.Errorf("re-encode record: %w", err)
	}
	n.Payload = stamped
	return n, nil
}

// enqueuedLayouts are tried in order; layouts without a zone read as UTC.
var enqueuedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// parseEnqueuedAt reads a timestamp string in one of enqueuedLayouts or a
// number of seconds since the Unix epoch.
func parseEnqueuedAt(raw json.RawMessage) (time.Time, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		for _, layout := range enqueuedLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	}

	var secs float64
	if err := json.Unmarshal(raw, &secs); err == nil {
		whole, frac := math.Modf(secs)
		return time.Unix(int64(whole), int64(frac*1e9)), true
	}
	return time.Time{}, false
}

// LaneFor returns the lane a record asks for, defaulting to regular.
func LaneFor(raw []byte) (domain.Lane, error) {
	var rec domain.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrMalformedRecord, err)
	}
	if err := rec.Validate(); err != nil {
		return "", err
	}
	if rec.Lane == "" {
		return domain.LaneRegular, nil
	}
	return rec.Lane, nil
}
