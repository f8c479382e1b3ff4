package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/notifyhub/notification-scheduler/internal/domain"
)

// OutboundLimiters holds one token bucket per outbound lane, capping how
// many send calls per second the emitter makes against each transport.
// Burst equals the rate so no capacity is saved up beyond one second.
type OutboundLimiters struct {
	limiters map[domain.Lane]*rate.Limiter
}

// NewOutbound creates limiters allowing callsPerSec sends per lane.
// A non-positive rate disables throttling.
func NewOutbound(callsPerSec int) *OutboundLimiters {
	if callsPerSec <= 0 {
		return &OutboundLimiters{}
	}
	r := rate.Limit(callsPerSec)
	return &OutboundLimiters{
		limiters: map[domain.Lane]*rate.Limiter{
			domain.LanePriority: rate.NewLimiter(r, callsPerSec),
			domain.LaneRegular:  rate.NewLimiter(r, callsPerSec),
		},
	}
}

// Wait blocks until the lane's limiter grants a token.
// Returns a non-nil error only if ctx is cancelled while waiting.
func (ol *OutboundLimiters) Wait(ctx context.Context, lane domain.Lane) error {
	if ol == nil {
		return nil
	}
	l, ok := ol.limiters[lane]
	if !ok {
		return nil
	}
	return l.Wait(ctx)
}
