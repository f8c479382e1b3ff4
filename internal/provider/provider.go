package provider

import (
	"context"

	"github.com/notifyhub/notification-scheduler/internal/domain"
)

// SendRequest is the JSON body posted to a webhook transport.
type SendRequest struct {
	Lane    domain.Lane    `json:"lane"`
	Ordered bool           `json:"ordered"`
	Entries []domain.Entry `json:"entries"`
}

// Transport abstracts one outbound send call carrying a whole batch.
// Channel delivery adapters sit behind it; mocking this interface in tests
// gives full control over emission failures.
type Transport interface {
	Send(ctx context.Context, batch domain.Batch) error
}

// TransportFunc adapts a plain function to Transport.
type TransportFunc func(ctx context.Context, batch domain.Batch) error

func (f TransportFunc) Send(ctx context.Context, batch domain.Batch) error {
	return f(ctx, batch)
}
