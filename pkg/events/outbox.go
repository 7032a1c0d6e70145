package events

import "context"

// Outbox durably stores batches that could not be delivered so they can be
// replayed later, possibly by another process.
type Outbox interface {
	Save(ctx context.Context, batch []Event) error
	// Pending returns up to limit batches, oldest first.
	Pending(ctx context.Context, limit int) ([]Batch, error)
	Delete(ctx context.Context, id string) error
	MarkAttempt(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}
