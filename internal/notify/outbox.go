// Package notify turns pickup-ready events into customer emails. Events are
// written to a durable outbox on the request path and mailed by a worker.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Jcapehart2/lockerlink/internal/lockerlink"
	"github.com/Jcapehart2/lockerlink/internal/queue"
)

// Enqueuer is the outbox write side. *queue.Queue satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, req queue.EnqueueRequest) (string, error)
}

// Outbox is the NotificationSink used by the callback handler. It persists
// the event and returns without contacting the mail transport.
type Outbox struct {
	q           Enqueuer
	maxAttempts int
}

func NewOutbox(q Enqueuer, maxAttempts int) *Outbox {
	return &Outbox{q: q, maxAttempts: maxAttempts}
}

func (o *Outbox) PickupReady(ctx context.Context, n lockerlink.PickupReady) error {
	if n.OrderID <= 0 {
		return fmt.Errorf("pickup-ready notification without order id")
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode pickup-ready notification: %w", err)
	}
	if _, err := o.q.Enqueue(ctx, queue.EnqueueRequest{
		Event:       lockerlink.EventPickupReady,
		Payload:     payload,
		MaxAttempts: o.maxAttempts,
	}); err != nil {
		return err
	}
	return nil
}
