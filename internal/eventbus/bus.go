package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Jcapehart2/lockerlink/internal/metrics"
)

// Bus fans order events out to matching subscriptions.
type Bus struct {
	store       *Store
	logger      *slog.Logger
	maxAttempts int

	mu      sync.RWMutex
	filters []DeliveryFilter
}

func NewBus(store *Store, logger *slog.Logger) *Bus {
	return &Bus{store: store, logger: logger, maxAttempts: DefaultMaxAttempts}
}

// SetMaxAttempts bounds delivery retries for events published after the call.
func (b *Bus) SetMaxAttempts(n int) {
	if n > 0 {
		b.maxAttempts = n
	}
}

// Store exposes the subscription API.
func (b *Bus) Store() *Store {
	return b.store
}

// AddFilter appends f to the filter chain. Filters run in registration order.
func (b *Bus) AddFilter(f DeliveryFilter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filters = append(b.filters, f)
}

// ShouldDeliver runs the filter chain for one subscription and resource.
func (b *Bus) ShouldDeliver(ctx context.Context, sub Subscription, resourceID int64) bool {
	deliver := sub.Status == SubscriptionActive

	b.mu.RLock()
	filters := b.filters
	b.mu.RUnlock()

	for _, f := range filters {
		deliver = f(ctx, deliver, sub.ID, resourceID)
	}
	return deliver
}

// Publish enqueues a delivery for every subscription on topic that the filter
// chain lets through.
func (b *Bus) Publish(ctx context.Context, topic string, resourceID int64) error {
	subs, err := b.store.ListSubscriptions(ctx, Filter{Topic: topic})
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	for _, sub := range subs {
		if !b.ShouldDeliver(ctx, sub, resourceID) {
			metrics.WebhooksFiltered.WithLabelValues(topic).Inc()
			b.logger.Debug("delivery filtered", "topic", topic, "subscription_id", sub.ID, "resource_id", resourceID)
			continue
		}
		id, err := b.store.enqueueDelivery(ctx, sub, topic, resourceID, b.maxAttempts)
		if err != nil {
			return fmt.Errorf("publish %s: %w", topic, err)
		}
		b.logger.Debug("delivery enqueued", "topic", topic, "subscription_id", sub.ID, "resource_id", resourceID, "delivery_id", id)
	}
	return nil
}
