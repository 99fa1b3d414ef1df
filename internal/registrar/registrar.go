// Package registrar owns the pair of order-event subscriptions that deliver
// locker-pickup orders to the LockerLink service.
package registrar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/Jcapehart2/lockerlink/internal/eventbus"
	"github.com/Jcapehart2/lockerlink/internal/lockerlink"
	"github.com/Jcapehart2/lockerlink/internal/orders"
)

const (
	OptionWebhookIDs  = "lockerlink_webhook_ids"
	OptionFingerprint = "lockerlink_webhook_fingerprint"

	// NamePrefix marks subscriptions created by this integration, including
	// ones created before IDs were recorded.
	NamePrefix = "LockerLink - "
)

// Topics is the fixed set of subscribed order topics.
var Topics = []string{"order.created", "order.updated"}

type Registrar struct {
	subs    SubscriptionAPI
	options OptionStore
	creds   CredentialSource
	orders  OrderLookup
	logger  *slog.Logger

	mu sync.Mutex
}

func New(subs SubscriptionAPI, options OptionStore, creds CredentialSource, orders OrderLookup, logger *slog.Logger) *Registrar {
	return &Registrar{subs: subs, options: options, creds: creds, orders: orders, logger: logger}
}

// Install registers ShouldDeliver as a delivery filter.
func (r *Registrar) Install(bus FilterInstaller) {
	bus.AddFilter(r.ShouldDeliver)
}

// Create replaces any owned subscriptions with one per topic for the current
// credentials. Missing credentials make it a no-op.
func (r *Registrar) Create(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	creds, err := r.creds.Credentials(ctx)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	creds = creds.Normalize()
	if !creds.Configured() {
		r.logger.Debug("skipping webhook registration, credentials not configured")
		return nil
	}

	if err := r.deleteLocked(ctx); err != nil {
		return err
	}

	ids := make([]int64, 0, len(Topics))
	for _, topic := range Topics {
		id, err := r.subs.CreateSubscription(ctx, eventbus.Subscription{
			Name:        NamePrefix + topic,
			Topic:       topic,
			DeliveryURL: creds.WebhookURL,
			Secret:      creds.APIKey,
			Status:      eventbus.SubscriptionActive,
		})
		if err != nil {
			err = fmt.Errorf("create %s subscription: %w", topic, err)
			// Record what exists so a later Delete can find it by ID too.
			if setErr := r.options.Set(ctx, OptionWebhookIDs, ids); setErr != nil {
				err = errors.Join(err, fmt.Errorf("record partial subscription ids: %w", setErr))
			}
			return err
		}
		ids = append(ids, id)
	}

	if err := r.options.Set(ctx, OptionWebhookIDs, ids); err != nil {
		return fmt.Errorf("record subscription ids: %w", err)
	}
	if err := r.options.Set(ctx, OptionFingerprint, creds.Fingerprint()); err != nil {
		return fmt.Errorf("record credential fingerprint: %w", err)
	}
	r.logger.Info("webhooks registered", "subscription_ids", ids, "delivery_url", creds.WebhookURL)
	return nil
}

// Delete removes every owned subscription and clears the recorded set.
// It is a no-op when nothing is registered.
func (r *Registrar) Delete(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleteLocked(ctx)
}

func (r *Registrar) deleteLocked(ctx context.Context) error {
	ids, err := r.ownedIDs(ctx)
	if err != nil {
		return err
	}

	// Orphans from earlier versions are only recognisable by name.
	legacy, err := r.subs.ListSubscriptions(ctx, eventbus.Filter{NamePrefix: NamePrefix})
	if err != nil {
		return fmt.Errorf("list owned subscriptions: %w", err)
	}
	for _, sub := range legacy {
		if !slices.Contains(ids, sub.ID) {
			ids = append(ids, sub.ID)
		}
	}

	for _, id := range ids {
		err := r.subs.DeleteSubscription(ctx, id)
		if err != nil && !errors.Is(err, eventbus.ErrSubscriptionNotFound) {
			return fmt.Errorf("delete subscription %d: %w", id, err)
		}
	}

	if err := r.options.Delete(ctx, OptionWebhookIDs); err != nil {
		return fmt.Errorf("clear subscription ids: %w", err)
	}
	if err := r.options.Delete(ctx, OptionFingerprint); err != nil {
		return fmt.Errorf("clear credential fingerprint: %w", err)
	}
	if len(ids) > 0 {
		r.logger.Info("webhooks deleted", "subscription_ids", ids)
	}
	return nil
}

// Reconfigure applies the re-registration policy after a credential save:
// when the delivery URL or key changed, delete, then create if both are set.
func (r *Registrar) Reconfigure(ctx context.Context, old, updated lockerlink.Credentials) error {
	old, updated = old.Normalize(), updated.Normalize()
	if old.SameDelivery(updated) {
		return nil
	}
	if err := r.Delete(ctx); err != nil {
		return err
	}
	if !updated.Configured() {
		return nil
	}
	return r.Create(ctx)
}

// EnsureRegistered recreates the subscriptions at start-up when the recorded
// set no longer matches the configured credentials.
func (r *Registrar) EnsureRegistered(ctx context.Context) error {
	creds, err := r.creds.Credentials(ctx)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	creds = creds.Normalize()
	if !creds.Configured() {
		return nil
	}

	stale, reason, err := r.stale(ctx, creds)
	if err != nil {
		return err
	}
	if !stale {
		r.logger.Debug("webhooks up to date")
		return nil
	}
	r.logger.Info("re-registering webhooks", "reason", reason)
	return r.Create(ctx)
}

func (r *Registrar) stale(ctx context.Context, creds lockerlink.Credentials) (bool, string, error) {
	var fp string
	found, err := r.options.Get(ctx, OptionFingerprint, &fp)
	if err != nil {
		return false, "", fmt.Errorf("load credential fingerprint: %w", err)
	}
	if !found || fp != creds.Fingerprint() {
		return true, "credentials changed", nil
	}

	ids, err := r.ownedIDs(ctx)
	if err != nil {
		return false, "", err
	}
	if len(ids) != len(Topics) {
		return true, "subscription set incomplete", nil
	}
	subs, err := r.subs.ListSubscriptions(ctx, eventbus.Filter{IDs: ids})
	if err != nil {
		return false, "", fmt.Errorf("list owned subscriptions: %w", err)
	}
	topics := make([]string, 0, len(subs))
	for _, s := range subs {
		topics = append(topics, s.Topic)
	}
	for _, t := range Topics {
		if !slices.Contains(topics, t) {
			return true, "subscription missing for " + t, nil
		}
	}
	return false, "", nil
}

// Owned lists the subscriptions this integration currently owns.
func (r *Registrar) Owned(ctx context.Context) ([]eventbus.Subscription, error) {
	ids, err := r.ownedIDs(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return r.subs.ListSubscriptions(ctx, eventbus.Filter{IDs: ids})
}

// ShouldDeliver is the delivery filter. Foreign subscriptions get the
// upstream decision back unchanged. Owned subscriptions deliver only for
// orders that resolve and ship with the locker-pickup method, and only while
// the integration is enabled.
func (r *Registrar) ShouldDeliver(ctx context.Context, deliver bool, subscriptionID, orderID int64) bool {
	ids, err := r.ownedIDs(ctx)
	if err != nil {
		r.logger.Error("delivery filter could not load owned ids", "error", err)
		return deliver
	}
	if !slices.Contains(ids, subscriptionID) {
		return deliver
	}

	creds, err := r.creds.Credentials(ctx)
	if err != nil {
		r.logger.Error("delivery filter could not load credentials", "error", err)
		return false
	}
	if !creds.Normalize().Active() {
		return false
	}

	order, err := r.orders.Get(ctx, orderID)
	if err != nil {
		if !errors.Is(err, orders.ErrNotFound) {
			r.logger.Error("delivery filter could not load order", "order_id", orderID, "error", err)
		}
		return false
	}
	return order.UsesShippingMethod(lockerlink.MethodID)
}

func (r *Registrar) ownedIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if _, err := r.options.Get(ctx, OptionWebhookIDs, &ids); err != nil {
		return nil, fmt.Errorf("load subscription ids: %w", err)
	}
	return ids, nil
}
