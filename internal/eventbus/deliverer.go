package eventbus

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Jcapehart2/lockerlink/internal/lockerlink"
	"github.com/Jcapehart2/lockerlink/internal/metrics"
	"github.com/Jcapehart2/lockerlink/internal/queue"
)

type DelivererConfig struct {
	PollInterval time.Duration
	Timeout      time.Duration
	BatchSize    int
}

// Deliverer sends due deliveries and reschedules failures.
type Deliverer struct {
	store   *Store
	payload PayloadFunc
	client  *http.Client
	cfg     DelivererConfig
	logger  *slog.Logger
}

func NewDeliverer(store *Store, payload PayloadFunc, cfg DelivererConfig, logger *slog.Logger) *Deliverer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Deliverer{
		store:   store,
		payload: payload,
		client:  &http.Client{Timeout: cfg.Timeout},
		cfg:     cfg,
		logger:  logger,
	}
}

// Run polls until ctx is cancelled.
func (d *Deliverer) Run(ctx context.Context) error {
	d.logger.Info("webhook deliverer started", "poll_interval", d.cfg.PollInterval.String())
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("webhook deliverer stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := d.ProcessOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				d.logger.Error("webhook delivery pass failed", "error", err)
			}
		}
	}
}

// ProcessOnce attempts every due delivery once and returns how many were tried.
func (d *Deliverer) ProcessOnce(ctx context.Context) (int, error) {
	due, err := d.store.dueDeliveries(ctx, d.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	for _, del := range due {
		if err := d.attempt(ctx, del); err != nil {
			return 0, err
		}
	}
	return len(due), nil
}

func (d *Deliverer) attempt(ctx context.Context, del Delivery) error {
	log := d.logger.With("delivery_id", del.ID, "topic", del.Topic, "resource_id", del.ResourceID)

	sub, err := d.store.GetSubscription(ctx, del.SubscriptionID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		log.Info("dropping delivery for removed subscription")
		return d.store.recordAttempt(ctx, del.ID, DeliveryDead, d.store.now(), 0, "subscription removed")
	}
	if err != nil {
		return err
	}
	if sub.Status != SubscriptionActive {
		log.Info("dropping delivery for inactive subscription", "subscription_status", sub.Status)
		return d.store.recordAttempt(ctx, del.ID, DeliveryDead, d.store.now(), 0, "subscription "+string(sub.Status))
	}

	body, err := d.payload(ctx, del.Topic, del.ResourceID)
	if errors.Is(err, ErrResourceGone) {
		log.Warn("dropping delivery for missing resource", "error", err)
		metrics.WebhookDeliveries.WithLabelValues(del.Topic, "dead").Inc()
		return d.store.recordAttempt(ctx, del.ID, DeliveryDead, d.store.now(), 0, "payload: "+err.Error())
	}
	if err != nil {
		return d.fail(ctx, log, del, 0, fmt.Errorf("payload: %w", err))
	}

	start := time.Now()
	code, sendErr := d.send(ctx, *sub, del, body)
	metrics.WebhookLatency.WithLabelValues(del.Topic).Observe(float64(time.Since(start).Milliseconds()))

	if sendErr == nil {
		metrics.WebhookDeliveries.WithLabelValues(del.Topic, "delivered").Inc()
		log.Info("webhook delivered", "status", code)
		return d.store.recordAttempt(ctx, del.ID, DeliveryDelivered, d.store.now(), code, "")
	}
	return d.fail(ctx, log, del, code, sendErr)
}

// fail reschedules del with backoff, or marks it dead once attempts run out.
func (d *Deliverer) fail(ctx context.Context, log *slog.Logger, del Delivery, code int, cause error) error {
	if del.Attempt+1 >= del.MaxAttempts {
		metrics.WebhookDeliveries.WithLabelValues(del.Topic, "dead").Inc()
		log.Warn("webhook delivery exhausted", "attempts", del.Attempt+1, "status", code, "error", cause)
		return d.store.recordAttempt(ctx, del.ID, DeliveryDead, d.store.now(), code, cause.Error())
	}

	next := d.store.now().Add(queue.Backoff(del.Attempt))
	metrics.WebhookDeliveries.WithLabelValues(del.Topic, "retry").Inc()
	log.Warn("webhook delivery failed", "attempt", del.Attempt+1, "status", code, "next_attempt_at", next, "error", cause)
	return d.store.recordAttempt(ctx, del.ID, DeliveryPending, next, code, cause.Error())
}

func (d *Deliverer) send(ctx context.Context, sub Subscription, del Delivery, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.DeliveryURL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "lockerlink-webhooks/1")
	req.Header.Set(HeaderTopic, del.Topic)
	req.Header.Set(HeaderResourceID, strconv.FormatInt(del.ResourceID, 10))
	req.Header.Set(HeaderDeliveryID, del.ID)
	if sub.Secret != "" {
		req.Header.Set(lockerlink.HeaderWebhookSignature, lockerlink.Sign(body, sub.Secret))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, fmt.Errorf("endpoint returned HTTP %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}
