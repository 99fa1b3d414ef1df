// Package eventbus is the order-event bus: persisted webhook subscriptions,
// a delivery-filter chain consulted on publish, and a retrying deliverer
// that POSTs signed order payloads.
package eventbus

import (
	"context"
	"errors"
	"time"
)

type SubscriptionStatus string

// SubscriptionActive is the only status that receives deliveries. Any other
// stored value holds the subscription back.
const SubscriptionActive SubscriptionStatus = "active"

type Subscription struct {
	ID          int64              `json:"id"`
	Name        string             `json:"name"`
	Topic       string             `json:"topic"`
	DeliveryURL string             `json:"delivery_url"`
	Secret      string             `json:"-"`
	Status      SubscriptionStatus `json:"status"`
	CreatedAt   time.Time          `json:"created_at"`
}

// Filter narrows ListSubscriptions. Zero fields match everything.
type Filter struct {
	NamePrefix string
	Topic      string
	IDs        []int64
}

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryDead      DeliveryStatus = "dead"
)

type Delivery struct {
	ID             string         `json:"id"`
	SubscriptionID int64          `json:"subscription_id"`
	Topic          string         `json:"topic"`
	ResourceID     int64          `json:"resource_id"`
	Status         DeliveryStatus `json:"status"`
	Attempt        int            `json:"attempt"`
	MaxAttempts    int            `json:"max_attempts"`
	NextAttemptAt  time.Time      `json:"next_attempt_at"`
	ResponseCode   int            `json:"response_code,omitempty"`
	LastError      string         `json:"last_error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
}

// DeliveryFilter decides whether an event for resourceID is delivered to a
// subscription. deliver is the decision so far in the chain.
type DeliveryFilter func(ctx context.Context, deliver bool, subscriptionID, resourceID int64) bool

// PayloadFunc renders the JSON body for a delivery. Errors wrapping
// ErrResourceGone end the delivery; any other error is retried.
type PayloadFunc func(ctx context.Context, topic string, resourceID int64) ([]byte, error)

var ErrSubscriptionNotFound = errors.New("subscription not found")

// ErrResourceGone marks a delivery whose resource no longer exists.
var ErrResourceGone = errors.New("delivery resource no longer exists")

// Delivery headers.
const (
	HeaderTopic      = "X-LockerLink-Webhook-Topic"
	HeaderResourceID = "X-LockerLink-Webhook-Resource-ID"
	HeaderDeliveryID = "X-LockerLink-Webhook-Delivery-ID"
)

const DefaultMaxAttempts = 10
