package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"

	"github.com/Jcapehart2/lockerlink/internal/lockerlink"
	"github.com/Jcapehart2/lockerlink/internal/orders"
)

// OrderStore loads and saves orders.
type OrderStore interface {
	Get(ctx context.Context, id int64) (*orders.Order, error)
	Save(ctx context.Context, o *orders.Order) error
}

// CredentialSource yields the shared secret used to verify callbacks.
type CredentialSource interface {
	Credentials(ctx context.Context) (lockerlink.Credentials, error)
}

// NotificationSink accepts pickup-ready notifications. Implementations must
// not block on delivery.
type NotificationSink interface {
	PickupReady(ctx context.Context, n lockerlink.PickupReady) error
}

type Config struct {
	// MaxBodySize caps the request body in bytes (default 64 KiB).
	MaxBodySize int64
	// RateLimit is requests per second across all callers; zero disables it.
	RateLimit float64
	Burst     int
}

const (
	DefaultMaxBodySize = 64 * 1024
	Route              = "/assignment-update"
)

// Update is the assignment-update request body.
type Update struct {
	OrderID          OrderID `json:"orderId"`
	Status           string  `json:"status"`
	CompartmentLabel string  `json:"compartmentLabel,omitempty"`
	LockerName       string  `json:"lockerName,omitempty"`
	PickupURL        string  `json:"pickupUrl,omitempty"`
	UnlockToken      string  `json:"unlockToken,omitempty"`
}

// Response is returned for every outcome.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

const MessageReceived = "Assignment update received."

// OrderID accepts a JSON number or a numeric string. Anything that is not a
// positive integer decodes to zero.
type OrderID int64

func (id *OrderID) UnmarshalJSON(b []byte) error {
	*id = 0
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		b = []byte(s)
	}
	n, err := strconv.ParseInt(string(bytes.TrimSpace(b)), 10, 64)
	if err != nil || n <= 0 {
		return nil
	}
	*id = OrderID(n)
	return nil
}
