package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Jcapehart2/lockerlink/internal/eventbus"
)

// MetaEntry is one stored order field in the webhook body.
type MetaEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// WebhookBody is the order representation delivered to webhook subscribers.
type WebhookBody struct {
	ID            int64          `json:"id"`
	Number        string         `json:"number"`
	Billing       Billing        `json:"billing"`
	ShippingLines []ShippingLine `json:"shipping_lines"`
	MetaData      []MetaEntry    `json:"meta_data"`
	DateCreated   time.Time      `json:"date_created"`
	DateModified  time.Time      `json:"date_modified"`
}

type Billing struct {
	FirstName string `json:"first_name"`
	Email     string `json:"email"`
}

// Body builds the webhook representation of o. Meta entries are sorted by key.
func Body(o *Order) WebhookBody {
	fields := o.Fields()
	meta := make([]MetaEntry, 0, len(fields))
	for k, v := range fields {
		meta = append(meta, MetaEntry{Key: k, Value: v})
	}
	sort.Slice(meta, func(i, j int) bool { return meta[i].Key < meta[j].Key })

	lines := o.ShippingLines
	if lines == nil {
		lines = []ShippingLine{}
	}
	return WebhookBody{
		ID:            o.ID,
		Number:        o.OrderNumber(),
		Billing:       Billing{FirstName: o.BillingFirstName, Email: o.BillingEmail},
		ShippingLines: lines,
		MetaData:      meta,
		DateCreated:   o.CreatedAt,
		DateModified:  o.UpdatedAt,
	}
}

// Payload renders the current state of order id for a webhook delivery.
// It has the signature of eventbus.PayloadFunc.
func (s *Store) Payload(ctx context.Context, _ string, id int64) ([]byte, error) {
	o, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %w", eventbus.ErrResourceGone, err)
	}
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(Body(o))
	if err != nil {
		return nil, fmt.Errorf("encode order %d: %w", id, err)
	}
	return b, nil
}
