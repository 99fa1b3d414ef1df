package orders

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jcapehart2/lockerlink/internal/eventbus"
)

func TestPayloadRendersStoredOrder(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	o := &Order{BillingEmail: "ana@example.com", BillingFirstName: "Ana"}
	o.SetShippingLines([]ShippingLine{{MethodID: "lockerlink", Title: "Locker pickup"}})
	o.SetField("lockerlink_status", "assigned")
	o.SetField("a_first", "1")
	require.NoError(t, s.Create(ctx, o))

	raw, err := s.Payload(ctx, TopicCreated, o.ID)
	require.NoError(t, err)

	var body WebhookBody
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, o.ID, body.ID)
	assert.Equal(t, o.OrderNumber(), body.Number, "number falls back to the id")
	assert.Equal(t, Billing{FirstName: "Ana", Email: "ana@example.com"}, body.Billing)
	assert.Equal(t, []ShippingLine{{MethodID: "lockerlink", Title: "Locker pickup"}}, body.ShippingLines)
	assert.Equal(t, []MetaEntry{
		{Key: "a_first", Value: "1"},
		{Key: "lockerlink_status", Value: "assigned"},
	}, body.MetaData)
}

func TestPayloadUnknownOrder(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, err := s.Payload(context.Background(), TopicUpdated, 404)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, eventbus.ErrResourceGone)
}

func TestPayloadStorageErrorIsRetryable(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.db.Close())

	_, err := s.Payload(context.Background(), TopicUpdated, 1)
	require.Error(t, err)
	assert.NotErrorIs(t, err, eventbus.ErrResourceGone)
}

func TestBodyEmptySlicesEncodeAsArrays(t *testing.T) {
	b, err := json.Marshal(Body(&Order{ID: 3}))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"shipping_lines":[]`)
	assert.Contains(t, string(b), `"meta_data":[]`)
}
