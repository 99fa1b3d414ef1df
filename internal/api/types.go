package api

import (
	"time"

	"github.com/Jcapehart2/lockerlink/internal/eventbus"
	"github.com/Jcapehart2/lockerlink/internal/lockerlink"
	"github.com/Jcapehart2/lockerlink/internal/orders"
	"github.com/Jcapehart2/lockerlink/internal/settings"
)

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Database      string `json:"database"`
}

// CreateOrderRequest is the JSON body for POST /orders.
type CreateOrderRequest struct {
	Number           string                `json:"number"`
	BillingEmail     string                `json:"billing_email"`
	BillingFirstName string                `json:"billing_first_name"`
	ShippingLines    []orders.ShippingLine `json:"shipping_lines"`
}

// ShippingRequest is the JSON body for PUT /orders/{id}/shipping.
type ShippingRequest struct {
	ShippingLines []orders.ShippingLine `json:"shipping_lines"`
}

// PickupView is the locker section of an order.
type PickupView struct {
	Status           string `json:"status"`
	Label            string `json:"label"`
	CustomerVisible  bool   `json:"customer_visible"`
	LockerName       string `json:"locker_name,omitempty"`
	CompartmentLabel string `json:"compartment_label,omitempty"`
	PickupURL        string `json:"pickup_url,omitempty"`
}

// OrderResponse is returned by the order routes.
type OrderResponse struct {
	ID               int64                 `json:"id"`
	Number           string                `json:"number"`
	BillingEmail     string                `json:"billing_email,omitempty"`
	BillingFirstName string                `json:"billing_first_name,omitempty"`
	ShippingLines    []orders.ShippingLine `json:"shipping_lines"`
	LockerPickup     bool                  `json:"locker_pickup"`
	Pickup           *PickupView           `json:"pickup,omitempty"`
	Notes            []orders.Note         `json:"notes"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
}

func orderResponse(o *orders.Order, notes []orders.Note) OrderResponse {
	lines := o.ShippingLines
	if lines == nil {
		lines = []orders.ShippingLine{}
	}
	if notes == nil {
		notes = []orders.Note{}
	}
	resp := OrderResponse{
		ID:               o.ID,
		Number:           o.OrderNumber(),
		BillingEmail:     o.BillingEmail,
		BillingFirstName: o.BillingFirstName,
		ShippingLines:    lines,
		LockerPickup:     o.UsesShippingMethod(lockerlink.MethodID),
		Notes:            notes,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
	if status := lockerlink.ParseStatus(o.Field(lockerlink.FieldStatus)); !status.IsZero() {
		resp.Pickup = &PickupView{
			Status:           status.String(),
			Label:            status.Label(),
			CustomerVisible:  status.CustomerVisible(),
			LockerName:       o.Field(lockerlink.FieldLocker),
			CompartmentLabel: o.Field(lockerlink.FieldCompartment),
			PickupURL:        o.Field(lockerlink.FieldPickupURL),
		}
	}
	return resp
}

// SettingsRequest is the JSON body for PUT /settings. Omitted fields keep
// their stored values; an explicit empty string clears one.
type SettingsRequest struct {
	WebhookURL *string `json:"webhook_url,omitempty"`
	APIKey     *string `json:"api_key,omitempty"`
	Enabled    *bool   `json:"enabled,omitempty"`
}

// SettingsErrorResponse reports a save whose credentials were stored but
// whose follow-up step failed.
type SettingsErrorResponse struct {
	ErrorResponse
	Settings settings.Status `json:"settings"`
}

// TestConnectionRequest is the JSON body for POST /settings/test-connection.
type TestConnectionRequest struct {
	WebhookURL string `json:"webhook_url"`
}

// TestConnectionResponse reports a successful ping.
type TestConnectionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// WebhookResponse is one owned subscription with its recent deliveries.
type WebhookResponse struct {
	eventbus.Subscription
	Deliveries []eventbus.Delivery `json:"deliveries"`
}
