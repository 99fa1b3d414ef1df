package notify

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strconv"
	"strings"
	texttemplate "text/template"

	"github.com/Jcapehart2/lockerlink/internal/lockerlink"
	"github.com/Jcapehart2/lockerlink/internal/orders"
)

const (
	pickupReadySubject = "Your order #{order_number} is ready for locker pickup"
	pickupReadyHeading = "Your order is ready for pickup!"
)

// Message is a rendered email.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type pickupReadyData struct {
	Heading          string
	FirstName        string
	OrderNumber      string
	LockerName       string
	CompartmentLabel string
	PickupURL        string
	ViewOrderURL     string
}

var pickupReadyText = texttemplate.Must(texttemplate.New("pickup_ready.txt").Parse(
	`= {{.Heading}} =

Hi {{.FirstName}},

Your order #{{.OrderNumber}} has been loaded into a smart locker and is ready for pickup.

{{if .LockerName}}Locker: {{.LockerName}}
{{end}}{{if .CompartmentLabel}}Compartment: {{.CompartmentLabel}}
{{end}}
{{if .PickupURL}}Pick up your order here: {{.PickupURL}}

{{end}}{{if .ViewOrderURL}}View your order: {{.ViewOrderURL}}
{{end}}`))

var pickupReadyHTML = htmltemplate.Must(htmltemplate.New("pickup_ready.html").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: -apple-system, Helvetica, Arial, sans-serif; color: #0d1b2a;">
<h1 style="font-size: 22px;">{{.Heading}}</h1>
<p>Hi {{.FirstName}},</p>
<p>Your order <strong>#{{.OrderNumber}}</strong> has been loaded into a smart locker and is ready for pickup.</p>
{{- if or .LockerName .CompartmentLabel}}
<table cellspacing="0" cellpadding="12" width="100%" style="border: 1px solid #e2e8f0; border-radius: 8px; border-collapse: separate; margin: 20px 0;">
{{- if .LockerName}}
<tr><td style="background: #f0f4f8; font-weight: 600; color: #5a6a7d; width: 140px;">Locker</td><td>{{.LockerName}}</td></tr>
{{- end}}
{{- if .CompartmentLabel}}
<tr><td style="background: #f0f4f8; font-weight: 600; color: #5a6a7d;">Compartment</td><td>{{.CompartmentLabel}}</td></tr>
{{- end}}
</table>
{{- end}}
{{- if .PickupURL}}
<p style="text-align: center; margin: 28px 0;"><a href="{{.PickupURL}}" style="display: inline-block; background-color: #00A8E8; color: #ffffff; font-size: 16px; font-weight: 700; padding: 14px 36px; border-radius: 8px; text-decoration: none;">Unlock &amp; Pick Up</a></p>
{{- end}}
{{- if .ViewOrderURL}}
<p style="color: #5a6a7d; font-size: 13px;">You can also view your pickup details anytime from your <a href="{{.ViewOrderURL}}">order page</a>.</p>
{{- end}}
</body>
</html>
`))

// RenderPickupReady builds the pickup-ready email for order. viewOrderURL may
// contain {order_id} and {order_number} placeholders.
func RenderPickupReady(o *orders.Order, n lockerlink.PickupReady, viewOrderURL string) (Message, error) {
	if o.BillingEmail == "" {
		return Message{}, fmt.Errorf("order %d has no billing email", o.ID)
	}

	data := pickupReadyData{
		Heading:          pickupReadyHeading,
		FirstName:        o.BillingFirstName,
		OrderNumber:      o.OrderNumber(),
		LockerName:       firstNonEmpty(n.LockerName, o.Field(lockerlink.FieldLocker)),
		CompartmentLabel: firstNonEmpty(n.CompartmentLabel, o.Field(lockerlink.FieldCompartment)),
		PickupURL:        firstNonEmpty(n.PickupURL, o.Field(lockerlink.FieldPickupURL)),
		ViewOrderURL:     expandOrderURL(viewOrderURL, o),
	}

	var text, html bytes.Buffer
	if err := pickupReadyText.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("render text body: %w", err)
	}
	if err := pickupReadyHTML.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("render html body: %w", err)
	}

	return Message{
		To:      o.BillingEmail,
		Subject: strings.ReplaceAll(pickupReadySubject, "{order_number}", data.OrderNumber),
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}

func expandOrderURL(tmpl string, o *orders.Order) string {
	if tmpl == "" {
		return ""
	}
	return strings.NewReplacer(
		"{order_id}", strconv.FormatInt(o.ID, 10),
		"{order_number}", o.OrderNumber(),
	).Replace(tmpl)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
