package orders

import (
	"slices"
	"strconv"
	"time"
)

// ShippingLine is one shipping item on an order.
type ShippingLine struct {
	MethodID string `json:"method_id"`
	Title    string `json:"title,omitempty"`
}

// Note is an append-only audit entry attached to an order.
type Note struct {
	ID              int64     `json:"id"`
	Text            string    `json:"note"`
	CustomerVisible bool      `json:"customer_visible"`
	CreatedAt       time.Time `json:"created_at"`
}

// Order is the subset of a store order this service reads and writes.
// Field and note changes are buffered until Store.Save.
type Order struct {
	ID               int64          `json:"id"`
	Number           string         `json:"number"`
	BillingEmail     string         `json:"billing_email,omitempty"`
	BillingFirstName string         `json:"billing_first_name,omitempty"`
	ShippingLines    []ShippingLine `json:"shipping_lines"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`

	fields        map[string]string
	dirty         map[string]string
	pendingNotes  []Note
	shippingDirty bool
}

// OrderNumber is the customer-facing number, falling back to the ID.
func (o *Order) OrderNumber() string {
	if o.Number != "" {
		return o.Number
	}
	return strconv.FormatInt(o.ID, 10)
}

// Field returns the value stored under key, including unsaved changes.
func (o *Order) Field(key string) string {
	if v, ok := o.dirty[key]; ok {
		return v
	}
	return o.fields[key]
}

// Fields returns a copy of all fields including unsaved changes.
func (o *Order) Fields() map[string]string {
	out := make(map[string]string, len(o.fields)+len(o.dirty))
	for k, v := range o.fields {
		out[k] = v
	}
	for k, v := range o.dirty {
		out[k] = v
	}
	return out
}

// SetField stages a field change.
func (o *Order) SetField(key, value string) {
	if o.dirty == nil {
		o.dirty = make(map[string]string)
	}
	o.dirty[key] = value
}

// AddNote stages an order note.
func (o *Order) AddNote(text string, customerVisible bool) {
	o.pendingNotes = append(o.pendingNotes, Note{Text: text, CustomerVisible: customerVisible})
}

// SetShippingLines replaces the shipping lines on the next save.
func (o *Order) SetShippingLines(lines []ShippingLine) {
	o.ShippingLines = slices.Clone(lines)
	o.shippingDirty = true
}

// ShippingMethods lists the method identifiers of all shipping lines.
func (o *Order) ShippingMethods() []string {
	out := make([]string, 0, len(o.ShippingLines))
	for _, l := range o.ShippingLines {
		out = append(out, l.MethodID)
	}
	return out
}

// UsesShippingMethod reports whether any shipping line uses methodID.
func (o *Order) UsesShippingMethod(methodID string) bool {
	return slices.Contains(o.ShippingMethods(), methodID)
}

// Changed reports whether there are staged changes waiting for Save.
func (o *Order) Changed() bool {
	return len(o.dirty) > 0 || len(o.pendingNotes) > 0 || o.shippingDirty
}

func (o *Order) clearPending() {
	if o.fields == nil {
		o.fields = make(map[string]string)
	}
	for k, v := range o.dirty {
		o.fields[k] = v
	}
	o.dirty = nil
	o.pendingNotes = nil
	o.shippingDirty = false
}
