package lockerlink

// Order field keys owned by the pickup protocol.
const (
	FieldStatus      = "lockerlink_status"
	FieldLocker      = "lockerlink_locker"
	FieldCompartment = "lockerlink_compartment"
	FieldPickupURL   = "lockerlink_pickup_url"
	FieldUnlockToken = "lockerlink_unlock_token"
)

// MethodID identifies the locker-pickup shipping method on order shipping lines.
const MethodID = "lockerlink"

// Event names emitted towards the notification sink.
const EventPickupReady = "lockerlink_order_pickup_ready"

// PickupReady is the notification raised when an order reaches the notified status.
type PickupReady struct {
	OrderID          int64  `json:"order_id"`
	LockerName       string `json:"locker_name,omitempty"`
	CompartmentLabel string `json:"compartment_label,omitempty"`
	PickupURL        string `json:"pickup_url,omitempty"`
}
