package lockerlink

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoteFor(t *testing.T) {
	tests := []struct {
		name        string
		status      string
		locker      string
		compartment string
		want        string
	}{
		{"assigned with both", "assigned", "A12", "3", "Order assigned. Locker: A12, Compartment: 3."},
		{"loaded locker only", "loaded", "A12", "", "Order loaded into locker. Locker: A12."},
		{"loaded compartment only", "loaded", "", "3", "Order loaded into locker. Compartment: 3."},
		{"notified with both", "notified", "A12", "3", "Pickup email sent to customer. Locker: A12, Compartment: 3."},
		{"notified bare", "notified", "", "", "Pickup email sent to customer."},
		{"picked up ignores detail", "picked_up", "A12", "3", "Order picked up from locker."},
		{"cancelled ignores detail", "cancelled", "A12", "3", "Locker assignment cancelled."},
		{"unknown status", "unlocked", "A12", "3", "LockerLink status updated: unlocked"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NoteFor(ParseStatus(tt.status), tt.locker, tt.compartment))
		})
	}
}
