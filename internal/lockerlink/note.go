package lockerlink

import "fmt"

// NoteFor returns the internal order note recorded for a status update.
// locker and compartment are the values carried by the update itself.
func NoteFor(status Status, locker, compartment string) string {
	switch status.Kind {
	case StatusAssigned:
		return "Order assigned." + detailSuffix(locker, compartment)
	case StatusLoaded:
		return "Order loaded into locker." + detailSuffix(locker, compartment)
	case StatusNotified:
		return "Pickup email sent to customer." + detailSuffix(locker, compartment)
	case StatusPickedUp:
		return "Order picked up from locker."
	case StatusCancelled:
		return "Locker assignment cancelled."
	case StatusOther:
		return fmt.Sprintf("LockerLink status updated: %s", status.Raw)
	}
	return fmt.Sprintf("LockerLink status updated: %s", status.Raw)
}

func detailSuffix(locker, compartment string) string {
	switch {
	case locker != "" && compartment != "":
		return fmt.Sprintf(" Locker: %s, Compartment: %s.", locker, compartment)
	case locker != "":
		return fmt.Sprintf(" Locker: %s.", locker)
	case compartment != "":
		return fmt.Sprintf(" Compartment: %s.", compartment)
	default:
		return ""
	}
}
