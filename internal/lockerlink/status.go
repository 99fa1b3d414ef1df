package lockerlink

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// StatusKind is the closed set of statuses that get special handling.
// Anything the locker service sends that is not listed is StatusOther.
type StatusKind int

const (
	StatusOther StatusKind = iota
	StatusAssigned
	StatusLoaded
	StatusNotified
	StatusPickedUp
	StatusCancelled
)

var statusKinds = map[string]StatusKind{
	"assigned":  StatusAssigned,
	"loaded":    StatusLoaded,
	"notified":  StatusNotified,
	"picked_up": StatusPickedUp,
	"cancelled": StatusCancelled,
}

// Status is a pickup-lifecycle state as reported by the locker service.
// Raw is stored verbatim; Kind drives note wording and notifications.
type Status struct {
	Kind StatusKind
	Raw  string
}

// ParseStatus never fails: unknown values become StatusOther carrying the raw string.
func ParseStatus(raw string) Status {
	kind, ok := statusKinds[raw]
	if !ok {
		kind = StatusOther
	}
	return Status{Kind: kind, Raw: raw}
}

func (s Status) String() string { return s.Raw }

// IsZero reports whether no status has been recorded.
func (s Status) IsZero() bool { return s.Raw == "" }

// statusLabels covers the display-only states too (awaiting_assignment, unlocked).
var statusLabels = map[string]string{
	"awaiting_assignment": "Awaiting Assignment",
	"assigned":            "Assigned",
	"loaded":              "Loaded",
	"notified":            "Notified",
	"unlocked":            "Unlocked",
	"picked_up":           "Picked Up",
	"cancelled":           "Cancelled",
}

// Label is the human-readable form used by the pickup view.
func (s Status) Label() string {
	if label, ok := statusLabels[s.Raw]; ok {
		return label
	}
	label := strings.ReplaceAll(s.Raw, "_", " ")
	first, size := utf8.DecodeRuneInString(label)
	if first == utf8.RuneError {
		return label
	}
	return string(unicode.ToUpper(first)) + label[size:]
}

// CustomerVisible reports whether pickup details should be shown to the customer.
func (s Status) CustomerVisible() bool {
	switch s.Kind {
	case StatusAssigned, StatusLoaded, StatusNotified:
		return true
	default:
		return false
	}
}
