package nostr

// EventClass is the lifecycle class of an event, derived from its kind.
type EventClass int

const (
	// ClassRegular events are stored as they are.
	ClassRegular EventClass = iota

	// ClassReplaceable events replace every prior event with the same (pubkey, kind).
	ClassReplaceable

	// ClassEphemeral events are never stored, they are only delivered to live subscriptions.
	ClassEphemeral

	// ClassAddressable events replace every prior event with the same (pubkey, kind, d tag).
	ClassAddressable
)

const (
	KindMetadata = 0
	KindTextNote = 1
	KindFollows  = 3

	replaceableRangeStart = 10000
	ephemeralRangeStart   = 20000
	addressableRangeStart = 30000
	addressableRangeEnd   = 40000
)

// ClassifyKind maps a kind onto its closed, mutually exclusive lifecycle range.
func ClassifyKind(kind int) EventClass {
	switch {
	case kind == KindMetadata || kind == KindFollows:
		return ClassReplaceable
	case kind >= replaceableRangeStart && kind < ephemeralRangeStart:
		return ClassReplaceable
	case kind >= ephemeralRangeStart && kind < addressableRangeStart:
		return ClassEphemeral
	case kind >= addressableRangeStart && kind < addressableRangeEnd:
		return ClassAddressable
	default:
		return ClassRegular
	}
}

// String provides a string representation of EventClass for logging and metrics labels.
func (c EventClass) String() string {
	switch c {
	case ClassRegular:
		return "regular"
	case ClassReplaceable:
		return "replaceable"
	case ClassEphemeral:
		return "ephemeral"
	case ClassAddressable:
		return "addressable"
	default:
		return "unknown"
	}
}
