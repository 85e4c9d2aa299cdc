package eventstore

import (
	"context"
	"errors"
	"strconv"

	"github.com/AntonStoeckl/nostr-relay-go/nostr"
)

var (
	ErrEmptyEventsTableName    = errors.New("empty eventsTableName supplied")
	ErrNilDatabaseConnection   = errors.New("database connection is nil")
	ErrBuildingQueryFailed     = errors.New("building query failed")
	ErrQueryingEventsFailed    = errors.New("querying events failed")
	ErrScanningDBRowFailed     = errors.New("scanning db row failed")
	ErrSavingEventFailed       = errors.New("saving event failed")
	ErrDeletingEventsFailed    = errors.New("deleting events failed")
	ErrMissingDTag             = errors.New("addressable event without d tag")
	ErrNotReplaceable          = errors.New("event kind is neither replaceable nor addressable")
	ErrDecodingEventTagsFailed = errors.New("decoding event tags failed")
)

// Store is the persistence port of the relay.
//
// QueryEvents returns the union of all filter results, newest first (created_at DESC, id ASC),
// each filter contributing at most its limit. Events are returned at most once per call.
//
// SaveEvent returns false when an event with the same id is already stored.
type Store interface {
	SaveEvent(ctx context.Context, event nostr.Event) (bool, error)
	QueryEvents(ctx context.Context, filters nostr.Filters) ([]nostr.Event, error)
	DeleteEvent(ctx context.Context, id string) (bool, error)
	DeleteEventsByPubkeyAndKind(ctx context.Context, pubKey string, kind int) (bool, error)
	DeleteEventsByPubkeyKindAndDTag(ctx context.Context, pubKey string, kind int, dTag string) (bool, error)
	Clear(ctx context.Context) error
}

// Replacer is implemented by stores that can swap the event stored under a ReplaceKey in one atomic step.
// Stores without it get the sequential delete-then-save treatment, which is not atomic.
type Replacer interface {
	ReplaceEvent(ctx context.Context, event nostr.Event, key ReplaceKey) error
}

// ReplaceKey identifies the slot a replaceable or addressable event occupies.
type ReplaceKey struct {
	PubKey string
	Kind   int
	DTag   string
	HasD   bool
}

// ReplaceKeyOf derives the replacement slot of the event.
func ReplaceKeyOf(event nostr.Event) (ReplaceKey, error) {
	switch event.Class() {
	case nostr.ClassReplaceable:
		return ReplaceKey{PubKey: event.PubKey, Kind: event.Kind}, nil

	case nostr.ClassAddressable:
		dTag, found := event.DTag()
		if !found {
			return ReplaceKey{}, ErrMissingDTag
		}

		return ReplaceKey{PubKey: event.PubKey, Kind: event.Kind, DTag: dTag, HasD: true}, nil

	default:
		return ReplaceKey{}, ErrNotReplaceable
	}
}

// String encodes the key so that it can serve as a unique column or map key.
func (k ReplaceKey) String() string {
	s := k.PubKey + ":" + strconv.Itoa(k.Kind)
	if k.HasD {
		s += ":" + k.DTag
	}

	return s
}

// Covers reports whether a stored event occupies the slot of this key.
func (k ReplaceKey) Covers(event nostr.Event) bool {
	if event.PubKey != k.PubKey || event.Kind != k.Kind {
		return false
	}

	if !k.HasD {
		return true
	}

	dTag, found := event.DTag()

	return found && dTag == k.DTag
}
