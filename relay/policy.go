package relay

import (
	"context"
	"errors"

	"github.com/AntonStoeckl/nostr-relay-go/eventstore"
	"github.com/AntonStoeckl/nostr-relay-go/nostr"
)

var (
	// ErrEventValidationFailed is returned when an event fails the structural, id or signature check.
	ErrEventValidationFailed = errors.New("event validation failed")

	// ErrStorageFailed is returned when persisting an event failed, including the policy violation
	// of an addressable event without a d tag.
	ErrStorageFailed = errors.New("storage operation failed")

	ErrNilValidator = errors.New("event validator is nil")
	ErrNilStore     = errors.New("event store is nil")
	ErrNilRegistry  = errors.New("subscription registry is nil")
	ErrNilClock     = errors.New("clock is nil")
)

// EventValidator decides whether a candidate event is well-formed and correctly signed.
// Implementations must not panic and must report every internal failure as false.
type EventValidator interface {
	Validate(ctx context.Context, event nostr.Event) bool
}

// Result is the outcome of a successfully handled event.
type Result struct {
	Class nostr.EventClass

	// Duplicate is true when an event with the same id was already stored.
	Duplicate bool

	// Matches are the live subscriptions the event has to be delivered to, grouped by client.
	// It is empty for duplicates.
	Matches map[string][]*Subscription
}

// LifecyclePolicy applies the persistence rule of the event class and collects the live matches.
type LifecyclePolicy struct {
	validator EventValidator
	store     eventstore.Store
	registry  *Registry
	observer  observer
}

// NewLifecyclePolicy creates a LifecyclePolicy.
func NewLifecyclePolicy(
	validator EventValidator,
	store eventstore.Store,
	registry *Registry,
	options ...Option,
) (*LifecyclePolicy, error) {

	switch {
	case validator == nil:
		return nil, ErrNilValidator
	case store == nil:
		return nil, ErrNilStore
	case registry == nil:
		return nil, ErrNilRegistry
	}

	s, err := newSettings(options)
	if err != nil {
		return nil, err
	}

	return &LifecyclePolicy{
		validator: validator,
		store:     store,
		registry:  registry,
		observer:  observer{settings: s},
	}, nil
}

// HandleEvent validates the event, persists it according to its class and finds its live matches.
//
//   - regular events are stored as they are
//   - replaceable events replace the stored event of the same (pubkey, kind)
//   - addressable events replace the stored event of the same (pubkey, kind, d tag), a missing d
//     tag fails before storage is touched
//   - ephemeral events are not stored
//
// An event that is already stored under its id is a duplicate and has no matches.
// A storage failure aborts before matching, so an event that was not persisted is never broadcast.
func (p *LifecyclePolicy) HandleEvent(ctx context.Context, event nostr.Event) (Result, error) {
	class := event.Class()

	if !p.validator.Validate(ctx, event) {
		p.recordEvent(ctx, class, statusInvalid)
		return Result{Class: class}, ErrEventValidationFailed
	}

	duplicate, err := p.persist(ctx, event, class)
	if err != nil {
		p.recordEvent(ctx, class, statusError)
		return Result{Class: class}, errors.Join(ErrStorageFailed, err)
	}

	if duplicate {
		p.recordEvent(ctx, class, statusDuplicate)
		return Result{Class: class, Duplicate: true, Matches: map[string][]*Subscription{}}, nil
	}

	p.recordEvent(ctx, class, statusSuccess)

	return Result{Class: class, Matches: p.registry.FindMatchingSubscriptions(event)}, nil
}

func (p *LifecyclePolicy) persist(ctx context.Context, event nostr.Event, class nostr.EventClass) (bool, error) {
	switch class {
	case nostr.ClassEphemeral:
		return false, nil

	case nostr.ClassReplaceable, nostr.ClassAddressable:
		key, err := eventstore.ReplaceKeyOf(event)
		if err != nil {
			return false, err
		}

		stored, err := p.isStored(ctx, event.ID)
		if err != nil || stored {
			return stored, err
		}

		return false, p.replace(ctx, event, key)

	default:
		saved, err := p.store.SaveEvent(ctx, event)
		if err != nil {
			return false, err
		}

		return !saved, nil
	}
}

// isStored always reads from the primary.
func (p *LifecyclePolicy) isStored(ctx context.Context, id string) (bool, error) {
	limit := 1
	found, err := p.store.QueryEvents(ctx, nostr.Filters{{IDs: []string{id}, Limit: &limit}})
	if err != nil {
		return false, err
	}

	return len(found) > 0, nil
}

// replace uses the atomic ReplaceEvent when the store offers it and falls back to delete-then-save.
func (p *LifecyclePolicy) replace(ctx context.Context, event nostr.Event, key eventstore.ReplaceKey) error {
	if replacer, ok := p.store.(eventstore.Replacer); ok {
		return replacer.ReplaceEvent(ctx, event, key)
	}

	var err error
	if key.HasD {
		_, err = p.store.DeleteEventsByPubkeyKindAndDTag(ctx, key.PubKey, key.Kind, key.DTag)
	} else {
		_, err = p.store.DeleteEventsByPubkeyAndKind(ctx, key.PubKey, key.Kind)
	}

	if err != nil {
		return err
	}

	_, err = p.store.SaveEvent(ctx, event)

	return err
}

func (p *LifecyclePolicy) recordEvent(ctx context.Context, class nostr.EventClass, status string) {
	p.observer.count(ctx, metricEventsTotal, map[string]string{labelClass: class.String(), labelStatus: status})
}
