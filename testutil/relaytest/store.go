package relaytest

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/AntonStoeckl/nostr-relay-go/eventstore"
	"github.com/AntonStoeckl/nostr-relay-go/nostr"
)

// ErrInjected is the failure returned by FailingStore.
var ErrInjected = errors.New("injected storage failure: connection reset by peer")

// WithoutReplacer hides the eventstore.Replacer capability of a store, so that callers fall back
// to delete-then-save.
type WithoutReplacer struct {
	eventstore.Store
}

// FailingStore wraps a store and fails the selected operations with ErrInjected.
// It does not implement eventstore.Replacer.
type FailingStore struct {
	eventstore.Store

	FailSave   bool
	FailQuery  bool
	FailDelete bool

	// Calls counts the calls of the operations above.
	Calls atomic.Int64
}

func (s *FailingStore) SaveEvent(ctx context.Context, event nostr.Event) (bool, error) {
	s.Calls.Add(1)
	if s.FailSave {
		return false, ErrInjected
	}

	return s.Store.SaveEvent(ctx, event)
}

func (s *FailingStore) QueryEvents(ctx context.Context, filters nostr.Filters) ([]nostr.Event, error) {
	s.Calls.Add(1)
	if s.FailQuery {
		return nil, ErrInjected
	}

	return s.Store.QueryEvents(ctx, filters)
}

func (s *FailingStore) DeleteEventsByPubkeyAndKind(ctx context.Context, pubKey string, kind int) (bool, error) {
	s.Calls.Add(1)
	if s.FailDelete {
		return false, ErrInjected
	}

	return s.Store.DeleteEventsByPubkeyAndKind(ctx, pubKey, kind)
}

func (s *FailingStore) DeleteEventsByPubkeyKindAndDTag(ctx context.Context, pubKey string, kind int, dTag string) (bool, error) {
	s.Calls.Add(1)
	if s.FailDelete {
		return false, ErrInjected
	}

	return s.Store.DeleteEventsByPubkeyKindAndDTag(ctx, pubKey, kind, dTag)
}
