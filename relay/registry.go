package relay

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/AntonStoeckl/nostr-relay-go/nostr"
)

// Subscription is a live (client, subscription id) pair with its filter set.
//
// A Subscription is owned by the Registry and never mutated after creation. A REQ that reuses
// the id creates a new Subscription, which is how stale backlog results are recognized.
type Subscription struct {
	ClientID  string
	ID        string
	Filters   nostr.Filters
	CreatedAt time.Time

	filterKeys []string
}

// Matches reports whether any filter of the subscription matches the event.
func (s *Subscription) Matches(event nostr.Event) bool {
	return s.Filters.Match(event)
}

// Registry is the in-memory index of all live subscriptions, keyed by client and subscription id.
type Registry struct {
	mu       sync.RWMutex
	byClient map[string]map[string]*Subscription
	count    int
	observer observer
}

// NewRegistry creates an empty Registry.
func NewRegistry(options ...Option) (*Registry, error) {
	s, err := newSettings(options)
	if err != nil {
		return nil, err
	}

	return &Registry{
		byClient: make(map[string]map[string]*Subscription),
		observer: observer{settings: s},
	}, nil
}

// CreateSubscription replaces any subscription at (clientID, subID) with a new one in one step.
// The filters are not validated here.
func (r *Registry) CreateSubscription(clientID, subID string, filters nostr.Filters) *Subscription {
	sub := &Subscription{
		ClientID:   clientID,
		ID:         subID,
		Filters:    filters,
		CreatedAt:  r.observer.now(),
		filterKeys: make([]string, 0, len(filters)),
	}

	for _, f := range filters {
		sub.filterKeys = append(sub.filterKeys, f.CanonicalKey())
	}

	r.mu.Lock()
	subs, found := r.byClient[clientID]
	if !found {
		subs = make(map[string]*Subscription)
		r.byClient[clientID] = subs
	}

	if _, replaced := subs[subID]; !replaced {
		r.count++
	}
	subs[subID] = sub
	count := r.count
	r.mu.Unlock()

	r.recordActive(count)

	return sub
}

// RemoveSubscription removes the subscription if present and reports whether it existed.
func (r *Registry) RemoveSubscription(clientID, subID string) bool {
	r.mu.Lock()
	subs := r.byClient[clientID]
	_, found := subs[subID]
	if found {
		r.removeLocked(clientID, subID)
	}
	count := r.count
	r.mu.Unlock()

	if found {
		r.recordActive(count)
	}

	return found
}

// RemoveAllSubscriptions removes every subscription of the client and returns how many there were.
func (r *Registry) RemoveAllSubscriptions(clientID string) int {
	r.mu.Lock()
	removed := len(r.byClient[clientID])
	delete(r.byClient, clientID)
	r.count -= removed
	count := r.count
	r.mu.Unlock()

	if removed > 0 {
		r.recordActive(count)
	}

	return removed
}

// RemoveSubscriptionByID removes the subscription id across all clients and returns how many were removed.
func (r *Registry) RemoveSubscriptionByID(subID string) int {
	removed := 0

	r.mu.Lock()
	for clientID, subs := range r.byClient {
		if _, found := subs[subID]; found {
			r.removeLocked(clientID, subID)
			removed++
		}
	}
	count := r.count
	r.mu.Unlock()

	if removed > 0 {
		r.recordActive(count)
	}

	return removed
}

// removeLocked expects the write lock to be held and the subscription to exist.
func (r *Registry) removeLocked(clientID, subID string) {
	subs := r.byClient[clientID]
	delete(subs, subID)
	r.count--

	if len(subs) == 0 {
		delete(r.byClient, clientID)
	}
}

// GetSubscription returns the live subscription at (clientID, subID).
func (r *Registry) GetSubscription(clientID, subID string) (*Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, found := r.byClient[clientID][subID]

	return sub, found
}

// GetClientSubscriptions returns the subscriptions of one client ordered by id.
func (r *Registry) GetClientSubscriptions(clientID string) []*Subscription {
	r.mu.RLock()
	subs := make([]*Subscription, 0, len(r.byClient[clientID]))
	for _, sub := range r.byClient[clientID] {
		subs = append(subs, sub)
	}
	r.mu.RUnlock()

	sortSubscriptions(subs)

	return subs
}

// GetAllSubscriptions returns every live subscription ordered by client and id.
func (r *Registry) GetAllSubscriptions() []*Subscription {
	r.mu.RLock()
	subs := make([]*Subscription, 0, r.count)
	for _, clientSubs := range r.byClient {
		for _, sub := range clientSubs {
			subs = append(subs, sub)
		}
	}
	r.mu.RUnlock()

	sortSubscriptions(subs)

	return subs
}

// Count returns the number of live subscriptions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.count
}

// IsLive reports whether sub is still the subscription registered under its (client, id) pair.
func (r *Registry) IsLive(sub *Subscription) bool {
	current, found := r.GetSubscription(sub.ClientID, sub.ID)

	return found && current == sub
}

// FindMatchingSubscriptions returns the subscriptions whose filter set matches the event, grouped by client.
//
// Every live subscription is visited exactly once. Filters with the same canonical key are
// evaluated only once per call.
func (r *Registry) FindMatchingSubscriptions(event nostr.Event) map[string][]*Subscription {
	matches := make(map[string][]*Subscription)
	evaluated := make(map[string]bool)

	r.mu.RLock()
	defer r.mu.RUnlock()

	for clientID, subs := range r.byClient {
		for _, sub := range subs {
			if sub.matchesMemoized(event, evaluated) {
				matches[clientID] = append(matches[clientID], sub)
			}
		}
	}

	return matches
}

func (s *Subscription) matchesMemoized(event nostr.Event, evaluated map[string]bool) bool {
	for i, f := range s.Filters {
		key := s.filterKeys[i]

		matched, known := evaluated[key]
		if !known {
			matched = f.Matches(event)
			evaluated[key] = matched
		}

		if matched {
			return true
		}
	}

	return false
}

func (r *Registry) recordActive(count int) {
	r.observer.value(context.Background(), metricSubscriptionsActive, float64(count), nil)
}

func sortSubscriptions(subs []*Subscription) {
	slices.SortFunc(subs, func(a, b *Subscription) int {
		return cmp.Or(cmp.Compare(a.ClientID, b.ClientID), cmp.Compare(a.ID, b.ID))
	})
}
