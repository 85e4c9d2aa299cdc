// Package nostr provides the NIP-01 data model used by the relay.
//
// It defines Event and Filter, the canonical event serialization that the event id is computed
// from, the kind classification that decides an event's lifecycle, the pure filter matcher and a
// BIP-340 Schnorr validator.
//
// Key types:
//   - Event: an immutable, signed Nostr event
//   - Filter / Filters: subscription and query descriptors (AND across fields, OR across filters)
//   - EventClass: regular, replaceable, ephemeral or addressable
//   - SchnorrValidator: checks structure, id and signature of a candidate event
//
// Common usage pattern:
//
//	filter, err := nostr.ParseFilter([]byte(`{"kinds":[1],"#p":["abc..."]}`))
//	if err != nil {
//		// reject the REQ
//	}
//
//	if filter.Matches(event) {
//		// deliver
//	}
package nostr
