// Package relay implements the NIP-01 relay core.
//
// The core is made of four parts that are wired together by Relay:
//
//   - Registry keeps the live subscriptions of all connected clients and finds the subscriptions
//     an event has to be delivered to.
//   - LifecyclePolicy validates an event, classifies it by kind and applies the matching
//     persistence rule against an eventstore.Store.
//   - Engine is the message state machine. It decodes EVENT, REQ and CLOSE messages, drives the
//     policy, the registry and the store, and emits OK, EVENT, EOSE, CLOSED and NOTICE messages.
//   - Transport is the port to the physical connection layer, see transport/wsserver.
//
// Messages of one client are handled sequentially, messages of different clients concurrently.
// The Registry is the only shared mutable state of the core and is safe for concurrent use.
//
// Logging, metrics and tracing are optional and configured with the With* options, which are
// accepted by every constructor of this package.
package relay
