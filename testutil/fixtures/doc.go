// Package fixtures contains signed test events for relay and event store testing.
//
// Events are built with real secp256k1 keys, so they pass the Schnorr validator unless a test
// tampers with them on purpose. Every builder takes an explicit created_at; tests advance a fake
// clock instead of reading the wall clock.
//
// This is testing infrastructure - not production code.
package fixtures
