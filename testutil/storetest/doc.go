// Package storetest contains a behavioural test suite every eventstore.Store engine must pass.
//
// Engines call Run from their own _test.go files with a factory that returns an empty store.
//
// This is testing infrastructure - not production code.
package storetest
