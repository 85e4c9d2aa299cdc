// Package relaytest provides test doubles for the relay core: a recording in-process Transport
// and store wrappers that inject failures or hide the atomic replace capability.
package relaytest
