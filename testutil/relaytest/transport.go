package relaytest

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/AntonStoeckl/nostr-relay-go/relay"
)

// ErrUnknownClient is returned by Send for clients that are not connected.
var ErrUnknownClient = errors.New("client is not connected")

// Transport is an in-process relay.Transport that records every sent message per client.
type Transport struct {
	mu           sync.Mutex
	connected    map[string]bool
	sent         map[string][]string
	onMessage    relay.MessageHandler
	onConnect    relay.ConnectionHandler
	onDisconnect relay.ConnectionHandler
	started      bool
	startErr     error
}

// NewTransport creates a Transport without connected clients.
func NewTransport() *Transport {
	return &Transport{
		connected: make(map[string]bool),
		sent:      make(map[string][]string),
	}
}

// FailStartWith makes Start return err.
func (t *Transport) FailStartWith(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.startErr = err
}

func (t *Transport) Start(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.startErr != nil {
		return t.startErr
	}

	t.started = true

	return nil
}

func (t *Transport) Stop(_ context.Context) error {
	t.mu.Lock()
	clients := make([]string, 0, len(t.connected))
	for clientID := range t.connected {
		clients = append(clients, clientID)
	}
	t.started = false
	t.mu.Unlock()

	for _, clientID := range clients {
		t.Disconnect(clientID)
	}

	return nil
}

// Started reports whether Start succeeded and Stop was not called since.
func (t *Transport) Started() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.started
}

func (t *Transport) Send(clientID string, message []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected[clientID] {
		return ErrUnknownClient
	}

	t.sent[clientID] = append(t.sent[clientID], string(message))

	return nil
}

func (t *Transport) OnMessage(handler relay.MessageHandler) {
	t.onMessage = handler
}

func (t *Transport) OnConnect(handler relay.ConnectionHandler) {
	t.onConnect = handler
}

func (t *Transport) OnDisconnect(handler relay.ConnectionHandler) {
	t.onDisconnect = handler
}

// Connect registers the client and fires the connect handler.
func (t *Transport) Connect(clientID string) {
	t.mu.Lock()
	t.connected[clientID] = true
	t.mu.Unlock()

	if t.onConnect != nil {
		t.onConnect(clientID)
	}
}

// Disconnect removes the client and fires the disconnect handler.
func (t *Transport) Disconnect(clientID string) {
	t.mu.Lock()
	wasConnected := t.connected[clientID]
	delete(t.connected, clientID)
	t.mu.Unlock()

	if wasConnected && t.onDisconnect != nil {
		t.onDisconnect(clientID)
	}
}

// Deliver hands an inbound frame of the client to the message handler and returns when it is handled.
func (t *Transport) Deliver(ctx context.Context, clientID string, message []byte) {
	if t.onMessage != nil {
		t.onMessage(ctx, clientID, message)
	}
}

// DeliverString is Deliver for a literal frame.
func (t *Transport) DeliverString(ctx context.Context, clientID string, message string) {
	t.Deliver(ctx, clientID, []byte(message))
}

// Sent returns the messages sent to the client so far, in send order.
func (t *Transport) Sent(clientID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return slices.Clone(t.sent[clientID])
}

// Reset forgets the messages sent to the client.
func (t *Transport) Reset(clientID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.sent, clientID)
}
