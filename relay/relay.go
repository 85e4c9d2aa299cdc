package relay

import (
	"context"
	"errors"
	"sync/atomic"
)

var (
	// ErrTransportStartFailed is returned when the transport cannot start, the relay cannot serve then.
	ErrTransportStartFailed = errors.New("starting transport failed")

	ErrNilTransport = errors.New("transport is nil")
	ErrNilEngine    = errors.New("engine is nil")
)

// MessageHandler receives one inbound frame of a client.
type MessageHandler func(ctx context.Context, clientID string, message []byte)

// ConnectionHandler is notified when a client connects or disconnects.
type ConnectionHandler func(clientID string)

// Transport is the port to the physical connection layer. It owns the client identities.
//
// The MessageHandler is called sequentially per client, from the client's read loop.
// The handlers are registered before Start is called.
type Transport interface {
	Sender
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	OnMessage(handler MessageHandler)
	OnConnect(handler ConnectionHandler)
	OnDisconnect(handler ConnectionHandler)
}

// Relay connects a Transport to the Engine and the Registry.
type Relay struct {
	transport   Transport
	engine      *Engine
	registry    *Registry
	observer    observer
	connections atomic.Int64
}

// New wires the transport callbacks: messages go to the engine, disconnects drop the client's subscriptions.
func New(transport Transport, engine *Engine, registry *Registry, options ...Option) (*Relay, error) {
	switch {
	case transport == nil:
		return nil, ErrNilTransport
	case engine == nil:
		return nil, ErrNilEngine
	case registry == nil:
		return nil, ErrNilRegistry
	}

	s, err := newSettings(options)
	if err != nil {
		return nil, err
	}

	r := &Relay{
		transport: transport,
		engine:    engine,
		registry:  registry,
		observer:  observer{settings: s},
	}

	transport.OnConnect(r.handleConnect)
	transport.OnMessage(r.engine.HandleMessage)
	transport.OnDisconnect(r.handleDisconnect)

	return r, nil
}

// Start starts the transport.
func (r *Relay) Start(ctx context.Context) error {
	if err := r.transport.Start(ctx); err != nil {
		r.observer.error(ctx, logMsgTransportFailed, logAttrError, err.Error())
		return errors.Join(ErrTransportStartFailed, err)
	}

	r.observer.info(ctx, logMsgTransportStarted)

	return nil
}

// Stop stops the transport, which disconnects all clients.
func (r *Relay) Stop(ctx context.Context) error {
	err := r.transport.Stop(ctx)
	r.observer.info(ctx, logMsgTransportStopped)

	return err
}

// Connections returns the number of connected clients.
func (r *Relay) Connections() int64 {
	return r.connections.Load()
}

func (r *Relay) handleConnect(clientID string) {
	ctx := context.Background()
	active := r.connections.Add(1)

	r.observer.value(ctx, metricConnectionsActive, float64(active), nil)
	r.observer.info(ctx, logMsgClientConnected, logAttrClientID, clientID)
}

func (r *Relay) handleDisconnect(clientID string) {
	ctx := context.Background()
	active := r.connections.Add(-1)
	removed := r.registry.RemoveAllSubscriptions(clientID)

	r.observer.value(ctx, metricConnectionsActive, float64(active), nil)
	r.observer.info(ctx, logMsgClientDisconnected, logAttrClientID, clientID, logAttrRemovedCount, removed)
}
