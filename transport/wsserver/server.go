package wsserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AntonStoeckl/nostr-relay-go/eventstore"
	"github.com/AntonStoeckl/nostr-relay-go/relay"
)

const (
	defaultListenAddr    = ":7447"
	defaultReadLimit     = 512 * 1024
	defaultSendQueueSize = 256
	defaultSendTimeout   = 10 * time.Second
	defaultPingInterval  = 30 * time.Second
	defaultPongTimeout   = 60 * time.Second
	wsReadBuffer         = 1024
	wsWriteBuffer        = 1024
	writeTimeout         = 10 * time.Second
	readHeaderTimeout    = 5 * time.Second
	closeGracePeriod     = time.Second
)

const (
	logMsgListening         = "websocket server listening"
	logMsgServeFailed       = "websocket server stopped unexpectedly"
	logMsgUpgradeFailed     = "websocket upgrade failed"
	logMsgOriginRejected    = "rejected websocket connection"
	logMsgClientConnected   = "websocket client connected"
	logMsgClientClosed      = "websocket client closed"
	logMsgSendQueueFull     = "send queue full, disconnecting client"
	logMsgWriteFailed       = "websocket write failed"
	logMsgAdminUnauthorized = "unauthorized admin request"
	logMsgAdminRemoved      = "subscriptions removed by admin"
	logAttrAddr             = "addr"
	logAttrClientID         = "client_id"
	logAttrRemoteAddr       = "remote_addr"
	logAttrOrigin           = "origin"
	logAttrError            = "error"
	logAttrSubscriptionID   = "subscription_id"
	logAttrRemovedCount     = "removed_count"
	metricConnectionsTotal  = "ws_connections_total"
	metricFramesReceived    = "ws_frames_received_total"
	metricSendQueueFull     = "ws_send_queue_full_total"
	metricAdminRequests     = "ws_admin_requests_total"
	labelStatus             = "status"
)

var (
	// ErrUnknownClient is returned by Send when the client is not (or no longer) connected.
	ErrUnknownClient = errors.New("client is not connected")

	// ErrSendQueueFull is returned by Send when the queue stays full for the send timeout, the client is disconnected.
	ErrSendQueueFull = errors.New("client send queue is full")

	ErrAlreadyStarted         = errors.New("server is already started")
	ErrInvalidReadLimit       = errors.New("read limit must be positive")
	ErrInvalidQueueSize       = errors.New("send queue size must be positive")
	ErrInvalidSendTimeout     = errors.New("send timeout must be positive")
	ErrInvalidPingInterval    = errors.New("ping interval must be positive and shorter than the pong timeout")
	ErrNilSubscriptionRemover = errors.New("subscription remover must not be nil")
)

// SubscriptionRemover removes a subscription id across all clients, relay.Registry implements it.
type SubscriptionRemover interface {
	RemoveSubscriptionByID(subID string) int
}

// Server is a relay.Transport over WebSocket connections.
type Server struct {
	addr             string
	allowedOrigins   []string
	readLimit        int64
	sendQueueSize    int
	sendTimeout      time.Duration
	pingInterval     time.Duration
	pongTimeout      time.Duration
	adminKeys        mapset.Set[string]
	remover          SubscriptionRemover
	logger           eventstore.Logger
	metricsCollector eventstore.MetricsCollector

	upgrader   websocket.Upgrader
	httpServer *http.Server
	listener   net.Listener

	mu           sync.RWMutex
	clients      map[string]*client
	onMessage    relay.MessageHandler
	onConnect    relay.ConnectionHandler
	onDisconnect relay.ConnectionHandler

	baseCtx    context.Context
	cancelBase context.CancelFunc
	wg         sync.WaitGroup
}

var _ relay.Transport = (*Server)(nil)

// New creates a Server, it does not listen before Start is called.
func New(options ...Option) (*Server, error) {
	s := &Server{
		addr:          defaultListenAddr,
		readLimit:     defaultReadLimit,
		sendQueueSize: defaultSendQueueSize,
		sendTimeout:   defaultSendTimeout,
		pingInterval:  defaultPingInterval,
		pongTimeout:   defaultPongTimeout,
		adminKeys:     mapset.NewSet[string](),
		clients:       make(map[string]*client),
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  wsReadBuffer,
		WriteBufferSize: wsWriteBuffer,
		CheckOrigin:     originValidator(s.allowedOrigins, s.logger),
	}

	return s, nil
}

func (s *Server) OnMessage(handler relay.MessageHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.onMessage = handler
}

func (s *Server) OnConnect(handler relay.ConnectionHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.onConnect = handler
}

func (s *Server) OnDisconnect(handler relay.ConnectionHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.onDisconnect = handler
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("DELETE /admin/subscriptions/{id}", s.handleAdminRemoveSubscription)
	mux.HandleFunc("/", s.handleWebsocket)

	return mux
}

// Start binds the listen address and serves in the background.
// Connections inherit the values of ctx but are not cancelled with it, use Stop.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return ErrAlreadyStarted
	}

	listener, err := (&net.ListenConfig{}).Listen(ctx, "tcp", s.addr)
	if err != nil {
		return err
	}

	s.listener = listener
	s.baseCtx, s.cancelBase = context.WithCancel(context.WithoutCancel(ctx))
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return s.baseCtx },
	}

	s.logInfo(logMsgListening, logAttrAddr, listener.Addr().String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if serveErr := s.httpServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logError(logMsgServeFailed, logAttrError, serveErr.Error())
		}
	}()

	return nil
}

// Addr returns the bound address, it is empty before Start.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

// Stop stops accepting connections, closes every client and waits for their goroutines.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.RLock()
	httpServer := s.httpServer
	cancel := s.cancelBase
	s.mu.RUnlock()

	if httpServer == nil {
		return nil
	}

	// hijacked websocket connections are not tracked by Shutdown
	err := httpServer.Shutdown(ctx)

	s.mu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	for _, c := range clients {
		c.close(websocket.CloseGoingAway, "relay shutting down")
	}
	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}

	s.mu.Lock()
	s.listener = nil
	s.httpServer = nil
	s.mu.Unlock()

	return err
}

// Send enqueues the message for the client. Messages of one client are written in Send order.
// Send blocks while the queue is full, for at most the send timeout.
func (s *Server) Send(clientID string, message []byte) error {
	s.mu.RLock()
	c, found := s.clients[clientID]
	s.mu.RUnlock()

	if !found {
		return ErrUnknownClient
	}

	if err := c.enqueue(message, s.sendTimeout); err != nil {
		if errors.Is(err, ErrSendQueueFull) {
			s.logWarn(logMsgSendQueueFull, logAttrClientID, clientID)
			s.count(metricSendQueueFull, nil)
			c.close(websocket.ClosePolicyViolation, "send queue full")
		}

		return err
	}

	return nil
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.clients)
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusUpgradeRequired)
		_, _ = w.Write([]byte("nostr relay: connect with a websocket client\n"))
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logDebug(logMsgUpgradeFailed, logAttrError, err.Error(), logAttrRemoteAddr, r.RemoteAddr)
		s.count(metricConnectionsTotal, map[string]string{labelStatus: "rejected"})
		return
	}

	c := newClient(newClientID(), conn, s.sendQueueSize)
	s.register(c)
	s.count(metricConnectionsTotal, map[string]string{labelStatus: "accepted"})
	s.logDebug(logMsgClientConnected, logAttrClientID, c.id, logAttrRemoteAddr, r.RemoteAddr)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.writeLoop(c)
	}()
	go func() {
		defer s.wg.Done()
		s.readLoop(s.baseCtx, c)
	}()
}

func (s *Server) register(c *client) {
	s.mu.Lock()
	s.clients[c.id] = c
	onConnect := s.onConnect
	s.mu.Unlock()

	if onConnect != nil {
		onConnect(c.id)
	}
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	delete(s.clients, c.id)
	onDisconnect := s.onDisconnect
	s.mu.Unlock()

	if onDisconnect != nil {
		onDisconnect(c.id)
	}
}

// readLoop handles the inbound frames of one client sequentially until the connection fails.
func (s *Server) readLoop(ctx context.Context, c *client) {
	defer func() {
		c.close(websocket.CloseNormalClosure, "")
		s.unregister(c)
		s.logDebug(logMsgClientClosed, logAttrClientID, c.id)
	}()

	c.conn.SetReadLimit(s.readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		_ = c.conn.SetReadDeadline(time.Now().Add(s.pongTimeout))

		if messageType != websocket.TextMessage {
			continue
		}

		s.count(metricFramesReceived, nil)

		s.mu.RLock()
		onMessage := s.onMessage
		s.mu.RUnlock()

		if onMessage != nil {
			onMessage(ctx, c.id, data)
		}
	}
}

// writeLoop is the only writer of data frames of the connection.
func (s *Server) writeLoop(c *client) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return

		case message := <-c.queue:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logDebug(logMsgWriteFailed, logAttrClientID, c.id, logAttrError, err.Error())
				c.close(websocket.CloseAbnormalClosure, "")
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				c.close(websocket.CloseAbnormalClosure, "")
				return
			}
		}
	}
}

func newClientID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}

func (s *Server) count(metric string, labels map[string]string) {
	eventstore.IncrementCounter(context.Background(), s.metricsCollector, metric, labels)
}

func (s *Server) logDebug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *Server) logInfo(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *Server) logWarn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

func (s *Server) logError(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Error(msg, args...)
	}
}
