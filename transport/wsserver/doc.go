// Package wsserver is the WebSocket implementation of relay.Transport.
//
// Every connection gets a client id (UUIDv7) and two goroutines: the read loop hands inbound
// text frames to the message handler one at a time, the write loop drains a bounded FIFO queue
// and sends keep-alive pings. A client whose queue overflows is disconnected.
//
// Besides the WebSocket endpoint at "/", the server answers "GET /healthz" and, when admin keys
// are configured, "DELETE /admin/subscriptions/{id}" authenticated with the X-API-Key header.
package wsserver
