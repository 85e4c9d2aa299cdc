package wsserver

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// client is one WebSocket connection with its bounded outbound queue.
type client struct {
	id        string
	conn      *websocket.Conn
	queue     chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(id string, conn *websocket.Conn, queueSize int) *client {
	return &client{
		id:    id,
		conn:  conn,
		queue: make(chan []byte, queueSize),
		done:  make(chan struct{}),
	}
}

// enqueue waits up to timeout for room in the queue. A queue that stays full is reported as
// ErrSendQueueFull, a closed client as ErrUnknownClient.
func (c *client) enqueue(message []byte, timeout time.Duration) error {
	select {
	case <-c.done:
		return ErrUnknownClient
	default:
	}

	select {
	case c.queue <- message:
		return nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case c.queue <- message:
		return nil
	case <-c.done:
		return ErrUnknownClient
	case <-timer.C:
		return ErrSendQueueFull
	}
}

// close sends a close frame and closes the connection, only the first call has an effect.
func (c *client) close(code int, text string) {
	c.closeOnce.Do(func() {
		close(c.done)

		if code != websocket.CloseAbnormalClosure {
			deadline := time.Now().Add(closeGracePeriod)
			_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
		}

		_ = c.conn.Close()
	})
}
