package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// client is the hub-side record of one live WebSocket connection.
type client struct {
	id   string
	conn *websocket.Conn
	// send is the buffered outbound queue drained by the write pump.
	send chan []byte
	// limiter throttles inbound messages; over-limit messages are dropped.
	limiter *rate.Limiter

	mu sync.Mutex
	// roomCode is the room this connection currently belongs to, empty when none.
	roomCode string
	closed   bool
}

func newClient(id string, conn *websocket.Conn, sendBuffer int, msgRate float64, burst int) *client {
	return &client{
		id:      id,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		limiter: rate.NewLimiter(rate.Limit(msgRate), burst),
	}
}

func (c *client) room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomCode
}

func (c *client) setRoom(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomCode = code
}

// enqueue queues a message for the write pump. A full buffer drops the
// message: delta syncs are frequent and the next full sync corrects drift.
func (c *client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close marks the client closed and shuts the send channel exactly once.
func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// writePump drains the send queue onto the socket. One writer goroutine per
// connection; it exits when the send channel closes.
func (c *client) writePump(writeTimeout time.Duration) {
	defer c.conn.Close()
	for data := range c.send {
		if writeTimeout > 0 {
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
