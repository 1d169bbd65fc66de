package ws

import (
	"sync"
	"time"

	"github.com/cwrk-planet/coop-relay/internal/domain"

	"github.com/gorilla/websocket"
)

// wsConn — соединение клиента. Send только кладёт сообщение в очередь,
// в сокет пишет один writeLoop.
type wsConn struct {
	id   domain.ClientID
	conn *websocket.Conn

	mu     sync.RWMutex
	send   chan []byte
	closed bool
	done   chan struct{}
}

func newWsConn(c *websocket.Conn, id domain.ClientID, buffer int) *wsConn {
	return &wsConn{
		id:   id,
		conn: c,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

// Send enqueues payload without blocking.
func (c *wsConn) Send(payload []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return domain.ErrConnClosed
	}

	select {
	case c.send <- payload:
		return nil
	default:
		return domain.ErrSendBufferFull
	}
}

func (c *wsConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	return c.conn.Close()
}

func (c *wsConn) writeLoop(pingEvery, writeTimeout time.Duration) {
	defer func() { _ = c.Close() }()

	var tick <-chan time.Time
	if pingEvery > 0 {
		ticker := time.NewTicker(pingEvery)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-tick:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
