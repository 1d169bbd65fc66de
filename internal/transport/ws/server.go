package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cwrk-planet/coop-relay/internal/domain"
	"github.com/cwrk-planet/coop-relay/internal/service"

	"github.com/gorilla/websocket"
)

// Coordinator — то, что транспорт вызывает на события соединения.
type Coordinator interface {
	Connect() domain.ClientID
	HandleMessage(id domain.ClientID, conn service.Conn, data []byte) error
	Disconnect(id domain.ClientID)
}

type Options struct {
	ReadLimit    int64
	SendBuffer   int
	PingEvery    time.Duration // 0: без keepalive
	WriteTimeout time.Duration
}

type Server struct {
	upgrader websocket.Upgrader
	hub      *Hub
	coord    Coordinator
	opts     Options

	handlers sync.WaitGroup
}

func NewServer(hub *Hub, coord Coordinator, opts Options) *Server {
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 2_000_000
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	return &Server{
		hub:   hub,
		coord: coord,
		opts:  opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// HandleWS — GET /ws (и /). Клиент сам присылает join первым сообщением.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader уже ответил клиенту
		slog.Warn("ws upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	s.handlers.Add(1)
	defer s.handlers.Done()

	id := s.coord.Connect()
	c := newWsConn(conn, id, s.opts.SendBuffer)
	s.hub.Add(c)
	slog.Debug("ws connected", "client", id, "remote", r.RemoteAddr)

	go c.writeLoop(s.opts.PingEvery, s.opts.WriteTimeout)
	s.readLoop(c)

	// close и error обрабатываются одинаково, Disconnect идемпотентен
	s.coord.Disconnect(id)
	s.hub.Remove(c)
	_ = c.Close()
	slog.Debug("ws disconnected", "client", id)
}

func (s *Server) readLoop(c *wsConn) {
	c.conn.SetReadLimit(s.opts.ReadLimit)
	if s.opts.PingEvery > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.opts.PingEvery))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(2 * s.opts.PingEvery))
		})
	}

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				slog.Debug("ws read failed", "client", c.id, "err", err)
			}
			return
		}
		if s.opts.PingEvery > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.opts.PingEvery))
		}

		if err := s.coord.HandleMessage(c.id, c, data); err != nil {
			// плохое сообщение молча отбрасываем, соединение живёт дальше
			if !errors.Is(err, domain.ErrMalformed) && !errors.Is(err, domain.ErrUnknownType) && !errors.Is(err, domain.ErrNotJoined) {
				slog.Warn("ws message failed", "client", c.id, "err", err)
			} else {
				slog.Debug("ws message dropped", "client", c.id, "err", err)
			}
		}
	}
}

// Shutdown закрывает все соединения и ждёт, пока их обработчики отработают Disconnect.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.CloseAll()

	done := make(chan struct{})
	go func() {
		s.handlers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
