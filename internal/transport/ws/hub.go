package ws

import (
	"sync"

	"github.com/cwrk-planet/coop-relay/internal/domain"
)

// Hub tracks live connections so shutdown can close them.
type Hub struct {
	mu    sync.RWMutex
	conns map[domain.ClientID]*wsConn
}

func NewHub() *Hub {
	return &Hub{conns: make(map[domain.ClientID]*wsConn)}
}

func (h *Hub) Add(c *wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.id] = c
}

func (h *Hub) Remove(c *wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.conns[c.id]; ok && cur == c {
		delete(h.conns, c.id)
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// CloseAll закрывает все соединения; read loop'ы завершатся и отработают Disconnect.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	conns := make([]*wsConn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		_ = c.Close() // best-effort
	}
}
