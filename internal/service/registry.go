package service

import (
	"strings"
	"sync"

	"github.com/cwrk-planet/coop-relay/internal/domain"

	"github.com/google/uuid"
)

const clientIDLen = 10

// ClientRecord — к какой комнате и под каким именем привязан клиент.
type ClientRecord struct {
	Room string
	Name string
}

// Registry assigns client ids and tracks the room binding of each client.
// A registered client has no record until it joins.
type Registry struct {
	mu      sync.RWMutex
	clients map[domain.ClientID]*ClientRecord
	newID   func() domain.ClientID
}

func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[domain.ClientID]*ClientRecord),
		newID:   newClientID,
	}
}

func newClientID() domain.ClientID {
	return domain.ClientID(strings.ReplaceAll(uuid.NewString(), "-", "")[:clientIDLen])
}

// Register выдаёт id, уникальный среди зарегистрированных сейчас клиентов.
func (r *Registry) Register() domain.ClientID {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		id := r.newID()
		if _, taken := r.clients[id]; taken {
			continue
		}
		r.clients[id] = nil
		return id
	}
}

// Bind creates or overwrites the record for id.
func (r *Registry) Bind(id domain.ClientID, room, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clients[id] = &ClientRecord{Room: room, Name: name}
}

func (r *Registry) Lookup(id domain.ClientID) (ClientRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec := r.clients[id]
	if rec == nil {
		return ClientRecord{}, false
	}
	return *rec, true
}

// Unregister removes id and returns the record it held, if any.
// Повторный вызов ничего не делает: close и error могут прийти для одного соединения.
func (r *Registry) Unregister(id domain.ClientID) (ClientRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.clients[id]
	delete(r.clients, id)
	if !ok || rec == nil {
		return ClientRecord{}, false
	}
	return *rec, true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
