package service

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/cwrk-planet/coop-relay/internal/domain"
)

// EventPublisher receives session events; JournalQueue is the production one.
type EventPublisher interface {
	Publish(ev domain.SessionEvent)
}

// Coordinator binds clients to rooms and relays their messages.
type Coordinator struct {
	registry *Registry
	rooms    *Directory
	events   EventPublisher
	now      func() time.Time
}

// NewCoordinator wires the registry and directory. events may be nil.
func NewCoordinator(registry *Registry, rooms *Directory, events EventPublisher) *Coordinator {
	return &Coordinator{
		registry: registry,
		rooms:    rooms,
		events:   events,
		now:      time.Now,
	}
}

// Connect registers a new connection and returns its id.
func (c *Coordinator) Connect() domain.ClientID {
	id := c.registry.Register()
	slog.Debug("client connected", "client", id)
	return id
}

// HandleMessage dispatches one raw client message. The returned error is for
// logging only: nothing is ever sent back for a rejected message.
func (c *Coordinator) HandleMessage(id domain.ClientID, conn Conn, data []byte) error {
	msg, err := domain.ParseInbound(data)
	if err != nil {
		return err
	}

	switch msg.Type {
	case domain.TypeJoin:
		return c.join(id, conn, msg.Join())
	case domain.TypeInput, domain.TypeSnapshot, domain.TypeEjectMass:
		return c.relay(id, msg)
	default:
		return fmt.Errorf("%w: %q", domain.ErrUnknownType, msg.Type)
	}
}

// Disconnect handles close and error alike; calling it twice is a no-op.
func (c *Coordinator) Disconnect(id domain.ClientID) {
	rec, ok := c.registry.Unregister(id)
	if !ok {
		slog.Debug("client disconnected before join", "client", id)
		return
	}
	c.leave(id, rec)
}

func (c *Coordinator) join(id domain.ClientID, conn Conn, req domain.JoinRequest) error {
	// повторный join переводит клиента из прежней комнаты
	if prev, ok := c.registry.Lookup(id); ok {
		c.leave(id, prev)
	}
	c.registry.Bind(id, req.Room, req.Name)

	welcome, err := domain.Encode(domain.NewWelcome(id))
	if err != nil {
		return err
	}
	peerJoin, err := domain.Encode(domain.NewPeerJoin(id, req.Name))
	if err != nil {
		return err
	}

	var stateErr error
	_, isHost := c.rooms.Join(req.Room, id, conn, req.Name, func(r *Room, _ bool) {
		state, err := domain.Encode(domain.NewRoomState(r.hostIDLocked(), r.peersLocked()))
		if err != nil {
			stateErr = err
			return
		}
		sendTo(conn, welcome)
		sendTo(conn, state)
		r.broadcastLocked(peerJoin, id)
	})
	if stateErr != nil {
		return stateErr
	}

	slog.Info("client joined", "client", id, "room", req.Room, "name", req.Name, "host", isHost)
	c.publish(domain.EventJoin, req.Room, id, req.Name)
	return nil
}

func (c *Coordinator) relay(id domain.ClientID, msg domain.Inbound) error {
	rec, ok := c.registry.Lookup(id)
	if !ok {
		return domain.ErrNotJoined
	}
	room, ok := c.rooms.Get(rec.Room)
	if !ok {
		return domain.ErrNotJoined
	}

	payload, err := msg.Relay(id)
	if err != nil {
		return fmt.Errorf("relay %s: %w", msg.Type, err)
	}

	// eject_mass возвращается и отправителю: хост применяет эффект по эху
	skip := id
	if msg.Type == domain.TypeEjectMass {
		skip = ""
	}

	if msg.Type == domain.TypeSnapshot {
		positions, hasPlayers := msg.Players()
		room.mu.Lock()
		defer room.mu.Unlock()
		if !room.isMemberLocked(id) {
			return domain.ErrNotJoined
		}
		if hasPlayers {
			room.setPositionsLocked(id, positions)
		}
		room.broadcastLocked(payload, skip)
		return nil
	}

	room.mu.RLock()
	defer room.mu.RUnlock()
	if !room.isMemberLocked(id) {
		return domain.ErrNotJoined
	}
	room.broadcastLocked(payload, skip)
	return nil
}

func (c *Coordinator) leave(id domain.ClientID, rec ClientRecord) {
	room, ok := c.rooms.Get(rec.Room)
	if !ok {
		return
	}

	peerLeave, err := domain.Encode(domain.NewPeerLeave(id))
	if err != nil {
		slog.Warn("encode peer_leave failed", "client", id, "err", err)
		return
	}

	res := c.rooms.Leave(room, id, func(r *Room, res LeaveResult) {
		if res.NowEmpty {
			return
		}
		if res.WasHost {
			if changed, err := domain.Encode(domain.NewHostChanged(res.NewHost)); err == nil {
				r.broadcastLocked(changed, "")
			}
		}
		r.broadcastLocked(peerLeave, "")
	})
	if !res.Removed {
		return
	}

	slog.Info("client left", "client", id, "room", rec.Room, "was_host", res.WasHost, "room_closed", res.NowEmpty)
	c.publish(domain.EventLeave, rec.Room, id, rec.Name)
	if res.NewHost != "" {
		slog.Info("host migrated", "room", rec.Room, "from", id, "to", res.NewHost)
		c.publish(domain.EventHostChanged, rec.Room, res.NewHost, "")
	}
}

// Rooms returns a snapshot of every live room.
func (c *Coordinator) Rooms() []domain.RoomInfo {
	rooms := c.rooms.Rooms()
	out := make([]domain.RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		info := r.Info()
		if len(info.Members) == 0 {
			continue
		}
		out = append(out, info)
	}
	return out
}

func (c *Coordinator) Room(name string) (domain.RoomInfo, error) {
	r, ok := c.rooms.Get(name)
	if !ok {
		return domain.RoomInfo{}, domain.ErrRoomNotFound
	}
	info := r.Info()
	if len(info.Members) == 0 {
		return domain.RoomInfo{}, domain.ErrRoomNotFound
	}
	return info, nil
}

// Close stops every room scheduler.
func (c *Coordinator) Close() {
	c.rooms.Close()
}

func (c *Coordinator) publish(kind, room string, id domain.ClientID, name string) {
	if c.events == nil {
		return
	}
	c.events.Publish(domain.SessionEvent{
		Kind:     kind,
		Room:     room,
		ClientID: id,
		Name:     name,
		At:       c.now(),
	})
}

func sendTo(conn Conn, payload []byte) {
	if err := conn.Send(payload); err != nil {
		slog.Debug("send skipped", "err", err)
	}
}
