package service

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/cwrk-planet/coop-relay/internal/domain"
)

// Conn — всё, что координатору нужно от соединения. Send не должен
// блокироваться: переполненное или закрытое соединение возвращает ошибку.
type Conn interface {
	Send(payload []byte) error
}

// WorldRunner runs the periodic world task of one room until ctx is cancelled.
type WorldRunner interface {
	Run(ctx context.Context, r *Room)
}

type member struct {
	id     domain.ClientID
	conn   Conn
	name   string
	isHost bool
}

// Room is one broadcast domain. All fields below mu are guarded by it.
// Invariant: a non-empty room has exactly one member with isHost set.
type Room struct {
	name string

	mu      sync.RWMutex
	members map[domain.ClientID]*member
	order   []domain.ClientID // порядок входа, по нему выбирается новый хост
	players []domain.Position // последние позиции от хоста
	closed  bool

	cancel context.CancelFunc
	done   chan struct{}
}

func newRoom(name string) *Room {
	return &Room{
		name:    name,
		members: make(map[domain.ClientID]*member),
	}
}

func (r *Room) Name() string { return r.name }

func (r *Room) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// CurrentHost returns the host id; ok is false only for an empty room.
func (r *Room) CurrentHost() (domain.ClientID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if m := r.hostLocked(); m != nil {
		return m.id, true
	}
	return "", false
}

// Positions returns a copy of the host-reported player positions.
func (r *Room) Positions() []domain.Position {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.players)
}

func (r *Room) Info() domain.RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info := domain.RoomInfo{
		Name:      r.name,
		Members:   make([]domain.MemberInfo, 0, len(r.order)),
		Positions: len(r.players),
	}
	for _, id := range r.order {
		m := r.members[id]
		if m.isHost {
			info.HostID = id
		}
		info.Members = append(info.Members, domain.MemberInfo{ID: id, Name: m.name, IsHost: m.isHost})
	}
	return info
}

// --- методы ниже требуют удерживаемого r.mu ---

func (r *Room) hostLocked() *member {
	for _, id := range r.order {
		if m := r.members[id]; m.isHost {
			return m
		}
	}
	return nil
}

func (r *Room) hostIDLocked() domain.ClientID {
	if m := r.hostLocked(); m != nil {
		return m.id
	}
	return ""
}

func (r *Room) peersLocked() []domain.Peer {
	peers := make([]domain.Peer, 0, len(r.order))
	for _, id := range r.order {
		peers = append(peers, domain.Peer{ID: id, Name: r.members[id].name})
	}
	return peers
}

func (r *Room) isMemberLocked(id domain.ClientID) bool {
	_, ok := r.members[id]
	return ok
}

// setPositionsLocked — только текущий хост может менять позиции игроков.
// Хосту доверяем: содержимое не проверяется, кроме конечности координат.
func (r *Room) setPositionsLocked(from domain.ClientID, positions []domain.Position) bool {
	m, ok := r.members[from]
	if !ok || !m.isHost {
		return false
	}
	r.players = positions
	return true
}

// broadcastLocked sends payload to every member except skip. Failed sends are
// skipped; the rest of the room still receives the message.
func (r *Room) broadcastLocked(payload []byte, skip domain.ClientID) int {
	sent := 0
	for _, id := range r.order {
		if skip != "" && id == skip {
			continue
		}
		if err := r.members[id].conn.Send(payload); err != nil {
			slog.Debug("room send skipped", "room", r.name, "client", id, "err", err)
			continue
		}
		sent++
	}
	return sent
}

func (r *Room) stopLocked() {
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

// LeaveResult describes what a departure did to the room.
type LeaveResult struct {
	Removed  bool
	WasHost  bool
	NowEmpty bool
	NewHost  domain.ClientID
}

// Directory maps room names to live rooms and owns their world schedulers.
type Directory struct {
	mu    sync.Mutex
	rooms map[string]*Room

	world   WorldRunner
	stopped atomic.Bool
	wg      sync.WaitGroup
}

// NewDirectory creates an empty directory. world may be nil, in which case
// rooms run without a scheduler.
func NewDirectory(world WorldRunner) *Directory {
	return &Directory{
		rooms: make(map[string]*Room),
		world: world,
	}
}

// GetOrCreate lazily creates an empty room on first reference.
func (d *Directory) GetOrCreate(name string) *Room {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.rooms[name]
	if !ok {
		r = newRoom(name)
		d.rooms[name] = r
	}
	return r
}

func (d *Directory) Get(name string) (*Room, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.rooms[name]
	return r, ok
}

// Rooms returns live rooms ordered by name.
func (d *Directory) Rooms() []*Room {
	d.mu.Lock()
	out := make([]*Room, 0, len(d.rooms))
	for _, r := range d.rooms {
		out = append(out, r)
	}
	d.mu.Unlock()

	slices.SortFunc(out, func(a, b *Room) int {
		switch {
		case a.name < b.name:
			return -1
		case a.name > b.name:
			return 1
		}
		return 0
	})
	return out
}

func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.rooms)
}

// Join inserts the client into the named room, creating the room on first
// reference. The first member of a room becomes host. fn, if set, runs while
// the room is still locked, so nothing is relayed to the room between the
// insertion and what fn sends.
func (d *Directory) Join(name string, id domain.ClientID, conn Conn, displayName string, fn func(r *Room, isHost bool)) (*Room, bool) {
	for {
		r := d.GetOrCreate(name)
		r.mu.Lock()
		if r.closed {
			// комнату только что разобрали, берём новую
			r.mu.Unlock()
			continue
		}

		isHost := len(r.members) == 0
		if m, exists := r.members[id]; exists {
			m.conn = conn
			m.name = displayName
			isHost = m.isHost
		} else {
			r.members[id] = &member{id: id, conn: conn, name: displayName, isHost: isHost}
			r.order = append(r.order, id)
		}
		d.ensureSchedulerLocked(r)

		if fn != nil {
			fn(r, isHost)
		}
		r.mu.Unlock()
		return r, isHost
	}
}

// Leave removes the client. A departing host is replaced by the earliest
// joined remaining member; an emptied room is closed, its scheduler cancelled
// and it is dropped from the directory before Leave returns. fn runs under
// the room lock after the membership change.
func (d *Directory) Leave(r *Room, id domain.ClientID, fn func(r *Room, res LeaveResult)) LeaveResult {
	d.mu.Lock()
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[id]
	if !ok {
		d.mu.Unlock()
		return LeaveResult{}
	}
	delete(r.members, id)
	r.order = slices.DeleteFunc(r.order, func(x domain.ClientID) bool { return x == id })

	res := LeaveResult{Removed: true, WasHost: m.isHost}
	switch {
	case len(r.members) == 0:
		res.NowEmpty = true
		r.closed = true
		r.players = nil
		r.stopLocked()
		if d.rooms[r.name] == r {
			delete(d.rooms, r.name)
		}
	case m.isHost:
		next := r.members[r.order[0]]
		next.isHost = true
		res.NewHost = next.id
	}
	d.mu.Unlock()

	if fn != nil {
		fn(r, res)
	}
	return res
}

func (d *Directory) ensureSchedulerLocked(r *Room) {
	if d.world == nil || r.cancel != nil || d.stopped.Load() {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer close(done)
		d.world.Run(ctx, r)
	}()
}

// Close cancels every room scheduler and waits for them to exit.
// Rooms stay in place; no new schedulers are started afterwards.
func (d *Directory) Close() {
	d.stopped.Store(true)

	d.mu.Lock()
	for _, r := range d.rooms {
		r.mu.Lock()
		r.stopLocked()
		r.mu.Unlock()
	}
	d.mu.Unlock()

	d.wg.Wait()
}
