package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Входящие типы.
const (
	TypeJoin      = "join"
	TypeInput     = "input"
	TypeSnapshot  = "snapshot"
	TypeEjectMass = "eject_mass"
)

// Исходящие типы.
const (
	TypeWelcome      = "welcome"
	TypeRoomState    = "room_state"
	TypePeerJoin     = "peer_join"
	TypePeerLeave    = "peer_leave"
	TypeHostChanged  = "host_changed"
	TypeSpawnPellets = "spawn_pellets"
)

const fieldFrom = "from"

// Inbound is a client message: the type tag plus every field as received.
// Unknown fields stay in Fields and are relayed verbatim.
type Inbound struct {
	Type   string
	Fields map[string]json.RawMessage
}

// ParseInbound decodes one JSON object. Anything that is not an object with a
// non-empty string "type" is rejected.
func ParseInbound(data []byte) (Inbound, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if fields == nil {
		return Inbound{}, fmt.Errorf("%w: not an object", ErrMalformed)
	}

	var typ string
	if raw, ok := fields["type"]; ok {
		_ = json.Unmarshal(raw, &typ)
	}
	if typ == "" {
		return Inbound{}, fmt.Errorf("%w: missing type", ErrUnknownType)
	}

	return Inbound{Type: typ, Fields: fields}, nil
}

type JoinRequest struct {
	Room string
	Name string
}

// Join returns normalized room and display names.
func (m Inbound) Join() JoinRequest {
	return JoinRequest{
		Room: NormalizeRoomName(m.text("room")),
		Name: NormalizeDisplayName(m.text("name")),
	}
}

// text приводит поле к строке: строки как есть, числа и true в текстовом
// виде; пустые/ложные значения, объекты и массивы дают "".
func (m Inbound) text(key string) string {
	raw, ok := m.Fields[key]
	if !ok {
		return ""
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}

	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == 0 {
			return ""
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "true"
		}
	}
	return ""
}

// Players parses the "players" mapping of a snapshot. ok is false when the
// field is absent or not an object; malformed entries are dropped silently.
// Entry order follows the order of keys in the payload.
func (m Inbound) Players() (positions []Position, ok bool) {
	raw, found := m.Fields["players"]
	if !found {
		return nil, false
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, false
	}
	if d, isDelim := tok.(json.Delim); !isDelim || d != '{' {
		return nil, false
	}

	positions = make([]Position, 0)
	for dec.More() {
		if _, err := dec.Token(); err != nil { // key
			break
		}
		var entry json.RawMessage
		if err := dec.Decode(&entry); err != nil {
			break
		}
		if p, valid := parsePosition(entry); valid {
			positions = append(positions, p)
		}
	}
	return positions, true
}

func parsePosition(raw json.RawMessage) (Position, bool) {
	var xy struct {
		X *float64 `json:"x"`
		Y *float64 `json:"y"`
	}
	if err := json.Unmarshal(raw, &xy); err != nil {
		return Position{}, false
	}
	if xy.X == nil || xy.Y == nil || !finite(*xy.X) || !finite(*xy.Y) {
		return Position{}, false
	}
	return Position{X: *xy.X, Y: *xy.Y}, true
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Relay encodes the message with every original field plus "from".
// A client-supplied "from" is overwritten.
func (m Inbound) Relay(from ClientID) ([]byte, error) {
	out := make(map[string]json.RawMessage, len(m.Fields)+1)
	for k, v := range m.Fields {
		out[k] = v
	}
	fromRaw, err := json.Marshal(from)
	if err != nil {
		return nil, err
	}
	out[fieldFrom] = fromRaw

	return json.Marshal(out)
}

// --- исходящие сообщения ---

type Welcome struct {
	Type string   `json:"type"`
	ID   ClientID `json:"id"`
}

type RoomState struct {
	Type   string   `json:"type"`
	HostID ClientID `json:"hostId"`
	Peers  []Peer   `json:"peers"`
}

type PeerJoin struct {
	Type string   `json:"type"`
	ID   ClientID `json:"id"`
	Name string   `json:"name"`
}

type PeerLeave struct {
	Type string   `json:"type"`
	ID   ClientID `json:"id"`
}

type HostChanged struct {
	Type   string   `json:"type"`
	HostID ClientID `json:"hostId"`
}

type SpawnPellets struct {
	Type    string   `json:"type"`
	Pellets []Pellet `json:"pellets"`
}

func NewWelcome(id ClientID) Welcome {
	return Welcome{Type: TypeWelcome, ID: id}
}

func NewRoomState(host ClientID, peers []Peer) RoomState {
	return RoomState{Type: TypeRoomState, HostID: host, Peers: peers}
}

func NewPeerJoin(id ClientID, name string) PeerJoin {
	return PeerJoin{Type: TypePeerJoin, ID: id, Name: name}
}

func NewPeerLeave(id ClientID) PeerLeave {
	return PeerLeave{Type: TypePeerLeave, ID: id}
}

func NewHostChanged(host ClientID) HostChanged {
	return HostChanged{Type: TypeHostChanged, HostID: host}
}

func NewSpawnPellets(pellets []Pellet) SpawnPellets {
	return SpawnPellets{Type: TypeSpawnPellets, Pellets: pellets}
}

// Encode marshals an outbound message once so the same bytes can be
// fanned out to every recipient.
func Encode(msg any) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", msg, err)
	}
	return b, nil
}
