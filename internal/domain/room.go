package domain

import (
	"time"
	"unicode/utf8"
)

const (
	DefaultRoomName = "party"
	MaxRoomNameLen  = 40

	DefaultDisplayName = "Player"
	MaxDisplayNameLen  = 24
)

// ClientID — непрозрачный идентификатор соединения, живёт ровно одно соединение.
type ClientID string

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Pellet struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Bonus bool    `json:"bonus"`
}

type Peer struct {
	ID   ClientID `json:"id"`
	Name string   `json:"name"`
}

// RoomInfo — read-only срез комнаты для HTTP API.
type RoomInfo struct {
	Name      string       `json:"name"`
	HostID    ClientID     `json:"hostId"`
	Members   []MemberInfo `json:"members"`
	Positions int          `json:"knownPositions"`
}

type MemberInfo struct {
	ID     ClientID `json:"id"`
	Name   string   `json:"name"`
	IsHost bool     `json:"isHost"`
}

const (
	EventJoin        = "join"
	EventLeave       = "leave"
	EventHostChanged = "host_changed"
)

// SessionEvent — запись журнала сессий (join/leave/host_changed).
type SessionEvent struct {
	ID       int64     `json:"id" db:"id"`
	Kind     string    `json:"kind" db:"kind"`
	Room     string    `json:"room" db:"room"`
	ClientID ClientID  `json:"clientId" db:"client_id"`
	Name     string    `json:"name,omitempty" db:"name"`
	At       time.Time `json:"at" db:"created_at"`
}

// NormalizeRoomName truncates to MaxRoomNameLen runes and falls back to "party".
func NormalizeRoomName(s string) string {
	return normalize(s, MaxRoomNameLen, DefaultRoomName)
}

// NormalizeDisplayName truncates to MaxDisplayNameLen runes and falls back to "Player".
func NormalizeDisplayName(s string) string {
	return normalize(s, MaxDisplayNameLen, DefaultDisplayName)
}

func normalize(s string, max int, def string) string {
	if utf8.RuneCountInString(s) > max {
		s = string([]rune(s)[:max])
	}
	if s == "" {
		return def
	}
	return s
}
