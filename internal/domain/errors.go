package domain

import "errors"

var (
	ErrMalformed       = errors.New("malformed message")
	ErrUnknownType     = errors.New("unknown message type")
	ErrNotJoined       = errors.New("client has not joined a room")
	ErrRoomNotFound    = errors.New("room not found")
	ErrConnClosed      = errors.New("connection closed")
	ErrSendBufferFull  = errors.New("send buffer full")
	ErrJournalDisabled = errors.New("session journal disabled")
)
