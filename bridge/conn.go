package bridge

import (
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the subset of *websocket.Conn the bridge needs on either side.
// Tests substitute in-memory fakes; production always passes gorilla
// connections.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
	Subprotocol() string
}

var _ Conn = (*websocket.Conn)(nil)
