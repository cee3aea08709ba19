package chatclient

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/kaveh-r/GymAppBack/internal/models"
	chatws "github.com/kaveh-r/GymAppBack/internal/websocket"
)

// Transport is the persistent bidirectional channel between this client and
// the chat hub. Emits are fire-and-forget: no delivery acknowledgement is
// awaited, and nothing is queued while disconnected.
type Transport interface {
	JoinRoom(conversationID int64) error
	EmitMessage(conversationID int64, content models.MessageContent) error
	EmitTyping(conversationID int64) error
	EmitStopTyping(conversationID int64) error
	Inbound() <-chan chatws.Envelope
	Close() error
}

// SocketTransport speaks the hub's envelope protocol over a websocket. It
// does not reconnect on its own; after a connection drops a new Connect call
// is required.
type SocketTransport struct {
	userID int64

	mu      sync.Mutex
	conn    *websocket.Conn
	inbound chan chatws.Envelope
}

func NewSocketTransport(userID int64) *SocketTransport {
	return &SocketTransport{
		userID:  userID,
		inbound: make(chan chatws.Envelope, 64),
	}
}

// Connect dials the hub and announces this user's presence. Every call owns a
// fresh inbound channel, closed by its read loop, so a dropped connection is
// recovered by dialing again on the same transport. On handshake failure the
// transport stays disconnected and every emit reports ErrTransportUnavailable
// until Connect succeeds.
func (t *SocketTransport) Connect(ctx context.Context, wsURL, token string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL+"?token="+token, nil)
	if err != nil {
		return err
	}

	inbound := make(chan chatws.Envelope, 64)
	t.mu.Lock()
	t.conn = conn
	t.inbound = inbound
	t.mu.Unlock()

	if err := t.emit(chatws.Envelope{
		Event:    chatws.EventUserJoined,
		SenderID: t.userID,
	}); err != nil {
		t.mu.Lock()
		if t.conn == conn {
			t.conn = nil
		}
		t.mu.Unlock()
		_ = conn.Close()
		close(inbound)
		return err
	}

	go t.readLoop(conn, inbound)
	return nil
}

func (t *SocketTransport) readLoop(conn *websocket.Conn, inbound chan chatws.Envelope) {
	defer func() {
		t.mu.Lock()
		if t.conn == conn {
			t.conn = nil
		}
		t.mu.Unlock()
		close(inbound)
	}()

	for {
		var envelope chatws.Envelope
		if err := conn.ReadJSON(&envelope); err != nil {
			return
		}
		inbound <- envelope
	}
}

func (t *SocketTransport) JoinRoom(conversationID int64) error {
	return t.emit(chatws.Envelope{
		Event:          chatws.EventJoinRoom,
		ConversationID: conversationID,
	})
}

func (t *SocketTransport) EmitMessage(conversationID int64, content models.MessageContent) error {
	return t.emit(chatws.Envelope{
		Event:          chatws.EventSendMessage,
		ConversationID: conversationID,
		SenderID:       t.userID,
		Content:        &content,
	})
}

func (t *SocketTransport) EmitTyping(conversationID int64) error {
	return t.emit(chatws.Envelope{
		Event:          chatws.EventTyping,
		ConversationID: conversationID,
		SenderID:       t.userID,
	})
}

func (t *SocketTransport) EmitStopTyping(conversationID int64) error {
	return t.emit(chatws.Envelope{
		Event:          chatws.EventStopTyping,
		ConversationID: conversationID,
		SenderID:       t.userID,
	})
}

// Inbound returns the current connection's event channel. After a reconnect
// it is a different channel; consumers re-read it when the previous one
// closes.
func (t *SocketTransport) Inbound() <-chan chatws.Envelope {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inbound
}

func (t *SocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

func (t *SocketTransport) emit(envelope chatws.Envelope) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return ErrTransportUnavailable
	}
	return t.conn.WriteJSON(envelope)
}
