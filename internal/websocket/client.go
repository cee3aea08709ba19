package chatws

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/kaveh-r/GymAppBack/internal/models"
	"github.com/kaveh-r/GymAppBack/internal/services"
)

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID int64
	send   chan []byte
}

// chatSender is the slice of the chat service the socket read loop needs.
type chatSender interface {
	AppendMessage(
		ctx context.Context,
		actorID int64,
		role string,
		conversationID int64,
		content models.MessageContent,
	) (*services.ChatDelivery, error)
	Authorize(ctx context.Context, actorID int64, role string, conversationID int64) error
}

func NewClient(hub *Hub, conn *websocket.Conn, userID int64) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, 32),
	}
}

func (c *Client) UserID() int64 {
	return c.userID
}

// ReadPump consumes frames until the connection drops. Sends are
// fire-and-forget from the peer's point of view; persistence failures go back
// only to the offending socket as a messageError frame.
func (c *Client) ReadPump(service chatSender, role string) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.handleFrame(service, role, payload)
	}
}

func (c *Client) handleFrame(service chatSender, role string, payload []byte) {
	var incoming Envelope
	if err := json.Unmarshal(payload, &incoming); err != nil {
		c.writeError("invalid frame")
		return
	}

	switch incoming.Event {
	case EventUserJoined:
		// Presence was announced at registration; a repeat announce just
		// refreshes last_seen for late subscribers.
		c.hub.Reannounce(c.userID)
	case EventJoinRoom:
		if incoming.ConversationID <= 0 {
			c.writeError("invalid conversation id")
			return
		}
		if err := service.Authorize(context.Background(), c.userID, role, incoming.ConversationID); err != nil {
			c.writeError("not a participant of this conversation")
			return
		}
		c.hub.JoinRoom(c, incoming.ConversationID)
	case EventSendMessage:
		if incoming.ConversationID <= 0 || incoming.Content == nil {
			c.writeError("invalid message payload")
			return
		}
		delivery, err := service.AppendMessage(
			context.Background(),
			c.userID,
			role,
			incoming.ConversationID,
			*incoming.Content,
		)
		if err != nil {
			c.writeError("failed to send message")
			return
		}
		c.hub.BroadcastDelivery(delivery)
	case EventTyping, EventStopTyping:
		// Best-effort, but still scoped: only participants may place typing
		// indicators in a room. Failures are dropped, not reported.
		if incoming.ConversationID <= 0 {
			return
		}
		if err := service.Authorize(context.Background(), c.userID, role, incoming.ConversationID); err != nil {
			return
		}
		c.hub.RelayTyping(incoming.ConversationID, c.userID, incoming.Event == EventStopTyping)
	default:
		c.writeError("unsupported event " + strconv.Quote(incoming.Event))
	}
}

func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

func (c *Client) writeError(message string) {
	payload, err := json.Marshal(Envelope{
		Event:     EventMessageError,
		Error:     message,
		Timestamp: services.FormatChatTimestamp(time.Now().UTC()),
	})
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
		c.hub.Unregister(c)
	}
}
