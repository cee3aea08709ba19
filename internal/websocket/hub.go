package chatws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/kaveh-r/GymAppBack/internal/models"
	"github.com/kaveh-r/GymAppBack/internal/services"
)

// Hub owns all live socket state: per-user client sets, per-conversation room
// subscriptions, and the ephemeral presence records. Everything except the
// presence map is mutated only by the Run loop.
type Hub struct {
	clients    map[int64]map[*Client]struct{}
	rooms      map[int64]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	join       chan joinRequest
	outbound   chan *delivery

	presenceMu sync.RWMutex
	presence   map[int64]models.PresenceRecord
}

type joinRequest struct {
	client         *Client
	conversationID int64
}

// delivery scopes one encoded frame to either a room or the whole hub.
type delivery struct {
	conversationID int64 // 0 means every connected client
	recipient      int64 // user whose sockets are included even outside the room
	exclude        int64 // user id whose clients are skipped, 0 for none
	payload        []byte
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[int64]map[*Client]struct{}),
		rooms:      make(map[int64]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		join:       make(chan joinRequest, 16),
		outbound:   make(chan *delivery, 64),
		presence:   make(map[int64]models.PresenceRecord),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			set, ok := h.clients[client.userID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.userID] = set
			}
			set[client] = struct{}{}
			h.announce(client.userID, true)
		case client := <-h.unregister:
			h.dropClient(client)
		case req := <-h.join:
			set, ok := h.rooms[req.conversationID]
			if !ok {
				set = make(map[*Client]struct{})
				h.rooms[req.conversationID] = set
			}
			set[req.client] = struct{}{}
		case d := <-h.outbound:
			h.deliver(d)
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// JoinRoom subscribes the client to a conversation's broadcasts. Idempotent.
func (h *Hub) JoinRoom(client *Client, conversationID int64) {
	h.join <- joinRequest{client: client, conversationID: conversationID}
}

// BroadcastDelivery fans a persisted message out to every socket joined to its
// room, plus the recipient's connected sockets even when they have not joined
// yet, so an unopened conversation still updates its list entry live. Used by
// both the socket send path and the REST fallback.
func (h *Hub) BroadcastDelivery(d *services.ChatDelivery) {
	h.send(&Envelope{
		Event:          EventNewMessage,
		ConversationID: d.Message.ConversationID,
		SenderID:       d.Message.SenderID,
		Message:        d.Message,
		Timestamp:      services.FormatChatTimestamp(d.Message.CreatedAt),
	}, d.Message.ConversationID, d.RecipientID, 0)
}

// RelayTyping forwards a typing indicator to the room, excluding the typist's
// own sockets. Best-effort, never persisted.
func (h *Hub) RelayTyping(conversationID, senderID int64, stopped bool) {
	event := EventTyping
	if stopped {
		event = EventStopTyping
	}
	h.send(&Envelope{
		Event:          event,
		ConversationID: conversationID,
		SenderID:       senderID,
	}, conversationID, 0, senderID)
}

// Reannounce refreshes and rebroadcasts a connected user's presence record.
// Safe to call from any goroutine.
func (h *Hub) Reannounce(userID int64) {
	record := models.PresenceRecord{
		UserID:   userID,
		IsActive: true,
		LastSeen: time.Now().UTC(),
	}

	h.presenceMu.Lock()
	h.presence[userID] = record
	h.presenceMu.Unlock()

	h.send(&Envelope{
		Event:  EventStatusUpdate,
		Status: &record,
	}, 0, 0, 0)
}

// Presence returns the latest presence record for a user, if any.
func (h *Hub) Presence(userID int64) (models.PresenceRecord, bool) {
	h.presenceMu.RLock()
	defer h.presenceMu.RUnlock()
	record, ok := h.presence[userID]
	return record, ok
}

// announce overwrites the user's presence record and tells every connected
// client. Runs on the hub loop.
func (h *Hub) announce(userID int64, active bool) {
	record := models.PresenceRecord{
		UserID:   userID,
		IsActive: active,
		LastSeen: time.Now().UTC(),
	}

	h.presenceMu.Lock()
	h.presence[userID] = record
	h.presenceMu.Unlock()

	encoded, err := json.Marshal(&Envelope{
		Event:  EventStatusUpdate,
		Status: &record,
	})
	if err != nil {
		log.Printf("chat hub encode status: %v", err)
		return
	}
	h.deliver(&delivery{payload: encoded})
}

func (h *Hub) send(envelope *Envelope, conversationID, recipient, exclude int64) {
	encoded, err := json.Marshal(envelope)
	if err != nil {
		log.Printf("chat hub encode %s: %v", envelope.Event, err)
		return
	}
	h.outbound <- &delivery{
		conversationID: conversationID,
		recipient:      recipient,
		exclude:        exclude,
		payload:        encoded,
	}
}

func (h *Hub) deliver(d *delivery) {
	if d.conversationID == 0 {
		for _, set := range h.clients {
			for client := range set {
				h.push(client, d.payload)
			}
		}
		return
	}

	room := h.rooms[d.conversationID]
	for client := range room {
		if d.exclude != 0 && client.userID == d.exclude {
			continue
		}
		h.push(client, d.payload)
	}

	if d.recipient == 0 || d.recipient == d.exclude {
		return
	}
	for client := range h.clients[d.recipient] {
		if _, joined := room[client]; joined {
			continue
		}
		h.push(client, d.payload)
	}
}

func (h *Hub) push(client *Client, payload []byte) {
	select {
	case client.send <- payload:
	default:
		h.dropClient(client)
	}
}

func (h *Hub) dropClient(client *Client) {
	set, ok := h.clients[client.userID]
	if ok {
		if _, exists := set[client]; exists {
			delete(set, client)
			close(client.send)
		}
		if len(set) == 0 {
			delete(h.clients, client.userID)
			h.announce(client.userID, false)
		}
	}
	for conversationID, room := range h.rooms {
		delete(room, client)
		if len(room) == 0 {
			delete(h.rooms, conversationID)
		}
	}
}
