package chatclient

import (
	"time"

	"github.com/kaveh-r/GymAppBack/internal/models"
)

// ConversationRef distinguishes a conversation that exists on the server from
// a placeholder seeded off the roster before first contact.
type ConversationRef interface {
	isConversationRef()
}

// Placeholder stands in for a conversation that has no durable id yet; it
// carries only the counterpart's display metadata.
type Placeholder struct {
	Counterpart models.Participant
}

func (Placeholder) isConversationRef() {}

// Durable wraps a server-backed conversation.
type Durable struct {
	Conversation *models.Conversation
}

func (Durable) isConversationRef() {}

// RoomEntry is one row of the conversation list. OriginalIndex is the stable
// tie-break key: recency updates touch UpdatedAt and the preview fields but
// never reorder the list on their own.
type RoomEntry struct {
	Ref           ConversationRef
	OriginalIndex int
	UpdatedAt     time.Time
	LastMessage   *models.Message
	UnreadCount   int
	TypingFrom    int64
}

// CounterpartID identifies the entry regardless of which variant backs it;
// list updates match on it rather than on slice position.
func (e *RoomEntry) CounterpartID(selfID int64) int64 {
	switch ref := e.Ref.(type) {
	case Placeholder:
		return ref.Counterpart.ID
	case Durable:
		if c := ref.Conversation.Counterpart(selfID); c != nil {
			return c.ID
		}
		if ref.Conversation.MemberID == selfID {
			return ref.Conversation.TrainerID
		}
		return ref.Conversation.MemberID
	default:
		return 0
	}
}

// ConversationID returns the durable id, or 0 for a placeholder.
func (e *RoomEntry) ConversationID() int64 {
	if ref, ok := e.Ref.(Durable); ok {
		return ref.Conversation.ID
	}
	return 0
}

// Counterpart returns the display metadata of the other participant.
func (e *RoomEntry) Counterpart(selfID int64) models.Participant {
	switch ref := e.Ref.(type) {
	case Placeholder:
		return ref.Counterpart
	case Durable:
		if c := ref.Conversation.Counterpart(selfID); c != nil {
			return *c
		}
	}
	return models.Participant{}
}
