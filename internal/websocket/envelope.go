package chatws

import "github.com/kaveh-r/GymAppBack/internal/models"

// Event names carried on the socket, both directions.
const (
	EventJoinRoom     = "joinRoom"
	EventSendMessage  = "sendMessage"
	EventTyping       = "typing"
	EventStopTyping   = "stopTyping"
	EventUserJoined   = "user-joined"
	EventNewMessage   = "newMessage"
	EventStatusUpdate = "status-update"
	EventMessageError = "messageError"
)

// Envelope is the single frame format used on the chat socket. Which fields
// are set depends on Event; absent fields are omitted on the wire.
type Envelope struct {
	Event          string                 `json:"event"`
	ConversationID int64                  `json:"conversationId,omitempty"`
	SenderID       int64                  `json:"senderId,omitempty"`
	Content        *models.MessageContent `json:"content,omitempty"`
	Message        *models.Message        `json:"message,omitempty"`
	Status         *models.PresenceRecord `json:"status,omitempty"`
	Error          string                 `json:"error,omitempty"`
	Timestamp      string                 `json:"timestamp,omitempty"`
}
