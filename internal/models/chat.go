package models

import "time"

// Conversation is a durable 1:1 channel between a member and a trainer.
// The member pair is fixed at creation; only last_message_id and updated_at
// change afterwards, both bumped when a message is appended.
type Conversation struct {
	ID            int64        `json:"id"`
	MemberID      int64        `json:"memberId"`
	TrainerID     int64        `json:"trainerId"`
	LastMessageID *int64       `json:"lastMessageId"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
	Member        *Participant `json:"member,omitempty"`
	Trainer       *Participant `json:"trainer,omitempty"`
}

// Counterpart returns the display projection of the other participant.
func (c *Conversation) Counterpart(userID int64) *Participant {
	if c.MemberID == userID {
		return c.Trainer
	}
	return c.Member
}

// MessageContent carries the optional content fields of a candidate message.
// A persisted message must have at least one of them set.
type MessageContent struct {
	Text           string `json:"text,omitempty"`
	ImageURL       string `json:"imageUrl,omitempty"`
	VoiceURL       string `json:"voiceUrl,omitempty"`
	AttachmentURL  string `json:"attachmentUrl,omitempty"`
	AttachmentName string `json:"attachmentName,omitempty"`
	ReplyTo        *int64 `json:"replyTo,omitempty"`
}

func (c MessageContent) Empty() bool {
	return c.Text == "" && c.ImageURL == "" && c.VoiceURL == "" && c.AttachmentURL == ""
}

type Message struct {
	ID             int64         `json:"id"`
	ConversationID int64         `json:"conversationId"`
	SenderID       int64         `json:"senderId"`
	Text           string        `json:"text,omitempty"`
	ImageURL       string        `json:"imageUrl,omitempty"`
	VoiceURL       string        `json:"voiceUrl,omitempty"`
	AttachmentURL  string        `json:"attachmentUrl,omitempty"`
	AttachmentName string        `json:"attachmentName,omitempty"`
	ReplyTo        *int64        `json:"replyTo,omitempty"`
	ReplyPreview   *ReplyPreview `json:"replyPreview,omitempty"`
	IsRead         bool          `json:"isRead"`
	CreatedAt      time.Time     `json:"createdAt"`
}

func (m *Message) Content() MessageContent {
	return MessageContent{
		Text:           m.Text,
		ImageURL:       m.ImageURL,
		VoiceURL:       m.VoiceURL,
		AttachmentURL:  m.AttachmentURL,
		AttachmentName: m.AttachmentName,
		ReplyTo:        m.ReplyTo,
	}
}

// ReplyPreview is the shallow projection of a replied-to message used for
// reply rendering; the excerpt is truncated, never the full body.
type ReplyPreview struct {
	MessageID  int64  `json:"messageId"`
	SenderName string `json:"senderName"`
	Excerpt    string `json:"excerpt"`
}

type ConversationSummary struct {
	Conversation
	LastMessage *Message `json:"lastMessage,omitempty"`
	UnreadCount int      `json:"unreadCount"`
}

// PresenceRecord is ephemeral per-user state; the latest event wins.
type PresenceRecord struct {
	UserID   int64     `json:"userId"`
	IsActive bool      `json:"isActive"`
	LastSeen time.Time `json:"lastSeen"`
}
