package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/kaveh-r/GymAppBack/internal/models"
)

type ConversationRepository struct {
	db DBTX
}

func NewConversationRepository(db DBTX) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// CreateOrGet resolves the durable conversation for a (member, trainer) pair,
// creating it on first contact. The unique constraint on the pair makes the
// lookup-then-create race-free: a concurrent first contact lands on the
// conflict arm and returns the already-created row.
func (r *ConversationRepository) CreateOrGet(
	ctx context.Context,
	memberID int64,
	trainerID int64,
) (*models.Conversation, error) {
	query := `
		INSERT INTO conversations (member_id, trainer_id)
		VALUES ($1, $2)
		ON CONFLICT (member_id, trainer_id)
		DO UPDATE SET updated_at = conversations.updated_at
		RETURNING id, member_id, trainer_id, last_message_id, created_at, updated_at
	`

	var conversation models.Conversation
	err := r.db.QueryRow(ctx, query, memberID, trainerID).Scan(
		&conversation.ID,
		&conversation.MemberID,
		&conversation.TrainerID,
		&conversation.LastMessageID,
		&conversation.CreatedAt,
		&conversation.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &conversation, nil
}

// GetWithMembers fetches a conversation with the display metadata of both
// participants populated.
func (r *ConversationRepository) GetWithMembers(
	ctx context.Context,
	conversationID int64,
) (*models.Conversation, error) {
	query := `
		SELECT
			c.id, c.member_id, c.trainer_id, c.last_message_id, c.created_at, c.updated_at,
			m.id, m.full_name, m.avatar_url, m.role,
			t.id, t.full_name, t.avatar_url, t.role
		FROM conversations c
		JOIN users m ON m.id = c.member_id
		JOIN users t ON t.id = c.trainer_id
		WHERE c.id = $1
	`

	var conversation models.Conversation
	var member, trainer models.Participant
	err := r.db.QueryRow(ctx, query, conversationID).Scan(
		&conversation.ID,
		&conversation.MemberID,
		&conversation.TrainerID,
		&conversation.LastMessageID,
		&conversation.CreatedAt,
		&conversation.UpdatedAt,
		&member.ID,
		&member.FullName,
		&member.AvatarURL,
		&member.Role,
		&trainer.ID,
		&trainer.FullName,
		&trainer.AvatarURL,
		&trainer.Role,
	)
	if err != nil {
		return nil, err
	}

	conversation.Member = &member
	conversation.Trainer = &trainer
	return &conversation, nil
}

func (r *ConversationRepository) GetByIDForParticipant(
	ctx context.Context,
	conversationID int64,
	participantID int64,
) (*models.Conversation, error) {
	query := `
		SELECT id, member_id, trainer_id, last_message_id, created_at, updated_at
		FROM conversations
		WHERE id = $1 AND (member_id = $2 OR trainer_id = $2)
	`

	var conversation models.Conversation
	err := r.db.QueryRow(ctx, query, conversationID, participantID).Scan(
		&conversation.ID,
		&conversation.MemberID,
		&conversation.TrainerID,
		&conversation.LastMessageID,
		&conversation.CreatedAt,
		&conversation.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &conversation, nil
}

func (r *ConversationRepository) ListForParticipant(
	ctx context.Context,
	participantID int64,
) ([]models.ConversationSummary, error) {
	query := `
		SELECT
			c.id,
			c.member_id,
			c.trainer_id,
			c.last_message_id,
			c.created_at,
			c.updated_at,
			m.id, m.full_name, m.avatar_url, m.role,
			t.id, t.full_name, t.avatar_url, t.role,
			lm.id,
			lm.sender_id,
			lm.text_body,
			lm.image_url,
			lm.voice_url,
			lm.attachment_url,
			lm.attachment_name,
			lm.is_read,
			lm.created_at,
			COALESCE(uc.unread_count, 0)
		FROM conversations c
		JOIN users m ON m.id = c.member_id
		JOIN users t ON t.id = c.trainer_id
		LEFT JOIN LATERAL (
			SELECT id, sender_id, text_body, image_url, voice_url, attachment_url, attachment_name, is_read, created_at
			FROM messages
			WHERE conversation_id = c.id
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		) lm ON TRUE
		LEFT JOIN LATERAL (
			SELECT COUNT(*) AS unread_count
			FROM messages
			WHERE conversation_id = c.id
			  AND sender_id <> $1
			  AND is_read = FALSE
		) uc ON TRUE
		WHERE c.member_id = $1 OR c.trainer_id = $1
		ORDER BY COALESCE(lm.created_at, c.updated_at, c.created_at) DESC, c.id DESC
	`

	rows, err := r.db.Query(ctx, query, participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make([]models.ConversationSummary, 0)
	for rows.Next() {
		var summary models.ConversationSummary
		var member, trainer models.Participant
		var messageID sql.NullInt64
		var messageSenderID sql.NullInt64
		var messageText sql.NullString
		var messageImage sql.NullString
		var messageVoice sql.NullString
		var messageAttachment sql.NullString
		var messageAttachmentName sql.NullString
		var messageIsRead sql.NullBool
		var messageCreatedAt sql.NullTime

		if err := rows.Scan(
			&summary.ID,
			&summary.MemberID,
			&summary.TrainerID,
			&summary.LastMessageID,
			&summary.CreatedAt,
			&summary.UpdatedAt,
			&member.ID,
			&member.FullName,
			&member.AvatarURL,
			&member.Role,
			&trainer.ID,
			&trainer.FullName,
			&trainer.AvatarURL,
			&trainer.Role,
			&messageID,
			&messageSenderID,
			&messageText,
			&messageImage,
			&messageVoice,
			&messageAttachment,
			&messageAttachmentName,
			&messageIsRead,
			&messageCreatedAt,
			&summary.UnreadCount,
		); err != nil {
			return nil, err
		}

		summary.Member = &member
		summary.Trainer = &trainer
		if messageID.Valid {
			summary.LastMessage = &models.Message{
				ID:             messageID.Int64,
				ConversationID: summary.ID,
				SenderID:       messageSenderID.Int64,
				Text:           messageText.String,
				ImageURL:       messageImage.String,
				VoiceURL:       messageVoice.String,
				AttachmentURL:  messageAttachment.String,
				AttachmentName: messageAttachmentName.String,
				IsRead:         messageIsRead.Bool,
				CreatedAt:      messageCreatedAt.Time,
			}
		}

		summaries = append(summaries, summary)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return summaries, nil
}

// SetLastMessage bumps the conversation's recency to the appended message.
// updated_at is the message timestamp, not NOW(), so list ordering follows
// true message recency.
func (r *ConversationRepository) SetLastMessage(
	ctx context.Context,
	conversationID int64,
	messageID int64,
	sentAt time.Time,
) error {
	_, err := r.db.Exec(ctx, `
		UPDATE conversations
		SET last_message_id = $2, updated_at = $3
		WHERE id = $1
	`, conversationID, messageID, sentAt)
	return err
}
