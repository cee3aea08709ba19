package repository

import (
	"context"
	"database/sql"
	"unicode/utf8"

	"github.com/kaveh-r/GymAppBack/internal/models"
)

const replyExcerptMaxRunes = 80

type MessageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(
	ctx context.Context,
	conversationID int64,
	senderID int64,
	content models.MessageContent,
) (*models.Message, error) {
	query := `
		INSERT INTO messages (
			conversation_id, sender_id, text_body, image_url, voice_url,
			attachment_url, attachment_name, reply_to, is_read
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE)
		RETURNING id, conversation_id, sender_id, text_body, image_url, voice_url,
			attachment_url, attachment_name, reply_to, is_read, created_at
	`

	var message models.Message
	err := r.db.QueryRow(ctx, query,
		conversationID,
		senderID,
		content.Text,
		content.ImageURL,
		content.VoiceURL,
		content.AttachmentURL,
		content.AttachmentName,
		content.ReplyTo,
	).Scan(
		&message.ID,
		&message.ConversationID,
		&message.SenderID,
		&message.Text,
		&message.ImageURL,
		&message.VoiceURL,
		&message.AttachmentURL,
		&message.AttachmentName,
		&message.ReplyTo,
		&message.IsRead,
		&message.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &message, nil
}

// ListByConversation returns the `limit` most recent messages in chronological
// order. Messages carrying a reply reference get a shallow projection of the
// replied-to message (sender name, truncated text) for reply rendering.
func (r *MessageRepository) ListByConversation(
	ctx context.Context,
	conversationID int64,
	limit int,
) ([]models.Message, error) {
	query := `
		SELECT
			msg.id, msg.conversation_id, msg.sender_id, msg.text_body, msg.image_url,
			msg.voice_url, msg.attachment_url, msg.attachment_name, msg.reply_to,
			msg.is_read, msg.created_at,
			ref.id, ru.full_name, ref.text_body
		FROM messages msg
		LEFT JOIN messages ref ON ref.id = msg.reply_to
		LEFT JOIN users ru ON ru.id = ref.sender_id
		WHERE msg.conversation_id = $1
		ORDER BY msg.created_at DESC, msg.id DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var message models.Message
		var refID sql.NullInt64
		var refSenderName sql.NullString
		var refText sql.NullString

		if err := rows.Scan(
			&message.ID,
			&message.ConversationID,
			&message.SenderID,
			&message.Text,
			&message.ImageURL,
			&message.VoiceURL,
			&message.AttachmentURL,
			&message.AttachmentName,
			&message.ReplyTo,
			&message.IsRead,
			&message.CreatedAt,
			&refID,
			&refSenderName,
			&refText,
		); err != nil {
			return nil, err
		}

		if refID.Valid {
			message.ReplyPreview = &models.ReplyPreview{
				MessageID:  refID.Int64,
				SenderName: refSenderName.String,
				Excerpt:    truncateExcerpt(refText.String),
			}
		}

		messages = append(messages, message)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query fetched newest-first; flip to oldest-first for display.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (r *MessageRepository) MarkConversationRead(
	ctx context.Context,
	conversationID int64,
	readerID int64,
) error {
	_, err := r.db.Exec(ctx, `
		UPDATE messages
		SET is_read = TRUE
		WHERE conversation_id = $1
		  AND sender_id <> $2
		  AND is_read = FALSE
	`, conversationID, readerID)
	return err
}

func truncateExcerpt(text string) string {
	if utf8.RuneCountInString(text) <= replyExcerptMaxRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:replyExcerptMaxRunes]) + "…"
}
