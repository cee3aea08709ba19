package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kaveh-r/GymAppBack/internal/models"
	"github.com/kaveh-r/GymAppBack/internal/repository"
)

const DefaultMessagePageLimit = 50

type userReader interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	ListByRole(ctx context.Context, role string) ([]models.Participant, error)
}

// ChatService is the room resolver and message store behind both the REST
// surface and the socket hub.
type ChatService struct {
	db               *pgxpool.Pool
	conversationRepo *repository.ConversationRepository
	messageRepo      *repository.MessageRepository
	userRepo         userReader
}

// ChatDelivery pairs a persisted message with the routing information the hub
// needs to broadcast it.
type ChatDelivery struct {
	Conversation *models.Conversation
	Message      *models.Message
	RecipientID  int64
}

func NewChatService(
	db *pgxpool.Pool,
	conversationRepo *repository.ConversationRepository,
	messageRepo *repository.MessageRepository,
	userRepo userReader,
) *ChatService {
	return &ChatService{
		db:               db,
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		userRepo:         userRepo,
	}
}

// ResolveRoom returns the durable conversation for a (member, trainer) pair,
// creating it on first contact. Whichever side of the pair matches the
// caller's role may be omitted and is derived from the session. Idempotent:
// repeat and concurrent calls converge on one conversation id.
func (s *ChatService) ResolveRoom(
	ctx context.Context,
	actorID int64,
	role string,
	memberID int64,
	trainerID int64,
) (*models.Conversation, error) {
	switch role {
	case models.RoleMember:
		memberID = actorID
	case models.RoleTrainer:
		if trainerID == 0 {
			trainerID = actorID
		}
	default:
		return nil, ErrForbidden
	}

	if memberID <= 0 || trainerID <= 0 || memberID == trainerID {
		return nil, ErrInvalidInput
	}
	if role == models.RoleTrainer && trainerID != actorID {
		return nil, ErrForbidden
	}

	member, err := s.userRepo.GetByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	trainer, err := s.userRepo.GetByID(ctx, trainerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if member.Role != models.RoleMember || trainer.Role != models.RoleTrainer {
		return nil, ErrInvalidInput
	}

	conversation, err := s.conversationRepo.CreateOrGet(ctx, memberID, trainerID)
	if err != nil {
		return nil, err
	}

	return s.conversationRepo.GetWithMembers(ctx, conversation.ID)
}

func (s *ChatService) ListRooms(
	ctx context.Context,
	actorID int64,
	role string,
) ([]models.ConversationSummary, error) {
	if role != models.RoleMember && role != models.RoleTrainer {
		return nil, ErrForbidden
	}
	return s.conversationRepo.ListForParticipant(ctx, actorID)
}

// ListPartners returns the counterpart roster: members for a trainer, trainers
// for a member. It seeds the client's placeholder conversation entries.
func (s *ChatService) ListPartners(
	ctx context.Context,
	actorID int64,
	role string,
) ([]models.Participant, error) {
	switch role {
	case models.RoleMember:
		return s.userRepo.ListByRole(ctx, models.RoleTrainer)
	case models.RoleTrainer:
		return s.userRepo.ListByRole(ctx, models.RoleMember)
	default:
		return nil, ErrForbidden
	}
}

// Authorize reports whether the actor participates in the conversation.
func (s *ChatService) Authorize(
	ctx context.Context,
	actorID int64,
	role string,
	conversationID int64,
) error {
	if role != models.RoleMember && role != models.RoleTrainer {
		return ErrForbidden
	}
	if conversationID <= 0 {
		return ErrInvalidInput
	}
	_, err := s.conversationRepo.GetByIDForParticipant(ctx, conversationID, actorID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrForbidden
	}
	return err
}

// ListMessages returns up to `limit` most recent messages oldest-first and
// marks the counterpart's messages read in the same transaction.
func (s *ChatService) ListMessages(
	ctx context.Context,
	actorID int64,
	role string,
	conversationID int64,
	limit int,
) ([]models.Message, error) {
	if role != models.RoleMember && role != models.RoleTrainer {
		return nil, ErrForbidden
	}
	if conversationID <= 0 {
		return nil, ErrInvalidInput
	}
	if limit <= 0 || limit > DefaultMessagePageLimit {
		limit = DefaultMessagePageLimit
	}

	_, err := s.conversationRepo.GetByIDForParticipant(ctx, conversationID, actorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txMessageRepo := repository.NewMessageRepository(tx)

	messages, err := txMessageRepo.ListByConversation(ctx, conversationID, limit)
	if err != nil {
		return nil, err
	}

	if err := txMessageRepo.MarkConversationRead(ctx, conversationID, actorID); err != nil {
		return nil, err
	}

	for i := range messages {
		if messages[i].SenderID != actorID {
			messages[i].IsRead = true
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return messages, nil
}

// AppendMessage persists a message and bumps the owning conversation's
// last-message reference and recency. The content invariant is checked before
// anything is touched: a message with no text, image, voice, or attachment is
// rejected outright.
func (s *ChatService) AppendMessage(
	ctx context.Context,
	actorID int64,
	role string,
	conversationID int64,
	content models.MessageContent,
) (*ChatDelivery, error) {
	if role != models.RoleMember && role != models.RoleTrainer {
		return nil, ErrForbidden
	}
	if conversationID <= 0 {
		return nil, ErrInvalidInput
	}

	content.Text = strings.TrimSpace(content.Text)
	if content.Empty() {
		return nil, ErrInvalidContent
	}
	if content.ReplyTo != nil && *content.ReplyTo <= 0 {
		return nil, ErrInvalidInput
	}

	conversation, err := s.conversationRepo.GetByIDForParticipant(ctx, conversationID, actorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}

	recipientID := conversation.MemberID
	if actorID == conversation.MemberID {
		recipientID = conversation.TrainerID
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txMessageRepo := repository.NewMessageRepository(tx)
	txConversationRepo := repository.NewConversationRepository(tx)

	message, err := txMessageRepo.Create(ctx, conversationID, actorID, content)
	if err != nil {
		return nil, err
	}

	if err := txConversationRepo.SetLastMessage(ctx, conversationID, message.ID, message.CreatedAt); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &ChatDelivery{
		Conversation: conversation,
		Message:      message,
		RecipientID:  recipientID,
	}, nil
}

func FormatChatTimestamp(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339)
}
