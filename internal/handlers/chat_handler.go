package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/kaveh-r/GymAppBack/internal/models"
	"github.com/kaveh-r/GymAppBack/internal/services"
	chatws "github.com/kaveh-r/GymAppBack/internal/websocket"
	"github.com/kaveh-r/GymAppBack/pkg/utils"
)

type chatApplicationService interface {
	ResolveRoom(ctx context.Context, actorID int64, role string, memberID, trainerID int64) (*models.Conversation, error)
	ListRooms(ctx context.Context, actorID int64, role string) ([]models.ConversationSummary, error)
	ListPartners(ctx context.Context, actorID int64, role string) ([]models.Participant, error)
	ListMessages(ctx context.Context, actorID int64, role string, conversationID int64, limit int) ([]models.Message, error)
	AppendMessage(ctx context.Context, actorID int64, role string, conversationID int64, content models.MessageContent) (*services.ChatDelivery, error)
	Authorize(ctx context.Context, actorID int64, role string, conversationID int64) error
}

type ChatHandler struct {
	service   chatApplicationService
	storage   services.StorageService
	hub       *chatws.Hub
	jwtSecret string
	validate  *validator.Validate
}

type resolveRoomRequest struct {
	MemberID  int64 `json:"memberId" validate:"omitempty,gt=0"`
	TrainerID int64 `json:"trainerId" validate:"omitempty,gt=0"`
}

type sendMessageRequest struct {
	ChatRoomID     int64  `json:"chatRoomId" validate:"required,gt=0"`
	Text           string `json:"text"`
	ImageURL       string `json:"imageUrl"`
	VoiceURL       string `json:"voiceUrl"`
	AttachmentURL  string `json:"attachmentUrl"`
	AttachmentName string `json:"attachmentName"`
	ReplyTo        *int64 `json:"replyTo" validate:"omitempty,gt=0"`
}

func NewChatHandler(
	service chatApplicationService,
	storage services.StorageService,
	hub *chatws.Hub,
	jwtSecret string,
) *ChatHandler {
	return &ChatHandler{
		service:   service,
		storage:   storage,
		hub:       hub,
		jwtSecret: jwtSecret,
		validate:  validator.New(),
	}
}

// ResolveRoom maps a (member, trainer) pairing to its durable conversation,
// creating the record on first contact.
func (h *ChatHandler) ResolveRoom(c *fiber.Ctx) error {
	actorID, role, err := actorFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req resolveRoomRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	}

	conversation, err := h.service.ResolveRoom(c.Context(), actorID, role, req.MemberID, req.TrainerID)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"conversation": conversation})
}

func (h *ChatHandler) ListRooms(c *fiber.Ctx) error {
	actorID, role, err := actorFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	rooms, err := h.service.ListRooms(c.Context(), actorID, role)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"conversations": rooms})
}

// ListPartners returns the counterpart roster used to seed placeholder
// conversation entries before any durable conversation exists.
func (h *ChatHandler) ListPartners(c *fiber.Ctx) error {
	actorID, role, err := actorFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	partners, err := h.service.ListPartners(c.Context(), actorID, role)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"partners": partners})
}

func (h *ChatHandler) GetMessages(c *fiber.Ctx) error {
	actorID, role, err := actorFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	conversationID, err := strconv.ParseInt(c.Params("roomId"), 10, 64)
	if err != nil || conversationID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid conversation id"})
	}

	limit := services.DefaultMessagePageLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid limit"})
		}
		limit = parsed
	}

	messages, err := h.service.ListMessages(c.Context(), actorID, role, conversationID, limit)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"messages": messages})
}

// SendMessage is the REST fallback for the socket send path; it persists and
// broadcasts exactly like a socket frame would.
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	actorID, role, err := actorFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	}

	delivery, err := h.service.AppendMessage(c.Context(), actorID, role, req.ChatRoomID, models.MessageContent{
		Text:           req.Text,
		ImageURL:       req.ImageURL,
		VoiceURL:       req.VoiceURL,
		AttachmentURL:  req.AttachmentURL,
		AttachmentName: req.AttachmentName,
		ReplyTo:        req.ReplyTo,
	})
	if err != nil {
		return mapChatError(c, err)
	}

	h.hub.BroadcastDelivery(delivery)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": delivery.Message})
}

// Upload accepts a chat attachment out-of-band and returns the reference URL
// embedded in the message that follows.
func (h *ChatHandler) Upload(c *fiber.Ctx) error {
	if _, _, err := actorFromContext(c); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	header, err := c.FormFile("attachment")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "attachment file is required"})
	}
	if header.Size <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "attachment file is empty"})
	}

	stored, err := h.storage.Save(header)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrPayloadTooLarge):
			return c.Status(fiber.StatusRequestEntityTooLarge).
				JSON(fiber.Map{"error": "attachment exceeds the 10MB limit"})
		case errors.Is(err, services.ErrUnsupportedType):
			return c.Status(fiber.StatusUnsupportedMediaType).
				JSON(fiber.Map{"error": "attachment must be an image, audio, video, or pdf file"})
		default:
			return c.Status(fiber.StatusInternalServerError).
				JSON(fiber.Map{"error": "Failed to store attachment"})
		}
	}

	return c.Status(fiber.StatusCreated).JSON(stored)
}

func (h *ChatHandler) WebSocketAuth(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{"error": "WebSocket upgrade required"})
	}

	claims, err := h.parseWSClaims(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired token"})
	}

	c.Locals("user_id", claims.UserID)
	c.Locals("role", claims.Role)
	return c.Next()
}

func (h *ChatHandler) HandleWebSocket(conn *websocket.Conn) {
	rawID, _ := conn.Locals("user_id").(string)
	role, _ := conn.Locals("role").(string)

	userID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || userID <= 0 {
		_ = conn.Close()
		return
	}

	client := chatws.NewClient(h.hub, conn, userID)
	h.hub.Register(client)
	go client.WritePump()
	client.ReadPump(h.service, role)
}

func (h *ChatHandler) parseWSClaims(c *fiber.Ctx) (*utils.Claims, error) {
	tokenString := strings.TrimSpace(c.Query("token"))
	if tokenString == "" {
		authHeader := strings.TrimSpace(c.Get("Authorization"))
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}
	}

	if tokenString == "" {
		return nil, errors.New("missing token")
	}

	return utils.ValidateToken(tokenString, h.jwtSecret)
}

func actorFromContext(c *fiber.Ctx) (int64, string, error) {
	role, ok := c.Locals("role").(string)
	if !ok || (role != models.RoleMember && role != models.RoleTrainer) {
		return 0, "", errors.New("missing role")
	}

	rawID, ok := c.Locals("user_id").(string)
	if !ok {
		return 0, "", errors.New("missing user id")
	}
	userID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || userID <= 0 {
		return 0, "", errors.New("invalid user id")
	}

	return userID, role, nil
}

func mapChatError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	case errors.Is(err, services.ErrInvalidContent):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Message must carry text, an image, a voice note, or an attachment"})
	case errors.Is(err, services.ErrUserNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Participant not found"})
	case errors.Is(err, services.ErrRoomNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Conversation not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process chat request"})
	}
}
