package routes

import (
	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kaveh-r/GymAppBack/internal/config"
	"github.com/kaveh-r/GymAppBack/internal/handlers"
	"github.com/kaveh-r/GymAppBack/internal/middleware"
	"github.com/kaveh-r/GymAppBack/internal/repository"
	"github.com/kaveh-r/GymAppBack/internal/services"
	chatws "github.com/kaveh-r/GymAppBack/internal/websocket"
)

func RegisterRoutes(app *fiber.App, cfg *config.Config, db *pgxpool.Pool) {
	userRepo := repository.NewUserRepository(db)
	conversationRepo := repository.NewConversationRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	storageService := services.NewLocalStorageService(cfg.UploadDir, "/uploads")

	authHandler := handlers.NewAuthHandler(userRepo, cfg.JWTSecret)

	chatHub := chatws.NewHub()
	go chatHub.Run()
	chatService := services.NewChatService(db, conversationRepo, messageRepo, userRepo)
	chatHandler := handlers.NewChatHandler(chatService, storageService, chatHub, cfg.JWTSecret)

	app.Static("/uploads", cfg.UploadDir)

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Get("/me", middleware.AuthRequired(cfg.JWTSecret), authHandler.Me)

	chat := api.Group("/v1/chat", middleware.AuthRequired(cfg.JWTSecret))
	chat.Post("/room", chatHandler.ResolveRoom)
	chat.Get("/rooms", chatHandler.ListRooms)
	chat.Get("/partners", chatHandler.ListPartners)
	chat.Get("/messages/:roomId", chatHandler.GetMessages)
	chat.Post("/message", chatHandler.SendMessage)
	chat.Post("/upload", chatHandler.Upload)

	api.Use("/v1/ws", chatHandler.WebSocketAuth)
	api.Get("/v1/ws", websocket.New(chatHandler.HandleWebSocket))
}
