package main

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"messenger-service/internal/config"
	"messenger-service/internal/db"
	"messenger-service/internal/handlers"
	"messenger-service/internal/middleware"
	"messenger-service/internal/observability"
	"messenger-service/internal/rabbitmq"
	"messenger-service/internal/repositories"
	"messenger-service/internal/security"
	"messenger-service/internal/ws"
)

const version = "1.0.0"

func main() {
	cfg := config.MustLoad()
	setupLogging(cfg)

	gin.SetMode(cfg.GinMode)

	database, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to db")
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	observability.SetPublisher(publisher)
	if closer, ok := publisher.(io.Closer); ok {
		defer closer.Close()
	}

	if cfg.OTEL.Enabled {
		shutdown, err := observability.SetupTracing(context.Background(), cfg.OTEL, version)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to set up tracing")
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				log.Warn().Err(err).Msg("tracer shutdown failed")
			}
		}()
	}

	tokens := security.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	passwords := security.NewPasswordHasher(cfg.BcryptCost)

	userRepo := repositories.NewUserRepo(database)
	chatRepo := repositories.NewChatRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	notificationRepo := repositories.NewNotificationRepo(database)

	hub := ws.NewHub()
	presence := ws.NewPresence()

	authHandler := handlers.NewAuthHandler(userRepo, passwords, tokens)
	chatHandler := handlers.NewChatHandler(chatRepo, hub)
	messageHandler := handlers.NewMessageHandler(chatRepo, messageRepo, hub)
	notificationHandler := handlers.NewNotificationHandler(notificationRepo)
	wsHandler := ws.NewHandler(hub, presence, tokens, userRepo, chatRepo, messageRepo, notificationRepo, cfg.AllowedOrigins)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(observability.HTTPMetricsMiddleware())
	if cfg.OTEL.Enabled {
		router.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	}

	router.GET("/healthz", handlers.Healthz(database))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/auth/register", authHandler.Register)
	router.POST("/auth/login", authHandler.Login)

	auth := middleware.Auth(tokens)

	router.GET("/users/me", auth, authHandler.Me)
	router.GET("/users/search", auth, authHandler.SearchUsers)

	router.GET("/chats", auth, chatHandler.ListChats)
	router.POST("/chats/start", auth, chatHandler.StartChat)
	router.POST("/chats/group", auth, chatHandler.CreateGroup)
	router.PUT("/chats/group/:chat_id", auth, chatHandler.RenameGroup)

	router.GET("/chats/:chat_id/messages", auth, messageHandler.GetChatMessages)
	router.POST("/chats/:chat_id/messages", auth, messageHandler.PostChatMessage)
	router.PUT("/chats/:chat_id/messages/:message_id", auth, messageHandler.EditMessage)
	router.DELETE("/chats/:chat_id/messages/:message_id", auth, messageHandler.DeleteMessage)
	router.DELETE("/chats/:chat_id/messages", auth, messageHandler.DeleteChatMessages)

	router.GET("/messages/unread-counts", auth, messageHandler.GetUnreadCounts)
	router.PUT("/messages/mark-read/:chat_id", auth, messageHandler.MarkChatRead)

	router.GET("/notifications", auth, notificationHandler.ListNotifications)
	router.GET("/notifications/unread-count", auth, notificationHandler.GetUnreadNotificationCount)
	router.PUT("/notifications/read-all", auth, notificationHandler.MarkAllNotificationsRead)
	router.PUT("/notifications/:notification_id/read", auth, notificationHandler.MarkNotificationRead)
	router.DELETE("/notifications/:notification_id", auth, notificationHandler.DeleteNotification)

	router.GET("/ws", wsHandler.Handle)

	log.Info().Str("port", cfg.Port).Str("version", version).Msg("starting messenger service")
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func setupLogging(cfg config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}
