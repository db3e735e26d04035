package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quocanhngo/hubtalk/internal/metrics"
	"github.com/quocanhngo/hubtalk/internal/middleware"
	"github.com/quocanhngo/hubtalk/pkg/logger"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// Router bundles everything the HTTP surface needs
type Router struct {
	Chat     *ChatHandler
	Calls    *CallHandler
	Users    *UserHandler
	Upload   *UploadHandler // nil disables /upload
	WS       *WSHandler
	Verifier *middleware.TokenVerifier

	Logger         *zap.Logger
	Metrics        *metrics.Metrics
	CORSOrigins    []string
	RequestTimeout time.Duration
	SwaggerJSON    string // path of the generated swagger.json, empty disables the UI
}

// Engine builds the gin engine with all routes registered
func (r Router) Engine() *gin.Engine {
	log := logger.OrNop(r.Logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware(log, r.Metrics))
	router.Use(middleware.CORSMiddleware(r.CORSOrigins))

	if r.SwaggerJSON != "" {
		// Serve swagger.json at /docs/swagger.json to avoid conflict with /swagger/* wildcard
		router.StaticFile("/docs/swagger.json", r.SwaggerJSON)
		url := ginSwagger.URL("/docs/swagger.json")
		router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, url))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "hubtalk",
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	})
	if r.Metrics != nil {
		router.GET("/metrics", gin.WrapH(r.Metrics.Handler()))
	}

	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(r.Verifier))
	if r.RequestTimeout > 0 {
		api.Use(middleware.Timeout(r.RequestTimeout))
	}
	{
		// Users
		api.GET("/users/me", r.Users.GetMe)
		api.GET("/users/search", r.Users.SearchUsers)
		api.POST("/devices", r.Users.RegisterDevice)

		// Conversations
		api.GET("/conversations", r.Chat.GetConversations)
		api.POST("/conversations", r.Chat.CreateConversation)
		api.GET("/conversations/:id", r.Chat.GetConversation)
		api.POST("/conversations/:id/archive", r.Chat.ArchiveConversation)
		api.POST("/conversations/:id/participants", r.Chat.AddParticipants)
		api.DELETE("/conversations/:id/participants/:userId", r.Chat.RemoveParticipant)

		// Messages
		api.GET("/conversations/:id/messages", r.Chat.GetMessages)
		api.POST("/conversations/:id/messages", r.Chat.SendMessage)
		api.POST("/conversations/:id/read", r.Chat.MarkAsRead)

		// Presence
		api.PUT("/conversations/:id/presence", r.Chat.SetPresence)
		api.GET("/conversations/:id/presence", r.Chat.GetPresence)

		// Calls
		api.GET("/conversations/:id/calls", r.Calls.ListOpenCalls)
		api.POST("/calls", r.Calls.InitiateCall)
		api.GET("/calls/:id", r.Calls.GetCall)
		api.POST("/calls/:id/join", r.Calls.JoinCall)
		api.POST("/calls/:id/end", r.Calls.EndCall)
		api.POST("/calls/:id/signal", r.Calls.Signal)

		// Upload
		if r.Upload != nil {
			api.POST("/upload", r.Upload.UploadFile)
		}
	}

	// WebSocket endpoint (auth via query parameter)
	router.GET("/ws", r.WS.HandleWebSocket)

	return router
}
