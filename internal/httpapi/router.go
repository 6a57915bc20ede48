package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"persona-chat/internal/chat"
	"persona-chat/internal/common"
	"persona-chat/internal/config"
	"persona-chat/internal/httpapi/handlers"
	"persona-chat/internal/httpapi/middleware"
	"persona-chat/internal/store/rabbitmq"
)

func NewRouter(db *gorm.DB, cfg config.Config, locks chat.SessionLocker, rabbit *rabbitmq.Publisher, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, "VALIDATION_ERROR", "method not allowed")
	})

	h := handlers.NewHandler(db, cfg, locks, rabbit, log)

	r.GET("/ping", h.Ping)

	// accounts
	r.POST("/users", h.CreateUser)
	r.POST("/login", h.Login)
	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	authGroup.GET("/me", h.Me)

	// persona registry
	r.GET("/agents", h.ListAgents)
	r.GET("/agents/:agent_id", h.GetAgent)

	// chat: JWT when present, anonymous session header otherwise
	chatGroup := r.Group("/chat")
	chatGroup.Use(middleware.Identity(cfg.JWTSecret))
	chatGroup.POST("/sessions", h.CreateChatSession)
	chatGroup.POST("/sessions/:session_id/messages", h.SendChatMessage)
	chatGroup.POST("/sessions/:session_id/messages/async", h.SendChatMessageAsync)
	chatGroup.POST("/sessions/:session_id/stop", h.StopChatSession)
	chatGroup.GET("/sessions/:session_id/history", h.GetChatHistory)
	chatGroup.GET("/jobs/:job_id", h.GetChatJob)

	return r
}
