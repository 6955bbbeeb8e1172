package server

import (
	"net/http"
	"strings"

	"tradewind/config"
	"tradewind/internal/auth"

	"github.com/gin-gonic/gin"
)

func Setup(cfg *config.Config, h *Handler) *gin.Engine {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	authMw := AuthRequired(&cfg.JWT)

	api := r.Group("/api/v1")
	api.Use(authMw)
	{
		api.GET("/unread-count", h.GetUnreadCount)
		api.GET("/conversations", h.ListConversations)
		api.GET("/conversations/:conversation_id/messages", h.GetMessages)
		api.POST("/conversations/:conversation_id/read", h.MarkRead)
		api.POST("/conversations/:conversation_id/messages", h.PostMessage)
		api.POST("/trade-offers", h.PostTradeOffer)
	}

	r.GET("/ws", UpgradePushWS(&cfg.JWT, h.Hub()))

	return r
}

// AuthRequired validates the Bearer identity token and stores the user id in
// the request context.
func AuthRequired(cfg *config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		claims, err := auth.ParseIdentityToken(cfg, strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("user_id", claims.UserID)
		c.Next()
	}
}
