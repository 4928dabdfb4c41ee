package httpapi

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter wires the API routes. allowOrigins feeds CORS; empty allows any origin.
func NewRouter(h *Handler, allowOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.requestLogger())

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
	}
	if len(allowOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = allowOrigins
		corsCfg.AllowCredentials = true
	}
	r.Use(cors.New(corsCfg))

	api := r.Group("/api")
	api.Use(h.operatorAuth())
	{
		api.GET("/health", h.Health)

		api.GET("/config", h.Config)
		api.GET("/tokens", h.Tokens)
		api.GET("/price", h.Price)
		api.GET("/quote", h.Quote)

		api.POST("/airdrop/register", h.RegisterAirdrop)

		api.GET("/chat", h.ChatList)
		api.POST("/chat", h.ChatPost)
		api.DELETE("/chat/:id", h.ChatDelete)
		api.GET("/chat/stream", h.ChatStream)
	}

	r.GET("/metrics", gin.WrapH(h.metrics.Handler()))

	return r
}
