package api

import (
	"Minerva/internal/config"

	"github.com/gin-gonic/gin"
)

// SetupRouter 配置和返回一个 Gin 引擎实例。
func SetupRouter(h *Handler, cfg config.ServerConfig) *gin.Engine {
	// 使用默认中间件 (logger, recovery) 创建一个 Gin 引擎。
	r := gin.Default()

	apiV1 := r.Group("/api/v1")
	{
		apiV1.POST("/chat", RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst), h.Chat)
		apiV1.GET("/health", h.Health)
	}

	return r
}
