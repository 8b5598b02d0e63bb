package app

import (
	"corpus_qa_backend/internal/middleware"
	"corpus_qa_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers) {
	router.GET("/metrics", monitoring.PrometheusHandler())

	api := router.Group("/api")
	{
		api.GET("/health", c.health.HealthCheck)

		// 聊天入口先过滑动窗口限流，限流不通过时编排器不会被调用
		api.POST("/chat", middleware.ChatRateLimiter(a.Redis, &a.rateLimits), c.chat.Ask)

		// 答案浏览
		api.GET("/answers", c.answer.List)
		api.GET("/answers/count", c.answer.Count)
		api.GET("/answers/:id", c.answer.Get)
		api.GET("/answers/:id/related", c.answer.Related)

		// 关联问题重算（外部触发）
		api.POST("/related-questions/recompute", c.related.RecomputeAll)
		api.POST("/related-questions/:id/recompute", c.related.RecomputeOne)
	}
}
