package middleware

import (
	"corpus_qa_backend/internal/config"
	"corpus_qa_backend/pkg/logger"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const rateLimitKeyPrefix = "qa:ratelimit:"

// ClientIdentifier 取客户端标识：显式头优先，否则退回IP
func ClientIdentifier(c *gin.Context) string {
	if id := c.GetHeader("X-Client-Id"); id != "" {
		return id
	}
	return c.ClientIP()
}

// ChatRateLimiter 聊天入口的按客户端滑动窗口限流（Redis ZSET计数）。
// 限流在任何编排工作开始之前生效。阈值经 atomic 指针读取，
// 配置热更新后无需重启。Redis故障时放行并告警：限流是护栏不是功能。
func ChatRateLimiter(rdb *redis.Client, limits *atomic.Pointer[config.RateLimitConfig]) gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg := limits.Load()
		maxRequests := cfg.MaxRequests
		if maxRequests <= 0 {
			maxRequests = 20
		}
		window := time.Duration(cfg.WindowMinutes) * time.Minute
		if window <= 0 {
			window = time.Minute
		}

		ctx := c.Request.Context()
		key := rateLimitKeyPrefix + ClientIdentifier(c)
		now := time.Now().UnixNano()
		cutoff := now - window.Nanoseconds()

		pipe := rdb.TxPipeline()
		pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(cutoff, 10))
		pipe.ZAdd(ctx, key, &redis.Z{Score: float64(now), Member: now})
		card := pipe.ZCard(ctx, key)
		pipe.Expire(ctx, key, window)

		if _, err := pipe.Exec(ctx); err != nil {
			logger.Log.Warn("rate limiter unavailable, allowing request", zap.Error(err))
			c.Next()
			return
		}

		if card.Val() > int64(maxRequests) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "too many chat requests, please slow down",
			})
			return
		}

		c.Next()
	}
}
