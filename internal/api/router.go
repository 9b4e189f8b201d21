package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kiranvinzoda4/ai-dream-creater/internal/api/middleware"
	"github.com/kiranvinzoda4/ai-dream-creater/internal/metrics"
)

// NewRouter 构建 Gin 路由引擎，挂载通用中间件、健康检查与指标端点。
func NewRouter(logger *slog.Logger, serviceName string) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.CORSMiddleware(),
		middleware.CorrelationIDMiddleware(),
		middleware.TracingMiddleware(serviceName),
		middleware.RequestLogger(logger),
		metrics.GinMiddleware(),
	)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 任意路径的预检请求由 CORSMiddleware 直接应答。
	router.OPTIONS("/*path", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "OK"})
	})

	return router
}
