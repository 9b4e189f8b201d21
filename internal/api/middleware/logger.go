package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const requestLoggerKey = "requestLogger"

// ActionLogKey 由 dispatcher 写入，请求结束时附加到访问日志。
const ActionLogKey = "log.action"

// RequestLogger 为每个请求派生带 correlation_id 的 slog.Logger，并在结束时按状态码选择日志级别。
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLogger := logger.With(
			slog.String("correlation_id", GetCorrelationID(c)),
			slog.String("method", c.Request.Method),
			slog.String("client_ip", c.ClientIP()),
		)
		c.Set(requestLoggerKey, reqLogger)

		start := time.Now()
		c.Next()

		attrs := []any{
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
			slog.Int("bytes_out", c.Writer.Size()),
		}
		if action := c.GetString(ActionLogKey); action != "" {
			attrs = append(attrs, slog.String("action", action))
		}

		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			reqLogger.Error("request failed", attrs...)
		case status >= http.StatusBadRequest:
			reqLogger.Warn("request rejected", attrs...)
		default:
			reqLogger.Info("request completed", attrs...)
		}
	}
}

// LoggerFromContext 取出 RequestLogger 注入的 logger，未注入时返回 slog.Default()。
func LoggerFromContext(c *gin.Context) *slog.Logger {
	if v, ok := c.Get(requestLoggerKey); ok {
		if l, ok := v.(*slog.Logger); ok {
			return l
		}
	}
	return slog.Default()
}
