package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kiranvinzoda4/ai-dream-creater/internal/errcode"
)

func Error(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

func BadRequest(c *gin.Context, msg string) { Error(c, http.StatusBadRequest, msg) }

// Success 写出 {"success": true, ...payload}。
func Success(c *gin.Context, payload gin.H) {
	body := gin.H{"success": true}
	for k, v := range payload {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

// Fail 按 errcode 分类写出错误；内部错误只记录日志，对外统一为 "internal error"。
func Fail(c *gin.Context, logger *slog.Logger, err error) {
	status := errcode.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("action failed", slog.Any("error", err))
	} else {
		logger.Info("action rejected", slog.Int("status", status), slog.String("reason", errcode.PublicMessage(err)))
	}
	Error(c, status, errcode.PublicMessage(err))
}
