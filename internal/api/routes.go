package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes 注册 action 入口。根路径与 /v1/action 等价。
func RegisterRoutes(router *gin.Engine, dispatcher *Dispatcher) {
	router.POST("/", dispatcher.Handle)

	v1 := router.Group("/v1")
	{
		v1.POST("/action", dispatcher.Handle)
	}
}
