package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/kiranvinzoda4/ai-dream-creater/internal/correlation"
)

func TestCorrelationIDReachesRequestContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CorrelationIDMiddleware())

	var fromGin, fromCtx string
	r.GET("/", func(c *gin.Context) {
		fromGin = GetCorrelationID(c)
		fromCtx = correlation.FromContext(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Correlation-ID", "corr-42")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "corr-42", rec.Header().Get("X-Correlation-ID"))
	assert.Equal(t, "corr-42", fromGin)
	assert.Equal(t, "corr-42", fromCtx)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, fromCtx)
	assert.Equal(t, rec.Header().Get("X-Correlation-ID"), fromCtx)
}
