package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"persona-chat/internal/common"
)

// Recovery converts panics into a 500 envelope instead of a dropped connection.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic recovered",
					zap.Any("panic", r),
					zap.String("path", c.Request.URL.Path),
					zap.Stack("stack"))
				common.Fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
				c.Abort()
			}
		}()
		c.Next()
	}
}
