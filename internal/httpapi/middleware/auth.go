package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"persona-chat/internal/auth"
	"persona-chat/internal/common"
)

// AuthRequired guards account routes. Unlike Identity there is no anonymous
// fallback here.
func AuthRequired(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			common.Fail(c, http.StatusUnauthorized, "ACCESS_DENIED", "missing bearer token")
			c.Abort()
			return
		}
		claims, err := auth.ParseJWT(token, jwtSecret)
		if err != nil {
			common.Fail(c, http.StatusUnauthorized, "ACCESS_DENIED", "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(UserIDKey, claims.UserID)
		c.Set(TierKey, claims.Tier)
		c.Next()
	}
}
