package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"persona-chat/internal/auth"
)

const (
	UserIDKey      = "user_id"
	TierKey        = "tier"
	AnonymousIDKey = "anonymous_id"
)

// AnonymousSessionHeader carries the client-generated anonymous identifier.
const AnonymousSessionHeader = "X-Anonymous-Session"

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// Identity resolves the caller for session-scoped routes. A valid JWT wins;
// an invalid or absent one degrades silently to the anonymous header. Whether
// "no identity at all" is acceptable is the handler's call, not ours.
func Identity(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := bearerToken(c); token != "" {
			if claims, err := auth.ParseJWT(token, jwtSecret); err == nil {
				c.Set(UserIDKey, claims.UserID)
				c.Set(TierKey, claims.Tier)
				c.Next()
				return
			}
		}
		if anon := strings.TrimSpace(c.GetHeader(AnonymousSessionHeader)); anon != "" {
			c.Set(AnonymousIDKey, anon)
		}
		c.Next()
	}
}
