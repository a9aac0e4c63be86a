package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const APITokenHeader = "x-api-token"

// APITokenMiddleware rejects requests whose x-api-token header does not match token.
// With an empty token any non-empty header is accepted.
func APITokenMiddleware(token string) gin.HandlerFunc {
	token = strings.TrimSpace(token)
	return func(c *gin.Context) {
		got := strings.TrimSpace(c.GetHeader(APITokenHeader))
		if got == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing x-api-token header"})
			return
		}
		if token != "" && subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api token"})
			return
		}
		c.Next()
	}
}
