package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// APIKey rejects requests whose header does not carry key. An empty key
// closes the group entirely.
func APIKey(header, key string) gin.HandlerFunc {
	expected := []byte(key)
	return func(c *gin.Context) {
		provided := strings.TrimSpace(c.GetHeader(header))
		switch {
		case provided == "":
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing API key"})
		case len(expected) == 0 || subtle.ConstantTimeCompare([]byte(provided), expected) != 1:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
		default:
			c.Next()
		}
	}
}
