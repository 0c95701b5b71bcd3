package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// AdminHeader carries the static admin API token.
const AdminHeader = "X-Admin-Token"

// AdminOnly guards administrative endpoints with a static token. An empty
// configured token disables the endpoints entirely.
func AdminOnly(adminToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminToken == "" {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
				"error":      "not found",
				"error_type": "not_found",
			})
			return
		}

		provided := c.GetHeader(AdminHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(adminToken)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":      "admin rights required",
				"error_type": "forbidden",
			})
			return
		}

		c.Next()
	}
}
