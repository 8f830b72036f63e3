package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/unitedwerise/backend/internal/logger"
	"github.com/unitedwerise/backend/internal/security"
	"go.uber.org/zap"
)

// IPBlockMiddleware rejects requests from blocked IPs before any other
// processing. Lookup failures let the request through rather than taking
// the API down with the database.
func IPBlockMiddleware(securityService *security.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()

		blocked, err := securityService.IsIPBlocked(clientIP)
		if err != nil {
			logger.Log.Error("IP block check failed",
				zap.String("client_ip", clientIP),
				zap.Error(err),
			)
			c.Next()
			return
		}

		if blocked {
			logger.Log.Warn("Blocked IP rejected", zap.String("client_ip", clientIP))
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Access denied",
				"code":  "ip_blocked",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
