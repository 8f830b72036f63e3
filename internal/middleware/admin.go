package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/unitedwerise/backend/internal/database"
	"github.com/unitedwerise/backend/internal/models"
)

// RequireAdmin middleware ensures the request is authenticated and the user is
// an admin. Admins with TOTP enrolled must additionally present a token minted
// through the TOTP step-up verification.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Get user_id from context (set by auth middleware)
		userIDInterface, exists := c.Get("user_id")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		userID, ok := userIDInterface.(string)
		if !ok || userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_user_context"})
			c.Abort()
			return
		}

		// Fetch user from database to check admin status
		var user models.User
		if err := database.DB.Where("id = ?", userID).First(&user).Error; err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "user_not_found"})
			c.Abort()
			return
		}

		if !user.IsAdmin {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin_access_required"})
			c.Abort()
			return
		}

		if user.TOTPEnabled {
			totpVerified, _ := c.Get("totp_verified")
			if verified, ok := totpVerified.(bool); !ok || !verified {
				c.JSON(http.StatusForbidden, gin.H{"error": "totp_verification_required"})
				c.Abort()
				return
			}
		}

		c.Next()
	}
}
